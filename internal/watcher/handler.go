package watcher

import (
	"strconv"

	"github.com/aodv2/aodv2/internal/config"
	"github.com/aodv2/aodv2/internal/ringevent"
)

// hardCeilingNS is the single-event latency that anomalies regardless of
// acceptable_count.
const hardCeilingNS = 1_000_000_000

// Handler evaluates a tool_id-masked slice of Events and reports whether the
// configured anomaly fired. Implementations must be stateless between calls:
// all configuration is captured at construction time from a frozen
// config.AnomalyConfig.
type Handler interface {
	Detect(batch ringevent.Batch) bool
}

// latencyHandler implements the latency anomaly kind: a dense per-command
// threshold lookup plus a hard ceiling disjunct.
type latencyHandler struct {
	thresholdNS     [ringevent.MaxSMBCmdID + 1]uint64
	acceptableCount int
}

func newLatencyHandler(ac config.AnomalyConfig) (*latencyHandler, error) {
	h := &latencyHandler{acceptableCount: ac.AcceptableCount}

	var defaultMS int
	if ac.DefaultThresholdMS != nil {
		defaultMS = *ac.DefaultThresholdMS
	}

	for key, msOverride := range ac.Track {
		cmdID, err := strconv.Atoi(key)
		if err != nil || cmdID < 0 || cmdID > ringevent.MaxSMBCmdID {
			return nil, &InvalidTrackKeyError{Key: key}
		}
		ms := defaultMS
		if msOverride != nil {
			ms = *msOverride
		}
		h.thresholdNS[cmdID] = uint64(ms) * 1_000_000
	}
	return h, nil
}

// Detect implements Handler.
//
//	anomaly_count = count_where(latency_ns >= threshold_ns[cmd_id])
//	max_latency   = max(latency_ns)
//	detected = (anomaly_count >= acceptable_count) OR (max_latency >= 1e9)
func (h *latencyHandler) Detect(batch ringevent.Batch) bool {
	var count int
	var maxLatency uint64
	for _, ev := range batch {
		lat := ev.LatencyNS()
		if lat > maxLatency {
			maxLatency = lat
		}
		if int(ev.SMBCommand) <= ringevent.MaxSMBCmdID && lat >= h.thresholdNS[ev.SMBCommand] {
			count++
		}
	}
	return count >= h.acceptableCount || maxLatency >= hardCeilingNS
}

// errorHandler is the error anomaly kind's reserved extension point. Its
// detection body is unspecified upstream; per the design decision this spec
// adopts, it always reports false, preserving the dispatch shape so a
// richer detector can be dropped in later without touching the Watcher.
type errorHandler struct{}

func (errorHandler) Detect(ringevent.Batch) bool { return false }

// InvalidTrackKeyError reports a track-map key that isn't a valid command
// or error-code id.
type InvalidTrackKeyError struct {
	Key string
}

func (e *InvalidTrackKeyError) Error() string {
	return "watcher: invalid track key " + strconv.Quote(e.Key)
}
