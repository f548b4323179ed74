package watcher

import (
	"fmt"

	"github.com/aodv2/aodv2/internal/config"
)

// entry pairs a built handler with the kind and tool_id mask its anomaly
// was configured with. The action list is resolved by the Collector, not
// held here.
type entry struct {
	kind    string
	toolID  uint8
	handler Handler
}

// buildRegistry constructs the closed kind->handler dispatch table once from
// a frozen config snapshot. This is the "named kind selects a handler from a
// registry" pattern: a map built once at startup, not an open inheritance
// hierarchy, and not re-built per batch.
// Each AnomalyAction carries only a kind, not the config entry name that
// produced it (see ringevent.AnomalyAction), so at most one config entry may
// define a given kind — buildRegistry rejects duplicates.
func buildRegistry(cfg config.GuardianConfig) (map[string]entry, error) {
	reg := make(map[string]entry, len(cfg.Anomalies))

	for name, ac := range cfg.Anomalies {
		if _, dup := reg[ac.Kind]; dup {
			return nil, fmt.Errorf("anomaly %q: duplicate kind %q (only one entry per kind is allowed)", name, ac.Kind)
		}

		var h Handler
		switch ac.Kind {
		case "latency":
			lh, err := newLatencyHandler(ac)
			if err != nil {
				return nil, fmt.Errorf("anomaly %q: %w", name, err)
			}
			h = lh
		case "error":
			h = errorHandler{}
		default:
			return nil, fmt.Errorf("anomaly %q: unknown kind %q", name, ac.Kind)
		}
		reg[ac.Kind] = entry{kind: ac.Kind, toolID: ac.ToolID, handler: h}
	}
	return reg, nil
}
