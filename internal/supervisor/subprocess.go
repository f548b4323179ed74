package supervisor

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/aodv2/aodv2/internal/config"
	"github.com/aodv2/aodv2/internal/observability"
)

// toolSpec is one distinct external event-producer subprocess the Supervisor
// keeps alive for the lifetime of the daemon: a tool name, its binary path,
// and the set of SMB command ids and minimum threshold it should watch,
// folded across every AnomalyConfig entry that names it.
type toolSpec struct {
	name       string
	binary     string
	minMS      int
	cmdIDs     []int
}

// buildToolSpecs folds every AnomalyConfig entry referencing a Tool into one
// toolSpec per distinct tool name, taking the minimum threshold across
// entries that share a tool (the tightest requested window wins) and the
// union of tracked command ids.
func buildToolSpecs(cfg *config.Config) ([]toolSpec, error) {
	byName := make(map[string]*toolSpec)

	for entryName, ac := range cfg.Guardian.Anomalies {
		if ac.Tool == "" {
			continue
		}
		bin, ok := cfg.Supervisor.ToolBinaries[ac.Tool]
		if !ok {
			return nil, fmt.Errorf("anomaly %q: tool %q has no entry in supervisor.tool_binaries", entryName, ac.Tool)
		}

		spec, ok := byName[ac.Tool]
		if !ok {
			spec = &toolSpec{name: ac.Tool, binary: bin, minMS: -1}
			byName[ac.Tool] = spec
		}

		for key, override := range ac.Track {
			threshold := defaultThreshold(ac)
			if override != nil {
				threshold = *override
			}
			if spec.minMS < 0 || threshold < spec.minMS {
				spec.minMS = threshold
			}
			id, err := strconv.Atoi(key)
			if err != nil {
				continue
			}
			spec.cmdIDs = appendUnique(spec.cmdIDs, id)
		}
	}

	specs := make([]toolSpec, 0, len(byName))
	for _, s := range byName {
		sort.Ints(s.cmdIDs)
		specs = append(specs, *s)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].name < specs[j].name })
	return specs, nil
}

func defaultThreshold(ac config.AnomalyConfig) int {
	if ac.DefaultThresholdMS != nil {
		return *ac.DefaultThresholdMS
	}
	return 0
}

func appendUnique(ids []int, id int) []int {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// argv builds the subprocess command line: "-m <min_threshold_ms> -c
// <comma-separated command ids>".
func (s toolSpec) argv() []string {
	csv := make([]string, len(s.cmdIDs))
	for i, id := range s.cmdIDs {
		csv[i] = strconv.Itoa(id)
	}
	return []string{"-m", strconv.Itoa(s.minMS), "-c", strings.Join(csv, ",")}
}

// runSubprocess spawns spec's binary in its own process group with a
// parent-death signal, restarting it on unexpected exit until ctx is
// cancelled. On cancellation it sends SIGINT to the process group and waits
// up to shutdownTimeout; if the process is still running then, it sends
// SIGKILL and waits for it to exit.
func runSubprocess(ctx context.Context, spec toolSpec, shutdownTimeout time.Duration,
	metrics *observability.Metrics, log *zap.Logger) {

	log = log.With(zap.String("tool", spec.name))

	for {
		if ctx.Err() != nil {
			return
		}

		cmd := exec.Command(spec.binary, spec.argv()...)
		cmd.SysProcAttr = &syscall.SysProcAttr{
			Setpgid:   true,
			Pdeathsig: syscall.SIGKILL,
		}

		if err := cmd.Start(); err != nil {
			log.Error("subprocess start failed", zap.Error(err))
			metrics.SubprocessRestartsTotal.WithLabelValues(spec.name).Inc()
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		log.Info("subprocess started", zap.Int("pid", cmd.Process.Pid), zap.Strings("argv", spec.argv()))

		done := make(chan error, 1)
		go func() { done <- cmd.Wait() }()

		select {
		case err := <-done:
			if ctx.Err() != nil {
				return
			}
			log.Warn("subprocess exited unexpectedly, restarting", zap.Error(err))
			metrics.SubprocessRestartsTotal.WithLabelValues(spec.name).Inc()
			time.Sleep(time.Second)

		case <-ctx.Done():
			pgid, err := syscall.Getpgid(cmd.Process.Pid)
			if err == nil {
				_ = syscall.Kill(-pgid, unix.SIGINT)
			} else {
				_ = cmd.Process.Signal(unix.SIGINT)
			}

			select {
			case <-done:
			case <-time.After(shutdownTimeout):
				log.Warn("subprocess did not exit before timeout, killing")
				if err == nil {
					_ = syscall.Kill(-pgid, unix.SIGKILL)
				} else {
					_ = cmd.Process.Kill()
				}
				<-done
			}
			return
		}
	}
}
