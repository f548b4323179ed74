package watcher

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aodv2/aodv2/internal/config"
	"github.com/aodv2/aodv2/internal/observability"
	"github.com/aodv2/aodv2/internal/ringevent"
)

func threshold(ms int) *int { return &ms }

func latencyConfig() config.GuardianConfig {
	return config.GuardianConfig{
		Anomalies: map[string]config.AnomalyConfig{
			"slow_reads": {
				Kind:            "latency",
				ToolID:          0,
				AcceptableCount: 2,
				Track: map[string]*int{
					"8": threshold(100),
				},
				Actions: []string{"dmesg"},
			},
		},
	}
}

func TestDetectFiresAtAcceptableCount(t *testing.T) {
	w, err := New(latencyConfig(), observability.NewMetrics(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in := make(chan ringevent.Batch, 1)
	out := make(chan ringevent.AnomalyAction, 1)

	done := make(chan error, 1)
	go func() { done <- w.Run(in, out) }()

	batch := ringevent.Batch{
		{SMBCommand: ringevent.SMB2Read, Metric: 200_000_000}, // 200ms
		{SMBCommand: ringevent.SMB2Read, Metric: 150_000_000}, // 150ms
	}
	in <- batch

	select {
	case action := <-out:
		if action.Kind != "latency" {
			t.Fatalf("action.Kind = %q, want %q", action.Kind, "latency")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for anomaly action")
	}

	close(in)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Run to return")
	}
}

func TestDetectHardCeilingFiresRegardlessOfCount(t *testing.T) {
	w, err := New(latencyConfig(), observability.NewMetrics(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in := make(chan ringevent.Batch, 1)
	out := make(chan ringevent.AnomalyAction, 1)
	go w.Run(in, out)

	// Single event, under acceptable_count, but over the 1s hard ceiling.
	in <- ringevent.Batch{{SMBCommand: ringevent.SMB2Read, Metric: 1_500_000_000}}

	select {
	case action := <-out:
		if action.Kind != "latency" {
			t.Fatalf("action.Kind = %q, want %q", action.Kind, "latency")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for hard-ceiling anomaly action")
	}
	close(in)
}

func TestDetectBelowThresholdNeverFires(t *testing.T) {
	w, err := New(latencyConfig(), observability.NewMetrics(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in := make(chan ringevent.Batch, 1)
	out := make(chan ringevent.AnomalyAction, 1)
	go w.Run(in, out)

	in <- ringevent.Batch{{SMBCommand: ringevent.SMB2Read, Metric: 10_000_000}} // 10ms
	close(in)

	select {
	case action, ok := <-out:
		if ok {
			t.Fatalf("unexpected anomaly action: %+v", action)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for out to close")
	}
}

func TestDetectIgnoresOtherTools(t *testing.T) {
	w, err := New(latencyConfig(), observability.NewMetrics(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in := make(chan ringevent.Batch, 1)
	out := make(chan ringevent.AnomalyAction, 1)
	go w.Run(in, out)

	// Over threshold, but tagged for a different tool than tool_id 0.
	in <- ringevent.Batch{
		{SMBCommand: ringevent.SMB2Read, Metric: 1_500_000_000, Tool: 9},
	}
	close(in)

	select {
	case action, ok := <-out:
		if ok {
			t.Fatalf("unexpected anomaly action from unmasked tool: %+v", action)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for out to close")
	}
}

func TestBuildRegistryRejectsDuplicateKind(t *testing.T) {
	cfg := config.GuardianConfig{
		Anomalies: map[string]config.AnomalyConfig{
			"a": {Kind: "latency", Track: map[string]*int{"8": threshold(10)}, Actions: []string{"dmesg"}, AcceptableCount: 1},
			"b": {Kind: "latency", Track: map[string]*int{"9": threshold(10)}, Actions: []string{"dmesg"}, AcceptableCount: 1},
		},
	}
	if _, err := New(cfg, observability.NewMetrics(), zap.NewNop()); err == nil {
		t.Fatal("expected error for duplicate kind across config entries")
	}
}

func TestNewRejectsInvalidTrackKey(t *testing.T) {
	cfg := config.GuardianConfig{
		Anomalies: map[string]config.AnomalyConfig{
			"bad": {Kind: "latency", Track: map[string]*int{"not-a-number": nil}, Actions: []string{"dmesg"}, AcceptableCount: 1},
		},
	}
	if _, err := New(cfg, observability.NewMetrics(), zap.NewNop()); err == nil {
		t.Fatal("expected error for non-numeric track key")
	}
}
