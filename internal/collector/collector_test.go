package collector

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aodv2/aodv2/internal/config"
	"github.com/aodv2/aodv2/internal/observability"
	"github.com/aodv2/aodv2/internal/ringevent"
)

func testConfig(t *testing.T, actions []string) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.AODOutputDir = t.TempDir()
	cfg.Guardian.Anomalies = map[string]config.AnomalyConfig{
		"slow_reads": {Kind: "latency", Actions: actions, AcceptableCount: 1, Track: map[string]*int{"8": nil}},
	}
	return &cfg
}

func TestCollectorWritesFinalizedArchive(t *testing.T) {
	cfg := testConfig(t, []string{"mounts"})
	c, err := New(cfg, observability.NewMetrics(), zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in := make(chan ringevent.AnomalyAction, 1)
	in <- ringevent.AnomalyAction{Kind: "latency", TimestampNS: 42}
	close(in)

	done := make(chan error, 1)
	go func() { done <- c.Run(in) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Collector.Run to drain")
	}

	archivePath := filepath.Join(cfg.AODOutputDir, "batches", "aod_quick_42.tar.zst")
	if _, err := os.Stat(archivePath); err != nil {
		t.Fatalf("expected finalized archive at %s: %v", archivePath, err)
	}

	workDir := filepath.Join(cfg.AODOutputDir, "batches", "aod_quick_42")
	if _, err := os.Stat(workDir); !os.IsNotExist(err) {
		t.Fatalf("expected working directory %s to be removed after finalize", workDir)
	}
}

func TestCollectorIsolatesActionFailures(t *testing.T) {
	// One valid action plus a run-command action whose binary does not
	// exist: the failing action must not prevent the other action's
	// output, or archive finalization, from completing.
	cfg := testConfig(t, []string{"mounts", "smbinfo"})
	c, err := New(cfg, observability.NewMetrics(), zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in := make(chan ringevent.AnomalyAction, 1)
	in <- ringevent.AnomalyAction{Kind: "latency", TimestampNS: 7}
	close(in)

	done := make(chan error, 1)
	go func() { done <- c.Run(in) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Collector.Run to drain")
	}

	archivePath := filepath.Join(cfg.AODOutputDir, "batches", "aod_quick_7.tar.zst")
	if _, err := os.Stat(archivePath); err != nil {
		t.Fatalf("expected finalized archive despite one failing action: %v", err)
	}
}

func TestNewRejectsUnknownAction(t *testing.T) {
	cfg := testConfig(t, []string{"not-a-real-action"})
	if _, err := New(cfg, observability.NewMetrics(), zap.NewNop(), nil); err == nil {
		t.Fatal("expected error for unknown action name")
	}
}
