package collector

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Action is one log-collection unit the Collector schedules. It declares
// one of two command shapes: read-file copies bytes from a pseudo-file
// (e.g. under /proc); run-command spawns argv and captures stdout. The
// Collector does not interpret which shape an Action uses — it only calls
// Execute and watches for the error.
type Action struct {
	Name string
	Kind string // "read-file" or "run-command"
	Path string
	Argv []string
}

// Execute runs the action, writing its output to a file named Name inside
// outDir. It returns a logged, non-fatal error on failure; the Collector
// treats every Action independently.
func (a Action) Execute(ctx context.Context, outDir string) error {
	outPath := filepath.Join(outDir, a.Name)

	switch a.Kind {
	case "read-file":
		data, err := os.ReadFile(a.Path)
		if err != nil {
			return fmt.Errorf("action %s: read %s: %w", a.Name, a.Path, err)
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return fmt.Errorf("action %s: write %s: %w", a.Name, outPath, err)
		}
		return nil

	case "run-command":
		if len(a.Argv) == 0 {
			return fmt.Errorf("action %s: empty argv", a.Name)
		}
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("action %s: create %s: %w", a.Name, outPath, err)
		}
		defer f.Close()

		cmd := exec.CommandContext(ctx, a.Argv[0], a.Argv[1:]...)
		cmd.Stdout = f
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("action %s: run %v: %w", a.Name, a.Argv, err)
		}
		return nil

	default:
		return fmt.Errorf("action %s: unknown kind %q", a.Name, a.Kind)
	}
}
