package collector

import "fmt"

// builtinActions maps a configured action name to its concrete command
// shape. Mirrors the fixed set of log-collection actions the log-collection
// tools expose (journalctl, dmesg, /proc/stat, mount table, cifs debug
// data, smbinfo, syslog).
var builtinActions = map[string]Action{
	"journalctl": {Name: "journalctl", Kind: "run-command",
		Argv: []string{"journalctl", "--since", "5 minutes ago"}},
	"dmesg": {Name: "dmesg", Kind: "run-command",
		Argv: []string{"dmesg"}},
	"stats": {Name: "stats", Kind: "read-file",
		Path: "/proc/stat"},
	"mounts": {Name: "mounts", Kind: "read-file",
		Path: "/proc/mounts"},
	"debugdata": {Name: "debugdata", Kind: "read-file",
		Path: "/proc/fs/cifs/DebugData"},
	"smbinfo": {Name: "smbinfo", Kind: "run-command",
		Argv: []string{"smbinfo", "smbclient", "-L"}},
	"syslogs": {Name: "syslogs", Kind: "read-file",
		Path: "/var/log/syslog"},
}

// resolveActions looks up each configured action name in the builtin
// catalog, preserving order. Unknown names are a config error, caught at
// Collector construction rather than at dispatch time.
func resolveActions(names []string) ([]Action, error) {
	resolved := make([]Action, 0, len(names))
	for _, name := range names {
		a, ok := builtinActions[name]
		if !ok {
			return nil, fmt.Errorf("collector: unknown action %q", name)
		}
		resolved = append(resolved, a)
	}
	return resolved, nil
}
