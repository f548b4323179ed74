package ringevent

import "golang.org/x/sys/unix"

// ErrnoName resolves a negative Retval() to the errno's message text (as
// returned by unix.Errno.Error, e.g. "no such file or directory") for log
// messages; it returns "" for values >= 0. This is display-only: the error
// anomaly-kind handler is a
// reserved extension point (see watcher package) and must not branch on
// errno values until a richer detector is defined.
func ErrnoName(code int32) string {
	if code >= 0 {
		return ""
	}
	e := unix.Errno(-code)
	if s := e.Error(); s != "" {
		return s
	}
	return "unknown errno"
}
