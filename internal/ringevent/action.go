package ringevent

// AnomalyAction is a detection outcome emitted by the Watcher, consumed by
// the Collector. Emitted at most once per Watcher tick per kind.
type AnomalyAction struct {
	Kind        string
	TimestampNS int64
}
