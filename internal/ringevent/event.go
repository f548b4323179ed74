// Package ringevent defines the fixed-layout record written by the kernel-side
// producer into the shared-memory ring, and the batching type the Dispatcher
// publishes downstream.
//
// The wire layout is fixed at 56 bytes, little-endian, with no inter-field
// padding — readers and writers must agree bit-for-bit (see shared ring
// protocol). Decoding is a reinterpret of the raw bytes at fixed offsets, not
// per-field reflection.
package ringevent

import (
	"encoding/binary"
	"fmt"
)

// Field byte offsets within one Event record. Computed once; asserted in
// init() against Size so a layout change is caught at process start rather
// than silently corrupting every subsequent decode.
const (
	offPID          = 0
	offCmdEndTimeNS = offPID + 4
	offSessionID    = offCmdEndTimeNS + 8
	offMID          = offSessionID + 8
	offSMBCommand   = offMID + 8
	offMetric       = offSMBCommand + 2
	offTool         = offMetric + 8
	offIsCompounded = offTool + 1
	offTaskName     = offIsCompounded + 1

	// TaskNameLen is the fixed width of the nul-padded task-name field.
	TaskNameLen = 16

	// Size is the exact on-wire size of one Event record.
	Size = offTaskName + TaskNameLen
)

func init() {
	if Size != 56 {
		panic(fmt.Sprintf("ringevent: layout drifted, computed size %d, expected 56", Size))
	}
}

// Event is one fixed-layout record produced by a kernel-side tool and
// consumed by the Dispatcher. Events are immutable once published.
type Event struct {
	PID          int32
	CmdEndTimeNS uint64
	SessionID    uint64
	MID          uint64
	SMBCommand   uint16

	// Metric is the raw 8-byte metric union: LatencyNS for most tools,
	// Retval (as a sign-extended int32) for tools that report an error code.
	// The caller interprets it by Tool.
	Metric uint64

	Tool         uint8
	IsCompounded bool
	TaskName     [TaskNameLen]byte
}

// LatencyNS interprets Metric as a latency measurement in nanoseconds.
func (e Event) LatencyNS() uint64 { return e.Metric }

// Retval interprets Metric as a signed return code.
func (e Event) Retval() int32 { return int32(e.Metric) }

// TaskNameString returns the nul-padded task name as a trimmed string.
func (e Event) TaskNameString() string {
	n := 0
	for n < len(e.TaskName) && e.TaskName[n] != 0 {
		n++
	}
	return string(e.TaskName[:n])
}

// ParseEvent decodes one fixed-layout record from raw bytes. raw must be
// exactly Size bytes; longer or shorter slices are a protocol error the
// caller should treat as ring corruption.
func ParseEvent(raw []byte) (Event, error) {
	if len(raw) != Size {
		return Event{}, fmt.Errorf("ringevent: invalid record length %d, want %d", len(raw), Size)
	}

	var e Event
	e.PID = int32(binary.LittleEndian.Uint32(raw[offPID:]))
	e.CmdEndTimeNS = binary.LittleEndian.Uint64(raw[offCmdEndTimeNS:])
	e.SessionID = binary.LittleEndian.Uint64(raw[offSessionID:])
	e.MID = binary.LittleEndian.Uint64(raw[offMID:])
	e.SMBCommand = binary.LittleEndian.Uint16(raw[offSMBCommand:])
	e.Metric = binary.LittleEndian.Uint64(raw[offMetric:])
	e.Tool = raw[offTool]
	e.IsCompounded = raw[offIsCompounded] != 0
	copy(e.TaskName[:], raw[offTaskName:offTaskName+TaskNameLen])
	return e, nil
}

// AppendEvent encodes e into the fixed 56-byte wire layout and appends it to
// dst, returning the grown slice. Used by test producers and the shm
// simulator; the real kernel-side producer is out of scope.
func AppendEvent(dst []byte, e Event) []byte {
	var buf [Size]byte
	binary.LittleEndian.PutUint32(buf[offPID:], uint32(e.PID))
	binary.LittleEndian.PutUint64(buf[offCmdEndTimeNS:], e.CmdEndTimeNS)
	binary.LittleEndian.PutUint64(buf[offSessionID:], e.SessionID)
	binary.LittleEndian.PutUint64(buf[offMID:], e.MID)
	binary.LittleEndian.PutUint16(buf[offSMBCommand:], e.SMBCommand)
	binary.LittleEndian.PutUint64(buf[offMetric:], e.Metric)
	buf[offTool] = e.Tool
	if e.IsCompounded {
		buf[offIsCompounded] = 1
	}
	copy(buf[offTaskName:], e.TaskName[:])
	return append(dst, buf[:]...)
}

// Batch is an ordered, contiguous sequence of Events published as one unit
// between components. Batches have no identity beyond their content; empty
// batches never circulate.
type Batch []Event
