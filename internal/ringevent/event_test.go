package ringevent

import (
	"bytes"
	"testing"
)

func TestParseEventRoundTrip(t *testing.T) {
	want := Event{
		PID:          4242,
		CmdEndTimeNS: 1234567890123,
		SessionID:    99,
		MID:          7,
		SMBCommand:   SMB2Read,
		Metric:       50_000_000,
		Tool:         1,
		IsCompounded: true,
	}
	copy(want.TaskName[:], "smbd")

	raw := AppendEvent(nil, want)
	if len(raw) != Size {
		t.Fatalf("AppendEvent produced %d bytes, want %d", len(raw), Size)
	}

	got, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestParseEventInvalidLength(t *testing.T) {
	if _, err := ParseEvent(make([]byte, Size-1)); err == nil {
		t.Fatal("expected error for short record")
	}
	if _, err := ParseEvent(make([]byte, Size+1)); err == nil {
		t.Fatal("expected error for long record")
	}
}

func TestTaskNameStringTrimsNuls(t *testing.T) {
	var e Event
	copy(e.TaskName[:], "smbd")
	if got := e.TaskNameString(); got != "smbd" {
		t.Fatalf("TaskNameString() = %q, want %q", got, "smbd")
	}
}

func TestLatencyAndRetvalShareMetric(t *testing.T) {
	e := Event{Metric: 12345}
	if e.LatencyNS() != 12345 {
		t.Fatalf("LatencyNS() = %d, want 12345", e.LatencyNS())
	}

	neg := Event{Metric: uint64(uint32(int32(-5)))}
	if neg.Retval() != -5 {
		t.Fatalf("Retval() = %d, want -5", neg.Retval())
	}
}

func TestAppendEventAppendsToExistingSlice(t *testing.T) {
	var buf []byte
	buf = AppendEvent(buf, Event{PID: 1})
	buf = AppendEvent(buf, Event{PID: 2})
	if len(buf) != 2*Size {
		t.Fatalf("len(buf) = %d, want %d", len(buf), 2*Size)
	}

	first, err := ParseEvent(buf[:Size])
	if err != nil {
		t.Fatalf("ParseEvent(first): %v", err)
	}
	second, err := ParseEvent(buf[Size:])
	if err != nil {
		t.Fatalf("ParseEvent(second): %v", err)
	}
	if first.PID != 1 || second.PID != 2 {
		t.Fatalf("got PIDs %d, %d, want 1, 2", first.PID, second.PID)
	}
}

func TestEventSizeIs56Bytes(t *testing.T) {
	if Size != 56 {
		t.Fatalf("Size = %d, want 56", Size)
	}
}

func TestAllSMBCmdsCovered(t *testing.T) {
	var buf bytes.Buffer
	for name, id := range AllSMBCmds {
		if int(id) > MaxSMBCmdID {
			buf.WriteString(name + " exceeds MaxSMBCmdID; ")
		}
	}
	if buf.Len() > 0 {
		t.Fatal(buf.String())
	}
}
