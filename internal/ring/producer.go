package ring

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/aodv2/aodv2/internal/ringevent"
)

// Publish writes batch into the ring at the current head and advances head
// past it. It exists for the debug shm simulator and tests that need a
// producer side of the protocol; the real kernel-side producer is a foreign
// writer and is out of scope.
func (r *Ring) Publish(batch ringevent.Batch) error {
	if len(batch) == 0 {
		return nil
	}

	var raw []byte
	for _, ev := range batch {
		raw = ringevent.AppendEvent(raw, ev)
	}
	if len(raw) > DataSize {
		return fmt.Errorf("ring: batch of %d bytes exceeds ring capacity %d", len(raw), DataSize)
	}

	head := r.Head()
	const dataOff = HeaderBytes
	firstLen := DataSize - head
	if uint64(len(raw)) <= firstLen {
		copy(r.data[dataOff+head:], raw)
	} else {
		copy(r.data[dataOff+head:], raw[:firstLen])
		copy(r.data[dataOff:], raw[firstLen:])
	}

	newHead := (head + uint64(len(raw))) % DataSize
	binary.LittleEndian.PutUint64(r.data[0:8], newHead)
	return unix.Msync(r.data[0:8], unix.MS_SYNC)
}
