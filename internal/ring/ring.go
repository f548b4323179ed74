// Package ring implements the single-producer/single-consumer shared-memory
// ring the Dispatcher drains. The kernel-side producer is a foreign writer;
// this package only ever consumes (and, for the debug simulator, produces)
// bytes according to the fixed protocol below.
//
// Layout: head (u64 little-endian) | tail (u64 little-endian) | data[N],
// where N = (MaxEntries+1)*PageSize - HeaderBytes. head == tail means empty.
// All index arithmetic is modulo N. Index stores are assumed atomic on the
// target (native little-endian, 64-bit loads/stores).
package ring

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/aodv2/aodv2/internal/ringevent"
)

const (
	// DefaultName is the posix shared-memory object name, mirroring the
	// foreign producer's default.
	DefaultName = "/bpf_shm"

	// MaxEntries bounds the ring's event capacity; the backing region is
	// sized one page larger to hold the header without truncating data.
	MaxEntries = 2048

	// PageSize is the host page size assumed by the sizing formula.
	PageSize = 4096

	// HeaderBytes is the fixed head+tail index header width.
	HeaderBytes = 16

	// Size is the total backing-file/mmap size.
	Size = (MaxEntries + 1) * PageSize

	// DataSize (N) is the usable ring capacity in bytes.
	DataSize = Size - HeaderBytes
)

// ErrCorruptIndices is returned by Drain when head or tail exceed DataSize,
// which the protocol defines as producer corruption rather than an I/O
// failure: the caller should log and reset, not restart the whole ring.
var ErrCorruptIndices = errors.New("ring: head or tail index out of range")

// Path resolves the configured shared-memory name to its backing file under
// /dev/shm, matching the producer's posix shm_open convention.
func Path(name string) string {
	if name == "" {
		name = DefaultName
	}
	return filepath.Join("/dev/shm", strings.TrimPrefix(name, "/"))
}

// Ring is an opened, memory-mapped view of the shared-memory region.
type Ring struct {
	path string
	fd   int
	data []byte
}

// Open opens, or creates and sizes, the shared-memory region at the
// configured path and memory-maps it read-write. The backing file, whether
// newly created or already present, is truncated to Size whenever its size
// differs from Size.
func Open(name string) (*Ring, error) {
	path := Path(name)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0o666)
	if err != nil {
		return nil, fmt.Errorf("ring: open %s: %w", path, err)
	}

	st, err := os.Stat(path)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("ring: stat %s: %w", path, err)
	}
	if st.Size() != Size {
		if err := unix.Ftruncate(fd, Size); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("ring: ftruncate %s to %d: %w", path, Size, err)
		}
	}

	data, err := unix.Mmap(fd, 0, Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("ring: mmap %s: %w", path, err)
	}

	return &Ring{path: path, fd: fd, data: data}, nil
}

// Head returns the producer's current head index.
func (r *Ring) Head() uint64 { return binary.LittleEndian.Uint64(r.data[0:8]) }

// Tail returns the consumer's current tail index.
func (r *Ring) Tail() uint64 { return binary.LittleEndian.Uint64(r.data[8:16]) }

// setTail stores the new tail index and flushes it to the backing mapping.
func (r *Ring) setTail(tail uint64) error {
	binary.LittleEndian.PutUint64(r.data[8:16], tail)
	return unix.Msync(r.data[8:16], unix.MS_SYNC)
}

// ResetTail forces tail = head, used to recover from corrupt indices by
// dropping whatever is currently queued.
func (r *Ring) ResetTail(head uint64) error { return r.setTail(head) }

// Occupancy returns the number of unread bytes currently in the ring.
func Occupancy(head, tail uint64) uint64 {
	if head >= tail {
		return head - tail
	}
	return DataSize - tail + head
}

// Drain copies all unread bytes out of the ring, decodes them into Events,
// and advances tail past them. Returns (nil, nil) when the ring is empty.
// Returns ErrCorruptIndices, without mutating tail, if head or tail is
// out of range — the caller decides whether and how to reset.
func (r *Ring) Drain() (ringevent.Batch, error) {
	head, tail := r.Head(), r.Tail()
	if head > DataSize || tail > DataSize {
		return nil, ErrCorruptIndices
	}
	if head == tail {
		return nil, nil
	}

	raw := make([]byte, 0, Occupancy(head, tail))
	const dataOff = HeaderBytes
	if tail < head {
		raw = append(raw, r.data[dataOff+tail:dataOff+head]...)
	} else {
		raw = append(raw, r.data[dataOff+tail:dataOff+DataSize]...)
		raw = append(raw, r.data[dataOff:dataOff+head]...)
	}

	n := len(raw) / ringevent.Size
	batch := make(ringevent.Batch, 0, n)
	for i := 0; i < n; i++ {
		ev, err := ringevent.ParseEvent(raw[i*ringevent.Size : (i+1)*ringevent.Size])
		if err != nil {
			return nil, fmt.Errorf("ring: decode record %d: %w", i, err)
		}
		batch = append(batch, ev)
	}

	newTail := (tail + uint64(n*ringevent.Size)) % DataSize
	if err := r.setTail(newTail); err != nil {
		return nil, fmt.Errorf("ring: advance tail: %w", err)
	}
	return batch, nil
}

// DataLoss reports whether unread data remains, for the shutdown warning.
func (r *Ring) DataLoss() bool { return r.Head() != r.Tail() }

// Close unmaps the region and closes the backing file descriptor. It does
// not unlink the backing file; call Unlink separately on clean shutdown.
func (r *Ring) Close() error {
	err := unix.Munmap(r.data)
	if cerr := unix.Close(r.fd); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Unlink removes the backing shared-memory file. Only the consumer that
// cleanly shuts down should call this.
func (r *Ring) Unlink() error {
	if err := unix.Unlink(r.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ring: unlink %s: %w", r.path, err)
	}
	return nil
}
