// Command aodv2-shmsim is a debug tool that fabricates ring events and
// publishes them to the shared-memory ring, for exercising the Dispatcher
// and Watcher without a live kernel event producer.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/aodv2/aodv2/internal/ring"
	"github.com/aodv2/aodv2/internal/ringevent"
)

func main() {
	name := flag.String("shm", ring.DefaultName, "shared-memory object name")
	count := flag.Int("count", 16, "number of events to publish per batch")
	batches := flag.Int("batches", 1, "number of batches to publish")
	interval := flag.Duration("interval", time.Second, "delay between batches")
	latencyMS := flag.Int("latency-ms", 50, "approximate per-event latency, in milliseconds")
	tool := flag.Int("tool", 0, "Event.Tool value to stamp on fabricated events")
	cmdID := flag.Int("cmd", int(ringevent.SMB2Read), "SMB2 command id to stamp on fabricated events")
	flag.Parse()

	r, err := ring.Open(*name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open ring %s: %v\n", *name, err)
		os.Exit(1)
	}
	defer r.Close()

	seed := time.Now().UnixNano()
	rnd := rand.New(rand.NewSource(seed))

	for b := 0; b < *batches; b++ {
		batch := make(ringevent.Batch, *count)
		for i := range batch {
			jitterNS := int64(rnd.Intn(20)) * int64(time.Millisecond)
			batch[i] = ringevent.Event{
				PID:          int32(1000 + i),
				CmdEndTimeNS: uint64(time.Now().UnixNano()),
				SessionID:    uint64(i),
				MID:          uint64(i),
				SMBCommand:   uint16(*cmdID),
				Metric:       uint64(int64(*latencyMS)*int64(time.Millisecond) + jitterNS),
				Tool:         uint8(*tool),
				IsCompounded: false,
			}
			copy(batch[i].TaskName[:], fmt.Sprintf("shmsim-%d", i))
		}

		if err := r.Publish(batch); err != nil {
			fmt.Fprintf(os.Stderr, "publish batch %d: %v\n", b, err)
			os.Exit(1)
		}
		fmt.Printf("published batch %d: %d events\n", b, len(batch))

		if b < *batches-1 {
			time.Sleep(*interval)
		}
	}
}
