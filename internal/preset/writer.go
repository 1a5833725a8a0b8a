package preset

import (
	"context"

	"github.com/sirupsen/logrus"
)

type saveJob struct {
	controllerID string
	slot         Slot
	slotCount    int
}

// Writer serializes preset writes onto a dedicated goroutine so MIDI input
// workers never block on storage I/O. Remote callers that need a durability
// acknowledgement use Store.Save directly instead.
type Writer struct {
	store *Store
	jobs  chan saveJob
	log   *logrus.Entry
}

// NewWriter creates a persistence worker with the given queue depth.
func NewWriter(store *Store, depth int) *Writer {
	if depth <= 0 {
		depth = 64
	}
	return &Writer{
		store: store,
		jobs:  make(chan saveJob, depth),
		log:   logrus.WithField("component", "preset-writer"),
	}
}

// Run drains the queue until ctx is cancelled.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.jobs:
			if err := w.store.Save(job.controllerID, job.slot, job.slotCount); err != nil {
				w.log.WithError(err).WithField("controller", job.controllerID).
					Warn("background preset write failed, in-memory state stays authoritative")
			}
		}
	}
}

// SaveAsync queues one slot write. A full queue drops the write with a
// warning rather than stalling the caller.
func (w *Writer) SaveAsync(controllerID string, slot Slot, slotCount int) {
	select {
	case w.jobs <- saveJob{controllerID: controllerID, slot: slot, slotCount: slotCount}:
	default:
		w.log.WithField("controller", controllerID).Warn("persistence queue full, dropping write")
	}
}
