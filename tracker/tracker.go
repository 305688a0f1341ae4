// api/tracker/tracker.go
package tracker

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"amaqueme/analytics/models"
)

// EventWriter is what the tracker needs from the store.
type EventWriter interface {
	InsertPageViews(ctx context.Context, events []models.PageView) error
}

const (
	defaultQueueSize = 1024
	defaultWorkers   = 4

	// maxBatch caps how many queued events a worker folds into one insert.
	maxBatch = 100

	insertTimeout = 15 * time.Second
)

// Tracker is the fire-and-forget write path. The request middleware enqueues
// and never waits; a fixed pool of workers drains the bounded queue into the
// store. Insert failures are logged and dropped, never retried and never
// surfaced to the request path. When the queue is full the newest event is
// dropped, keeping the enqueue a single non-blocking channel op.
type Tracker struct {
	writer  EventWriter
	queue   chan models.PageView
	done    chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool
	dropped atomic.Uint64
}

func New(writer EventWriter, queueSize, workers int) *Tracker {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if workers <= 0 {
		workers = defaultWorkers
	}

	t := &Tracker{
		writer: writer,
		queue:  make(chan models.PageView, queueSize),
		done:   make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		t.wg.Add(1)
		go t.worker()
	}
	return t
}

// Enqueue submits an event for background persistence. It never blocks: if
// the queue is full or the tracker is shutting down the event is dropped and
// false is returned. Callers have nothing to react to beyond logging, which
// has already happened here.
func (t *Tracker) Enqueue(event models.PageView) bool {
	if t.closed.Load() {
		log.Printf("Tracker closed, dropping page view for path %s", event.Path)
		return false
	}
	select {
	case t.queue <- event:
		return true
	default:
		n := t.dropped.Add(1)
		log.Printf("Tracker queue full, dropping page view for path %s (%d dropped so far)", event.Path, n)
		return false
	}
}

// Dropped reports how many events were discarded due to queue overflow.
func (t *Tracker) Dropped() uint64 {
	return t.dropped.Load()
}

// Close stops accepting events and waits for the workers to drain what is
// already queued, up to the context deadline. In-flight events past the
// deadline are lost, which the pipeline accepts.
func (t *Tracker) Close(ctx context.Context) {
	if t.closed.Swap(true) {
		return
	}
	close(t.done)

	finished := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		log.Printf("Tracker shutdown deadline reached with %d events still queued", len(t.queue))
	}
}

func (t *Tracker) worker() {
	defer t.wg.Done()
	for {
		select {
		case event := <-t.queue:
			t.flush(event)
		case <-t.done:
			// Drain whatever is already queued, then exit.
			for {
				select {
				case event := <-t.queue:
					t.flush(event)
				default:
					return
				}
			}
		}
	}
}

// flush folds any immediately available queued events into one batch behind
// the event that woke the worker, then inserts. One store round-trip per
// wakeup instead of per event under load.
func (t *Tracker) flush(first models.PageView) {
	batch := make([]models.PageView, 1, 16)
	batch[0] = first

collect:
	for len(batch) < maxBatch {
		select {
		case event := <-t.queue:
			batch = append(batch, event)
		default:
			break collect
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	if err := t.writer.InsertPageViews(ctx, batch); err != nil {
		log.Printf("Error inserting %d page view(s) into ClickHouse (dropped): %v", len(batch), err)
	}
}
