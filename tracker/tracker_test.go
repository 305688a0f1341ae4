package tracker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amaqueme/analytics/models"
	"amaqueme/analytics/tracker"
)

// recordingWriter collects everything inserted across batches.
type recordingWriter struct {
	mu     sync.Mutex
	events []models.PageView
	gotOne chan struct{}
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{gotOne: make(chan struct{}, 1024)}
}

func (w *recordingWriter) InsertPageViews(_ context.Context, events []models.PageView) error {
	w.mu.Lock()
	w.events = append(w.events, events...)
	w.mu.Unlock()
	for range events {
		w.gotOne <- struct{}{}
	}
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events)
}

func (w *recordingWriter) waitFor(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-w.gotOne:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
}

// blockingWriter holds the worker inside an insert until released.
type blockingWriter struct {
	started chan struct{}
	release chan struct{}
}

func (w *blockingWriter) InsertPageViews(_ context.Context, _ []models.PageView) error {
	w.started <- struct{}{}
	<-w.release
	return nil
}

func event(path string) models.PageView {
	return models.PageView{
		SessionID:   "sess",
		Path:        path,
		Slug:        "slug",
		ContentType: models.ContentTypePost,
	}
}

func TestEnqueueDelivers(t *testing.T) {
	w := newRecordingWriter()
	tr := tracker.New(w, 16, 2)
	defer tr.Close(context.Background())

	for i := 0; i < 5; i++ {
		assert.True(t, tr.Enqueue(event("/a")))
	}
	w.waitFor(t, 5)
	assert.Equal(t, 5, w.count())
	assert.Zero(t, tr.Dropped())
}

func TestEnqueueNeverBlocksWhenFull(t *testing.T) {
	w := &blockingWriter{started: make(chan struct{}, 4), release: make(chan struct{})}
	tr := tracker.New(w, 1, 1)

	// First event occupies the single worker inside the writer.
	require.True(t, tr.Enqueue(event("/busy")))
	select {
	case <-w.started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never picked up the first event")
	}

	// Second event fills the queue; the third must be dropped, not block.
	require.True(t, tr.Enqueue(event("/queued")))
	done := make(chan bool, 1)
	go func() { done <- tr.Enqueue(event("/dropped")) }()
	select {
	case accepted := <-done:
		assert.False(t, accepted)
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
	assert.Equal(t, uint64(1), tr.Dropped())

	close(w.release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tr.Close(ctx)
}

func TestWriterFailuresAreSwallowed(t *testing.T) {
	failing := writerFunc(func(context.Context, []models.PageView) error {
		return errors.New("store unreachable")
	})
	tr := tracker.New(failing, 4, 1)

	// Must not panic or surface anything to the caller.
	assert.True(t, tr.Enqueue(event("/a")))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tr.Close(ctx)
}

func TestCloseDrainsQueuedEvents(t *testing.T) {
	w := newRecordingWriter()
	tr := tracker.New(w, 64, 1)

	for i := 0; i < 10; i++ {
		require.True(t, tr.Enqueue(event("/a")))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tr.Close(ctx)

	assert.Equal(t, 10, w.count())
}

func TestEnqueueAfterCloseIsRejected(t *testing.T) {
	w := newRecordingWriter()
	tr := tracker.New(w, 4, 1)
	tr.Close(context.Background())

	assert.False(t, tr.Enqueue(event("/late")))
}

type writerFunc func(ctx context.Context, events []models.PageView) error

func (f writerFunc) InsertPageViews(ctx context.Context, events []models.PageView) error {
	return f(ctx, events)
}
