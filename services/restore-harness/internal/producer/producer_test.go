package producer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/restorecheck/libs/kafkax"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/dataset"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWriter acknowledges asynchronously, the way kafka-go's async Writer does.
type fakeWriter struct {
	mu      sync.Mutex
	written []kafka.Message
	ack     func(msgs []kafka.Message)
	enqueue error
	closed  bool
	wg      sync.WaitGroup
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.enqueue != nil {
		return w.enqueue
	}
	w.mu.Lock()
	w.written = append(w.written, msgs...)
	w.mu.Unlock()
	if w.ack != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.ack(msgs)
		}()
	}
	return nil
}

func (w *fakeWriter) Close() error {
	w.wg.Wait()
	w.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func batch(t *testing.T, n int) []dataset.Record {
	t.Helper()
	records, err := dataset.Generate(n, dataset.Options{})
	require.NoError(t, err)
	return records
}

func TestFlush_AllDelivered(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{}
	p := newWithWriter(testLogger(), "run-1", w)
	w.ack = func(msgs []kafka.Message) { p.complete(msgs, nil) }

	require.NoError(t, p.Publish(context.Background(), batch(t, 50)))
	d := p.Flush(time.Second)

	assert.True(t, d.Complete())
	assert.Equal(t, 50, d.Enqueued)
	assert.Equal(t, 50, d.Delivered)
	assert.Zero(t, d.Pending)
	assert.False(t, d.TimedOut)
	require.NoError(t, p.Close())

	require.Len(t, w.written, 50)
	assert.Equal(t, "run-1", kafkax.HeaderValue(w.written[0].Headers, kafkax.HeaderRunID))
	decoded, err := dataset.Decode(w.written[0].Value)
	require.NoError(t, err)
	assert.Equal(t, string(w.written[0].Key), decoded.Key)
}

func TestFlush_RecordsFailuresWithoutThrowing(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{}
	p := newWithWriter(testLogger(), "run-1", w)
	brokerErr := errors.New("not enough replicas")
	w.ack = func(msgs []kafka.Message) {
		p.complete(msgs[:48], nil)
		p.complete(msgs[48:], brokerErr)
	}

	require.NoError(t, p.Publish(context.Background(), batch(t, 50)))
	d := p.Flush(time.Second)

	assert.False(t, d.Complete())
	assert.Equal(t, 48, d.Delivered)
	assert.Zero(t, d.Pending)
	require.Len(t, d.Failed, 2)
	assert.ErrorIs(t, d.Failed[0].Err, brokerErr)
}

func TestFlush_TimeoutReturnsConfirmedSoFar(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{}
	p := newWithWriter(testLogger(), "run-1", w)
	w.ack = func(msgs []kafka.Message) { p.complete(msgs[:30], nil) }

	require.NoError(t, p.Publish(context.Background(), batch(t, 50)))
	start := time.Now()
	d := p.Flush(50 * time.Millisecond)

	assert.True(t, d.TimedOut)
	assert.Equal(t, 30, d.Delivered)
	assert.Equal(t, 20, d.Pending)
	assert.False(t, d.Complete())
	assert.Less(t, time.Since(start), time.Second)
}

func TestPublish_EnqueueRejected(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{enqueue: io.ErrClosedPipe}
	p := newWithWriter(testLogger(), "run-1", w)

	err := p.Publish(context.Background(), batch(t, 5))
	require.ErrorIs(t, err, io.ErrClosedPipe)

	d := p.Flush(time.Second)
	assert.Equal(t, 5, d.Enqueued)
	assert.Zero(t, d.Delivered)
	assert.Len(t, d.Failed, 5)
	assert.False(t, d.TimedOut)
}

func TestPublish_OnlyOnce(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{}
	p := newWithWriter(testLogger(), "run-1", w)
	w.ack = func(msgs []kafka.Message) { p.complete(msgs, nil) }

	require.NoError(t, p.Publish(context.Background(), batch(t, 1)))
	assert.ErrorIs(t, p.Publish(context.Background(), batch(t, 1)), ErrAlreadyPublished)
}
