package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyHandler struct {
	failures int
	err      error
	calls    int
	seen     []Message
}

func (h *flakyHandler) Topic() string { return "items" }

func (h *flakyHandler) Handle(_ context.Context, m Message) error {
	h.calls++
	h.seen = append(h.seen, m)
	if h.calls <= h.failures {
		return h.err
	}
	return nil
}

type panicHandler struct{}

func (panicHandler) Topic() string { return "items" }
func (panicHandler) Handle(context.Context, Message) error { panic("boom") }

// blockingHandler waits for its context and reports the cancellation.
type blockingHandler struct {
	started   chan struct{}
	cancelled chan struct{}
}

func (blockingHandler) Topic() string { return "items" }

func (h blockingHandler) Handle(ctx context.Context, _ Message) error {
	close(h.started)
	<-ctx.Done()
	close(h.cancelled)
	return ctx.Err()
}

type commitLog struct {
	mu      sync.Mutex
	offsets []int64
}

func (l *commitLog) commit(m kafka.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.offsets = append(l.offsets, m.Offset)
	return nil
}

func (l *commitLog) committed() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int64(nil), l.offsets...)
}

func newTestConsumer(t *testing.T, retryMax int, opts ...ConsumerOption) (*Consumer, *commitLog) {
	t.Helper()
	opts = append([]ConsumerOption{
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(retryMax, time.Millisecond, 4*time.Millisecond),
	}, opts...)
	c, err := NewConsumer(opts...)
	require.NoError(t, err)
	c.sleep = func(time.Duration, <-chan struct{}) bool { return true }
	log := &commitLog{}
	c.commitFn = log.commit
	return c, log
}

// withDLQ gives c a writer that is never dialled; only its presence matters.
func withDLQ(c *Consumer) *Consumer {
	c.cfg.DLQTopic = "items.dlq"
	c.dlq = &kafka.Writer{}
	return c
}

func TestNewConsumer_RequiresBrokers(t *testing.T) {
	_, err := NewConsumer()
	assert.Error(t, err)
}

func TestProcess_RetriesUntilSuccess(t *testing.T) {
	c, _ := newTestConsumer(t, 3)
	h := &flakyHandler{failures: 2, err: errors.New("llm timeout")}

	attempts, err := c.process(h, Message{Topic: "items", Partition: 1, Offset: 7})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, h.calls)
	for _, m := range h.seen {
		assert.Equal(t, "items/1/7", m.Ref(), "every retry sees the same record")
	}
}

func TestProcess_GivesUpAfterRetryMaxWithDLQ(t *testing.T) {
	c, _ := newTestConsumer(t, 2)
	withDLQ(c)
	h := &flakyHandler{failures: 10, err: errors.New("llm timeout")}

	attempts, err := c.process(h, Message{})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestProcess_WithoutDLQRetriesUntilStopped(t *testing.T) {
	c, _ := newTestConsumer(t, 2)
	sleeps := 0
	c.sleep = func(time.Duration, <-chan struct{}) bool {
		sleeps++
		return sleeps < 6
	}
	h := &flakyHandler{failures: 100, err: errors.New("llm timeout")}

	attempts, err := c.process(h, Message{})
	require.Error(t, err)
	assert.Equal(t, 6, attempts, "RetryMax does not apply without a DLQ")
}

func TestProcess_PermanentNotRetried(t *testing.T) {
	c, _ := newTestConsumer(t, 5)
	cause := errors.New("bad json")
	h := &flakyHandler{failures: 10, err: Permanent(cause)}

	attempts, err := c.process(h, Message{})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, cause)
}

func TestProcess_RecoversPanic(t *testing.T) {
	c, _ := newTestConsumer(t, 5)
	attempts, err := c.process(panicHandler{}, Message{})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Contains(t, err.Error(), "panic in handler")
}

func TestHandle_CommitsOnlySettledMessages(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		c, log := newTestConsumer(t, 1)
		c.RegisterHandler(&flakyHandler{})
		assert.True(t, c.handle(kafka.Message{Topic: "items", Offset: 4}))
		assert.Equal(t, []int64{4}, log.committed())
	})

	t.Run("permanent without dlq is dropped", func(t *testing.T) {
		c, log := newTestConsumer(t, 1)
		c.RegisterHandler(&flakyHandler{failures: 1, err: Permanent(errors.New("bad json"))})
		assert.True(t, c.handle(kafka.Message{Topic: "items", Offset: 5}))
		assert.Equal(t, []int64{5}, log.committed())
	})

	t.Run("transient without dlq stays uncommitted on stop", func(t *testing.T) {
		c, log := newTestConsumer(t, 1)
		c.sleep = func(time.Duration, <-chan struct{}) bool { return false }
		c.RegisterHandler(&flakyHandler{failures: 10, err: errors.New("llm timeout")})
		assert.False(t, c.handle(kafka.Message{Topic: "items", Offset: 6}))
		assert.Empty(t, log.committed())
	})
}

func TestWorker_StopsAtUnsettledMessage(t *testing.T) {
	c, log := newTestConsumer(t, 1)
	c.sleep = func(time.Duration, <-chan struct{}) bool {
		close(c.stopChan)
		return false
	}
	h := &flakyHandler{failures: 1, err: errors.New("llm timeout")}
	c.RegisterHandler(h)

	q := c.queues[0]
	q <- kafka.Message{Topic: "items", Offset: 10}
	q <- kafka.Message{Topic: "items", Offset: 11}

	c.wg.Add(1)
	c.worker(q)

	assert.Empty(t, log.committed(), "offset 11 must not be committed past 10")
	assert.Equal(t, 1, h.calls)
	assert.Len(t, q, 1)
}

func TestQueueFor_PinsPartition(t *testing.T) {
	c, _ := newTestConsumer(t, 1, WithConsumerWorkers(4), WithConsumerBufferSize(8))
	require.Len(t, c.queues, 4)
	for p := 0; p < 16; p++ {
		assert.Equal(t, c.queueFor("items", p), c.queueFor("items", p))
	}
	assert.NotEqual(t, c.queueFor("items", 0), c.queueFor("items", 1))
}

func TestStop_CancelsInFlightHandlerAtDeadline(t *testing.T) {
	c, log := newTestConsumer(t, 1)
	c.sleep = sleepOrStop
	h := blockingHandler{started: make(chan struct{}), cancelled: make(chan struct{})}
	c.RegisterHandler(h)

	c.queues[0] <- kafka.Message{Topic: "items", Offset: 1}
	c.wg.Add(1)
	go c.worker(c.queues[0])
	<-h.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Stop(ctx)
	require.Error(t, err)

	select {
	case <-h.cancelled:
	case <-time.After(time.Second):
		t.Fatal("handler context was not cancelled")
	}
	c.wg.Wait()
	assert.Empty(t, log.committed())
}

func TestBackoffWithJitter(t *testing.T) {
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(100*time.Millisecond, time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
	d := backoffWithJitter(100*time.Millisecond, time.Second, 1)
	assert.GreaterOrEqual(t, d, 50*time.Millisecond)
	assert.LessOrEqual(t, d, 100*time.Millisecond)
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(errors.New("x")))
}
