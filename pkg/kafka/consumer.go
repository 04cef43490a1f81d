package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"SignalForge/pkg/logger"
)

// Message is the part of a fetched record a handler sees.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
}

// Ref identifies the record; it is the same on every redelivery.
func (m Message) Ref() string {
	return fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset)
}

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, Message) error
}

// PermanentError marks a failure that retrying cannot fix, such as a
// payload that does not decode. The message goes straight to the DLQ.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the consumer skips retries.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// Consumer reads registered topics and hands each partition to one
// worker, so a partition's offsets are handled and committed in order.
// A message is committed only once it succeeded or was parked in the DLQ;
// a worker that cannot settle a message stops, leaving it for redelivery.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *logger.Logger
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	queues   []chan kafka.Message
	dlq      *kafka.Writer
	sleep    func(time.Duration, <-chan struct{}) bool
	commitFn func(kafka.Message) error

	// runCtx is handed to handlers and cancelled when Stop runs out of time.
	runCtx context.Context
	cancel context.CancelFunc
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "default",
		WorkerCount: 1,
		BufferSize:  8,
		RetryMax:    3,
		BackoffMin:  500 * time.Millisecond,
		BackoffMax:  10 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
		Logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}

	perWorker := cfg.BufferSize / cfg.WorkerCount
	if perWorker < 1 {
		perWorker = 1
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:      cfg,
		log:      cfg.Logger.With(logger.String("component", "kafka_consumer")),
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]MessageHandler),
		stopChan: make(chan struct{}),
		queues:   make([]chan kafka.Message, cfg.WorkerCount),
		sleep:    sleepOrStop,
		runCtx:   runCtx,
		cancel:   cancel,
	}
	for i := range c.queues {
		c.queues[i] = make(chan kafka.Message, perWorker)
	}
	c.commitFn = c.commitToReader
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}, AllowAutoTopicCreation: true}
	}
	initConsumerMetrics()
	return c, nil
}

// RegisterHandler registers a handler for its topic. A second handler for
// the same topic is ignored.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start launches the readers and workers and returns immediately.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}
	for _, q := range c.queues {
		c.wg.Add(1)
		go c.worker(q)
	}
	for topic, reader := range c.readers {
		c.wg.Add(1)
		go c.read(topic, reader)
	}
	c.log.Info("kafka consumer started",
		logger.Int("workers", len(c.queues)),
		logger.Int("topics", len(c.readers)),
		logger.String("group", c.cfg.GroupID),
	)
	return nil
}

// Stop stops fetching and lets in-flight messages finish until ctx is done.
// At the deadline handlers see their context cancelled; whatever they were
// working on stays uncommitted and is redelivered after a restart.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stopChan)
		stopErr = c.wait(ctx)
		c.cancel()
		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Error("close reader", logger.String("topic", topic), logger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Error("close dlq writer", logger.Error(err))
			}
		}
		c.log.Info("kafka consumer stopped")
	})
	return stopErr
}

func (c *Consumer) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
	case <-done:
		return nil
	}
}

// read fetches without committing; workers commit after handling.
func (c *Consumer) read(topic string, reader *kafka.Reader) {
	defer c.wg.Done()
	ctx, cancel := context.WithCancel(c.runCtx)
	defer cancel()
	go func() {
		select {
		case <-c.stopChan:
		case <-ctx.Done():
		}
		cancel()
	}()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("fetch message", logger.String("topic", topic), logger.Error(err))
			if !c.sleep(time.Second, c.stopChan) {
				return
			}
			continue
		}
		q := c.queueFor(msg.Topic, msg.Partition)
		select {
		case q <- msg:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(q)))
		case <-c.stopChan:
			return
		}
	}
}

// queueFor pins a topic partition to one worker.
func (c *Consumer) queueFor(topic string, partition int) chan kafka.Message {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	n := (h.Sum32() + uint32(partition)) % uint32(len(c.queues))
	return c.queues[n]
}

func (c *Consumer) worker(q <-chan kafka.Message) {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopChan:
			return
		default:
		}
		select {
		case <-c.stopChan:
			return
		case msg := <-q:
			if !c.handle(msg) {
				return
			}
		}
	}
}

// handle processes msg and commits it once it is settled. It returns false
// only when the consumer is stopping with msg unsettled; the worker must
// then exit so no later offset of the partition is committed past it.
func (c *Consumer) handle(msg kafka.Message) bool {
	handler, ok := c.handlers[msg.Topic]
	if !ok {
		return true
	}
	m := Message{Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset, Key: msg.Key, Value: msg.Value}
	fields := []logger.Field{
		logger.String("topic", msg.Topic),
		logger.Int("partition", msg.Partition),
		logger.Int64("offset", msg.Offset),
	}

	start := time.Now()
	attempts, err := c.process(handler, m)
	consumerHandleLatency.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())

	result := "ok"
	switch {
	case err == nil:
	case c.dlq != nil && (IsPermanent(err) || attempts > c.cfg.RetryMax):
		c.log.Error("message handling failed, parking in dlq", append(fields, logger.Int("attempts", attempts), logger.Error(err))...)
		if !c.park(msg, err) {
			consumerMessages.WithLabelValues(msg.Topic, "unsettled").Inc()
			return false
		}
		result = "dlq"
	case IsPermanent(err):
		c.log.Error("message handling failed permanently, dropping", append(fields, logger.Error(err))...)
		result = "dropped"
	default:
		c.log.Warn("message left uncommitted", append(fields, logger.Int("attempts", attempts), logger.Error(err))...)
		consumerMessages.WithLabelValues(msg.Topic, "unsettled").Inc()
		return false
	}
	consumerMessages.WithLabelValues(msg.Topic, result).Inc()

	// A lost commit is covered by the next one on the partition.
	if err := c.commit(msg); err != nil {
		c.log.Error("commit failed", append(fields, logger.Error(err))...)
	}
	return true
}

// process runs the handler with retries. Permanent errors are not retried.
// With a DLQ, retries stop after RetryMax; without one, transient errors
// are retried until the consumer stops.
func (c *Consumer) process(handler MessageHandler, msg Message) (int, error) {
	var err error
	attempts := 0
	for {
		attempts++
		err = c.safeHandle(handler, msg)
		if err == nil || IsPermanent(err) {
			return attempts, err
		}
		if c.dlq != nil && attempts > c.cfg.RetryMax {
			return attempts, err
		}
		c.log.Warn("handler failed, retrying",
			logger.String("topic", handler.Topic()),
			logger.Int("attempt", attempts),
			logger.Error(err),
		)
		if !c.sleep(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts), c.stopChan) {
			return attempts, err
		}
	}
}

func (c *Consumer) safeHandle(handler MessageHandler, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("panic in handler: %v", r))
		}
	}()
	return handler.Handle(c.runCtx, msg)
}

// park writes msg to the DLQ, retrying until it succeeds or the consumer stops.
func (c *Consumer) park(msg kafka.Message, cause error) bool {
	for attempt := 1; ; attempt++ {
		err := c.toDLQ(msg, cause)
		if err == nil {
			return true
		}
		c.log.Error("dlq write failed", logger.String("topic", c.cfg.DLQTopic), logger.Int("attempt", attempt), logger.Error(err))
		if !c.sleep(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt), c.stopChan) {
			return false
		}
	}
}

func (c *Consumer) toDLQ(msg kafka.Message, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.dlq.WriteMessages(ctx, kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   msg.Key,
		Value: msg.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(msg.Topic)},
			{Key: "source_partition", Value: []byte(strconv.Itoa(msg.Partition))},
			{Key: "source_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
}

func (c *Consumer) commit(msg kafka.Message) error {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		if err = c.commitFn(msg); err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	return err
}

func (c *Consumer) commitToReader(msg kafka.Message) error {
	reader := c.readers[msg.Topic]
	if reader == nil {
		return fmt.Errorf("no reader for topic %s", msg.Topic)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return reader.CommitMessages(ctx, msg)
}

// sleepOrStop waits d unless stop closes first; it reports whether the full wait elapsed.
func sleepOrStop(d time.Duration, stop <-chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	}
}

// backoffWithJitter doubles from min up to max and subtracts up to 50% jitter.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := max
	if attempt < 32 {
		if e := min * time.Duration(1<<uint(attempt-1)); e > 0 && e < max {
			exp = e
		}
	}
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int63n(half))
}

var (
	consumerQueueDepth    *prometheus.GaugeVec
	consumerMessages      *prometheus.CounterVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerOnce          sync.Once
)

func initConsumerMetrics() {
	consumerOnce.Do(func() {
		consumerQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{Name: "signalforge_kafka_consumer_queue_depth", Help: "Messages waiting for a worker"},
			[]string{"topic"},
		)
		consumerMessages = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "signalforge_kafka_consumer_messages_total", Help: "Messages handled by result"},
			[]string{"topic", "result"},
		)
		consumerHandleLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalforge_kafka_consumer_handle_seconds",
				Help:    "Handling time per message including retries",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
			},
			[]string{"topic"},
		)
	})
}
