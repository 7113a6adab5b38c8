// Package worker runs the consumer group loop shared by the analyzer,
// composer and publisher services: reclaim entries left pending by a
// previous run, then read, handle, ack.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ravedigest/ravedigest/pkg/bus"
	"github.com/ravedigest/ravedigest/pkg/metrics"
)

// ErrSkip is returned by handlers that acknowledge a message without acting
// on it (already-published or duplicate work). The worker acks and counts
// the message as skipped rather than processed.
var ErrSkip = errors.New("message skipped")

// Message is one stream entry as delivered to a handler.
type Message struct {
	ID     string
	Fields map[string]string
}

// Handler processes one stream message. A nil return acknowledges the
// message; an error leaves it pending for redelivery.
type Handler interface {
	HandleMessage(ctx context.Context, msg Message) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg Message) error

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Config binds a worker to its stream, group and consumer name. Zero
// durations and counts fall back to the defaults below.
type Config struct {
	Stream       string
	Group        string
	Consumer     string
	BatchSize    int64
	Block        time.Duration
	SleepMin     time.Duration
	SleepMax     time.Duration
	ErrorSleep   time.Duration
	ReclaimLimit int64
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.Block <= 0 {
		c.Block = 5 * time.Second
	}
	if c.SleepMin <= 0 {
		c.SleepMin = 200 * time.Millisecond
	}
	if c.SleepMax <= c.SleepMin {
		c.SleepMax = c.SleepMin + 500*time.Millisecond
	}
	if c.ErrorSleep <= 0 {
		c.ErrorSleep = 5 * time.Second
	}
	if c.ReclaimLimit <= 0 {
		c.ReclaimLimit = 10
	}
	return c
}

// Worker drives one consumer group loop on one goroutine.
type Worker struct {
	cfg     Config
	bus     *bus.Client
	handler Handler
	metrics *metrics.Metrics

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu        sync.RWMutex
	running   bool
	processed int
}

// New creates a worker for the configured stream and group.
// metrics may be nil (instrumentation disabled).
func New(cfg Config, busClient *bus.Client, handler Handler, m *metrics.Metrics) *Worker {
	return &Worker{
		cfg:     cfg.withDefaults(),
		bus:     busClient,
		handler: handler,
		metrics: m,
		stopCh:  make(chan struct{}),
	}
}

// Start begins the consume loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for the in-flight message to
// finish its ack cycle. It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Healthy reports whether the consume loop is running.
func (w *Worker) Healthy() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Processed returns the number of messages handled since Start.
func (w *Worker) Processed() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.processed
}

// run is the main consume loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("stream", w.cfg.Stream, "group", w.cfg.Group, "consumer", w.cfg.Consumer)
	log.Info("Worker started")

	w.setRunning(true)
	defer w.setRunning(false)

	if err := w.bus.EnsureGroup(ctx, w.cfg.Stream, w.cfg.Group); err != nil {
		// ReadGroup surfaces ErrNoGroup and the loop recreates the group there.
		log.Error("Failed to create consumer group", "error", err)
	} else if err := w.reclaim(ctx, log); err != nil {
		log.Error("Failed to reclaim pending messages", "error", err)
	}

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.readAndProcess(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				if errors.Is(err, bus.ErrNoGroup) {
					log.Warn("Consumer group missing, recreating")
					if err := w.bus.EnsureGroup(ctx, w.cfg.Stream, w.cfg.Group); err != nil {
						log.Error("Failed to recreate consumer group", "error", err)
						w.sleep(w.cfg.ErrorSleep)
					}
					continue
				}
				log.Error("Error in consume loop", "error", err)
				w.sleep(w.cfg.ErrorSleep)
				continue
			}
			w.sleep(w.pollInterval())
		}
	}
}

// reclaim re-processes entries delivered to the group but never acked by a
// previous run. Entries trimmed off the stream are acked away so they stop
// counting against the group's pending total.
func (w *Worker) reclaim(ctx context.Context, log *slog.Logger) error {
	pending, err := w.bus.Pending(ctx, w.cfg.Stream, w.cfg.Group, w.cfg.ReclaimLimit)
	if err != nil {
		return err
	}
	for _, p := range pending {
		log.Warn("Found unacked message, reclaiming", "message_id", p.ID)
		entry, err := w.bus.Entry(ctx, w.cfg.Stream, p.ID)
		if err != nil {
			return err
		}
		if entry == nil {
			if err := w.bus.Ack(ctx, w.cfg.Stream, w.cfg.Group, p.ID); err != nil {
				log.Error("Failed to ack trimmed message", "message_id", p.ID, "error", err)
			}
			continue
		}
		w.process(ctx, toMessage(*entry))
	}
	return nil
}

// readAndProcess blocks for one batch of undelivered entries and runs the
// handler over each.
func (w *Worker) readAndProcess(ctx context.Context) error {
	msgs, err := w.bus.ReadGroup(ctx, w.cfg.Stream, w.cfg.Group, w.cfg.Consumer, w.cfg.BatchSize, w.cfg.Block)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		w.process(ctx, toMessage(msg))
	}
	return nil
}

// process runs the handler on one message and acks on success. A failed ack
// is logged and left alone: the entry stays pending and redelivery is
// idempotent downstream.
func (w *Worker) process(ctx context.Context, msg Message) {
	start := time.Now()
	err := w.handle(ctx, msg)
	elapsed := time.Since(start)

	result := metrics.ResultOK
	switch {
	case errors.Is(err, ErrSkip):
		result = metrics.ResultSkipped
	case err != nil:
		w.observe(metrics.ResultError, elapsed)
		slog.Error("Handler failed, leaving message pending",
			"stream", w.cfg.Stream, "message_id", msg.ID, "error", err)
		return
	}

	if err := w.bus.Ack(ctx, w.cfg.Stream, w.cfg.Group, msg.ID); err != nil {
		slog.Error("Failed to ack message",
			"stream", w.cfg.Stream, "message_id", msg.ID, "error", err)
	}
	w.observe(result, elapsed)

	w.mu.Lock()
	w.processed++
	w.mu.Unlock()
}

// handle invokes the handler, converting a panic into an error so one bad
// message cannot kill the loop.
func (w *Worker) handle(ctx context.Context, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return w.handler.HandleMessage(ctx, msg)
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollInterval returns a uniform random duration in [SleepMin, SleepMax].
func (w *Worker) pollInterval() time.Duration {
	spread := w.cfg.SleepMax - w.cfg.SleepMin
	return w.cfg.SleepMin + time.Duration(rand.Int64N(int64(spread)))
}

func (w *Worker) observe(result string, elapsed time.Duration) {
	if w.metrics == nil {
		return
	}
	w.metrics.ObserveMessage(w.cfg.Stream, result, elapsed)
}

func (w *Worker) setRunning(running bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = running
}

func toMessage(msg redis.XMessage) Message {
	fields := make(map[string]string, len(msg.Values))
	for k, v := range msg.Values {
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		fields[k] = s
	}
	return Message{ID: msg.ID, Fields: fields}
}
