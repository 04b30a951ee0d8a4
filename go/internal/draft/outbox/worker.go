package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/kpm34/cfbdraft/go/internal/draft/drafterr"
	"github.com/kpm34/cfbdraft/go/internal/models"
)

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
	RetryDelay   time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
		MaxRetries:   3,
		RetryDelay:   time.Second,
	}
}

// Worker polls the outbox and publishes unsent events in commit order.
type Worker struct {
	source    Source
	publisher EventPublisher
	config    Config
	logger    *slog.Logger
	clock     clockwork.Clock
	metrics   MetricsCollector

	// processMu keeps the poll loop and notifications from publishing the
	// same batch concurrently.
	processMu sync.Mutex

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	processed     atomic.Uint64
	lastEventUnix atomic.Int64
}

func NewWorker(source Source, publisher EventPublisher, cfg Config, logger *slog.Logger, clk clockwork.Clock) *Worker {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Worker{
		source:    source,
		publisher: publisher,
		config:    cfg,
		logger:    logger,
		clock:     clk,
		metrics:   &NoOpMetricsCollector{},
		stopChan:  make(chan struct{}),
	}
}

// WithMetrics sets the collector used for publish and batch metrics.
func (w *Worker) WithMetrics(m MetricsCollector) *Worker {
	if m != nil {
		w.metrics = m
	}
	return w
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info("outbox worker started",
		slog.Duration("poll_interval", w.config.PollInterval),
		slog.Int("batch_size", w.config.BatchSize))

	return nil
}

func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	w.logger.Info("outbox worker stopped")
	return nil
}

// Running reports whether the poll loop is active.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Stats returns how many events were published and when the last one was.
func (w *Worker) Stats() (uint64, time.Time) {
	var last time.Time
	if unix := w.lastEventUnix.Load(); unix != 0 {
		last = time.Unix(0, unix)
	}
	return w.processed.Load(), last
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := w.clock.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on start
	if _, err := w.ProcessOutbox(ctx); err != nil {
		w.logger.Error("failed to process outbox", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.Chan():
			if _, err := w.ProcessOutbox(ctx); err != nil {
				w.logger.Error("failed to process outbox", slog.String("error", err.Error()))
			}
		}
	}
}

// ProcessOutbox publishes one batch of unsent events, oldest first, and
// returns how many were published. An event that fails to publish stops the
// batch so later events are never delivered ahead of it.
func (w *Worker) ProcessOutbox(ctx context.Context) (int, error) {
	w.processMu.Lock()
	defer w.processMu.Unlock()

	start := w.clock.Now()
	events, err := w.source.FetchUnsentOutbox(ctx, w.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch unsent events: %w", err)
	}
	w.metrics.RecordOutboxLag(len(events))
	if len(events) == 0 {
		return 0, nil
	}

	w.logger.Debug("processing outbox events", slog.Int("count", len(events)))

	sent := 0
	for _, event := range events {
		if err := w.publishWithRetry(ctx, event); err != nil {
			w.logger.Error("failed to publish event",
				slog.String("event_id", event.ID.String()),
				slog.String("event_type", event.EventType),
				slog.String("error", err.Error()))
			break
		}
		if err := w.markSent(ctx, event.ID); err != nil {
			w.logger.Error("failed to mark event as sent",
				slog.String("event_id", event.ID.String()),
				slog.String("error", err.Error()))
			break
		}
		sent++
	}

	w.metrics.RecordBatchProcessed(sent, w.clock.Since(start))
	w.logger.Info("processed outbox events",
		slog.Int("total", len(events)),
		slog.Int("successful", sent))
	return sent, nil
}

// PublishByID publishes a single event, typically in response to a
// notification. Already sent events are skipped.
func (w *Worker) PublishByID(ctx context.Context, id uuid.UUID) error {
	w.processMu.Lock()
	defer w.processMu.Unlock()

	event, err := w.source.FetchOutboxByID(ctx, id)
	if err != nil {
		if errors.Is(err, drafterr.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("fetch outbox event: %w", err)
	}
	if event.SentAt != nil {
		return nil
	}
	if err := w.publishWithRetry(ctx, *event); err != nil {
		return err
	}
	if err := w.markSent(ctx, id); err != nil {
		return fmt.Errorf("mark outbox event sent: %w", err)
	}
	w.logger.Info("published and marked event as sent", slog.String("event_id", id.String()))
	return nil
}

func (w *Worker) markSent(ctx context.Context, id uuid.UUID) error {
	now := w.clock.Now().UTC()
	if err := w.source.MarkOutboxSent(ctx, id, now); err != nil {
		return err
	}
	w.processed.Add(1)
	w.lastEventUnix.Store(now.UnixNano())
	return nil
}

func (w *Worker) publishWithRetry(ctx context.Context, event models.OutboxEvent) error {
	var lastErr error

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 && w.config.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.clock.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}

		start := w.clock.Now()
		err := w.publisher.Publish(ctx, event)
		w.metrics.RecordPublishAttempt(event.EventType, attempt+1, err == nil)
		if err != nil {
			lastErr = err
			w.logger.Warn("failed to publish event, retrying",
				slog.String("event_id", event.ID.String()),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
			continue
		}
		w.metrics.RecordEventProcessed(event.EventType, true, w.clock.Since(start))
		return nil
	}

	w.metrics.RecordEventProcessed(event.EventType, false, 0)
	return fmt.Errorf("failed after %d attempts: %w", w.config.MaxRetries+1, lastErr)
}
