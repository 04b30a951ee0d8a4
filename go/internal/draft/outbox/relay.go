package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/kpm34/cfbdraft/go/internal/config"
)

// JetStreamConfigFrom applies environment settings over the defaults.
func JetStreamConfigFrom(cfg config.NATSConfig) JetStreamConfig {
	js := DefaultJetStreamConfig()
	if cfg.URL != "" {
		js.URL = cfg.URL
	}
	if cfg.Stream != "" {
		js.StreamName = cfg.Stream
	}
	if cfg.SubjectPrefix != "" {
		js.SubjectPrefix = cfg.SubjectPrefix
	}
	if cfg.MaxAge > 0 {
		js.MaxAge = cfg.MaxAge
	}
	if cfg.Replicas > 0 {
		js.Replicas = cfg.Replicas
	}
	return js
}

// ConfigFrom converts environment settings to a worker Config.
func ConfigFrom(cfg config.RelayConfig) Config {
	return Config{
		PollInterval: cfg.PollInterval,
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryDelay:   cfg.RetryDelay,
	}
}

// Relay is a Worker together with the publisher it owns.
type Relay struct {
	Worker    *Worker
	Metrics   *CounterMetrics
	connected func() bool
	close     func()
}

// NewRelay builds a worker over src. With NATS disabled events are only
// logged.
func NewRelay(ctx context.Context, src Source, relayCfg config.RelayConfig, natsCfg config.NATSConfig, logger *slog.Logger, clk clockwork.Clock) (*Relay, error) {
	var (
		publisher EventPublisher
		connected func() bool
		closeFn   = func() {}
	)
	if natsCfg.Disabled {
		publisher = NewLogPublisher(logger, natsCfg.SubjectPrefix)
	} else {
		js, err := NewJetStreamPublisher(ctx, JetStreamConfigFrom(natsCfg))
		if err != nil {
			return nil, err
		}
		publisher = js
		connected = js.Conn().IsConnected
		closeFn = func() { _ = js.Close() }
	}

	metrics := NewCounterMetrics()
	worker := NewWorker(src, publisher, ConfigFrom(relayCfg), logger, clk).WithMetrics(metrics)
	return &Relay{Worker: worker, Metrics: metrics, connected: connected, close: closeFn}, nil
}

// HealthChecker reports on the relay. pending may be nil.
func (r *Relay) HealthChecker(pending PendingCounter, stuckThreshold time.Duration) *RelayHealthChecker {
	return NewRelayHealthChecker(r.Worker, pending, r.connected, stuckThreshold)
}

// Close stops the worker if it is running and releases the publisher.
func (r *Relay) Close() {
	if r.Worker.Running() {
		_ = r.Worker.Stop()
	}
	r.close()
}
