package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/kpm34/cfbdraft/go/internal/draft/drafterr"
	"github.com/kpm34/cfbdraft/go/internal/draft/store"
	"github.com/rs/zerolog/log"
)

// retry runs fn with a store timeout per attempt. Only transient failures are
// retried; every other error is returned as is on the first attempt.
func (o *Orchestrator) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.cfg.RetryInitialInterval
	eb.MaxInterval = o.cfg.RetryMaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := store.Call(ctx, o.cfg.StoreTimeout, fn)
		if err == nil {
			return struct{}{}, nil
		}
		if !errors.Is(err, drafterr.ErrTransient) || ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(o.cfg.RetryMaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().
				Err(err).
				Str("op", op).
				Dur("retry_in", next).
				Str("instance", o.instanceID).
				Msg("transient store failure, retrying")
		}),
	)
	return err
}
