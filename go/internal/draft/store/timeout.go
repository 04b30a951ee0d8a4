package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kpm34/cfbdraft/go/internal/draft/drafterr"
)

// Call runs fn with a bounded context. A call that runs out of time is
// reported as a transient failure so callers never block on a slow store.
func Call(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err := fn(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, drafterr.ErrTransient) {
		return fmt.Errorf("%w: %v", drafterr.ErrTransient, err)
	}
	return err
}
