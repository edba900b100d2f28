// File: internal/register/retry.go
package register

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Attta-pangestu/venus-autofill/internal/staging"
)

// RecoverFunc restores the browser to a working task register form.
type RecoverFunc func(ctx context.Context) error

// RecoveringSubmitter wraps a submitter with one recovery-and-retry round.
// A failed entry usually means the form state is wrecked, not that the entry
// is bad, so recovering the session and replaying the same entry once
// salvages most failures.
type RecoveringSubmitter struct {
	inner   Submitter
	recover RecoverFunc
	logger  *zap.Logger
}

// NewRecoveringSubmitter wraps inner with the given recovery function.
func NewRecoveringSubmitter(inner Submitter, recover RecoverFunc, logger *zap.Logger) *RecoveringSubmitter {
	return &RecoveringSubmitter{
		inner:   inner,
		recover: recover,
		logger:  logger.Named("retry"),
	}
}

// Submit tries the entry, and on failure recovers the session and tries once
// more. Context cancellation is passed through untouched.
func (r *RecoveringSubmitter) Submit(ctx context.Context, entry staging.TransactionEntry, last bool) error {
	err := r.inner.Submit(ctx, entry, last)
	if err == nil || ctx.Err() != nil {
		return err
	}

	r.logger.Warn("entry failed, recovering session before retry",
		zap.String("record", entry.ID),
		zap.Error(err))

	if rerr := r.recover(ctx); rerr != nil {
		return fmt.Errorf("%w (session recovery also failed: %v)", err, rerr)
	}
	return r.inner.Submit(ctx, entry, last)
}
