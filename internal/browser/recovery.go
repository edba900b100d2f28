// File: internal/browser/recovery.go
package browser

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Strategy names one rung of the recovery ladder.
type Strategy string

const (
	StrategyRefresh  Strategy = "refresh"
	StrategyRelogin  Strategy = "relogin"
	StrategyRecreate Strategy = "recreate"
)

// ladder is the fixed order of escalation. Cheaper rungs first: a page
// refresh preserves the login, a re-login preserves the browser process, and
// only a full recreate pays the Chrome startup cost.
var ladder = []Strategy{StrategyRefresh, StrategyRelogin, StrategyRecreate}

// recoverableSession is the slice of Session the recoverer drives. Narrowed
// to an interface so the ladder can be tested without a browser.
type recoverableSession interface {
	Responsive(ctx context.Context) bool
	Refresh(ctx context.Context) error
	Login(ctx context.Context) error
	Initialize(ctx context.Context) error
	NavigateToTaskRegister(ctx context.Context) error
}

// Recoverer walks a broken session back to a working task register form.
type Recoverer struct {
	session recoverableSession
	logger  *zap.Logger
}

// NewRecoverer creates a recoverer for the given session.
func NewRecoverer(session recoverableSession, logger *zap.Logger) *Recoverer {
	return &Recoverer{
		session: session,
		logger:  logger.Named("recovery"),
	}
}

// Recover climbs the ladder until one rung restores the session, returning
// the strategy that worked. Every rung ends with the same health check:
// the tab must answer a probe and must be able to reach the task register.
func (r *Recoverer) Recover(ctx context.Context) (Strategy, error) {
	var lastErr error
	for _, strategy := range ladder {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		r.logger.Info("attempting recovery", zap.String("strategy", string(strategy)))

		if err := r.apply(ctx, strategy); err != nil {
			lastErr = err
			r.logger.Warn("recovery rung failed",
				zap.String("strategy", string(strategy)),
				zap.Error(err))
			continue
		}
		if err := r.verify(ctx); err != nil {
			lastErr = err
			r.logger.Warn("recovery rung did not restore the form",
				zap.String("strategy", string(strategy)),
				zap.Error(err))
			continue
		}

		r.logger.Info("session recovered", zap.String("strategy", string(strategy)))
		return strategy, nil
	}
	return "", fmt.Errorf("all recovery strategies exhausted: %w", lastErr)
}

func (r *Recoverer) apply(ctx context.Context, strategy Strategy) error {
	switch strategy {
	case StrategyRefresh:
		return r.session.Refresh(ctx)
	case StrategyRelogin:
		return r.session.Login(ctx)
	case StrategyRecreate:
		return r.session.Initialize(ctx)
	default:
		return fmt.Errorf("unknown recovery strategy %q", strategy)
	}
}

func (r *Recoverer) verify(ctx context.Context) error {
	if !r.session.Responsive(ctx) {
		return fmt.Errorf("session unresponsive after recovery attempt")
	}
	return r.session.NavigateToTaskRegister(ctx)
}
