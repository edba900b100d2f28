// File: internal/browser/recovery_test.go
package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeSession scripts the outcome of each ladder rung.
type fakeSession struct {
	refreshErr  error
	loginErr    error
	initErr     error
	navErr      error
	responsive  bool
	refreshed   int
	loggedIn    int
	initialized int
	navigated   int
}

func (f *fakeSession) Refresh(ctx context.Context) error {
	f.refreshed++
	return f.refreshErr
}

func (f *fakeSession) Login(ctx context.Context) error {
	f.loggedIn++
	return f.loginErr
}

func (f *fakeSession) Initialize(ctx context.Context) error {
	f.initialized++
	return f.initErr
}

func (f *fakeSession) NavigateToTaskRegister(ctx context.Context) error {
	f.navigated++
	return f.navErr
}

func (f *fakeSession) Responsive(ctx context.Context) bool {
	return f.responsive
}

func TestRecoverRefreshSucceedsFirst(t *testing.T) {
	fake := &fakeSession{responsive: true}
	r := NewRecoverer(fake, zaptest.NewLogger(t))

	strategy, err := r.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StrategyRefresh, strategy)
	assert.Equal(t, 1, fake.refreshed)
	assert.Zero(t, fake.loggedIn)
	assert.Zero(t, fake.initialized)
}

func TestRecoverEscalatesToRelogin(t *testing.T) {
	fake := &fakeSession{
		responsive: true,
		refreshErr: errors.New("renderer hung"),
	}
	r := NewRecoverer(fake, zaptest.NewLogger(t))

	strategy, err := r.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StrategyRelogin, strategy)
	assert.Equal(t, 1, fake.refreshed)
	assert.Equal(t, 1, fake.loggedIn)
	assert.Zero(t, fake.initialized)
}

func TestRecoverEscalatesToRecreate(t *testing.T) {
	fake := &fakeSession{
		responsive: true,
		refreshErr: errors.New("renderer hung"),
		loginErr:   errors.New("login page unreachable"),
	}
	r := NewRecoverer(fake, zaptest.NewLogger(t))

	strategy, err := r.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StrategyRecreate, strategy)
	assert.Equal(t, 1, fake.initialized)
}

func TestRecoverAllRungsExhausted(t *testing.T) {
	navErr := errors.New("form unreachable")
	fake := &fakeSession{responsive: true, navErr: navErr}
	r := NewRecoverer(fake, zaptest.NewLogger(t))

	_, err := r.Recover(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, navErr)
	// Every rung applied and verified once.
	assert.Equal(t, 1, fake.refreshed)
	assert.Equal(t, 1, fake.loggedIn)
	assert.Equal(t, 1, fake.initialized)
	assert.Equal(t, 3, fake.navigated)
}

func TestRecoverUnresponsiveSessionFailsVerification(t *testing.T) {
	fake := &fakeSession{responsive: false}
	r := NewRecoverer(fake, zaptest.NewLogger(t))

	_, err := r.Recover(context.Background())
	require.Error(t, err)
	// Navigation is never attempted against a dead tab.
	assert.Zero(t, fake.navigated)
}

func TestRecoverHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &fakeSession{responsive: true}
	r := NewRecoverer(fake, zaptest.NewLogger(t))

	_, err := r.Recover(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fake.refreshed)
}
