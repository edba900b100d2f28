// File: internal/register/retry_test.go
package register

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Attta-pangestu/venus-autofill/internal/staging"
)

// flakySubmitter fails the first n submissions, then succeeds.
type flakySubmitter struct {
	failuresLeft int
	attempts     int
}

func (f *flakySubmitter) Submit(ctx context.Context, entry staging.TransactionEntry, last bool) error {
	f.attempts++
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return errors.New("form state wrecked")
	}
	return nil
}

func TestRecoveringSubmitterPassesThroughSuccess(t *testing.T) {
	inner := &flakySubmitter{}
	recoveries := 0
	r := NewRecoveringSubmitter(inner, func(ctx context.Context) error {
		recoveries++
		return nil
	}, zaptest.NewLogger(t))

	err := r.Submit(context.Background(), testEntry(t, staging.TypeNormal, 7.0), false)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.attempts)
	assert.Zero(t, recoveries)
}

func TestRecoveringSubmitterRetriesAfterRecovery(t *testing.T) {
	inner := &flakySubmitter{failuresLeft: 1}
	recoveries := 0
	r := NewRecoveringSubmitter(inner, func(ctx context.Context) error {
		recoveries++
		return nil
	}, zaptest.NewLogger(t))

	err := r.Submit(context.Background(), testEntry(t, staging.TypeNormal, 7.0), false)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.attempts)
	assert.Equal(t, 1, recoveries)
}

func TestRecoveringSubmitterSurfacesDoubleFailure(t *testing.T) {
	inner := &flakySubmitter{failuresLeft: 2}
	r := NewRecoveringSubmitter(inner, func(ctx context.Context) error {
		return nil
	}, zaptest.NewLogger(t))

	err := r.Submit(context.Background(), testEntry(t, staging.TypeNormal, 7.0), false)
	assert.Error(t, err)
	assert.Equal(t, 2, inner.attempts)
}

func TestRecoveringSubmitterReportsFailedRecovery(t *testing.T) {
	inner := &flakySubmitter{failuresLeft: 2}
	r := NewRecoveringSubmitter(inner, func(ctx context.Context) error {
		return errors.New("ladder exhausted")
	}, zaptest.NewLogger(t))

	err := r.Submit(context.Background(), testEntry(t, staging.TypeNormal, 7.0), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recovery also failed")
	// No retry after a failed recovery.
	assert.Equal(t, 1, inner.attempts)
}

func TestRecoveringSubmitterSkipsRecoveryOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inner := &flakySubmitter{failuresLeft: 1}
	recoveries := 0
	r := NewRecoveringSubmitter(inner, func(ctx context.Context) error {
		recoveries++
		return nil
	}, zaptest.NewLogger(t))

	err := r.Submit(ctx, testEntry(t, staging.TypeNormal, 7.0), false)
	assert.Error(t, err)
	assert.Zero(t, recoveries)
}
