package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	loyaltydomain "github.com/smallbiznis/perkway/internal/loyalty/domain"
	subdomain "github.com/smallbiznis/perkway/internal/subscription/domain"
)

type fakeRenewals struct {
	calls   int
	summary subdomain.SweepSummary
	err     error
}

func (f *fakeRenewals) ProcessAllDueRenewals(context.Context) (subdomain.SweepSummary, error) {
	f.calls++
	return f.summary, f.err
}

type fakeExpirer struct {
	calls   int
	summary loyaltydomain.ExpireSummary
	err     error
}

func (f *fakeExpirer) ClearExpiredPoints(context.Context) (loyaltydomain.ExpireSummary, error) {
	f.calls++
	return f.summary, f.err
}

func TestRunOnceRunsAllJobs(t *testing.T) {
	renewals := &fakeRenewals{summary: subdomain.SweepSummary{Due: 2, Renewed: 2}}
	expirer := &fakeExpirer{summary: loyaltydomain.ExpireSummary{AccountsSwept: 1}}
	s := New(zap.NewNop(), Config{Interval: time.Minute}, renewals, expirer, nil)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, renewals.calls)
	assert.Equal(t, 1, expirer.calls)
}

func TestRunOnceIsolatesJobFailures(t *testing.T) {
	renewals := &fakeRenewals{err: errors.New("database gone")}
	expirer := &fakeExpirer{}
	s := New(zap.NewNop(), Config{Interval: time.Minute}, renewals, expirer, nil)

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobRenewals)

	// The expiry job still ran despite the renewal failure.
	assert.Equal(t, 1, expirer.calls)
}

func TestRunForeverStopsOnContextCancel(t *testing.T) {
	renewals := &fakeRenewals{}
	expirer := &fakeExpirer{}
	s := New(zap.NewNop(), Config{Interval: 10 * time.Millisecond}, renewals, expirer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunForever(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, renewals.calls, 1)
}
