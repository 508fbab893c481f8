package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-verify-nosql/internal/domain"
	redisinfra "github.com/go-verify-nosql/internal/infrastructure/redis"
)

type slowRunner struct {
	calls atomic.Int32
	delay time.Duration
}

func (r *slowRunner) Run(_ context.Context, id string) (*Result, error) {
	r.calls.Add(1)
	time.Sleep(r.delay)
	return &Result{
		Status:  domain.VerificationVerified,
		Reason:  ReasonTimeout,
		Outcome: OutcomeDeadlineElapsed,
		Record:  &domain.VerificationRecord{VerificationID: id},
	}, nil
}

type fakeLeaser struct {
	ok       bool
	err      error
	released atomic.Bool
}

func (l *fakeLeaser) Acquire(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	if l.err != nil || !l.ok {
		return nil, l.ok, l.err
	}
	return func(context.Context) error {
		l.released.Store(true)
		return nil
	}, true, nil
}

func TestCoordinator_ConcurrentCallersShareSession(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		runner := &slowRunner{delay: 120 * time.Second}
		c := NewCoordinator(runner, nil, 0, discardLogger())

		var wg sync.WaitGroup
		results := make([]*Result, 3)
		for i := range results {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := c.Reconcile(context.Background(), "rec-1")
				assert.NoError(t, err)
				results[i] = res
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), runner.calls.Load())
		assert.Same(t, results[0], results[1])
		assert.Same(t, results[1], results[2])
	})
}

func TestCoordinator_DistinctRecordsRunIndependently(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		runner := &slowRunner{delay: time.Second}
		c := NewCoordinator(runner, nil, 0, discardLogger())

		var wg sync.WaitGroup
		for _, id := range []string{"rec-1", "rec-2"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := c.Reconcile(context.Background(), id)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(2), runner.calls.Load())
	})
}

func TestCoordinator_LeaseHeldElsewhere(t *testing.T) {
	runner := &slowRunner{}
	c := NewCoordinator(runner, &fakeLeaser{ok: false}, time.Minute, discardLogger())

	_, err := c.Reconcile(context.Background(), "rec-1")

	assert.ErrorIs(t, err, domain.ErrSessionActive)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Zero(t, runner.calls.Load())
}

func TestCoordinator_LeaseReleasedAfterRun(t *testing.T) {
	runner := &slowRunner{}
	leaser := &fakeLeaser{ok: true}
	c := NewCoordinator(runner, leaser, time.Minute, discardLogger())

	res, err := c.Reconcile(context.Background(), "rec-1")

	require.NoError(t, err)
	assert.Equal(t, "rec-1", res.Record.VerificationID)
	assert.True(t, leaser.released.Load())
}

func TestCoordinator_LeaseStoreDownStillRuns(t *testing.T) {
	runner := &slowRunner{}
	c := NewCoordinator(runner, &fakeLeaser{err: errors.New("connection refused")}, time.Minute, discardLogger())

	_, err := c.Reconcile(context.Background(), "rec-1")

	require.NoError(t, err)
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestCoordinator_RedisLeaseAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	leaser := redisinfra.NewLeaser(client)

	// another instance holds the record
	release, ok, err := leaser.Acquire(context.Background(), "rec-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	runner := &slowRunner{}
	c := NewCoordinator(runner, leaser, time.Minute, discardLogger())

	_, err = c.Reconcile(context.Background(), "rec-1")
	assert.ErrorIs(t, err, domain.ErrSessionActive)

	require.NoError(t, release(context.Background()))
	_, err = c.Reconcile(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), runner.calls.Load())
	assert.Empty(t, mr.Keys(), "lease released after the session")
}

func TestCoordinator_JoinedCallerLeavesOnItsOwnCancel(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		runner := &slowRunner{delay: 120 * time.Second}
		c := NewCoordinator(runner, nil, 0, discardLogger())
		start := time.Now()

		var owner *Result
		var wg sync.WaitGroup
		wg.Go(func() {
			res, err := c.Reconcile(context.Background(), "rec-1")
			assert.NoError(t, err)
			owner = res
		})
		synctest.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := c.Reconcile(ctx, "rec-1")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 10*time.Second, time.Since(start))

		wg.Wait()
		require.NotNil(t, owner)
		assert.Equal(t, 120*time.Second, time.Since(start))
		assert.Equal(t, int32(1), runner.calls.Load())
	})
}
