package reconcile

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/go-verify-nosql/internal/domain"
)

const releaseTimeout = 2 * time.Second

// Leaser grants exclusive, expiring ownership of a record across instances.
type Leaser interface {
	Acquire(ctx context.Context, recordID string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// Runner runs one session for a record.
type Runner interface {
	Run(ctx context.Context, verificationID string) (*Result, error)
}

// Coordinator guarantees at most one session per record. Callers in this
// process that ask for a record already being reconciled share the running
// session's result. When a Leaser is configured, a session held by another
// instance yields domain.ErrSessionActive.
type Coordinator struct {
	runner   Runner
	leaser   Leaser
	leaseTTL time.Duration
	logger   *slog.Logger
	group    singleflight.Group
}

// NewCoordinator builds a Coordinator. leaser may be nil for single-instance
// deployments.
func NewCoordinator(runner Runner, leaser Leaser, leaseTTL time.Duration, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{runner: runner, leaser: leaser, leaseTTL: leaseTTL, logger: logger}
}

// Reconcile runs or joins the session for verificationID. A joined caller
// receives the same *Result; it must not be modified.
//
// The session runs under the context of the caller that started it, so a
// joined caller sees that caller's cancellation error. Each caller stops
// waiting as soon as its own ctx ends; the session keeps running for the
// others.
func (c *Coordinator) Reconcile(ctx context.Context, verificationID string) (*Result, error) {
	ch := c.group.DoChan(verificationID, func() (any, error) {
		return c.run(ctx, verificationID)
	})
	select {
	case r := <-ch:
		if r.Shared {
			c.logger.DebugContext(ctx, "joined in-flight verification session", "verification_id", verificationID)
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Result), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context, verificationID string) (*Result, error) {
	if c.leaser == nil {
		return c.runner.Run(ctx, verificationID)
	}

	release, ok, err := c.leaser.Acquire(ctx, verificationID, c.leaseTTL)
	switch {
	case err != nil:
		// Lease store unavailable: reconcile anyway, the conditional commit
		// still keeps the decision single.
		c.logger.WarnContext(ctx, "session lease unavailable; continuing without it",
			"verification_id", verificationID, "err", err)
		return c.runner.Run(ctx, verificationID)
	case !ok:
		return nil, domain.ErrSessionActive
	}

	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := release(rctx); err != nil {
			c.logger.Warn("release session lease", "verification_id", verificationID, "err", err)
		}
	}()
	return c.runner.Run(ctx, verificationID)
}
