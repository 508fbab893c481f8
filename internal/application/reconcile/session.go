package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-verify-nosql/internal/application/trust"
	"github.com/go-verify-nosql/internal/config"
	"github.com/go-verify-nosql/internal/domain"
	"github.com/go-verify-nosql/internal/infrastructure/metrics"
	"github.com/go-verify-nosql/internal/pkg/retry"
)

// ReasonTimeout is attached to approvals granted because nobody decided in time.
const ReasonTimeout = "auto-approved after timeout"

// Outcome says how a session reached its decision.
type Outcome string

const (
	OutcomeEvaluatorApproved Outcome = "evaluator_approved"
	OutcomeStoreResolved     Outcome = "store_resolved"
	OutcomeDeadlineElapsed   Outcome = "deadline_elapsed"
	// OutcomeAlreadyTerminal: the record was decided before the session began.
	OutcomeAlreadyTerminal Outcome = "already_terminal"
)

// NeedsCommit reports whether the decision was made by the engine and still
// has to be persisted by the caller.
func (o Outcome) NeedsCommit() bool {
	return o == OutcomeEvaluatorApproved || o == OutcomeDeadlineElapsed
}

// Result is the decision of one session.
type Result struct {
	Status  domain.VerificationStatus
	Reason  string
	Elapsed time.Duration
	Outcome Outcome
	// Record is the last snapshot the session read.
	Record *domain.VerificationRecord
}

// Store is the read side of the verification persistence adapter.
type Store interface {
	ReadVerification(ctx context.Context, verificationID string) (*domain.VerificationRecord, error)
}

// Evaluator decides whether a submission can be approved without a human.
type Evaluator interface {
	Evaluate(ctx context.Context, rec *domain.VerificationRecord) trust.Result
}

// Config holds the session timing knobs.
type Config struct {
	WaitBudget    time.Duration
	PollInterval  time.Duration
	ReadTimeout   time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
}

func ConfigFrom(v config.Verification) Config {
	return Config{
		WaitBudget:    v.WaitBudget,
		PollInterval:  v.PollInterval,
		ReadTimeout:   v.StoreReadTimeout,
		RetryAttempts: v.StoreRetryAttempts,
		RetryBackoff:  v.StoreRetryBackoff,
	}
}

// Engine runs reconciliation sessions. It keeps no state between runs; every
// Run builds its own session.
type Engine struct {
	store     Store
	evaluator Evaluator
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewEngine(store Store, evaluator Evaluator, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, evaluator: evaluator, cfg: cfg, logger: logger, metrics: m}
}

// session is the in-memory state of one attempt.
type session struct {
	*Engine
	record   *domain.VerificationRecord
	start    time.Time
	deadline time.Time
}

// Run decides the record identified by verificationID. It never writes: a
// result with Outcome.NeedsCommit must be persisted by the caller exactly once.
//
// A missing record is returned as an error. A record that is already
// terminal is returned as-is. Otherwise the evaluator runs once and, if it
// cannot approve, the session polls the store until a reviewer decides or
// the wait budget runs out, in which case the record is approved.
// Cancelling ctx aborts the wait with ctx's error.
func (e *Engine) Run(ctx context.Context, verificationID string) (*Result, error) {
	start := time.Now()
	rec, err := e.read(ctx, verificationID)
	if err != nil {
		return nil, fmt.Errorf("start session %s: %w", verificationID, err)
	}
	s := &session{Engine: e, record: rec, start: start, deadline: start.Add(e.cfg.WaitBudget)}

	if rec.Status.IsTerminal() {
		return s.finish(OutcomeAlreadyTerminal, rec, rec.Status, rec.Notes), nil
	}
	if rec.Status != domain.VerificationPending {
		return nil, fmt.Errorf("verification %s has status %q: %w", verificationID, rec.Status, domain.ErrBadRequest)
	}

	verdict := e.evaluator.Evaluate(ctx, rec)
	if e.metrics != nil {
		e.metrics.ObserveDecision(string(verdict.Decision))
	}
	if verdict.Decision == trust.Approved {
		return s.finish(OutcomeEvaluatorApproved, rec, domain.VerificationVerified, verdict.Reason), nil
	}

	if e.metrics != nil {
		e.metrics.SessionStarted()
		defer e.metrics.SessionFinished()
	}
	return s.wait(ctx)
}

// wait races the poll ticker against the deadline in one select.
func (s *session) wait(ctx context.Context) (*Result, error) {
	waitCtx, cancel := context.WithDeadline(ctx, s.deadline)
	defer cancel()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	id := s.record.VerificationID
	for {
		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return s.expire(ctx)

		case <-ticker.C:
			cur, err := s.read(waitCtx, id)
			if err != nil {
				if waitCtx.Err() == nil {
					s.logger.WarnContext(ctx, "verification poll failed; retrying next tick",
						"verification_id", id, "err", err)
					if s.metrics != nil {
						s.metrics.IncStoreReadFailure()
					}
				}
				continue
			}
			s.record = cur
			if cur.Status.IsTerminal() {
				return s.finish(OutcomeStoreResolved, cur, cur.Status, cur.Notes), nil
			}
		}
	}
}

// expire runs once the deadline passes. A reviewer decision that landed
// before this final read still wins.
func (s *session) expire(ctx context.Context) (*Result, error) {
	id := s.record.VerificationID
	cur, err := s.readOnce(ctx, id)
	switch {
	case err == nil && cur.Status.IsTerminal():
		return s.finish(OutcomeStoreResolved, cur, cur.Status, cur.Notes), nil
	case err == nil:
		s.record = cur
	default:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.WarnContext(ctx, "final verification read failed; approving on timeout",
			"verification_id", id, "err", err)
	}
	return s.finish(OutcomeDeadlineElapsed, s.record, domain.VerificationVerified, ReasonTimeout), nil
}

func (s *session) finish(outcome Outcome, rec *domain.VerificationRecord, status domain.VerificationStatus, reason string) *Result {
	res := &Result{
		Status:  status,
		Reason:  reason,
		Elapsed: time.Since(s.start),
		Outcome: outcome,
		Record:  rec,
	}
	if s.metrics != nil {
		s.metrics.ObserveSession(string(outcome), string(status), res.Elapsed)
	}
	s.logger.Info("verification session finished",
		"verification_id", rec.VerificationID,
		"outcome", outcome,
		"status", status,
		"elapsed", res.Elapsed,
	)
	return res
}

// read fetches the record with bounded retries. ErrNotFound is not retried.
func (e *Engine) read(ctx context.Context, verificationID string) (*domain.VerificationRecord, error) {
	var rec *domain.VerificationRecord
	err := retry.Do(ctx, e.cfg.RetryAttempts, e.cfg.RetryBackoff, func(ctx context.Context) error {
		r, err := e.readOnce(ctx, verificationID)
		if errors.Is(err, domain.ErrNotFound) {
			return retry.Permanent(err)
		}
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	return rec, err
}

func (e *Engine) readOnce(ctx context.Context, verificationID string) (*domain.VerificationRecord, error) {
	if e.cfg.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ReadTimeout)
		defer cancel()
	}
	return e.store.ReadVerification(ctx, verificationID)
}
