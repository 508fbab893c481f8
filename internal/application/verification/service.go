package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-verify-nosql/internal/application/reconcile"
	"github.com/go-verify-nosql/internal/domain"
	"github.com/go-verify-nosql/internal/pkg/id"
	"github.com/go-verify-nosql/internal/pkg/validate"
)

// commitTimeout bounds the writes that follow a decision. They run detached
// from the caller so a decision that was reached is never lost to a
// disconnecting client.
const commitTimeout = 10 * time.Second

type Service interface {
	// Submit creates a pending record and starts reconciliation. With wait
	// set, it blocks until the decision is committed or ctx ends; the session
	// carries on in the background either way.
	Submit(ctx context.Context, subjectID string, req domain.SubmitVerificationRequest, wait bool) (*domain.VerificationRecord, error)
	Get(ctx context.Context, verificationID, requesterID, role string) (*domain.VerificationRecord, error)
	Documents(ctx context.Context, verificationID string) ([]DocumentLink, error)
	Review(ctx context.Context, verificationID, reviewerID string, req domain.ReviewVerificationRequest) (*domain.VerificationRecord, error)
	// Reconcile runs (or joins) the session for a record and commits an
	// automated decision exactly once.
	Reconcile(ctx context.Context, verificationID string) (*domain.VerificationRecord, error)
	// ResumePending starts a session for every pending record.
	ResumePending(ctx context.Context) (int, error)
	// Wait blocks until background sessions have returned.
	Wait()
}

// DocumentLink is a short-lived download URL for one evidence document.
type DocumentLink struct {
	Ref       string    `json:"ref"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type verificationStore interface {
	Create(ctx context.Context, v *domain.VerificationRecord) error
	ReadVerification(ctx context.Context, verificationID string) (*domain.VerificationRecord, error)
	WriteVerification(ctx context.Context, v *domain.VerificationRecord) error
	ResolvePending(ctx context.Context, verificationID string, status domain.VerificationStatus, notes, resolvedBy string, at time.Time) (*domain.VerificationRecord, error)
	ListPending(ctx context.Context) ([]domain.VerificationRecord, error)
}

type reconciler interface {
	Reconcile(ctx context.Context, verificationID string) (*reconcile.Result, error)
}

type notifier interface {
	Notify(ctx context.Context, userID, kind, message string) error
}

type userStore interface {
	SetVerified(ctx context.Context, userID string, verified bool) error
}

type documentSigner interface {
	PresignedURL(ctx context.Context, ref string, ttl time.Duration) (string, error)
}

type service struct {
	repo       verificationStore
	reconciler reconciler
	notifier   notifier
	users      userStore
	documents  documentSigner
	presignTTL time.Duration
	baseCtx    context.Context
	logger     *slog.Logger
	wg         sync.WaitGroup
}

type ServiceDeps struct {
	Repo       verificationStore
	Reconciler reconciler
	Notifier   notifier
	Users      userStore
	Documents  documentSigner
	PresignTTL time.Duration
	// BaseContext parents background sessions. Cancelling it stops them.
	BaseContext context.Context
	Logger      *slog.Logger
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		repo:       deps.Repo,
		reconciler: deps.Reconciler,
		notifier:   deps.Notifier,
		users:      deps.Users,
		documents:  deps.Documents,
		presignTTL: deps.PresignTTL,
		baseCtx:    deps.BaseContext,
		logger:     deps.Logger,
	}
	if s.baseCtx == nil {
		s.baseCtx = context.Background()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.presignTTL <= 0 {
		s.presignTTL = 15 * time.Minute
	}
	return s
}

func (s *service) Submit(ctx context.Context, subjectID string, req domain.SubmitVerificationRequest, wait bool) (*domain.VerificationRecord, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	refs := req.DocumentRefs
	if refs == nil {
		refs = []string{}
	}
	now := time.Now().UTC()
	rec := &domain.VerificationRecord{
		VerificationID:   id.New(),
		SubjectID:        subjectID,
		Status:           domain.VerificationPending,
		SubmittedEmail:   strings.TrimSpace(req.Email),
		SubmittedWebsite: strings.TrimSpace(req.Website),
		DocumentRefs:     refs,
		SubmittedAt:      now,
		UpdatedAt:        now,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create verification: %w", err)
	}
	s.notify(ctx, subjectID, domain.NotificationVerificationSubmitted,
		"We received your verification request and will confirm it shortly.")

	done := s.background(rec.VerificationID)
	if !wait {
		return rec, nil
	}
	select {
	case r := <-done:
		return r.rec, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for verification %s: %w", rec.VerificationID, ctx.Err())
	}
}

func (s *service) Get(ctx context.Context, verificationID, requesterID, role string) (*domain.VerificationRecord, error) {
	rec, err := s.repo.ReadVerification(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	if role != domain.RoleAdmin && rec.SubjectID != requesterID {
		return nil, fmt.Errorf("verification belongs to another user: %w", domain.ErrForbidden)
	}
	return rec, nil
}

func (s *service) Documents(ctx context.Context, verificationID string) ([]DocumentLink, error) {
	if s.documents == nil {
		return nil, fmt.Errorf("document storage not configured: %w", domain.ErrNotFound)
	}
	rec, err := s.repo.ReadVerification(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	expires := time.Now().UTC().Add(s.presignTTL)
	links := make([]DocumentLink, 0, len(rec.DocumentRefs))
	for _, ref := range rec.DocumentRefs {
		u, err := s.documents.PresignedURL(ctx, ref, s.presignTTL)
		if err != nil {
			return nil, fmt.Errorf("presign %q: %w", ref, err)
		}
		links = append(links, DocumentLink{Ref: ref, URL: u, ExpiresAt: expires})
	}
	return links, nil
}

// Review records a human decision. It may overturn an earlier decision,
// automated or not; resolved_at keeps the time the record first left pending.
func (s *service) Review(ctx context.Context, verificationID, reviewerID string, req domain.ReviewVerificationRequest) (*domain.VerificationRecord, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	rec, err := s.repo.ReadVerification(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	prev := rec.Status

	now := time.Now().UTC()
	rec.Status = req.Status
	rec.Notes = req.Notes
	rec.ResolvedBy = reviewerID
	rec.UpdatedAt = now
	if rec.ResolvedAt == nil {
		rec.ResolvedAt = &now
	}
	if err := s.repo.WriteVerification(ctx, rec); err != nil {
		return nil, fmt.Errorf("write review: %w", err)
	}
	s.logger.InfoContext(ctx, "verification reviewed",
		"verification_id", verificationID,
		"reviewer_id", reviewerID,
		"from", prev,
		"to", rec.Status,
	)
	if prev != rec.Status {
		s.applyOutcome(ctx, rec)
	}
	return rec, nil
}

func (s *service) Reconcile(ctx context.Context, verificationID string) (*domain.VerificationRecord, error) {
	res, err := s.reconciler.Reconcile(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	if !res.Outcome.NeedsCommit() {
		return res.Record, nil
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	rec, err := s.repo.ResolvePending(cctx, verificationID, res.Status, res.Reason, domain.ResolvedBySystem, time.Now().UTC())
	if errors.Is(err, domain.ErrConflict) {
		// A reviewer decided after the session's last read. Their record stands.
		s.logger.InfoContext(ctx, "automated decision superseded by reviewer", "verification_id", verificationID)
		return s.repo.ReadVerification(cctx, verificationID)
	}
	if err != nil {
		return nil, fmt.Errorf("commit verification %s: %w", verificationID, err)
	}
	s.applyOutcome(cctx, rec)
	return rec, nil
}

func (s *service) ResumePending(ctx context.Context) (int, error) {
	pending, err := s.repo.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending verifications: %w", err)
	}
	for _, rec := range pending {
		s.background(rec.VerificationID)
	}
	return len(pending), nil
}

func (s *service) Wait() { s.wg.Wait() }

type settled struct {
	rec *domain.VerificationRecord
	err error
}

// background reconciles verificationID under the service's base context,
// independent of whoever asked for it. The returned channel receives the
// outcome once.
func (s *service) background(verificationID string) <-chan settled {
	done := make(chan settled, 1)
	s.wg.Go(func() {
		rec, err := s.Reconcile(s.baseCtx, verificationID)
		done <- settled{rec: rec, err: err}
		switch {
		case err == nil, errors.Is(err, context.Canceled):
		case errors.Is(err, domain.ErrSessionActive):
			s.logger.Info("verification reconciled by another instance", "verification_id", verificationID)
		default:
			s.logger.Error("background reconciliation failed", "verification_id", verificationID, "err", err)
		}
	})
	return done
}

// applyOutcome syncs the profile flag and tells the subject. Failures are
// logged only.
func (s *service) applyOutcome(ctx context.Context, rec *domain.VerificationRecord) {
	verified := rec.Status == domain.VerificationVerified
	if s.users != nil {
		if err := s.users.SetVerified(ctx, rec.SubjectID, verified); err != nil {
			s.logger.WarnContext(ctx, "update profile verified flag",
				"verification_id", rec.VerificationID, "user_id", rec.SubjectID, "err", err)
		}
	}
	if verified {
		s.notify(ctx, rec.SubjectID, domain.NotificationVerificationVerified, "Your account has been verified.")
		return
	}
	msg := "Your verification request was not approved."
	if rec.Notes != "" {
		msg += " Reason: " + rec.Notes
	}
	s.notify(ctx, rec.SubjectID, domain.NotificationVerificationRejected, msg)
}

func (s *service) notify(ctx context.Context, userID, kind, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, kind, message); err != nil {
		s.logger.WarnContext(ctx, "notify subject", "user_id", userID, "kind", kind, "err", err)
	}
}
