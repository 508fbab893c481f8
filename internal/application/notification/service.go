package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-verify-nosql/internal/domain"
	"github.com/go-verify-nosql/internal/infrastructure/metrics"
	"github.com/go-verify-nosql/internal/pkg/id"
)

type Service interface {
	// Notify stores an in-app notification for userID and pushes it over SMS
	// and email when the profile has those channels. Only the in-app write
	// is reported; channel failures are logged.
	Notify(ctx context.Context, userID, kind, message string) error
	ListUnread(ctx context.Context, userID string) ([]domain.Notification, error)
	MarkAsRead(ctx context.Context, notificationID, userID string) (*domain.Notification, error)
}

type notificationStore interface {
	Put(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	ListUnread(ctx context.Context, userID string) ([]domain.Notification, error)
	MarkAsRead(ctx context.Context, notificationID string) (*domain.Notification, error)
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type service struct {
	repo    notificationStore
	users   userStore
	sms     smsSender
	mailer  mailer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// ServiceDeps wires the notification service. Users, SMS and Mailer are
// optional; without them only the in-app record is written.
type ServiceDeps struct {
	Repo    notificationStore
	Users   userStore
	SMS     smsSender
	Mailer  mailer
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func NewService(deps ServiceDeps) Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		repo:    deps.Repo,
		users:   deps.Users,
		sms:     deps.SMS,
		mailer:  deps.Mailer,
		logger:  logger,
		metrics: deps.Metrics,
	}
}

var subjects = map[string]string{
	domain.NotificationVerificationSubmitted: "We received your verification request",
	domain.NotificationVerificationVerified:  "Your account is verified",
	domain.NotificationVerificationRejected:  "Your verification was not approved",
}

func (s *service) Notify(ctx context.Context, userID, kind, message string) error {
	now := time.Now().UTC()
	n := &domain.Notification{
		NotificationID: id.New(),
		UserID:         userID,
		Kind:           kind,
		Message:        message,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Put(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	s.deliver(ctx, userID, kind, message)
	return nil
}

func (s *service) deliver(ctx context.Context, userID, kind, message string) {
	if s.users == nil || (s.sms == nil && s.mailer == nil) {
		return
	}
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "load profile for notification", "user_id", userID, "err", err)
		}
		return
	}

	if s.sms != nil && u.Phone != nil && *u.Phone != "" {
		if err := s.sms.SendSMS(ctx, *u.Phone, message); err != nil {
			s.failed(ctx, "sms", userID, err)
		}
	}
	if s.mailer != nil && u.Email != "" {
		subject, ok := subjects[kind]
		if !ok {
			subject = "Account update"
		}
		if err := s.mailer.SendEmail(ctx, u.Email, subject, message); err != nil {
			s.failed(ctx, "email", userID, err)
		}
	}
}

func (s *service) failed(ctx context.Context, channel, userID string, err error) {
	s.logger.WarnContext(ctx, "notification delivery failed", "channel", channel, "user_id", userID, "err", err)
	if s.metrics != nil {
		s.metrics.IncNotifyFailure(channel)
	}
}

func (s *service) ListUnread(ctx context.Context, userID string) ([]domain.Notification, error) {
	return s.repo.ListUnread(ctx, userID)
}

func (s *service) MarkAsRead(ctx context.Context, notificationID, userID string) (*domain.Notification, error) {
	n, err := s.repo.Get(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, fmt.Errorf("forbidden: %w", domain.ErrForbidden)
	}
	return s.repo.MarkAsRead(ctx, notificationID)
}
