package notification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/go-verify-nosql/internal/domain"
	"github.com/go-verify-nosql/internal/infrastructure/metrics"
)

// --- mocks ---

type mockNotificationStore struct{ mock.Mock }

func (m *mockNotificationStore) Put(ctx context.Context, n *domain.Notification) error {
	return m.Called(ctx, n).Error(0)
}
func (m *mockNotificationStore) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	args := m.Called(ctx, notificationID)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockNotificationStore) ListUnread(ctx context.Context, userID string) ([]domain.Notification, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Notification), args.Error(1)
}
func (m *mockNotificationStore) MarkAsRead(ctx context.Context, notificationID string) (*domain.Notification, error) {
	args := m.Called(ctx, notificationID)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSMS struct{ mock.Mock }

func (m *mockSMS) SendSMS(ctx context.Context, to, message string) error {
	return m.Called(ctx, to, message).Error(0)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(ctx context.Context, to, subject, body string) error {
	return m.Called(ctx, to, subject, body).Error(0)
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func strPtr(s string) *string { return &s }

// --- Notify ---

func TestNotify_StoresAndDelivers(t *testing.T) {
	repo := &mockNotificationStore{}
	repo.On("Put", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.UserID == "u1" && n.Kind == domain.NotificationVerificationVerified && n.Read == 0 && n.NotificationID != ""
	})).Return(nil)
	users := &mockUserStore{}
	users.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", Email: "a@b.org", Phone: strPtr("+15550100")}, nil)
	sms := &mockSMS{}
	sms.On("SendSMS", mock.Anything, "+15550100", "verified!").Return(nil)
	mail := &mockMailer{}
	mail.On("SendEmail", mock.Anything, "a@b.org", "Your account is verified", "verified!").Return(nil)

	svc := NewService(ServiceDeps{Repo: repo, Users: users, SMS: sms, Mailer: mail, Logger: quietLogger()})
	err := svc.Notify(context.Background(), "u1", domain.NotificationVerificationVerified, "verified!")

	require.NoError(t, err)
	repo.AssertExpectations(t)
	sms.AssertExpectations(t)
	mail.AssertExpectations(t)
}

func TestNotify_ChannelFailuresAreSwallowed(t *testing.T) {
	repo := &mockNotificationStore{}
	repo.On("Put", mock.Anything, mock.Anything).Return(nil)
	users := &mockUserStore{}
	users.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", Email: "a@b.org", Phone: strPtr("+15550100")}, nil)
	sms := &mockSMS{}
	sms.On("SendSMS", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("throttled"))
	mail := &mockMailer{}
	mail.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("dial tcp: refused"))
	m := metrics.New(prometheus.NewRegistry())

	svc := NewService(ServiceDeps{Repo: repo, Users: users, SMS: sms, Mailer: mail, Logger: quietLogger(), Metrics: m})
	err := svc.Notify(context.Background(), "u1", domain.NotificationVerificationRejected, "rejected")

	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.NotifyFailures.WithLabelValues("sms")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.NotifyFailures.WithLabelValues("email")))
}

func TestNotify_NoPhoneSkipsSMS(t *testing.T) {
	repo := &mockNotificationStore{}
	repo.On("Put", mock.Anything, mock.Anything).Return(nil)
	users := &mockUserStore{}
	users.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", Email: "a@b.org"}, nil)
	sms := &mockSMS{}
	mail := &mockMailer{}
	mail.On("SendEmail", mock.Anything, "a@b.org", mock.Anything, mock.Anything).Return(nil)

	svc := NewService(ServiceDeps{Repo: repo, Users: users, SMS: sms, Mailer: mail, Logger: quietLogger()})
	require.NoError(t, svc.Notify(context.Background(), "u1", domain.NotificationVerificationSubmitted, "received"))

	sms.AssertNotCalled(t, "SendSMS", mock.Anything, mock.Anything, mock.Anything)
}

func TestNotify_UnknownProfileStillStored(t *testing.T) {
	repo := &mockNotificationStore{}
	repo.On("Put", mock.Anything, mock.Anything).Return(nil)
	users := &mockUserStore{}
	users.On("Get", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)
	mail := &mockMailer{}

	svc := NewService(ServiceDeps{Repo: repo, Users: users, Mailer: mail, Logger: quietLogger()})
	require.NoError(t, svc.Notify(context.Background(), "ghost", domain.NotificationVerificationVerified, "ok"))

	repo.AssertExpectations(t)
	mail.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestNotify_StoreFailure(t *testing.T) {
	repo := &mockNotificationStore{}
	repo.On("Put", mock.Anything, mock.Anything).Return(errors.New("dynamo down"))

	svc := NewService(ServiceDeps{Repo: repo, Logger: quietLogger()})
	err := svc.Notify(context.Background(), "u1", domain.NotificationVerificationVerified, "ok")

	assert.ErrorContains(t, err, "store notification")
}

// --- MarkAsRead ---

func TestMarkAsRead_Forbidden(t *testing.T) {
	repo := &mockNotificationStore{}
	repo.On("Get", mock.Anything, "n1").Return(&domain.Notification{NotificationID: "n1", UserID: "owner"}, nil)

	svc := NewService(ServiceDeps{Repo: repo})
	_, err := svc.MarkAsRead(context.Background(), "n1", "intruder")

	assert.ErrorIs(t, err, domain.ErrForbidden)
	repo.AssertNotCalled(t, "MarkAsRead", mock.Anything, mock.Anything)
}

func TestMarkAsRead_Owner(t *testing.T) {
	repo := &mockNotificationStore{}
	repo.On("Get", mock.Anything, "n1").Return(&domain.Notification{NotificationID: "n1", UserID: "owner"}, nil)
	repo.On("MarkAsRead", mock.Anything, "n1").Return(&domain.Notification{NotificationID: "n1", UserID: "owner", Read: 1}, nil)

	svc := NewService(ServiceDeps{Repo: repo})
	n, err := svc.MarkAsRead(context.Background(), "n1", "owner")

	require.NoError(t, err)
	assert.Equal(t, 1, n.Read)
}

func TestMarkAsRead_NotFound(t *testing.T) {
	repo := &mockNotificationStore{}
	repo.On("Get", mock.Anything, "n1").Return(nil, domain.ErrNotFound)

	svc := NewService(ServiceDeps{Repo: repo})
	_, err := svc.MarkAsRead(context.Background(), "n1", "owner")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListUnread(t *testing.T) {
	repo := &mockNotificationStore{}
	repo.On("ListUnread", mock.Anything, "u1").Return([]domain.Notification{{NotificationID: "n1"}}, nil)

	svc := NewService(ServiceDeps{Repo: repo})
	got, err := svc.ListUnread(context.Background(), "u1")

	require.NoError(t, err)
	assert.Len(t, got, 1)
}
