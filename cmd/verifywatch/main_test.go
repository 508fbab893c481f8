package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-verify-nosql/internal/client/poller"
	"github.com/go-verify-nosql/internal/domain"
)

func TestRunCommandRouting(t *testing.T) {
	var out bytes.Buffer
	require.Error(t, run(context.Background(), nil, &out))
	assert.Contains(t, out.String(), "verifywatch commands")

	out.Reset()
	require.Error(t, run(context.Background(), []string{"unknown"}, &out))
	assert.Contains(t, out.String(), "verifywatch commands")
}

func TestRunRequiresArguments(t *testing.T) {
	var out bytes.Buffer
	assert.ErrorContains(t, run(context.Background(), []string{"watch", "--api", "http://x"}, &out), "id required")
	assert.ErrorContains(t, run(context.Background(), []string{"submit", "--api", "http://x"}, &out), "email required")
	assert.ErrorContains(t, run(context.Background(), []string{"watch", "--id", "v1", "--api", ""}, &out), "API base URL")
}

type fakeClient struct {
	mu     sync.Mutex
	status domain.VerificationStatus
	marked int
}

func (f *fakeClient) ReadStatus(context.Context, string) (domain.VerificationStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

func (f *fakeClient) MarkAllRead(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked++
	return 2, nil
}

func (f *fakeClient) set(s domain.VerificationStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
}

func TestWatch_VerifiedClearsNotifications(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := &fakeClient{status: domain.VerificationPending}
		var out bytes.Buffer
		cfg := poller.Config{Countdown: 120 * time.Second, PollInterval: 15 * time.Second}

		go func() {
			time.Sleep(50 * time.Second)
			c.set(domain.VerificationVerified)
		}()
		err := watch(context.Background(), c, "v1", cfg, &out)

		require.NoError(t, err)
		assert.Equal(t, 1, c.marked)
		text := out.String()
		assert.Contains(t, text, "status=pending remaining=2m0s")
		assert.Contains(t, text, "remaining=1m30s")
		assert.Contains(t, text, "cleared 2 notification(s)")
		assert.True(t, strings.HasSuffix(text, "verified\n"))
	})
}

func TestWatch_Rejected(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := &fakeClient{status: domain.VerificationRejected}
		var out bytes.Buffer
		err := watch(context.Background(), c, "v1", poller.Config{Countdown: time.Minute, PollInterval: 15 * time.Second}, &out)

		assert.ErrorContains(t, err, "rejected")
		assert.Zero(t, c.marked)
	})
}

func TestWatch_Interrupted(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := &fakeClient{status: domain.VerificationPending}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		err := watch(ctx, c, "v1", poller.Config{Countdown: time.Minute, PollInterval: 15 * time.Second}, &bytes.Buffer{})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestSubmit_AgainstAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/verifications":
			var req domain.SubmitVerificationRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			assert.Equal(t, []string{"a.pdf", "b.pdf"}, req.DocumentRefs)
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(map[string]any{"verification": map[string]any{"id": "v1", "status": "pending"}})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/verifications/v1":
			_ = json.NewEncoder(w).Encode(map[string]any{"verification": map[string]any{"id": "v1", "status": "verified"}})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/notifications":
			_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := run(context.Background(), []string{
		"submit", "--api", srv.URL, "--token", "t",
		"--email", "jane@gmail.com", "--doc", "a.pdf", "--doc", "b.pdf",
	}, &out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "submitted v1 (pending)")
	assert.Contains(t, out.String(), "verified")
}
