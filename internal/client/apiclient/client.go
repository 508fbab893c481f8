// Package apiclient talks to the verification HTTP API on behalf of a
// subject.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/go-verify-nosql/internal/domain"
)

// StatusError is a non-2xx API response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api responded %d", e.Code)
	}
	return fmt.Sprintf("api responded %d: %s", e.Code, e.Message)
}

// Unwrap maps well-known codes onto domain sentinels.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusConflict:
		return domain.ErrConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.ErrBadRequest
	}
	return nil
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New builds a client for baseURL (e.g. "https://api.example.com") that
// authenticates with the given bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

type verificationEnvelope struct {
	Verification *domain.VerificationRecord `json:"verification"`
}

type notificationsEnvelope struct {
	Data []domain.Notification `json:"data"`
}

// Submit creates a verification. With wait set the call blocks until the
// server has a decision.
func (c *Client) Submit(ctx context.Context, req domain.SubmitVerificationRequest, wait bool) (*domain.VerificationRecord, error) {
	path := "/v1/verifications"
	if wait {
		path += "?wait=true"
	}
	var env verificationEnvelope
	if err := c.do(ctx, http.MethodPost, path, req, &env); err != nil {
		return nil, err
	}
	return env.Verification, nil
}

func (c *Client) Get(ctx context.Context, verificationID string) (*domain.VerificationRecord, error) {
	var env verificationEnvelope
	if err := c.do(ctx, http.MethodGet, "/v1/verifications/"+url.PathEscape(verificationID), nil, &env); err != nil {
		return nil, err
	}
	if env.Verification == nil {
		return nil, fmt.Errorf("empty verification response")
	}
	return env.Verification, nil
}

// ReadStatus satisfies poller.StatusReader.
func (c *Client) ReadStatus(ctx context.Context, verificationID string) (domain.VerificationStatus, error) {
	rec, err := c.Get(ctx, verificationID)
	if err != nil {
		return "", err
	}
	return rec.Status, nil
}

func (c *Client) ListUnread(ctx context.Context) ([]domain.Notification, error) {
	var env notificationsEnvelope
	if err := c.do(ctx, http.MethodGet, "/v1/notifications", nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (c *Client) MarkRead(ctx context.Context, notificationID string) error {
	return c.do(ctx, http.MethodPut, "/v1/notifications/"+url.PathEscape(notificationID), nil, nil)
}

// MarkAllRead marks every unread notification as read and returns how many
// were marked. It stops at the first failure.
func (c *Client) MarkAllRead(ctx context.Context) (int, error) {
	unread, err := c.ListUnread(ctx)
	if err != nil {
		return 0, err
	}
	for i, n := range unread {
		if err := c.MarkRead(ctx, n.NotificationID); err != nil {
			return i, fmt.Errorf("mark notification %s: %w", n.NotificationID, err)
		}
	}
	return len(unread), nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&msg)
		return &StatusError{Code: resp.StatusCode, Message: msg.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
