package http

import (
	"context"
	"net/http"

	"github.com/go-verify-nosql/internal/application/notification"
	"github.com/go-verify-nosql/internal/application/verification"
	"github.com/go-verify-nosql/internal/transport/http/handler"
	appmiddleware "github.com/go-verify-nosql/internal/transport/http/middleware"
)

// Deps holds everything the router needs. Services are built by the caller
// so their background work can share the server's lifetime.
type Deps struct {
	Verifications verification.Service
	Notifications notification.Service
	// Tokens verifies bearer tokens. Nil disables authentication (local dev
	// only); handlers then reject every authenticated route.
	Tokens appmiddleware.TokenVerifier
	// Metrics serves /metrics when set.
	Metrics      http.Handler
	HealthChecks map[string]handler.Check
	// BaseContext bounds helper goroutines such as the rate limiter sweep.
	BaseContext context.Context
}
