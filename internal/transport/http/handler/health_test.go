package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func healthReq(action string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/v1/health-check/"+action, nil)
	return withChiParam(r, "action", action)
}

func TestPing_UnknownAction(t *testing.T) {
	h := NewHealthHandler(nil)
	rr := httptest.NewRecorder()
	h.Ping(rr, healthReq("reboot"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPing_Pong(t *testing.T) {
	h := NewHealthHandler(nil)
	rr := httptest.NewRecorder()
	h.Ping(rr, healthReq("ping"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "pong")
}

func TestReady(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp") }

	rr := httptest.NewRecorder()
	NewHealthHandler(map[string]Check{"dynamodb": ok}).Ping(rr, healthReq("ready"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	NewHealthHandler(map[string]Check{"dynamodb": ok, "redis": down}).Ping(rr, healthReq("ready"))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "redis unavailable")
}
