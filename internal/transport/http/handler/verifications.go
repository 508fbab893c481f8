package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-verify-nosql/internal/application/verification"
	"github.com/go-verify-nosql/internal/domain"
)

const maxBodyBytes = 64 << 10

// VerificationHandler handles credential verification endpoints.
type VerificationHandler struct {
	svc verification.Service
}

func NewVerificationHandler(svc verification.Service) *VerificationHandler {
	return &VerificationHandler{svc: svc}
}

// Submit creates a verification for the caller. With ?wait=true the response
// carries the final decision; otherwise it returns the pending record.
func (h *VerificationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}
	var req domain.SubmitVerificationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))

	rec, err := h.svc.Submit(r.Context(), claims.UserID, req, wait)
	if err != nil {
		httpError(w, r, err)
		return
	}
	status := http.StatusAccepted
	if rec.Status.IsTerminal() {
		status = http.StatusCreated
	}
	writeJSON(w, status, toEnvelope(rec))
}

func (h *VerificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"), claims.UserID, claims.Role)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEnvelope(rec))
}

func (h *VerificationHandler) Documents(w http.ResponseWriter, r *http.Request) {
	links, err := h.svc.Documents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentsEnvelope{Data: links})
}

func (h *VerificationHandler) Review(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}
	var req domain.ReviewVerificationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := h.svc.Review(r.Context(), chi.URLParam(r, "id"), claims.UserID, req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEnvelope(rec))
}

func toEnvelope(rec *domain.VerificationRecord) VerificationEnvelope {
	return VerificationEnvelope{Verification: rec, Decided: rec.Status.IsTerminal()}
}
