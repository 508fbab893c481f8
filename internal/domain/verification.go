package domain

import "time"

// VerificationStatus is the lifecycle state of a credential submission.
type VerificationStatus string

const (
	VerificationNone     VerificationStatus = "none" // pre-submission; never written by the engine
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

// IsTerminal reports whether s is a final decision.
func (s VerificationStatus) IsTerminal() bool {
	return s == VerificationVerified || s == VerificationRejected
}

// Valid reports whether s is one of the known statuses.
func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationNone, VerificationPending, VerificationVerified, VerificationRejected:
		return true
	}
	return false
}

// ResolvedBySystem marks decisions committed by the reconciliation engine.
const ResolvedBySystem = "system"

// VerificationRecord tracks one user's credential submission.
// PK: verification_id. GSI status-submitted_at-index lists pending records.
type VerificationRecord struct {
	VerificationID   string             `json:"id" dynamodbav:"verification_id"`
	SubjectID        string             `json:"subject_id" dynamodbav:"subject_id"`
	Status           VerificationStatus `json:"status" dynamodbav:"status"`
	SubmittedEmail   string             `json:"submitted_email" dynamodbav:"submitted_email"`
	SubmittedWebsite string             `json:"submitted_website" dynamodbav:"submitted_website"`
	DocumentRefs     []string           `json:"document_refs" dynamodbav:"document_refs"`
	Notes            string             `json:"notes" dynamodbav:"notes"`
	ResolvedBy       string             `json:"resolved_by,omitempty" dynamodbav:"resolved_by,omitempty"`
	SubmittedAt      time.Time          `json:"submitted" dynamodbav:"submitted_at"`
	ResolvedAt       *time.Time         `json:"resolved_at" dynamodbav:"resolved_at"`
	UpdatedAt        time.Time          `json:"updated" dynamodbav:"updated_at"`
}

type SubmitVerificationRequest struct {
	Email        string   `json:"email" validate:"required,email"`
	Website      string   `json:"website" validate:"omitempty,max=2048"`
	DocumentRefs []string `json:"document_refs" validate:"max=20,dive,required,max=512"`
}

type ReviewVerificationRequest struct {
	Status VerificationStatus `json:"status" validate:"required,oneof=verified rejected"`
	Notes  string             `json:"notes" validate:"max=2000"`
}
