package domain

import "time"

// Notification kinds emitted by the verification workflow.
const (
	NotificationVerificationSubmitted = "verification_submitted"
	NotificationVerificationVerified  = "verification_verified"
	NotificationVerificationRejected  = "verification_rejected"
)

type Notification struct {
	NotificationID string    `json:"id" dynamodbav:"notification_id"`
	UserID         string    `json:"user_id" dynamodbav:"user_id"`
	Kind           string    `json:"kind" dynamodbav:"kind"`
	Message        string    `json:"message" dynamodbav:"message"`
	Read           int       `json:"read" dynamodbav:"read"` // 0 = unread, 1 = read; numeric so the GSI filter stays cheap
	CreatedAt      time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time `json:"updated" dynamodbav:"updated_at"`
}
