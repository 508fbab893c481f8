package domain

import "time"

// User is the subset of the profile record the verification workflow reads
// and writes. Profiles are created by the external account service.
type User struct {
	UserID    string    `json:"id" dynamodbav:"user_id"`
	Email     string    `json:"email" dynamodbav:"email"`
	Phone     *string   `json:"phone" dynamodbav:"phone"`
	FirstName string    `json:"first_name" dynamodbav:"first_name"`
	Verified  bool      `json:"verified" dynamodbav:"verified"`
	Enable    int       `json:"enable" dynamodbav:"enable"`
	UpdatedAt time.Time `json:"updated" dynamodbav:"updated_at"`
}
