package domain

import (
	"strings"
	"time"
)

// RegistrationPayloadVersion is bumped whenever RegistrationPayload changes shape.
const RegistrationPayloadVersion = 1

// RegistrationPayload is the prepared, not yet persisted account.
// It is validated once at issuance and passed through untouched on confirmation.
type RegistrationPayload struct {
	Version       int          `json:"version" dynamodbav:"version"`
	Email         string       `json:"email" dynamodbav:"email"`
	DisplayName   string       `json:"display_name" dynamodbav:"display_name"`
	PasswordHash  string       `json:"-" dynamodbav:"password_hash"`
	Tier          string       `json:"tier" dynamodbav:"tier"`
	QuotaLimit    int          `json:"quota_limit" dynamodbav:"quota_limit"`
	Capabilities  Capabilities `json:"capabilities" dynamodbav:"capabilities"`
	PromotionCode string       `json:"promotion_code,omitempty" dynamodbav:"promotion_code"`
}

// PendingRegistration is an unconfirmed sign-up keyed by normalized email.
// ExpiresAt bounds the current code; EvictAt bounds the record itself and is
// fixed at creation.
type PendingRegistration struct {
	Email     string              `json:"email" dynamodbav:"email"`
	Code      string              `json:"-" dynamodbav:"code"`
	ExpiresAt time.Time           `json:"expires_at" dynamodbav:"expires_at"`
	Attempts  int                 `json:"attempts" dynamodbav:"attempts"`
	EvictAt   int64               `json:"evict_at" dynamodbav:"evict_at"` // TTL (Unix seconds)
	Revision  int64               `json:"-" dynamodbav:"revision"`
	Payload   RegistrationPayload `json:"payload" dynamodbav:"payload"`
	CreatedAt time.Time           `json:"created" dynamodbav:"created_at"`
}

// NormalizeEmail is the key form used for pending registrations and accounts.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Mutation tells a registration store what to do with a record after a MutateFunc ran.
type Mutation int

const (
	MutationKeep Mutation = iota
	MutationSave
	MutationDelete
)

// MutateFunc inspects and may modify a pending registration. The store commits
// the returned Mutation atomically for that email and then returns the error.
type MutateFunc func(p *PendingRegistration) (Mutation, error)
