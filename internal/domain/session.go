package domain

import "time"

// Session is one backend login. The signed credential carries only its ID, so
// disabling the record revokes the credential.
type Session struct {
	SessionID string    `json:"id" dynamodbav:"session_id"`
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	Enable    bool      `json:"enable" dynamodbav:"enable"`
	ExpiresAt int64     `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated" dynamodbav:"updated_at"`
	User      *User     `json:"user,omitempty" dynamodbav:"-"`
}

// Active reports whether s may still authenticate requests at now.
func (s *Session) Active(now time.Time) bool {
	return s.Enable && now.Unix() <= s.ExpiresAt
}

// Credential is a signed session token together with its expiry.
type Credential struct {
	Token     string
	ExpiresAt time.Time
	Session   *Session
}
