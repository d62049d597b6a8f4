package models

import "time"

const TokenPurposeFeedback = "feedback"

// Token is a single-use credential. Value is only known to the recipient and
// is never persisted.
type Token struct {
	Value     string    `json:"-"`
	Purpose   string    `json:"purpose"`
	SubjectID string    `json:"subject_id"`
	UserID    string    `json:"user_id"`
	Used      bool      `json:"used"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (t *Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
