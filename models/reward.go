package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RewardType string

const (
	RewardWin  RewardType = "win"
	RewardLose RewardType = "lose"
)

type RewardState string

const (
	RewardIssued   RewardState = "issued"
	RewardRevealed RewardState = "revealed"
	RewardRedeemed RewardState = "redeemed"
	RewardExpired  RewardState = "expired"
)

type Reward struct {
	ID         string          `db:"id" json:"id"`
	UserID     string          `db:"user_id" json:"user_id"`
	Type       RewardType      `db:"type" json:"type"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	IsRevealed bool            `db:"is_revealed" json:"is_revealed"`
	IsRedeemed bool            `db:"is_redeemed" json:"is_redeemed"`
	IssuedAt   time.Time       `db:"issued_at" json:"issued_at"`
	ExpiresAt  time.Time       `db:"expires_at" json:"expires_at"`
}

// IsExpired reports whether the reward expired before now. A zero ExpiresAt never expires.
func (r *Reward) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && r.ExpiresAt.Before(now)
}

func (r *Reward) State(now time.Time) RewardState {
	switch {
	case r.IsRedeemed:
		return RewardRedeemed
	case r.IsExpired(now):
		return RewardExpired
	case r.IsRevealed:
		return RewardRevealed
	default:
		return RewardIssued
	}
}
