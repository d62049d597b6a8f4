package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// Wallet holds the current balance of one owner. Transactions are stored
// alongside it and are never modified once written.
type Wallet struct {
	ID        string          `db:"id" json:"id"`
	OwnerID   string          `db:"owner_id" json:"owner_id"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	CreatedAt time.Time       `db:"created" json:"created_at"`
	UpdatedAt time.Time       `db:"updated" json:"updated_at"`
}

func NewWallet(ownerID string) *Wallet {
	now := time.Now().UTC()
	return &Wallet{
		OwnerID:   ownerID,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

type Transaction struct {
	ID          string          `db:"id" json:"id"`
	WalletID    string          `db:"wallet_id" json:"wallet_id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Direction   Direction       `db:"direction" json:"direction"`
	Description string          `db:"description" json:"description"`
	CreatedAt   time.Time       `db:"created" json:"created_at"`
}

// Signed returns the amount as a balance delta.
func (t Transaction) Signed() decimal.Decimal {
	if t.Direction == DirectionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// ReplayBalance recomputes a balance from its transaction history.
func ReplayBalance(txs []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Signed())
	}
	return total
}
