package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"ticket-ledger/internal/status"
	"ticket-ledger/internal/store"
	"ticket-ledger/models"
	"ticket-ledger/monitoring"
)

// LedgerService owns wallet balances. Every mutation updates the balance and
// appends exactly one transaction in the same store transaction.
type LedgerService struct {
	store         store.Store
	platformOwner string
	monitor       *monitoring.Monitor
}

func NewLedgerService(st store.Store, platformOwner string, monitor *monitoring.Monitor) *LedgerService {
	return &LedgerService{
		store:         st,
		platformOwner: platformOwner,
		monitor:       monitor,
	}
}

// InTx returns a ledger that runs its operations inside tx instead of opening
// its own transaction. The bound ledger records no metrics since tx may still
// roll back; the caller reports the outcome once it commits.
func (s *LedgerService) InTx(tx store.Store) *LedgerService {
	return &LedgerService{store: tx, platformOwner: s.platformOwner}
}

// PlatformOwner is the owner id of the platform wallet that funds rewards.
func (s *LedgerService) PlatformOwner() string {
	return s.platformOwner
}

type TransferResult struct {
	FromBalance decimal.Decimal `json:"from_balance"`
	ToBalance   decimal.Decimal `json:"to_balance"`
}

func (s *LedgerService) GetBalance(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	w, err := s.store.GetWalletByOwner(ctx, ownerID)
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

// OpenWallet returns the owner's wallet, creating an empty one if needed.
func (s *LedgerService) OpenWallet(ctx context.Context, ownerID string) (*models.Wallet, error) {
	var wallet *models.Wallet
	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		w, err := tx.GetWalletByOwner(ctx, ownerID)
		if err == nil {
			wallet = w
			return nil
		}
		if !errors.Is(err, status.ErrWalletNotFound) {
			return err
		}

		w = models.NewWallet(ownerID)
		if err := tx.CreateWallet(ctx, w); err != nil {
			return err
		}
		slog.Info("wallet opened", "owner_id", ownerID, "wallet_id", w.ID)
		wallet = w
		return nil
	})
	s.monitor.TrackLedgerOperation("open", err)
	return wallet, err
}

func (s *LedgerService) Credit(ctx context.Context, ownerID string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		w, err := apply(ctx, tx, ownerID, amount, models.DirectionCredit, description)
		if err != nil {
			return err
		}
		balance = w.Balance
		return nil
	})
	s.monitor.TrackLedgerOperation("credit", err)
	return balance, err
}

func (s *LedgerService) Debit(ctx context.Context, ownerID string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		w, err := apply(ctx, tx, ownerID, amount, models.DirectionDebit, description)
		if err != nil {
			return err
		}
		balance = w.Balance
		return nil
	})
	s.monitor.TrackLedgerOperation("debit", err)
	return balance, err
}

// Transfer debits from and credits to. Neither side is applied unless both succeed.
func (s *LedgerService) Transfer(ctx context.Context, fromOwner, toOwner string, amount decimal.Decimal, description string) (TransferResult, error) {
	var res TransferResult
	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		from, err := apply(ctx, tx, fromOwner, amount, models.DirectionDebit, description)
		if err != nil {
			return fmt.Errorf("transfer debit %s: %w", fromOwner, err)
		}
		to, err := apply(ctx, tx, toOwner, amount, models.DirectionCredit, description)
		if err != nil {
			return fmt.Errorf("transfer credit %s: %w", toOwner, err)
		}
		res = TransferResult{FromBalance: from.Balance, ToBalance: to.Balance}
		return nil
	})
	s.monitor.TrackLedgerOperation("transfer", err)
	return res, err
}

// DrainToExternal empties the wallet into an out-of-system destination and
// returns the amount drained. An empty wallet is left untouched.
func (s *LedgerService) DrainToExternal(ctx context.Context, ownerID, destination string) (decimal.Decimal, error) {
	var drained decimal.Decimal
	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		w, err := tx.GetWalletByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		if !w.Balance.IsPositive() {
			drained = decimal.Zero
			return nil
		}

		drained = w.Balance
		_, err = apply(ctx, tx, ownerID, drained, models.DirectionDebit, "withdrawal to "+destination)
		return err
	})
	s.monitor.TrackLedgerOperation("drain", err)
	return drained, err
}

// History returns the wallet's transactions, oldest first.
func (s *LedgerService) History(ctx context.Context, ownerID string) ([]models.Transaction, error) {
	w, err := s.store.GetWalletByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, w.ID)
}

func apply(ctx context.Context, tx store.Store, ownerID string, amount decimal.Decimal, dir models.Direction, description string) (*models.Wallet, error) {
	if !amount.IsPositive() {
		return nil, status.ErrInvalidAmount
	}

	w, err := tx.GetWalletByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	switch dir {
	case models.DirectionCredit:
		w.Balance = w.Balance.Add(amount)
	case models.DirectionDebit:
		if w.Balance.LessThan(amount) {
			return nil, status.ErrInsufficientFunds
		}
		w.Balance = w.Balance.Sub(amount)
	default:
		return nil, fmt.Errorf("unknown direction %q", dir)
	}

	if err := tx.UpdateWalletBalance(ctx, w); err != nil {
		return nil, err
	}
	if err := tx.AppendTransaction(ctx, &models.Transaction{
		WalletID:    w.ID,
		Amount:      amount,
		Direction:   dir,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	return w, nil
}
