package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"ticket-ledger/config"
	"ticket-ledger/internal/status"
	"ticket-ledger/internal/store"
	"ticket-ledger/models"
	"ticket-ledger/monitoring"
)

// Reasons a reward was not issued.
const (
	RejectUserNotFound         = "user-not-found"
	RejectRateLimited          = "rate-limited"
	RejectInsufficientBookings = "insufficient-bookings"
)

// RandomSource draws the reward outcome.
type RandomSource interface {
	Float64() float64
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) IntN(n int) int   { return rand.IntN(n) }

type RewardConfig struct {
	// Cooldown is both the minimum time between two rewards and the window bookings are counted in.
	Cooldown       time.Duration
	MinBookings    int
	WinProbability float64
	MaxAmount      int
	TTL            time.Duration
}

func NewRewardConfig(cfg *config.Config) RewardConfig {
	return RewardConfig{
		Cooldown:       cfg.RewardCooldown,
		MinBookings:    cfg.RewardMinBookings,
		WinProbability: cfg.RewardWinProbability,
		MaxAmount:      cfg.RewardMaxAmount,
		TTL:            cfg.RewardTTL,
	}
}

type GenerateResult struct {
	Issued bool           `json:"issued"`
	Reward *models.Reward `json:"reward,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

type RedeemResult struct {
	RedeemedAmount    decimal.Decimal `json:"redeemed_amount"`
	RedeemedRewardIDs []string        `json:"redeemed_reward_ids"`
	ExpiredRewardIDs  []string        `json:"expired_reward_ids"`
	Balance           decimal.Decimal `json:"balance"`
}

type RewardService struct {
	store    store.Store
	ledger   *LedgerService
	notifier UserNotifier
	monitor  *monitoring.Monitor
	cfg      RewardConfig
	rand     RandomSource
	now      func() time.Time
}

func NewRewardService(st store.Store, ledger *LedgerService, notifier UserNotifier, cfg RewardConfig, monitor *monitoring.Monitor) *RewardService {
	return &RewardService{
		store:    st,
		ledger:   ledger,
		notifier: notifier,
		monitor:  monitor,
		cfg:      cfg,
		rand:     globalRand{},
		now:      time.Now,
	}
}

// GenerateRewardIfEligible issues at most one reward per cooldown window.
// Rejections are reported in the result, not as errors.
func (s *RewardService) GenerateRewardIfEligible(ctx context.Context, userID string) (GenerateResult, error) {
	now := s.now().UTC()
	since := now.Add(-s.cfg.Cooldown)

	var res GenerateResult
	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		res = GenerateResult{}

		user, err := tx.GetUser(ctx, userID)
		if errors.Is(err, status.ErrUserNotFound) {
			res.Reason = RejectUserNotFound
			return nil
		}
		if err != nil {
			return err
		}

		if !user.LastRewardDate.IsZero() && user.LastRewardDate.After(since) {
			res.Reason = RejectRateLimited
			return nil
		}

		count, err := tx.CountUserBookingsSince(ctx, userID, since)
		if err != nil {
			return err
		}
		if count < s.cfg.MinBookings {
			res.Reason = RejectInsufficientBookings
			return nil
		}

		reward := s.draw(userID, now)
		if err := tx.CreateReward(ctx, reward); err != nil {
			return fmt.Errorf("create reward: %w", err)
		}

		user.LastRewardDate = now
		if err := tx.UpdateUser(ctx, user); err != nil {
			return fmt.Errorf("update last reward date: %w", err)
		}

		res = GenerateResult{Issued: true, Reward: reward}
		return nil
	})
	if err != nil {
		s.monitor.TrackReward("error")
		return GenerateResult{}, err
	}

	if !res.Issued {
		s.monitor.TrackReward(res.Reason)
		slog.Info("reward not issued", "user_id", userID, "reason", res.Reason)
		return res, nil
	}

	s.monitor.TrackReward(string(res.Reward.Type))
	s.notifier.Notify(ctx, Notification{
		Category: CategoryReward,
		Title:    "You have a new scratch card",
		Body:     "Reveal it before it expires.",
		UserID:   userID,
		Data:     map[string]any{"reward_id": res.Reward.ID, "expires_at": res.Reward.ExpiresAt},
	})
	return res, nil
}

func (s *RewardService) draw(userID string, now time.Time) *models.Reward {
	reward := &models.Reward{
		UserID:    userID,
		Type:      models.RewardLose,
		Amount:    decimal.Zero,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	if s.rand.Float64() < s.cfg.WinProbability {
		reward.Type = models.RewardWin
		reward.Amount = decimal.NewFromInt(int64(s.rand.IntN(max(s.cfg.MaxAmount, 1)) + 1))
	}
	return reward
}

// RevealReward marks the reward as seen by its owner.
func (s *RewardService) RevealReward(ctx context.Context, userID, rewardID string) (*models.Reward, error) {
	now := s.now().UTC()

	var reward *models.Reward
	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		r, err := tx.GetReward(ctx, rewardID)
		if err != nil {
			return err
		}
		if r.UserID != userID {
			return status.ErrRewardNotFound
		}
		reward = r

		if r.IsRevealed || r.IsRedeemed {
			return nil
		}
		if r.IsExpired(now) {
			return status.ErrRewardExpired
		}

		r.IsRevealed = true
		return tx.UpdateReward(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	return reward, nil
}

// RewardListing is a reward as shown to its owner, with its state at listing time.
type RewardListing struct {
	models.Reward
	State models.RewardState `json:"state"`
}

func (s *RewardService) ListRewards(ctx context.Context, userID string) ([]RewardListing, error) {
	rewards, err := s.store.ListRewards(ctx, store.RewardFilter{UserID: userID})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	out := make([]RewardListing, 0, len(rewards))
	for i := range rewards {
		out = append(out, RewardListing{Reward: rewards[i], State: rewards[i].State(now)})
	}
	return out, nil
}

// RedeemAllRewards moves the value of every revealed, unexpired, unredeemed
// reward from the platform wallet into the user's wallet. When nothing is
// redeemable the result still lists the expired rewards and the error is
// status.ErrNothingToRedeem.
func (s *RewardService) RedeemAllRewards(ctx context.Context, userID string) (RedeemResult, error) {
	now := s.now().UTC()

	var res RedeemResult
	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		res = RedeemResult{RedeemedAmount: decimal.Zero}

		rewards, err := tx.ListRewards(ctx, store.RewardFilter{
			UserID:   userID,
			Revealed: store.Bool(true),
			Redeemed: store.Bool(false),
		})
		if err != nil {
			return err
		}

		total := decimal.Zero
		for _, r := range rewards {
			if r.IsExpired(now) {
				res.ExpiredRewardIDs = append(res.ExpiredRewardIDs, r.ID)
				continue
			}
			res.RedeemedRewardIDs = append(res.RedeemedRewardIDs, r.ID)
			total = total.Add(r.Amount)
		}
		if len(res.RedeemedRewardIDs) == 0 {
			return status.ErrNothingToRedeem
		}

		ledger := s.ledger.InTx(tx)
		if total.IsPositive() {
			if _, err := ledger.Debit(ctx, ledger.PlatformOwner(), total, "reward redemption for "+userID); err != nil {
				if errors.Is(err, status.ErrInsufficientFunds) {
					return status.ErrInsufficientPlatformFunds
				}
				return fmt.Errorf("debit platform wallet: %w", err)
			}
			if _, err := ledger.OpenWallet(ctx, userID); err != nil {
				return err
			}
			balance, err := ledger.Credit(ctx, userID, total, "reward redemption")
			if err != nil {
				return fmt.Errorf("credit user wallet: %w", err)
			}
			res.Balance = balance
		} else {
			balance, err := ledger.GetBalance(ctx, userID)
			if err != nil && !errors.Is(err, status.ErrWalletNotFound) {
				return err
			}
			res.Balance = balance
		}

		if err := tx.MarkRewardsRedeemed(ctx, res.RedeemedRewardIDs); err != nil {
			return err
		}
		res.RedeemedAmount = total
		return nil
	})
	if err != nil {
		res.RedeemedRewardIDs = nil
		res.RedeemedAmount = decimal.Zero
		res.Balance = decimal.Zero
		return res, err
	}

	s.monitor.TrackRedemption(res.RedeemedAmount)
	slog.Info("rewards redeemed", "user_id", userID, "amount", res.RedeemedAmount.String(), "count", len(res.RedeemedRewardIDs))
	s.notifier.Notify(ctx, Notification{
		Category: CategoryWallet,
		Title:    "Rewards redeemed",
		Body:     fmt.Sprintf("%s has been added to your wallet.", res.RedeemedAmount.StringFixed(2)),
		UserID:   userID,
		Data:     map[string]any{"amount": res.RedeemedAmount.String(), "expired_reward_ids": res.ExpiredRewardIDs},
	})
	return res, nil
}
