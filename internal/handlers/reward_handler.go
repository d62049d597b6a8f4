package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-ledger/internal/services"
	"ticket-ledger/internal/status"
)

type RewardHandler struct {
	rewards *services.RewardService
}

func NewRewardHandler(rewards *services.RewardService) *RewardHandler {
	return &RewardHandler{rewards: rewards}
}

// Generate - issue a scratch card if the caller is eligible
func (h *RewardHandler) Generate(e *core.RequestEvent) error {
	userID, err := requireAuth(e)
	if err != nil {
		return err
	}

	res, err := h.rewards.GenerateRewardIfEligible(e.Request.Context(), userID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, res)
}

func (h *RewardHandler) List(e *core.RequestEvent) error {
	userID, err := requireAuth(e)
	if err != nil {
		return err
	}

	rewards, err := h.rewards.ListRewards(e.Request.Context(), userID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, rewards)
}

func (h *RewardHandler) Reveal(e *core.RequestEvent) error {
	userID, err := requireAuth(e)
	if err != nil {
		return err
	}

	rewardID := e.Request.PathValue("rewardId")
	if rewardID == "" {
		return apis.NewBadRequestError("Reward ID required", nil)
	}

	reward, err := h.rewards.RevealReward(e.Request.Context(), userID, rewardID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, reward)
}

// Redeem - credit every revealed, unexpired reward to the caller's wallet
func (h *RewardHandler) Redeem(e *core.RequestEvent) error {
	userID, err := requireAuth(e)
	if err != nil {
		return err
	}

	res, err := h.rewards.RedeemAllRewards(e.Request.Context(), userID)
	if errors.Is(err, status.ErrNothingToRedeem) {
		return e.JSON(http.StatusConflict, map[string]any{
			"code":               status.CodeOf(err),
			"message":            err.Error(),
			"expired_reward_ids": res.ExpiredRewardIDs,
		})
	}
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, res)
}
