package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/Resonant-Projects/parkpick/app/models"
	"github.com/Resonant-Projects/parkpick/app/repository"
	"github.com/Resonant-Projects/parkpick/internal/pkg/entitlements"
	"github.com/Resonant-Projects/parkpick/internal/pkg/statistics"
	"github.com/Resonant-Projects/parkpick/internal/pkg/usercontext"
)

// HandleGetUserAccount returns account information for the authenticated user.
func HandleGetUserAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	userRepo := repository.GetGlobalFactory().GetUserRepository()
	account, err := userRepo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	tier, err := QuotaService().EffectiveTier(c.Context(), userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to resolve tier"})
	}
	limits := entitlements.LimitsForTier(tier)

	parkCount, err := repository.GetGlobalFactory().GetParkRepository().CountByUserID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load park count"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":            account.ID,
		"username":      account.Name,
		"email":         account.Email,
		"status":        account.Status,
		"tier":          string(tier),
		"referral_code": account.ReferralCode,
		"is_admin":      account.Role == models.ROLE_ADMIN,
		"created_at":    account.CreatedAt.UTC().Format(time.RFC3339),
		"last_login_at": formatTimePtr(account.LastLoginAt),
		"limits": fiber.Map{
			"max_parks":         limits.MaxParks,
			"max_picks_per_day": limits.MaxPicksPerDay,
			"parks_used":        parkCount,
		},
	})
}

// HandleIssueAPIKey rotates the authenticated user's API key and returns the
// raw secret once.
func HandleIssueAPIKey(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	userRepo := repository.GetGlobalFactory().GetUserRepository()
	account, err := userRepo.GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	rawKey, err := account.IssueAPIKey()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to issue API key"})
	}
	if err := userRepo.Update(account); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to persist API key"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"api_key":    rawKey,
		"prefix":     account.APIKeyPrefix,
		"created_at": formatTimePtr(account.APIKeyCreatedAt),
	})
}

// HandleGetStatistics returns the cached aggregate counters.
func HandleGetStatistics(c *fiber.Ctx) error {
	data := statistics.GetStatisticsData()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"total_users":     data.TotalUsers,
		"total_referrals": data.TotalReferrals,
		"total_rewards":   data.TotalRewards,
		"today_picks":     data.TodayPicks,
	})
}
