package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/Resonant-Projects/parkpick/app/repository"
	"github.com/Resonant-Projects/parkpick/internal/pkg/database"
	"github.com/Resonant-Projects/parkpick/internal/pkg/referral"
	"github.com/Resonant-Projects/parkpick/internal/pkg/usercontext"
)

// HandleReferralSignup attributes the authenticated user's signup to a
// referral code. Attribution failures come back as a normal response with a
// reason; the signup flow treats them as advisory.
func HandleReferralSignup(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var body struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	// Fingerprints are hashed here, at the edge; raw identifiers are never
	// handed further down.
	result, err := ReferralService().Create(c.Context(), referral.CreateInput{
		Code:       strings.TrimSpace(body.Code),
		RefereeID:  userCtx.UserID,
		IPHash:     hashFingerprint(GetClientIP(c)),
		DeviceHash: hashFingerprint(c.Get("User-Agent")),
	})
	if err != nil {
		log.Errorf("[Referral] Signup attribution failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to record referral"})
	}

	if !result.OK {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"accepted": false, "reason": result.Reason})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"accepted": true})
}

// HandleGetMyReferrals returns the authenticated user's referral code and the
// referrals they have generated.
func HandleGetMyReferrals(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	userRepo := repository.GetGlobalFactory().GetUserRepository()
	user, err := userRepo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	refRepo := referral.NewRepository(database.GetDB())
	refs, err := refRepo.ListByReferrer(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load referrals"})
	}

	items := make([]fiber.Map, 0, len(refs))
	for _, ref := range refs {
		items = append(items, fiber.Map{
			"id":           ref.ID,
			"status":       string(ref.Status),
			"signed_up_at": ref.SignedUpAt.UTC(),
			"converted_at": formatTimePtr(ref.ConvertedAt),
			"rewarded_at":  formatTimePtr(ref.RewardedAt),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"referral_code": user.ReferralCode,
		"referrals":     items,
	})
}
