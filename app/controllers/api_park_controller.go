package controllers

import (
	"errors"
	"math/rand"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/Resonant-Projects/parkpick/app/models"
	"github.com/Resonant-Projects/parkpick/app/repository"
	"github.com/Resonant-Projects/parkpick/internal/pkg/quota"
	"github.com/Resonant-Projects/parkpick/internal/pkg/usercontext"
)

// HandleListParks returns the authenticated user's park list.
func HandleListParks(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	parks, err := repository.GetGlobalFactory().GetParkRepository().ListByUserID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load parks"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"parks": parks})
}

// HandleCreatePark adds a park to the user's list, subject to the tier's cap.
func HandleCreatePark(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	check, err := QuotaService().CheckCanAddPark(c.Context(), userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to check park limit"})
	}
	if !check.Allowed {
		return gateDenied(c, check)
	}

	var body struct {
		Name     string `json:"name"`
		PlaceRef string `json:"place_ref"`
		Notes    string `json:"notes"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	park := &models.Park{
		UserID:   userCtx.UserID,
		Name:     body.Name,
		PlaceRef: body.PlaceRef,
		Notes:    body.Notes,
	}
	if err := park.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	if err := repository.GetGlobalFactory().GetParkRepository().Create(park); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to create park"})
	}
	return c.Status(fiber.StatusCreated).JSON(park)
}

// HandleUpdatePark edits a park on the user's list. Updating never touches
// the park cap.
func HandleUpdatePark(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid park id"})
	}

	parkRepo := repository.GetGlobalFactory().GetParkRepository()
	park, err := parkRepo.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Park not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load park"})
	}
	if park.UserID != userCtx.UserID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Not your park"})
	}

	var body struct {
		Name     string `json:"name"`
		PlaceRef string `json:"place_ref"`
		Notes    string `json:"notes"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	park.Name = body.Name
	park.PlaceRef = body.PlaceRef
	park.Notes = body.Notes
	if err := park.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	if err := parkRepo.Update(park); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to update park"})
	}
	return c.Status(fiber.StatusOK).JSON(park)
}

// HandleDeletePark removes a park from the user's list.
func HandleDeletePark(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid park id"})
	}

	parkRepo := repository.GetGlobalFactory().GetParkRepository()
	park, err := parkRepo.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Park not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load park"})
	}
	if park.UserID != userCtx.UserID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Not your park"})
	}

	if err := parkRepo.Delete(park.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to delete park"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleRandomPick picks a random park from the user's list, subject to the
// tier's daily pick cap.
func HandleRandomPick(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	check, err := QuotaService().CheckCanPickToday(c.Context(), userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to check pick limit"})
	}
	if !check.Allowed {
		return gateDenied(c, check)
	}

	parks, err := repository.GetGlobalFactory().GetParkRepository().ListByUserID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load parks"})
	}
	if len(parks) == 0 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "empty_list", "message": "No parks to pick from"})
	}

	picked := parks[rand.Intn(len(parks))]
	if err := QuotaService().RecordPick(c.Context(), userCtx.UserID, picked.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to record pick"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"park":       picked,
		"picks_used": check.CurrentCount + 1,
		"pick_limit": check.Limit,
	})
}

// gateDenied maps a denied gate check onto the API error shape. A lapsed
// premium subscription surfaces as 402 so clients can prompt for payment.
func gateDenied(c *fiber.Ctx, check *quota.CheckResult) error {
	status := fiber.StatusForbidden
	if check.Code == quota.CodePaymentRequired {
		status = fiber.StatusPaymentRequired
	}
	resp := fiber.Map{
		"error":   check.Code,
		"message": "Limit reached for your current tier",
		"current": check.CurrentCount,
		"limit":   check.Limit,
		"tier":    string(check.Tier),
	}
	if check.ResetsAt != nil {
		resp["resets_at"] = check.ResetsAt.UTC()
	}
	return c.Status(status).JSON(resp)
}
