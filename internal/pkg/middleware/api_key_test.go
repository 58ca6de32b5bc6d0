package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Resonant-Projects/parkpick/app/models"
	"github.com/Resonant-Projects/parkpick/internal/pkg/quota"
	"github.com/Resonant-Projects/parkpick/internal/pkg/usercontext"
)

type fakeUserRepo struct {
	byHash  map[string]*models.User
	updates int
}

func (f *fakeUserRepo) Create(user *models.User) error { return nil }

func (f *fakeUserRepo) GetByID(id uint) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) GetByAuthSubject(subject string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) GetByReferralCode(code string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) GetByAPIKeyHash(hash string) (*models.User, error) {
	user, ok := f.byHash[hash]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *user
	return &cp, nil
}

func (f *fakeUserRepo) Update(user *models.User) error {
	f.updates++
	return nil
}

func (f *fakeUserRepo) Count() (int64, error) { return int64(len(f.byHash)), nil }

type fakeTierRepo struct {
	entitlements map[uint]*models.Entitlement
}

func (f *fakeTierRepo) GetEntitlementByUser(userID uint) (*models.Entitlement, error) {
	ent, ok := f.entitlements[userID]
	if !ok {
		return nil, nil
	}
	cp := *ent
	return &cp, nil
}

func (f *fakeTierRepo) GetLatestActiveBonus(userID uint, now time.Time) (*models.BonusGrant, error) {
	return nil, nil
}

func (f *fakeTierRepo) CountParksByUser(userID uint) (int, error)         { return 0, nil }
func (f *fakeTierRepo) GetPickCount(userID uint, day string) (int, error) { return 0, nil }
func (f *fakeTierRepo) IncrementPickCount(userID uint, day string) error  { return nil }
func (f *fakeTierRepo) CreatePick(pick *models.Pick) error                { return nil }

func newAuthedApp(users *fakeUserRepo, tiers *fakeTierRepo) *fiber.App {
	app := fiber.New()
	app.Get("/whoami", APIKeyAuthMiddleware(users, quota.NewService(tiers)), func(c *fiber.Ctx) error {
		return c.JSON(usercontext.GetUserContext(c))
	})
	return app
}

func newKeyedUser(t *testing.T, id uint) (*models.User, string) {
	t.Helper()
	user := &models.User{ID: id, Name: "Ada", Role: models.ROLE_USER, Status: models.STATUS_ACTIVE}
	rawKey, err := user.IssueAPIKey()
	require.NoError(t, err)
	return user, rawKey
}

func TestAPIKeyAuthRejectsMissingKey(t *testing.T) {
	app := newAuthedApp(&fakeUserRepo{byHash: map[string]*models.User{}}, &fakeTierRepo{})

	resp, err := app.Test(httptest.NewRequest("GET", "/whoami", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAPIKeyAuthRejectsUnknownKey(t *testing.T) {
	app := newAuthedApp(&fakeUserRepo{byHash: map[string]*models.User{}}, &fakeTierRepo{})

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("X-API-Key", "ppk_not_a_real_key")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAPIKeyAuthRejectsInactiveUser(t *testing.T) {
	user, rawKey := newKeyedUser(t, 5)
	user.Status = models.STATUS_DISABLED
	users := &fakeUserRepo{byHash: map[string]*models.User{user.APIKeyHash: user}}
	app := newAuthedApp(users, &fakeTierRepo{})

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("X-API-Key", rawKey)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestAPIKeyAuthResolvesTierIntoContext(t *testing.T) {
	user, rawKey := newKeyedUser(t, 5)
	users := &fakeUserRepo{byHash: map[string]*models.User{user.APIKeyHash: user}}
	tiers := &fakeTierRepo{entitlements: map[uint]*models.Entitlement{
		5: {UserID: 5, Tier: models.TierPremium, Status: models.EntitlementStatusActive},
	}}
	app := newAuthedApp(users, tiers)

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("X-API-Key", rawKey)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var userCtx usercontext.UserContext
	require.NoError(t, json.Unmarshal(body, &userCtx))

	assert.Equal(t, uint(5), userCtx.UserID)
	assert.True(t, userCtx.IsLoggedIn)
	assert.Equal(t, "premium", userCtx.Tier)
	assert.Equal(t, 1, users.updates, "last-used timestamp refresh should persist")
}

func TestAPIKeyAuthDefaultsToFreeTier(t *testing.T) {
	user, rawKey := newKeyedUser(t, 8)
	users := &fakeUserRepo{byHash: map[string]*models.User{user.APIKeyHash: user}}
	app := newAuthedApp(users, &fakeTierRepo{})

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var userCtx usercontext.UserContext
	require.NoError(t, json.Unmarshal(body, &userCtx))
	assert.Equal(t, "free", userCtx.Tier)
}
