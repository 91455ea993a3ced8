package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oakbijoux/oakstudio/app/models"
	"github.com/oakbijoux/oakstudio/internal/pkg/studio"
	"github.com/oakbijoux/oakstudio/internal/pkg/usercontext"
)

type stubSubRepo struct {
	sub *models.Subscription
}

func (s *stubSubRepo) Create(sub *models.Subscription) error { return nil }

func (s *stubSubRepo) GetByUserID(userID uint) (*models.Subscription, error) {
	if s.sub != nil && s.sub.UserID == userID {
		return s.sub, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubSubRepo) GetByStripeCustomerID(customerID string) (*models.Subscription, error) {
	if s.sub != nil && s.sub.StripeCustomerID != nil && *s.sub.StripeCustomerID == customerID {
		return s.sub, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubSubRepo) Update(*models.Subscription) error { return nil }

func (s *stubSubRepo) DebitCredit(uint) (bool, error) {
	if s.sub.CreditsUsed >= s.sub.MonthlyCredits {
		return false, nil
	}
	s.sub.CreditsUsed++
	return true, nil
}

func (s *stubSubRepo) RefundCredit(uint) (bool, error) {
	if s.sub.CreditsUsed <= 0 {
		return false, nil
	}
	s.sub.CreditsUsed--
	return true, nil
}

func (s *stubSubRepo) ResetCredits(uint, *time.Time, *time.Time) error {
	s.sub.CreditsUsed = 0
	return nil
}

type stubJewelryRepo struct {
	jewelry *models.JewelryUpload
}

func (s *stubJewelryRepo) Create(*models.JewelryUpload) error { return nil }

func (s *stubJewelryRepo) GetByID(uint) (*models.JewelryUpload, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubJewelryRepo) GetByUUID(string) (*models.JewelryUpload, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubJewelryRepo) GetByUUIDAndUserID(uuid string, userID uint) (*models.JewelryUpload, error) {
	if s.jewelry != nil && s.jewelry.UUID == uuid && s.jewelry.UserID == userID {
		return s.jewelry, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubJewelryRepo) ListByUserID(uint, int, int) ([]models.JewelryUpload, error) {
	return nil, nil
}

func (s *stubJewelryRepo) CountByUserID(uint) (int64, error) { return 0, nil }

func (s *stubJewelryRepo) DeleteByID(uint) error { return nil }

type stubGenerationRepo struct {
	created *models.Generation
	sub     *models.Subscription
}

func (s *stubGenerationRepo) Create(g *models.Generation) error {
	g.ID = 1
	s.created = g
	return nil
}

func (s *stubGenerationRepo) GetByUUID(uuid string) (*models.Generation, error) {
	if s.created != nil && s.created.UUID == uuid {
		return s.created, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubGenerationRepo) GetByUUIDWithSubscription(uuid string) (*models.Generation, *models.Subscription, error) {
	if s.created != nil && s.created.UUID == uuid {
		return s.created, s.sub, nil
	}
	return nil, nil, gorm.ErrRecordNotFound
}

func (s *stubGenerationRepo) ListByUserID(uint, int, int) ([]models.Generation, error) {
	return nil, nil
}

func (s *stubGenerationRepo) CountByUserID(uint) (int64, error) { return 0, nil }

func (s *stubGenerationRepo) MarkProcessing(uint) error {
	if s.created != nil && s.created.Status == models.GenerationStatusPending {
		s.created.Status = models.GenerationStatusProcessing
	}
	return nil
}

func (s *stubGenerationRepo) MarkCompleted(id uint, url string, ms *int64) (bool, error) {
	if s.created.IsTerminal() {
		return false, nil
	}
	s.created.Status = models.GenerationStatusCompleted
	s.created.ResultImageURL = &url
	return true, nil
}

func (s *stubGenerationRepo) MarkFailed(id uint, msg string, ms *int64) (bool, error) {
	if s.created.IsTerminal() {
		return false, nil
	}
	s.created.Status = models.GenerationStatusFailed
	s.created.ErrorMessage = &msg
	return true, nil
}

func (s *stubGenerationRepo) ListStaleProcessing(time.Time, int) ([]models.Generation, error) {
	return nil, nil
}

type stubDispatcher struct {
	err error
}

func (s *stubDispatcher) Dispatch(context.Context, studio.DispatchPayload) error { return s.err }

type testEnv struct {
	subs    *stubSubRepo
	jewelry *stubJewelryRepo
	gens    *stubGenerationRepo
}

func setupStudioStub(t *testing.T, credits, used int) *testEnv {
	t.Helper()
	env := &testEnv{
		subs:    &stubSubRepo{sub: &models.Subscription{ID: 1, UserID: 7, Tier: "creator", MonthlyCredits: credits, CreditsUsed: used, Status: models.SubscriptionStatusActive}},
		jewelry: &stubJewelryRepo{jewelry: &models.JewelryUpload{ID: 3, UUID: "2f1e4d6a-8b3c-4f5e-9a7d-1c2b3a4d5e6f", UserID: 7, PublicURL: "https://cdn.example.com/j.png", JewelryType: models.JewelryTypeRing}},
		gens:    &stubGenerationRepo{},
	}
	env.gens.sub = env.subs.sub

	original := newStudioService
	newStudioService = func() *studio.Service {
		return studio.NewService(env.subs, env.jewelry, env.gens, &stubDispatcher{})
	}
	t.Cleanup(func() { newStudioService = original })
	return env
}

func newAPIApp(path string, handler fiber.Handler, loggedIn bool) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if loggedIn {
			usercontext.SetUserContext(c, usercontext.UserContext{
				UserID:     7,
				Email:      "atelier@example.com",
				Tier:       "creator",
				IsLoggedIn: true,
			})
		}
		return c.Next()
	})
	app.Post(path, handler)
	app.Get(path, handler)
	return app
}

func newJSONRequest(t *testing.T, path string, body interface{}) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()
	resp, err := app.Test(newJSONRequest(t, path, body), -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestHandleGenerateUnauthorized(t *testing.T) {
	app := newAPIApp("/api/v1/generate", HandleGenerate, false)

	resp := postJSON(t, app, "/api/v1/generate", GenerateRequest{})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestHandleGenerateValidation(t *testing.T) {
	setupStudioStub(t, 45, 0)
	app := newAPIApp("/api/v1/generate", HandleGenerate, true)

	resp := postJSON(t, app, "/api/v1/generate", GenerateRequest{JewelryID: "not-a-uuid", PromptModel: "m", PromptDecor: "d"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, app, "/api/v1/generate", GenerateRequest{JewelryID: "2f1e4d6a-8b3c-4f5e-9a7d-1c2b3a4d5e6f", PromptDecor: "d"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleGenerateSuccess(t *testing.T) {
	env := setupStudioStub(t, 45, 0)
	app := newAPIApp("/api/v1/generate", HandleGenerate, true)

	resp := postJSON(t, app, "/api/v1/generate", GenerateRequest{
		JewelryID:   "2f1e4d6a-8b3c-4f5e-9a7d-1c2b3a4d5e6f",
		PromptModel: "model in evening wear",
		PromptDecor: "marble staircase",
	})
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "processing", body["status"])
	assert.Equal(t, float64(studio.EstimatedSeconds), body["estimatedTime"])
	assert.NotEmpty(t, body["generationId"])
	assert.Equal(t, 1, env.subs.sub.CreditsUsed)
}

func TestHandleGenerateCreditsExhausted(t *testing.T) {
	env := setupStudioStub(t, 1, 1)
	app := newAPIApp("/api/v1/generate", HandleGenerate, true)

	resp := postJSON(t, app, "/api/v1/generate", GenerateRequest{
		JewelryID:   "2f1e4d6a-8b3c-4f5e-9a7d-1c2b3a4d5e6f",
		PromptModel: "model",
		PromptDecor: "decor",
	})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Nil(t, env.gens.created)
}

func TestHandleGenerateJewelryNotFound(t *testing.T) {
	setupStudioStub(t, 45, 0)
	app := newAPIApp("/api/v1/generate", HandleGenerate, true)

	resp := postJSON(t, app, "/api/v1/generate", GenerateRequest{
		JewelryID:   "99999999-8b3c-4f5e-9a7d-1c2b3a4d5e6f",
		PromptModel: "model",
		PromptDecor: "decor",
	})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestParsePagination(t *testing.T) {
	app := fiber.New()
	app.Get("/list", func(c *fiber.Ctx) error {
		offset, limit := parsePagination(c)
		return c.JSON(fiber.Map{"offset": offset, "limit": limit})
	})

	req := httptest.NewRequest(http.MethodGet, "/list?page=3&page_size=10", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(20), body["offset"])
	assert.Equal(t, float64(10), body["limit"])

	req = httptest.NewRequest(http.MethodGet, "/list?page=-1&page_size=9999", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	body = decodeBody(t, resp)
	assert.Equal(t, float64(0), body["offset"])
	assert.Equal(t, float64(maxPageSize), body["limit"])
}

func TestFormatTimePtr(t *testing.T) {
	assert.Nil(t, formatTimePtr(nil))

	now := time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-02-14T09:30:00Z", formatTimePtr(&now))
}
