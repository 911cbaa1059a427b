package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefix/backend/internal/config"
)

func authApp(apiKey string) *fiber.App {
	app := fiber.New()
	cfg := &config.Config{}
	cfg.Auth.AdminAPIKey = apiKey
	app.Post("/guarded", AdminAuth(cfg), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestAdminAuthEmptyKeyDisablesCheck(t *testing.T) {
	t.Parallel()

	app := authApp("")
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/guarded", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAdminAuthRejectsMissingToken(t *testing.T) {
	t.Parallel()

	app := authApp("secret")
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/guarded", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAdminAuthAcceptsHeaderToken(t *testing.T) {
	t.Parallel()

	app := authApp("secret")
	req := httptest.NewRequest(http.MethodPost, "/guarded", nil)
	req.Header.Set("X-Admin-Token", "secret")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAdminAuthAcceptsBearerToken(t *testing.T) {
	t.Parallel()

	app := authApp("secret")
	req := httptest.NewRequest(http.MethodPost, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAdminAuthRejectsWrongToken(t *testing.T) {
	t.Parallel()

	app := authApp("secret")
	req := httptest.NewRequest(http.MethodPost, "/guarded", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
