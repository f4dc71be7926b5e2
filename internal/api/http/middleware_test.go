package http

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRequest(t *testing.T, app *fiber.App, path string) (*nethttp.Response, map[string]any) {
	t.Helper()

	req, err := nethttp.NewRequest(nethttp.MethodGet, path, nil)
	require.NoError(t, err)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestErrorMiddlewareMapsContextErrors(t *testing.T) {
	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), nil, 0)
	app.Get("/deadline", func(c *fiber.Ctx) error {
		return context.DeadlineExceeded
	})
	app.Get("/canceled", func(c *fiber.Ctx) error {
		return context.Canceled
	})

	resp, body := testRequest(t, app, "/deadline")
	require.Equal(t, nethttp.StatusRequestTimeout, resp.StatusCode)
	assert.Equal(t, "REQUEST_TIMEOUT", body["error"].(map[string]any)["code"])

	resp, body = testRequest(t, app, "/canceled")
	require.Equal(t, nethttp.StatusRequestTimeout, resp.StatusCode)
	assert.Equal(t, "REQUEST_TIMEOUT", body["error"].(map[string]any)["code"])
}

func TestErrorMiddlewareRecoversPanics(t *testing.T) {
	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), nil, 0)
	app.Get("/panic", func(c *fiber.Ctx) error {
		panic("boom")
	})

	resp, body := testRequest(t, app, "/panic")
	require.Equal(t, nethttp.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "INTERNAL_ERROR", body["error"].(map[string]any)["code"])
}
