package handlers

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brainchat/customer-service/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRequestContext(t *testing.T) {
	h := NewCustomerHandler(nil, nil)
	app := fiber.New()

	var ctx context.Context
	var cancel context.CancelFunc
	app.Get("/capture", func(c fiber.Ctx) error {
		ctx, cancel = h.createRequestContextWithTimeout(c, "/capture", time.Minute)
		defer cancel()
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/capture", nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.NotNil(t, ctx)
	assert.Equal(t, "req-123", ctx.Value(utils.RequestIDKey))
	assert.Equal(t, "/capture", ctx.Value(utils.EndpointKey))
	assert.Equal(t, time.Minute, ctx.Value(utils.TimeoutKey))

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)

	// The handler's deferred cancel must release the timer immediately
	// instead of letting it run out the full timeout
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
