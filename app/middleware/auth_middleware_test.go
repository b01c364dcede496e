package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/brainchat/customer-service/app/dto"
	"github.com/brainchat/customer-service/app/services"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTokenService struct {
	claims *services.TokenClaims
	err    error
}

func (s *stubTokenService) ValidateToken(ctx context.Context, token string) (*services.TokenClaims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

func authTestApp(tokenService services.TokenService) *fiber.App {
	app := fiber.New()
	app.Use(NewAuthMiddleware(tokenService).Authenticate())
	app.Get("/protected", func(c fiber.Ctx) error {
		userID, _ := GetUserIDFromContext(c)
		return c.JSON(fiber.Map{"user_id": userID})
	})
	return app
}

// authErrorBody is the response envelope with the error detail decoded
type authErrorBody struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   dto.ErrorDetail `json:"error"`
}

func doProtectedRequest(t *testing.T, app *fiber.App, authorization string) (int, authErrorBody) {
	t.Helper()

	req := httptest.NewRequest("GET", "/protected", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body authErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("MissingAuthorizationHeader", func(t *testing.T) {
		app := authTestApp(&stubTokenService{})
		status, body := doProtectedRequest(t, app, "")
		assert.Equal(t, fiber.StatusUnauthorized, status)
		assert.Equal(t, "MISSING_AUTHORIZATION_HEADER", body.Error.Code)
	})

	t.Run("MalformedAuthorizationHeader", func(t *testing.T) {
		app := authTestApp(&stubTokenService{})
		status, body := doProtectedRequest(t, app, "Basic abc")
		assert.Equal(t, fiber.StatusUnauthorized, status)
		assert.Equal(t, "INVALID_AUTHORIZATION_FORMAT", body.Error.Code)
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		app := authTestApp(&stubTokenService{err: fmt.Errorf("%w: exp in the past", services.ErrTokenExpired)})
		status, body := doProtectedRequest(t, app, "Bearer token")
		assert.Equal(t, fiber.StatusUnauthorized, status)
		assert.Equal(t, "TOKEN_EXPIRED", body.Error.Code)
	})

	t.Run("InvalidToken", func(t *testing.T) {
		app := authTestApp(&stubTokenService{err: services.ErrTokenInvalid})
		status, body := doProtectedRequest(t, app, "Bearer token")
		assert.Equal(t, fiber.StatusUnauthorized, status)
		assert.Equal(t, "TOKEN_INVALID", body.Error.Code)
	})

	t.Run("JWKSOutageIsServiceUnavailable", func(t *testing.T) {
		// A failed key fetch says nothing about the token; the caller
		// should see a retryable outage rather than a rejection
		app := authTestApp(&stubTokenService{err: fmt.Errorf("%w: connection refused", services.ErrJWKSUnavailable)})
		status, body := doProtectedRequest(t, app, "Bearer token")
		assert.Equal(t, fiber.StatusServiceUnavailable, status)
		assert.Equal(t, "JWKS_UNAVAILABLE", body.Error.Code)
	})

	t.Run("ValidTokenReachesHandler", func(t *testing.T) {
		app := authTestApp(&stubTokenService{claims: &services.TokenClaims{UserID: "user-42"}})

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer token")
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "user-42", body["user_id"])
	})
}
