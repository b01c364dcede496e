package services

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://auth.example.test"
	testAudience = "mission-auth"
	testKeyID    = "key-1"
)

type jwksTestEnv struct {
	key     *rsa.PrivateKey
	server  *httptest.Server
	service *JWKSTokenService
}

func newJWKSTestEnv(t *testing.T) *jwksTestEnv {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	doc := jwksDocument{
		Keys: []jwksKey{{
			Kty: "RSA",
			Kid: testKeyID,
			Use: "sig",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(server.Close)

	service := NewJWKSTokenService(server.URL, testIssuer, testAudience, nil, "test:", time.Minute)
	return &jwksTestEnv{key: key, server: server, service: service}
}

func (e *jwksTestEnv) signToken(t *testing.T, kid string, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(e.key)
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":     testIssuer,
		"aud":     testAudience,
		"user_id": "user-42",
		"iat":     now.Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	}
}

func TestValidateToken(t *testing.T) {
	t.Run("ValidToken", func(t *testing.T) {
		env := newJWKSTestEnv(t)
		token := env.signToken(t, testKeyID, validClaims())

		claims, err := env.service.ValidateToken(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "user-42", claims.UserID)
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		env := newJWKSTestEnv(t)
		claims := validClaims()
		claims["exp"] = time.Now().Add(-time.Hour).Unix()
		token := env.signToken(t, testKeyID, claims)

		_, err := env.service.ValidateToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("WrongAudience", func(t *testing.T) {
		env := newJWKSTestEnv(t)
		claims := validClaims()
		claims["aud"] = "some-other-service"
		token := env.signToken(t, testKeyID, claims)

		_, err := env.service.ValidateToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("WrongIssuer", func(t *testing.T) {
		env := newJWKSTestEnv(t)
		claims := validClaims()
		claims["iss"] = "https://rogue.example.test"
		token := env.signToken(t, testKeyID, claims)

		_, err := env.service.ValidateToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("MissingKeyID", func(t *testing.T) {
		env := newJWKSTestEnv(t)
		token := env.signToken(t, "", validClaims())

		_, err := env.service.ValidateToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("UnknownKeyID", func(t *testing.T) {
		env := newJWKSTestEnv(t)
		token := env.signToken(t, "rotated-away", validClaims())

		_, err := env.service.ValidateToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("MissingUserIDClaim", func(t *testing.T) {
		env := newJWKSTestEnv(t)
		claims := validClaims()
		delete(claims, "user_id")
		token := env.signToken(t, testKeyID, claims)

		_, err := env.service.ValidateToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("JWKSEndpointDown", func(t *testing.T) {
		env := newJWKSTestEnv(t)
		token := env.signToken(t, testKeyID, validClaims())
		env.server.Close()

		_, err := env.service.ValidateToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrJWKSUnavailable)
	})

	t.Run("TamperedSignature", func(t *testing.T) {
		env := newJWKSTestEnv(t)
		token := env.signToken(t, testKeyID, validClaims())
		tampered := token[:len(token)-4] + "AAAA"

		_, err := env.service.ValidateToken(context.Background(), tampered)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}
