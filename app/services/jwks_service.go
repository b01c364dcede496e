package services

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

// Token validation errors
var (
	ErrTokenInvalid       = errors.New("token is invalid")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenMissingKeyID  = errors.New("token header has no key ID")
	ErrSigningKeyNotFound = errors.New("signing key not found in JWKS")
	ErrJWKSUnavailable    = errors.New("failed to fetch JWKS")
)

// TokenClaims holds the verified claims this service cares about
type TokenClaims struct {
	UserID string
	Claims jwt.MapClaims
}

// TokenService validates bearer tokens issued by the Auth Service. This
// service only verifies; it never issues tokens.
type TokenService interface {
	ValidateToken(ctx context.Context, token string) (*TokenClaims, error)
}

// jwksDocument is the key set published by the Auth Service
type jwksDocument struct {
	Keys []jwksKey `json:"keys"`
}

type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSTokenService validates RS256 JWTs against the Auth Service JWKS
// endpoint. The key set is a read-only trust root, cached in Redis so key
// rotation propagates within CacheTTL without hammering the Auth Service.
type JWKSTokenService struct {
	JWKSURL    string
	Issuer     string
	Audience   string
	CacheTTL   time.Duration
	HTTPClient *http.Client

	rc     *redis.Client
	prefix string
}

// NewJWKSTokenService creates a token service backed by a JWKS endpoint
func NewJWKSTokenService(jwksURL, issuer, audience string, rc *redis.Client, prefix string, cacheTTL time.Duration) *JWKSTokenService {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Minute
	}
	return &JWKSTokenService{
		JWKSURL:    jwksURL,
		Issuer:     issuer,
		Audience:   audience,
		CacheTTL:   cacheTTL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		rc:         rc,
		prefix:     prefix,
	}
}

// ValidateToken verifies the token signature, issuer, audience, and expiry
func (s *JWKSTokenService) ValidateToken(ctx context.Context, tokenString string) (*TokenClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(s.Issuer),
		jwt.WithAudience(s.Audience),
		jwt.WithExpirationRequired(),
	)

	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, ErrTokenMissingKeyID
		}
		return s.publicKey(ctx, kid)
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		if errors.Is(err, ErrJWKSUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	// The Auth Service carries the subject as 'user_id'
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user_id claim", ErrTokenInvalid)
	}

	return &TokenClaims{UserID: userID, Claims: claims}, nil
}

// publicKey resolves a key ID against the cached JWKS, refetching once on miss
func (s *JWKSTokenService) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	doc, fromCache, err := s.jwks(ctx)
	if err != nil {
		return nil, err
	}

	key := findKey(doc, kid)
	if key == nil && fromCache {
		// Unknown kid may mean the publisher rotated keys; refresh once
		doc, err = s.fetchJWKS(ctx)
		if err != nil {
			return nil, err
		}
		s.cacheJWKS(ctx, doc)
		key = findKey(doc, kid)
	}
	if key == nil {
		return nil, ErrSigningKeyNotFound
	}

	return buildRSAPublicKey(key)
}

func (s *JWKSTokenService) jwksCacheKey() string {
	return s.prefix + "jwks"
}

// jwks returns the key set from Redis, falling back to the Auth Service
func (s *JWKSTokenService) jwks(ctx context.Context) (*jwksDocument, bool, error) {
	if s.rc != nil {
		if bs, err := s.rc.Get(ctx, s.jwksCacheKey()).Bytes(); err == nil && len(bs) > 0 {
			var doc jwksDocument
			if err := json.Unmarshal(bs, &doc); err == nil {
				return &doc, true, nil
			}
		}
	}

	doc, err := s.fetchJWKS(ctx)
	if err != nil {
		return nil, false, err
	}

	s.cacheJWKS(ctx, doc)
	return doc, false, nil
}

func (s *JWKSTokenService) fetchJWKS(ctx context.Context) (*jwksDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.JWKSURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrJWKSUnavailable, resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: malformed key set: %v", ErrJWKSUnavailable, err)
	}

	return &doc, nil
}

func (s *JWKSTokenService) cacheJWKS(ctx context.Context, doc *jwksDocument) {
	if s.rc == nil {
		return
	}
	if bs, err := json.Marshal(doc); err == nil {
		_ = s.rc.Set(ctx, s.jwksCacheKey(), bs, s.CacheTTL).Err()
	}
}

func findKey(doc *jwksDocument, kid string) *jwksKey {
	for i := range doc.Keys {
		if doc.Keys[i].Kid == kid {
			return &doc.Keys[i]
		}
	}
	return nil
}

// buildRSAPublicKey constructs an RSA public key from JWK modulus/exponent
func buildRSAPublicKey(key *jwksKey) (*rsa.PublicKey, error) {
	if key.Kty != "RSA" {
		return nil, fmt.Errorf("%w: unsupported key type %s", ErrTokenInvalid, key.Kty)
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
	if err != nil {
		return nil, fmt.Errorf("%w: bad modulus: %v", ErrTokenInvalid, err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
	if err != nil {
		return nil, fmt.Errorf("%w: bad exponent: %v", ErrTokenInvalid, err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
