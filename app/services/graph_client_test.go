package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func graphTestServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "first_name,last_name,profile_pic", r.URL.Query().Get("fields"))
		assert.NotEmpty(t, r.URL.Query().Get("access_token"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGraphClient(srv *httptest.Server) *GraphAPIClientImpl {
	return NewGraphAPIClient(srv.URL, "v21.0", 5*time.Second)
}

func TestGetUserProfile(t *testing.T) {
	t.Run("MessengerFields", func(t *testing.T) {
		srv := graphTestServer(t, http.StatusOK,
			`{"first_name":"Maya","last_name":"Chen","profile_pic":"https://cdn.example/p.jpg","id":"123"}`)

		profile, err := newTestGraphClient(srv).GetUserProfile(context.Background(), "token", "123")
		require.NoError(t, err)
		require.NotNil(t, profile.Fields.FirstName)
		assert.Equal(t, "Maya", *profile.Fields.FirstName)
		require.NotNil(t, profile.Fields.LastName)
		assert.Equal(t, "Chen", *profile.Fields.LastName)
		require.NotNil(t, profile.Fields.ProfilePicURL)
		assert.Equal(t, "https://cdn.example/p.jpg", *profile.Fields.ProfilePicURL)
		assert.Equal(t, "123", profile.Raw["id"])
	})

	t.Run("InstagramNameSplit", func(t *testing.T) {
		srv := graphTestServer(t, http.StatusOK,
			`{"name":"Maya Chen Lee","profile_pic":"https://cdn.example/p.jpg","id":"456"}`)

		profile, err := newTestGraphClient(srv).GetUserProfile(context.Background(), "token", "456")
		require.NoError(t, err)
		require.NotNil(t, profile.Fields.FirstName)
		assert.Equal(t, "Maya", *profile.Fields.FirstName)
		require.NotNil(t, profile.Fields.LastName)
		assert.Equal(t, "Chen Lee", *profile.Fields.LastName)
	})

	t.Run("SingleWordName", func(t *testing.T) {
		srv := graphTestServer(t, http.StatusOK, `{"name":"Maya","id":"789"}`)

		profile, err := newTestGraphClient(srv).GetUserProfile(context.Background(), "token", "789")
		require.NoError(t, err)
		require.NotNil(t, profile.Fields.FirstName)
		assert.Equal(t, "Maya", *profile.Fields.FirstName)
		assert.Nil(t, profile.Fields.LastName)
	})

	t.Run("HTTP429IsRateLimited", func(t *testing.T) {
		srv := graphTestServer(t, http.StatusTooManyRequests,
			`{"error":{"message":"Too many calls","type":"OAuthException","code":613}}`)

		_, err := newTestGraphClient(srv).GetUserProfile(context.Background(), "token", "123")
		assert.ErrorIs(t, err, ErrGraphRateLimited)
	})

	t.Run("ThrottleCodeOn400IsRateLimited", func(t *testing.T) {
		// Meta signals app-level throttling with code 4 on a 400 response
		srv := graphTestServer(t, http.StatusBadRequest,
			`{"error":{"message":"Application request limit reached","type":"OAuthException","code":4}}`)

		_, err := newTestGraphClient(srv).GetUserProfile(context.Background(), "token", "123")
		assert.ErrorIs(t, err, ErrGraphRateLimited)
	})

	t.Run("Code190IsTokenRejected", func(t *testing.T) {
		srv := graphTestServer(t, http.StatusBadRequest,
			`{"error":{"message":"Invalid OAuth access token","type":"OAuthException","code":190}}`)

		_, err := newTestGraphClient(srv).GetUserProfile(context.Background(), "token", "123")
		assert.ErrorIs(t, err, ErrGraphTokenRejected)
	})

	t.Run("NotFound", func(t *testing.T) {
		srv := graphTestServer(t, http.StatusNotFound,
			`{"error":{"message":"Unsupported get request","type":"GraphMethodException","code":100}}`)

		_, err := newTestGraphClient(srv).GetUserProfile(context.Background(), "token", "123")
		assert.ErrorIs(t, err, ErrGraphProfileNotFound)
	})

	t.Run("ServerErrorIsUnavailable", func(t *testing.T) {
		srv := graphTestServer(t, http.StatusInternalServerError, `{}`)

		_, err := newTestGraphClient(srv).GetUserProfile(context.Background(), "token", "123")
		assert.ErrorIs(t, err, ErrGraphUnavailable)
	})

	t.Run("TransportFailureIsUnavailable", func(t *testing.T) {
		srv := graphTestServer(t, http.StatusOK, `{}`)
		srv.Close()

		_, err := newTestGraphClient(srv).GetUserProfile(context.Background(), "token", "123")
		assert.ErrorIs(t, err, ErrGraphUnavailable)
	})
}
