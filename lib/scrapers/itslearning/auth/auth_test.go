package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticTokenSource(t *testing.T) {
	source := StaticTokenSource{AccessToken: "abc"}

	token, err := source.Token(context.Background(), AccessToken)
	require.NoError(t, err)
	require.Equal(t, "abc", token)

	_, err = source.Token(context.Background(), RefreshToken)
	require.Error(t, err)
}

func TestRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/restapi/oauth2/v1", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		require.Equal(t, clientID, r.PostForm.Get("client_id"))
		require.Equal(t, "refresh-me", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"access_token": "fresh",
			"refresh_token": "refresh-me-again",
			"expires_in": 3600,
			"token_type": "Bearer"
		}`)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(ClientOptions{BaseUrl: srv.URL})
	res, err := client.Refresh(context.Background(), "refresh-me")
	require.NoError(t, err)
	require.Equal(t, "fresh", res.AccessToken)
	require.Equal(t, "refresh-me-again", res.RefreshToken)
	require.Equal(t, int64(3600), res.ExpiresIn)
}

func TestRefreshRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(ClientOptions{BaseUrl: srv.URL})
	_, err := client.Refresh(context.Background(), "expired")
	require.Error(t, err)
}

func TestRefreshEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(ClientOptions{BaseUrl: srv.URL})
	_, err := client.Refresh(context.Background(), "whatever")
	require.Error(t, err)
}
