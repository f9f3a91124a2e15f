// Package auth provides the credentials used to mint SSO links. The
// token source is passed explicitly to whatever needs it; there is no
// process-wide authentication state.
package auth

import (
	"context"
	"fmt"
	"time"

	"itsdu-backend/lib/scrapers/itslearning"
	"itsdu-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
)

type TokenKind string

const (
	AccessToken  TokenKind = "access_token"
	RefreshToken TokenKind = "refresh_token"
)

// TokenSource supplies a credential of the requested kind for the
// current user.
type TokenSource interface {
	Token(ctx context.Context, kind TokenKind) (string, error)
}

// StaticTokenSource hands out fixed tokens, useful for one-shot CLI runs
// and tests.
type StaticTokenSource map[TokenKind]string

func (s StaticTokenSource) Token(ctx context.Context, kind TokenKind) (string, error) {
	token, ok := s[kind]
	if !ok || token == "" {
		return "", fmt.Errorf("no %s available", kind)
	}
	return token, nil
}

// clientID is the identifier the desktop client is registered under at
// the portal's oauth endpoint.
const clientID = "10ae9d30-1853-48ff-81cb-47b58a325685"

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

type Client struct {
	http *resty.Client
}

type ClientOptions struct {
	// BaseUrl overrides the portal instance, used by tests.
	BaseUrl string
}

func NewClient(opts ClientOptions) *Client {
	baseUrl := opts.BaseUrl
	if baseUrl == "" {
		baseUrl = itslearning.BaseURL
	}

	client := resty.New()
	client.SetBaseURL(baseUrl)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/itslearning/auth")

	return &Client{http: client}
}

// Refresh exchanges a refresh token for a fresh access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenResponse, error) {
	var out TokenResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"client_id":     clientID,
			"refresh_token": refreshToken,
		}).
		SetResult(&out).
		Post("/restapi/oauth2/v1")
	if err != nil {
		return TokenResponse{}, err
	}
	if res.IsError() {
		return TokenResponse{}, fmt.Errorf("token refresh rejected: %s", res.Status())
	}
	if out.AccessToken == "" {
		return TokenResponse{}, fmt.Errorf("token refresh returned no access token")
	}
	return out, nil
}
