package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/desertthunder/trackmeta/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// SpotifyTokenURL is the accounts endpoint for the client credentials grant.
	SpotifyTokenURL = "https://accounts.spotify.com/api/token"
	// WebPlayerTokenURL exchanges an sp_dc session cookie for a web player token.
	WebPlayerTokenURL = "https://open.spotify.com/get_access_token?reason=transport&productType=web_player"
)

// ClientCredentialsOpts configures [NewClientCredentialsRefresher].
type ClientCredentialsOpts struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	HTTPClient   *http.Client
}

// NewClientCredentialsRefresher returns a [RefreshFunc] performing the OAuth2 client credentials grant.
func NewClientCredentialsRefresher(opts ClientCredentialsOpts) (RefreshFunc, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client_id and client_secret are required", shared.ErrMissingCredentials)
	}
	if opts.TokenURL == "" {
		opts.TokenURL = SpotifyTokenURL
	}

	cfg := &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     opts.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	return func(ctx context.Context) (Token, error) {
		if opts.HTTPClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
		}

		tok, err := cfg.Token(ctx)
		if err != nil {
			return Token{}, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
		}
		return Token{Value: tok.AccessToken, Expiry: tok.Expiry}, nil
	}, nil
}

// WebPlayerOpts configures [NewWebPlayerRefresher].
type WebPlayerOpts struct {
	SpDC       string
	URL        string
	HTTPClient *http.Client
}

type webPlayerToken struct {
	AccessToken string `json:"accessToken"`
	ExpiresAtMs int64  `json:"accessTokenExpirationTimestampMs"`
	IsAnonymous bool   `json:"isAnonymous"`
}

// NewWebPlayerRefresher returns a [RefreshFunc] that trades the sp_dc cookie for a web player token.
func NewWebPlayerRefresher(opts WebPlayerOpts) (RefreshFunc, error) {
	if opts.SpDC == "" {
		return nil, fmt.Errorf("%w: sp_dc cookie is required", shared.ErrMissingCredentials)
	}
	if opts.URL == "" {
		opts.URL = WebPlayerTokenURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	return func(ctx context.Context) (Token, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
		if err != nil {
			return Token{}, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("App-Platform", "WebPlayer")
		req.Header.Set("Cookie", "sp_dc="+opts.SpDC)
		req.Header.Set("Accept", "application/json")

		resp, err := opts.HTTPClient.Do(req)
		if err != nil {
			return Token{}, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return Token{}, fmt.Errorf("%w: failed to read response: %w", shared.ErrRefreshFailed, err)
		}

		if resp.StatusCode != http.StatusOK {
			return Token{}, fmt.Errorf("%w: web player token endpoint returned status %d", shared.ErrRefreshFailed, resp.StatusCode)
		}

		var payload webPlayerToken
		if err := json.Unmarshal(body, &payload); err != nil {
			return Token{}, fmt.Errorf("%w: failed to decode response: %w", shared.ErrRefreshFailed, err)
		}
		if payload.AccessToken == "" {
			return Token{}, fmt.Errorf("%w: response has no accessToken", shared.ErrRefreshFailed)
		}
		// An expired or unknown cookie still yields a token, but an anonymous one.
		if payload.IsAnonymous {
			return Token{}, fmt.Errorf("%w: sp_dc cookie was not accepted", shared.ErrInvalidCredentials)
		}

		return Token{Value: payload.AccessToken, Expiry: time.UnixMilli(payload.ExpiresAtMs)}, nil
	}, nil
}
