package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"duelserver/internal/apperr"
	"duelserver/internal/ports"
)

// AuthClient implements ports.AuthPort against the auth service described
// in SPEC_FULL.md §6.
type AuthClient struct {
	baseURL string
	client  *http.Client
}

// NewAuthClient builds an AuthClient talking to baseURL.
func NewAuthClient(baseURL string, client *http.Client) *AuthClient {
	return &AuthClient{baseURL: baseURL, client: client}
}

type accountResponse struct {
	ID       string `json:"id"`
	Level    uint32 `json:"level"`
	Username string `json:"username"`
	IsBanned bool   `json:"isBanned"`
}

// Account calls GET /api/player/account with the bearer token supplied at
// Connect time.
func (a *AuthClient) Account(ctx context.Context, token string) (ports.Account, error) {
	req, err := newGet(ctx, a.baseURL+"/api/player/account", token)
	if err != nil {
		return ports.Account{}, err
	}

	var resp accountResponse
	err = doJSON(ctx, a.client, req, &resp, func(status int) error {
		switch status {
		case http.StatusUnauthorized:
			return apperr.ErrAuthUnauthorized
		case http.StatusNotFound:
			return apperr.ErrAuthNotFound
		default:
			return apperr.ErrAuthUnexpected
		}
	})
	if err != nil {
		return ports.Account{}, err
	}
	return ports.Account{ID: resp.ID, Level: resp.Level, Username: resp.Username, IsBanned: resp.IsBanned}, nil
}

type verifyResponse struct {
	PlayerID string `json:"playerId"`
	Username string `json:"username"`
	IsBanned bool   `json:"isBanned"`
}

// Verify calls GET /api/auth/verify with the bearer token supplied at
// Reconnect time.
func (a *AuthClient) Verify(ctx context.Context, token string) (ports.VerifiedIdentity, error) {
	req, err := newGet(ctx, a.baseURL+"/api/auth/verify", token)
	if err != nil {
		return ports.VerifiedIdentity{}, err
	}

	var resp verifyResponse
	err = doJSON(ctx, a.client, req, &resp, func(status int) error {
		if status == http.StatusUnauthorized {
			return apperr.ErrAuthUnauthorized
		}
		return apperr.ErrAuthUnexpected
	})
	if err != nil {
		return ports.VerifiedIdentity{}, err
	}
	return ports.VerifiedIdentity{PlayerID: resp.PlayerID, Username: resp.Username, IsBanned: resp.IsBanned}, nil
}

type preloadResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Level    uint32 `json:"level"`
}

// PreloadProfile calls GET /api/player/preload/{id}, unauthenticated. Used
// during InitServer to build the preregistered roster before any client
// has connected.
func (a *AuthClient) PreloadProfile(ctx context.Context, playerID string) (ports.PreloadedProfile, error) {
	req, err := newGet(ctx, fmt.Sprintf("%s/api/player/preload/%s", a.baseURL, playerID), "")
	if err != nil {
		return ports.PreloadedProfile{}, err
	}

	var resp preloadResponse
	err = doJSON(ctx, a.client, req, &resp, func(status int) error {
		if status == http.StatusNotFound {
			return apperr.ErrPlayerNotInMatch
		}
		return apperr.ErrAuthUnexpected
	})
	if err != nil {
		return ports.PreloadedProfile{}, err
	}
	return ports.PreloadedProfile{ID: resp.ID, Username: resp.Username, Level: resp.Level}, nil
}

var _ ports.AuthPort = (*AuthClient)(nil)
