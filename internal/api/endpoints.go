package api

import (
	"context"
	"net/http"

	"github.com/dishpal-ai/dishpal-cli/internal/models"
)

// Dishpal authentication endpoints, versioned under /api/authentication/v1
const (
	pathLogin        = "/api/authentication/v1/login/"
	pathRegister     = "/api/authentication/v1/register/"
	pathTokenRefresh = "/api/authentication/v1/token/refresh/"
	pathUserInfo     = "/api/authentication/v1/user-info/"
	pathUserProfile  = "/api/authentication/v1/user-profile/"
	pathGuestToken   = "/api/authentication/v1/guest-token/"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Login authenticates with email/username and password. On success the
// returned pair is already persisted and the cached session user invalidated.
func (c *Client) Login(ctx context.Context, req LoginRequest) (models.TokenPair, error) {
	var pair models.TokenPair
	err := c.do(ctx, http.MethodPost, pathLogin, req, &pair)
	return pair, err
}

// Register creates a new account. The backend responds with a token pair for
// the fresh account, persisted the same way as on login.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (models.TokenPair, error) {
	var pair models.TokenPair
	err := c.do(ctx, http.MethodPost, pathRegister, req, &pair)
	return pair, err
}

// RefreshToken exchanges the stored refresh token for a new pair outside of
// the automatic 401 recovery, e.g. to renew a session proactively.
func (c *Client) RefreshToken(ctx context.Context) (models.TokenPair, error) {
	if err := c.refresh(ctx); err != nil {
		return models.TokenPair{}, err
	}

	creds, _, err := c.creds.Load()
	if err != nil {
		return models.TokenPair{}, err
	}
	return models.TokenPair{Access: creds.Access, Refresh: creds.Refresh}, nil
}

// UserInfo fetches the session user record ("who am I").
func (c *Client) UserInfo(ctx context.Context) (models.User, error) {
	var user models.User
	err := c.do(ctx, http.MethodGet, pathUserInfo, nil, &user)
	return user, err
}

// UserProfile fetches the extended profile record.
func (c *Client) UserProfile(ctx context.Context) (models.Profile, error) {
	var profile models.Profile
	err := c.do(ctx, http.MethodGet, pathUserProfile, nil, &profile)
	return profile, err
}

// GuestToken requests a guest token for an email. The backend side of this is
// not fully rolled out yet; the response only carries the token itself.
func (c *Client) GuestToken(ctx context.Context, email string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, pathGuestToken, map[string]string{"email": email}, &resp)
	return resp.Token, err
}
