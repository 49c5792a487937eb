package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dishpal-ai/dishpal-cli/internal/apierrors"
	"github.com/dishpal-ai/dishpal-cli/internal/models"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// GoogleUser is the subset of the provider userinfo response we use.
type GoogleUser struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// GoogleUserInfo exchanges a provider access token for the user's email and
// name at Google's userinfo endpoint. This call goes to the provider, not the
// Dishpal backend, so no stored credentials are attached.
func (c *Client) GoogleUserInfo(ctx context.Context, providerToken string) (GoogleUser, error) {
	var user GoogleUser

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.googleURL, nil)
	if err != nil {
		return user, apierrors.New(fmt.Sprintf("failed to create provider request: %v", err), err)
	}
	req.Header.Set("Authorization", "Bearer "+providerToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return user, apierrors.New(fmt.Sprintf("provider request failed: %v", err), err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return user, apierrors.FromResponse(resp, nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return user, apierrors.New(fmt.Sprintf("failed to decode provider response: %v", err), err)
	}
	if user.Email == "" {
		return user, apierrors.New("provider response missing email", nil)
	}
	return user, nil
}

// GoogleSignIn logs a Google-originated account into the backend: the
// username is the email local-part and the password is the configured OAuth
// account password. Fails with the backend error when the email was never
// registered through the sign-up flow.
func (c *Client) GoogleSignIn(ctx context.Context, providerToken string) (models.TokenPair, GoogleUser, error) {
	user, err := c.GoogleUserInfo(ctx, providerToken)
	if err != nil {
		return models.TokenPair{}, user, err
	}

	pair, err := c.Login(ctx, LoginRequest{
		Email:    user.Email,
		Username: emailLocalPart(user.Email),
		Password: c.oauthPassword,
	})
	return pair, user, err
}

// GoogleSignUp registers a Google-originated account with the synthesized
// credentials, then holds the returned pair like any other registration.
func (c *Client) GoogleSignUp(ctx context.Context, providerToken string) (models.TokenPair, GoogleUser, error) {
	user, err := c.GoogleUserInfo(ctx, providerToken)
	if err != nil {
		return models.TokenPair{}, user, err
	}

	pair, err := c.Register(ctx, RegisterRequest{
		Username:        emailLocalPart(user.Email),
		Email:           user.Email,
		Password:        c.oauthPassword,
		ConfirmPassword: c.oauthPassword,
	})
	return pair, user, err
}

func emailLocalPart(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found {
		return email
	}
	return local
}
