// Package api implements the Dishpal HTTP session client. Every backend call
// goes through one choke point that attaches the stored access token, recovers
// from a single 401 by refreshing the credential pair, and normalizes all
// failures into apierrors.APIError.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dishpal-ai/dishpal-cli/internal/apierrors"
	"github.com/dishpal-ai/dishpal-cli/internal/cache"
	"github.com/dishpal-ai/dishpal-cli/internal/credstore"
	"github.com/dishpal-ai/dishpal-cli/internal/logger"
	"github.com/dishpal-ai/dishpal-cli/internal/models"
)

const defaultTimeout = 10 * time.Second

type Config struct {
	// BaseURL of the Dishpal backend, e.g. https://api.dishpal.ai
	// Required to be set
	BaseURL string

	// OAuthPassword is the backend password used for accounts that sign in
	// through Google. Required only for the Google flows.
	OAuthPassword string

	// Timeout applies to every call. Default is used when zero.
	Timeout time.Duration

	// GoogleUserInfoURL overrides the provider userinfo endpoint, for tests
	GoogleUserInfoURL string

	Logger logger.Logger
}

// refresh state machine states
type refreshState int

const (
	refreshIdle refreshState = iota
	refreshInFlight
)

// Client is the shared session client. Construct one per process and pass it
// by reference; the refresh state machine only works across calls that share
// the same Client.
type Client struct {
	baseURL       string
	oauthPassword string
	googleURL     string

	http   *http.Client
	creds  credstore.Store
	cache  *cache.Cache
	logger logger.Logger

	// mu guards state. Idle -> InFlight is a check-and-set under the lock:
	// at most one refresh cycle runs at a time, concurrent 401s fail fast.
	mu    sync.Mutex
	state refreshState
}

func NewClient(cfg Config, creds credstore.Store, queryCache *cache.Cache) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api: base URL must be set")
	}
	if creds == nil || queryCache == nil {
		return nil, fmt.Errorf("api: credential store and cache must not be nil")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewNoOp()
	}

	googleURL := cfg.GoogleUserInfoURL
	if googleURL == "" {
		googleURL = googleUserInfoURL
	}

	return &Client{
		baseURL:       cfg.BaseURL,
		oauthPassword: cfg.OAuthPassword,
		googleURL:     googleURL,
		http:          &http.Client{Timeout: timeout},
		creds:         creds,
		cache:         queryCache,
		logger:        log,
	}, nil
}

// do runs one logical request through the full session protocol: attach
// bearer, dispatch, on 401 refresh once and retry once. The single-retry
// guarantee is structural: the retry path cannot reach another retry.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return apierrors.New(fmt.Sprintf("failed to encode request: %v", err), err)
		}
	}

	resp, err := c.dispatch(ctx, method, path, payload)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return c.handle(resp, out)
	}

	// Original request is now marked retried. Recover via refresh, then
	// re-dispatch exactly once.
	apiErr := apierrors.FromResponse(resp, apierrors.ErrNotAuthenticated)
	_ = resp.Body.Close()

	if err := c.refresh(ctx); err != nil {
		c.logger.Debug("Token refresh not possible", "error", err)
		apiErr.Err = err
		return apiErr
	}

	resp, err = c.dispatch(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		// Second 401 on the same logical request is final
		finalErr := apierrors.FromResponse(resp, apierrors.ErrAlreadyRetried)
		_ = resp.Body.Close()
		return finalErr
	}

	return c.handle(resp, out)
}

// dispatch sends one HTTP request with the current access token attached.
// An unreadable credential store fails the request up front: the client never
// silently sends unauthenticated.
func (c *Client) dispatch(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, apierrors.New(fmt.Sprintf("failed to create request: %v", err), err)
	}

	creds, ok, err := c.creds.Load()
	if err != nil {
		return nil, apierrors.New("credential store unreadable", fmt.Errorf("%w: %w", apierrors.ErrCredentialStore, err))
	}
	if ok && creds.Access != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Access)
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apierrors.New(fmt.Sprintf("request failed: %v", err), err)
	}
	return resp, nil
}

// handle consumes a non-401 response: persist a token pair if the body
// carries one, decode into out, normalize failures.
func (c *Client) handle(resp *http.Response, out any) error {
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apierrors.FromResponse(resp, nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierrors.New(fmt.Sprintf("failed to read response: %v", err), err)
	}

	// Login, register and refresh responses carry a fresh token pair
	var pair models.TokenPair
	if json.Unmarshal(body, &pair) == nil && pair.Access != "" {
		if err := c.persistPair(pair); err != nil {
			return err
		}
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apierrors.New(fmt.Sprintf("failed to decode response: %v", err), err)
	}
	return nil
}

// persistPair saves both tokens and invalidates the cached session user so
// dependent reads pick up the new identity.
func (c *Client) persistPair(pair models.TokenPair) error {
	if err := c.creds.Save(pair); err != nil {
		return apierrors.New(fmt.Sprintf("failed to persist credentials: %v", err), err)
	}
	c.cache.Invalidate(cache.KeyUserInfo)
	return nil
}

// refresh runs one refresh cycle: load the refresh token, transition
// Idle -> InFlight, call the refresh endpoint, persist or clear the pair.
// Returns an error when recovery is impossible; the caller surfaces it.
func (c *Client) refresh(ctx context.Context) error {
	creds, ok, err := c.creds.Load()
	if err != nil {
		return fmt.Errorf("%w: %w", apierrors.ErrCredentialStore, err)
	}
	if !ok || creds.Refresh == "" {
		return apierrors.ErrNoRefreshToken
	}

	c.mu.Lock()
	if c.state == refreshInFlight {
		c.mu.Unlock()
		return apierrors.ErrRefreshInFlight
	}
	c.state = refreshInFlight
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.state = refreshIdle
		c.mu.Unlock()
	}()

	pair, err := c.requestRefresh(ctx, creds.Refresh)
	if err != nil {
		// Failed refresh invalidates the whole pair
		if clearErr := c.creds.Clear(); clearErr != nil {
			c.logger.Error("Failed to clear credentials after refresh failure", "error", clearErr)
		}
		c.logger.Warn("Token refresh failed, clearing up now. Try again.")
		return fmt.Errorf("%w: %w", apierrors.ErrRefreshFailed, err)
	}

	return c.persistPair(pair)
}

// requestRefresh calls the refresh endpoint directly, outside the 401
// protocol, so a failing refresh can never recurse into another refresh.
func (c *Client) requestRefresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	payload, err := json.Marshal(map[string]string{"refresh": refresh})
	if err != nil {
		return models.TokenPair{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathTokenRefresh, bytes.NewReader(payload))
	if err != nil {
		return models.TokenPair{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return models.TokenPair{}, err
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return models.TokenPair{}, apierrors.FromResponse(resp, nil)
	}

	var pair models.TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return models.TokenPair{}, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if pair.Access == "" || pair.Refresh == "" {
		return models.TokenPair{}, fmt.Errorf("refresh response missing tokens")
	}
	return pair, nil
}
