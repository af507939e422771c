package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiranshivaraju/crosspost/internal/config"
	"github.com/kiranshivaraju/crosspost/pkg/models"
	"github.com/sethvargo/go-retry"
)

// RefreshedToken is the outcome of one token refresh. RefreshToken is empty
// when the vendor does not rotate refresh tokens.
type RefreshedToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenRefresher exchanges an expiring credential for a fresh access token
// at the vendor's OAuth token endpoint.
type TokenRefresher interface {
	Refresh(ctx context.Context, cred *models.Credential) (*RefreshedToken, error)
}

// errTokenEndpointUnavailable marks transient token-endpoint failures
// (transport errors, 5xx). These are retried; 4xx responses such as a
// revoked grant fail immediately.
var errTokenEndpointUnavailable = errors.New("token endpoint unavailable")

// refreshWithRetry runs one vendor token exchange with bounded backoff on
// transient failures.
func refreshWithRetry(ctx context.Context, fn func(ctx context.Context) (*RefreshedToken, error)) (*RefreshedToken, error) {
	var token *RefreshedToken
	backoff := retry.WithMaxRetries(3, retry.NewExponential(250*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		got, err := fn(ctx)
		if err != nil {
			if errors.Is(err, errTokenEndpointUnavailable) {
				return retry.RetryableError(err)
			}
			return err
		}
		token = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// GoogleRefresher refreshes Google OAuth tokens (YouTube, Drive scopes) via
// the refresh_token grant.
type GoogleRefresher struct {
	cfg    config.GoogleConfig
	client *http.Client
}

func NewGoogleRefresher(cfg config.GoogleConfig) *GoogleRefresher {
	return &GoogleRefresher{cfg: cfg, client: &http.Client{Timeout: 30 * time.Second}}
}

func (r *GoogleRefresher) Refresh(ctx context.Context, cred *models.Credential) (*RefreshedToken, error) {
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("google credential has no refresh token")
	}
	return refreshWithRetry(ctx, func(ctx context.Context) (*RefreshedToken, error) {
		return r.refreshOnce(ctx, cred)
	})
}

func (r *GoogleRefresher) refreshOnce(ctx context.Context, cred *models.Credential) (*RefreshedToken, error) {
	form := url.Values{
		"client_id":     {r.cfg.ClientID},
		"client_secret": {r.cfg.ClientSecret},
		"refresh_token": {cred.RefreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: google: %v", errTokenEndpointUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: google: status %d: %s", errTokenEndpointUnavailable, resp.StatusCode, body)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("google token endpoint: status %d: %s", resp.StatusCode, body)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if body.AccessToken == "" {
		return nil, fmt.Errorf("google token endpoint returned no access token")
	}

	return &RefreshedToken{
		AccessToken: body.AccessToken,
		ExpiresAt:   time.Now().UTC().Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}

// MetaRefresher exchanges a Meta access token for a fresh long-lived token.
// Meta has no refresh tokens; the current token itself is exchanged and must
// still be valid.
type MetaRefresher struct {
	cfg    config.MetaConfig
	client *http.Client
}

func NewMetaRefresher(cfg config.MetaConfig) *MetaRefresher {
	return &MetaRefresher{cfg: cfg, client: &http.Client{Timeout: 30 * time.Second}}
}

func (r *MetaRefresher) Refresh(ctx context.Context, cred *models.Credential) (*RefreshedToken, error) {
	return refreshWithRetry(ctx, func(ctx context.Context) (*RefreshedToken, error) {
		return r.refreshOnce(ctx, cred)
	})
}

func (r *MetaRefresher) refreshOnce(ctx context.Context, cred *models.Credential) (*RefreshedToken, error) {
	params := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {r.cfg.AppID},
		"client_secret":     {r.cfg.AppSecret},
		"fb_exchange_token": {cred.AccessToken},
	}
	u := fmt.Sprintf("%s/%s/oauth/access_token?%s", r.cfg.GraphURL, r.cfg.APIVersion, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: meta: %v", errTokenEndpointUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: meta: status %d: %s", errTokenEndpointUnavailable, resp.StatusCode, body)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("meta token endpoint: status %d: %s", resp.StatusCode, body)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if body.AccessToken == "" {
		return nil, fmt.Errorf("meta token endpoint returned no access token")
	}

	expiresIn := body.ExpiresIn
	if expiresIn == 0 {
		// Long-lived page tokens may come back without an expiry; treat as 60 days.
		expiresIn = 60 * 24 * 3600
	}

	return &RefreshedToken{
		AccessToken: body.AccessToken,
		ExpiresAt:   time.Now().UTC().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

var _ TokenRefresher = (*GoogleRefresher)(nil)
var _ TokenRefresher = (*MetaRefresher)(nil)
