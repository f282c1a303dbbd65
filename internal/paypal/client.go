// Package paypal is the outbound provider client: a client-credentials token
// cache and the single order-lookup call the normalizer uses to backfill a
// missing invoice id.
package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/buildacademy/paycore/internal/clock"
	"github.com/buildacademy/paycore/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the provider client.
var Module = fx.Module("paypal",
	fx.Provide(New),
)

var (
	ErrNotConfigured = errors.New("paypal credentials not configured")
	ErrTokenExchange = errors.New("paypal token exchange failed")
)

// tokenSkew is subtracted from the provider-reported lifetime so a token is
// never used in its final seconds.
const tokenSkew = 60 * time.Second

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Clock clock.Clock
}

type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	log          *zap.Logger
	clock        clock.Clock

	// token holds the single shared credential. Concurrent refreshes are not
	// coordinated: two stale readers may both redeem a fresh token, which is
	// wasteful but correct under the client-credentials grant.
	token atomic.Pointer[cachedToken]
}

type cachedToken struct {
	value     string
	expiresAt time.Time
}

func New(p Params) *Client {
	return &Client{
		baseURL:      strings.TrimRight(p.Cfg.PayPalBaseURL, "/"),
		clientID:     p.Cfg.PayPalClientID,
		clientSecret: p.Cfg.PayPalClientSecret,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		log:          p.Log.Named("paypal.client"),
		clock:        p.Clock,
	}
}

// AccessToken returns the cached bearer credential, redeeming a new one when
// the cache is stale.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if c.clientID == "" || c.clientSecret == "" {
		return "", ErrNotConfigured
	}

	if cached := c.token.Load(); cached != nil && c.clock.Now().Before(cached.expiresAt) {
		return cached.value, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrTokenExchange, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}
	if payload.AccessToken == "" {
		return "", ErrTokenExchange
	}

	expiresAt := c.clock.Now().Add(time.Duration(payload.ExpiresIn)*time.Second - tokenSkew)
	c.token.Store(&cachedToken{value: payload.AccessToken, expiresAt: expiresAt})
	c.log.Debug("provider token refreshed", zap.Time("expires_at", expiresAt))

	return payload.AccessToken, nil
}

// GetOrder fetches one checkout order. The engine treats any failure here as
// "field still absent", never as a fatal error.
func (c *Client) GetOrder(ctx context.Context, orderID string) (map[string]any, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("order id is empty")
	}

	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/checkout/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("order lookup status %d", resp.StatusCode)
	}

	var order map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, err
	}
	return order, nil
}
