package scapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// expirySkew renews the token early so in-flight requests never carry a
// token that expires mid-call.
const expirySkew = 60 * time.Second

const defaultTokenTTL = 1800 * time.Second

type tokenSource struct {
	cfg  Config
	http *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

func newTokenSource(cfg Config, client *http.Client) *tokenSource {
	return &tokenSource{cfg: cfg, http: client, now: time.Now}
}

// Token returns the cached bearer token, fetching a fresh one via the
// client-credentials grant when missing or within the expiry skew.
func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && t.now().Before(t.expiresAt.Add(-expirySkew)) {
		return t.token, nil
	}

	form := url.Values{
		"grant_type": {"client_credentials"},
		"channel_id": {t.cfg.ChannelID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.authURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("scapi: build token request: %w", err)
	}
	creds := base64.StdEncoding.EncodeToString([]byte(t.cfg.ClientID + ":" + t.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+creds)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("scapi: token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("scapi: token request: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("scapi: decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("scapi: token response missing access_token")
	}

	ttl := defaultTokenTTL
	if payload.ExpiresIn > 0 {
		ttl = time.Duration(payload.ExpiresIn) * time.Second
	}
	t.token = payload.AccessToken
	t.expiresAt = t.now().Add(ttl)
	return t.token, nil
}
