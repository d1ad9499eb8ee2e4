package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"llmbridge/internal/core"
)

// DefaultRefreshMargin is how long before expiry a cached token is treated as
// stale. Proactive refresh keeps a long-running process from racing the
// expiry on an in-flight request.
const DefaultRefreshMargin = 5 * time.Minute

const defaultScope = "https://cognitiveservices.azure.com/.default"

// tokenManager exchanges client credentials for bearer tokens and caches the
// result until it nears expiry. Refreshes are serialized: concurrent callers
// that find a stale token trigger exactly one exchange.
type tokenManager struct {
	hc       *http.Client
	tokenURL string
	clientID string
	secret   string
	scope    string
	margin   time.Duration
	now      func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newTokenManager(hc *http.Client, tenantID, clientID, secret string) *tokenManager {
	return &tokenManager{
		hc:       hc,
		tokenURL: fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID),
		clientID: clientID,
		secret:   secret,
		scope:    defaultScope,
		margin:   DefaultRefreshMargin,
		now:      time.Now,
	}
}

// Token returns a valid bearer token, refreshing when the cached one is
// within the margin of expiry.
func (m *tokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && m.now().Add(m.margin).Before(m.expires) {
		return m.token, nil
	}
	token, ttl, err := m.exchange(ctx)
	if err != nil {
		return "", err
	}
	m.token = token
	m.expires = m.now().Add(ttl)
	return token, nil
}

func (m *tokenManager) exchange(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {m.clientID},
		"client_secret": {m.secret},
		"scope":         {m.scope},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, core.ClassifyErr("azure", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.hc.Do(req)
	if err != nil {
		return "", 0, core.ClassifyErr("azure", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, core.ClassifyErr("azure", err)
	}
	if resp.StatusCode != http.StatusOK {
		// A failed credential exchange is an auth problem regardless of the
		// exact status the identity provider picked.
		return "", 0, &core.Error{
			Kind:       core.KindAuthInvalid,
			Backend:    "azure",
			Message:    "token exchange failed: " + strings.TrimSpace(string(body)),
			StatusCode: resp.StatusCode,
		}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", 0, core.NewError(core.KindBackend, "azure", "malformed token response: "+err.Error())
	}
	if payload.AccessToken == "" {
		return "", 0, core.NewError(core.KindAuthInvalid, "azure", "token response carried no access token")
	}
	return payload.AccessToken, time.Duration(payload.ExpiresIn) * time.Second, nil
}
