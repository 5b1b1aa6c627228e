// Package oauth implements a bundled OAuth 2.1 authorization server:
// authorization-code issuance behind a small login form, access/refresh
// token lifecycle with mandatory refresh rotation, and session persistence
// so that a process restart doesn't sign every client out.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Store is the subset of the system key-value store the provider needs to
// persist tokens and clients across restarts.
type Store interface {
	SetSystemState(ctx context.Context, key string, value any) error
	GetSystemState(ctx context.Context, key string, out any) error
	DeleteSystemState(ctx context.Context, key string) error
	ListSystemStatePrefix(ctx context.Context, prefix string) (map[string]json.RawMessage, error)
}

const (
	keyClientPrefix          = "oauth:client:"
	keyAccessTokenPrefix     = "oauth:access_token:"
	keyRefreshTokenPrefix    = "oauth:refresh_token:"
	keyRefreshToAccessPrefix = "oauth:refresh_to_access:"
)

// Config configures the default pre-registered client and token lifetimes.
type Config struct {
	ServerURL       string
	ClientID        string
	ClientSecret    string
	RedirectURIs    []string
	Username        string
	Password        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	AuthCodeTTL     time.Duration
}

// Provider is the in-process OAuth 2.1 authorization server. All hot-path
// state lives in memory guarded by mu; tokens are additionally persisted to
// Store under hashed keys so a restart can reload live sessions.
type Provider struct {
	cfg   Config
	store Store

	mu              sync.RWMutex
	clients         map[string]Client
	pending         map[string]pendingAuthorization // state -> pending authorization
	codes           map[string]authCode
	accessTokens    map[string]AccessToken  // token -> AccessToken
	refreshTokens   map[string]RefreshToken // token -> RefreshToken
	refreshToAccess map[string]string       // refresh token -> access token
}

// New builds a Provider with the default client pre-registered. Call
// LoadPersisted to restore tokens saved by a previous process.
func New(cfg Config, store Store) *Provider {
	p := &Provider{
		cfg:             cfg,
		store:           store,
		clients:         map[string]Client{},
		pending:         map[string]pendingAuthorization{},
		codes:           map[string]authCode{},
		accessTokens:    map[string]AccessToken{},
		refreshTokens:   map[string]RefreshToken{},
		refreshToAccess: map[string]string{},
	}
	if cfg.ClientID != "" {
		p.clients[cfg.ClientID] = Client{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Name:         "Default Client",
			RedirectURIs: cfg.RedirectURIs,
			GrantTypes:   []string{"authorization_code", "refresh_token"},
		}
	}
	return p
}

// LoadPersisted restores clients and unexpired tokens from Store. Expired
// entries found during the scan are deleted rather than kept around.
func (p *Provider) LoadPersisted(ctx context.Context) error {
	now := time.Now()

	clientRows, err := p.store.ListSystemStatePrefix(ctx, keyClientPrefix)
	if err != nil {
		return fmt.Errorf("oauth: list persisted clients: %w", err)
	}
	p.mu.Lock()
	for _, raw := range clientRows {
		var c Client
		if err := json.Unmarshal(raw, &c); err == nil {
			p.clients[c.ClientID] = c
		}
	}
	p.mu.Unlock()

	accessRows, err := p.store.ListSystemStatePrefix(ctx, keyAccessTokenPrefix)
	if err != nil {
		return fmt.Errorf("oauth: list persisted access tokens: %w", err)
	}
	for key, raw := range accessRows {
		var t AccessToken
		if err := json.Unmarshal(raw, &t); err != nil {
			continue
		}
		if t.expired(now) {
			_ = p.store.DeleteSystemState(ctx, key)
			continue
		}
		p.mu.Lock()
		p.accessTokens[t.Token] = t
		p.mu.Unlock()
	}

	refreshRows, err := p.store.ListSystemStatePrefix(ctx, keyRefreshTokenPrefix)
	if err != nil {
		return fmt.Errorf("oauth: list persisted refresh tokens: %w", err)
	}
	for key, raw := range refreshRows {
		var t RefreshToken
		if err := json.Unmarshal(raw, &t); err != nil {
			continue
		}
		if t.expired(now) {
			_ = p.store.DeleteSystemState(ctx, key)
			continue
		}
		p.mu.Lock()
		p.refreshTokens[t.Token] = t
		p.mu.Unlock()
	}

	p.mu.Lock()
	for refreshToken := range p.refreshTokens {
		var access string
		key := keyRefreshToAccessPrefix + hashToken(refreshToken)
		if err := p.store.GetSystemState(ctx, key, &access); err == nil && access != "" {
			p.refreshToAccess[refreshToken] = access
		}
	}
	p.mu.Unlock()

	log.Info("oauth: restored persisted sessions", "access_tokens", len(p.accessTokens), "refresh_tokens", len(p.refreshTokens))
	return nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:16]
}

func randomToken(prefix string) string {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is catastrophic; fall back to a UUID so the
		// server degrades rather than panics.
		return prefix + uuid.NewString()
	}
	return prefix + hex.EncodeToString(buf[:])
}

// GetClient returns a registered client by ID.
func (p *Provider) GetClient(clientID string) (Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.clients[clientID]
	return c, ok
}

// RegisterClient adds a dynamically registered client (RFC 7591).
func (p *Provider) RegisterClient(ctx context.Context, c Client) error {
	if c.ClientID == "" {
		c.ClientID = uuid.NewString()
	}
	if len(c.GrantTypes) == 0 {
		c.GrantTypes = []string{"authorization_code", "refresh_token"}
	}
	p.mu.Lock()
	p.clients[c.ClientID] = c
	p.mu.Unlock()
	if err := p.store.SetSystemState(ctx, keyClientPrefix+c.ClientID, c); err != nil {
		return fmt.Errorf("oauth: persist client: %w", err)
	}
	return nil
}

// Authorize records a pending authorization under a CSRF state token and
// returns the login URL the caller should redirect to.
func (p *Provider) Authorize(client Client, redirectURI string, scopes []string, codeChallenge, state string) string {
	if state == "" {
		state = hashToken(uuid.NewString())
	}
	p.mu.Lock()
	p.pending[state] = pendingAuthorization{
		ClientID:      client.ClientID,
		RedirectURI:   redirectURI,
		Scopes:        scopes,
		CodeChallenge: codeChallenge,
	}
	p.mu.Unlock()
	return fmt.Sprintf("%s/login?state=%s&client_id=%s", strings.TrimRight(p.cfg.ServerURL, "/"), state, client.ClientID)
}

// PendingAuthorization looks up a state token created by Authorize.
func (p *Provider) PendingAuthorization(state string) (pendingAuthorization, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.pending[state]
	return a, ok
}

// Authenticate checks username/password against the configured static
// credentials. There is exactly one user in bundled mode.
func (p *Provider) Authenticate(username, password string) bool {
	if p.cfg.Username == "" || p.cfg.Password == "" {
		return false
	}
	return username == p.cfg.Username && password == p.cfg.Password
}

// CompleteLogin validates credentials, mints a short-lived authorization
// code, and returns the client redirect URL carrying that code plus state.
func (p *Provider) CompleteLogin(ctx context.Context, state, username, password string) (string, error) {
	if !p.Authenticate(username, password) {
		return "", errors.New("invalid username or password")
	}

	p.mu.Lock()
	pending, ok := p.pending[state]
	if ok {
		delete(p.pending, state)
	}
	p.mu.Unlock()
	if !ok {
		return "", errors.New("invalid or expired state")
	}

	code := randomToken("mcp_")
	p.mu.Lock()
	p.codes[code] = authCode{
		Code:          code,
		ClientID:      pending.ClientID,
		RedirectURI:   pending.RedirectURI,
		Scopes:        pending.Scopes,
		CodeChallenge: pending.CodeChallenge,
		ExpiresAt:     time.Now().Add(p.authCodeTTL()),
	}
	p.mu.Unlock()

	sep := "?"
	if strings.Contains(pending.RedirectURI, "?") {
		sep = "&"
	}
	redirectURL := fmt.Sprintf("%s%scode=%s&state=%s", pending.RedirectURI, sep, code, state)
	return redirectURL, nil
}

func (p *Provider) authCodeTTL() time.Duration {
	if p.cfg.AuthCodeTTL > 0 {
		return p.cfg.AuthCodeTTL
	}
	return 5 * time.Minute
}

func (p *Provider) accessTokenTTL() time.Duration {
	if p.cfg.AccessTokenTTL > 0 {
		return p.cfg.AccessTokenTTL
	}
	return time.Hour
}

func (p *Provider) refreshTokenTTL() time.Duration {
	if p.cfg.RefreshTokenTTL > 0 {
		return p.cfg.RefreshTokenTTL
	}
	return 7 * 24 * time.Hour
}

// codeChallengeFor peeks at a pending authorization code's PKCE challenge
// without consuming it. Returns ok=false if the code is unknown or expired.
func (p *Provider) codeChallengeFor(code string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ac, ok := p.codes[code]
	if !ok || ac.expired(time.Now()) {
		return "", false
	}
	return ac.CodeChallenge, true
}

// ExchangeAuthorizationCode redeems an authorization code for an access and
// refresh token pair, invalidating the code.
func (p *Provider) ExchangeAuthorizationCode(ctx context.Context, clientID, code string) (*TokenResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ac, ok := p.codes[code]
	if ok {
		delete(p.codes, code)
	}
	if !ok {
		return nil, errors.New("invalid authorization code")
	}
	if ac.expired(time.Now()) {
		return nil, errors.New("authorization code expired")
	}
	if ac.ClientID != clientID {
		return nil, errors.New("authorization code was issued to a different client")
	}

	return p.issueTokenPairLocked(ctx, clientID, ac.Scopes), nil
}

// ExchangeRefreshToken validates and rotates a refresh token: the old
// access/refresh pair is invalidated and a fresh pair is issued. Requested
// scopes must be a subset of the original grant. The whole check-revoke-issue
// sequence holds the provider lock, so a concurrent request presenting the
// same refresh token can never mint a second pair.
func (p *Provider) ExchangeRefreshToken(ctx context.Context, clientID, refreshToken string, requestedScopes []string) (*TokenResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rt, ok := p.refreshTokens[refreshToken]
	if !ok {
		return nil, errors.New("invalid refresh token")
	}
	if rt.ClientID != clientID {
		return nil, errors.New("refresh token was issued to a different client")
	}
	if rt.expired(time.Now()) {
		p.revokeRefreshTokenLocked(ctx, refreshToken)
		return nil, errors.New("refresh token expired")
	}

	scopes := rt.Scopes
	if len(requestedScopes) > 0 {
		if !isSubset(requestedScopes, rt.Scopes) {
			return nil, errors.New("requested scope exceeds original grant")
		}
		scopes = requestedScopes
	}

	p.revokeRefreshTokenLocked(ctx, refreshToken)
	return p.issueTokenPairLocked(ctx, clientID, scopes), nil
}

func isSubset(requested, granted []string) bool {
	grantedSet := make(map[string]bool, len(granted))
	for _, s := range granted {
		grantedSet[s] = true
	}
	for _, s := range requested {
		if !grantedSet[s] {
			return false
		}
	}
	return true
}

// issueTokenPairLocked mints a fresh access/refresh pair, records it in the
// in-memory maps, and persists it, all while the caller holds p.mu — so an
// observer never sees a persisted token that is absent from memory.
func (p *Provider) issueTokenPairLocked(ctx context.Context, clientID string, scopes []string) *TokenResponse {
	now := time.Now()
	access := AccessToken{
		Token:     randomToken("mcp_"),
		ClientID:  clientID,
		Scopes:    scopes,
		ExpiresAt: now.Add(p.accessTokenTTL()),
	}
	refresh := RefreshToken{
		Token:     randomToken("mcp_refresh_"),
		ClientID:  clientID,
		Scopes:    scopes,
		ExpiresAt: now.Add(p.refreshTokenTTL()),
	}

	p.accessTokens[access.Token] = access
	p.refreshTokens[refresh.Token] = refresh
	p.refreshToAccess[refresh.Token] = access.Token

	if err := p.store.SetSystemState(ctx, keyAccessTokenPrefix+hashToken(access.Token), access); err != nil {
		log.Error("oauth: persist access token failed", "err", err)
	}
	if err := p.store.SetSystemState(ctx, keyRefreshTokenPrefix+hashToken(refresh.Token), refresh); err != nil {
		log.Error("oauth: persist refresh token failed", "err", err)
	}
	if err := p.store.SetSystemState(ctx, keyRefreshToAccessPrefix+hashToken(refresh.Token), access.Token); err != nil {
		log.Error("oauth: persist refresh->access mapping failed", "err", err)
	}

	return &TokenResponse{
		AccessToken:  access.Token,
		TokenType:    "Bearer",
		ExpiresIn:    int(p.accessTokenTTL().Seconds()),
		Scope:        strings.Join(scopes, " "),
		RefreshToken: refresh.Token,
	}
}

// revokeRefreshTokenLocked removes a refresh token and its paired access
// token from memory and the persisted store. Caller must hold p.mu.
func (p *Provider) revokeRefreshTokenLocked(ctx context.Context, refreshToken string) {
	accessToken := p.refreshToAccess[refreshToken]
	delete(p.refreshTokens, refreshToken)
	delete(p.refreshToAccess, refreshToken)
	delete(p.accessTokens, accessToken)

	_ = p.store.DeleteSystemState(ctx, keyRefreshTokenPrefix+hashToken(refreshToken))
	_ = p.store.DeleteSystemState(ctx, keyRefreshToAccessPrefix+hashToken(refreshToken))
	if accessToken != "" {
		_ = p.store.DeleteSystemState(ctx, keyAccessTokenPrefix+hashToken(accessToken))
	}
}

// revokeAccessTokenLocked removes an access token and any refresh token that
// points at it from memory and the persisted store. Caller must hold p.mu.
func (p *Provider) revokeAccessTokenLocked(ctx context.Context, token string) {
	delete(p.accessTokens, token)
	var toRemove []string
	for rt, at := range p.refreshToAccess {
		if at == token {
			toRemove = append(toRemove, rt)
		}
	}
	for _, rt := range toRemove {
		delete(p.refreshTokens, rt)
		delete(p.refreshToAccess, rt)
	}

	_ = p.store.DeleteSystemState(ctx, keyAccessTokenPrefix+hashToken(token))
	for _, rt := range toRemove {
		_ = p.store.DeleteSystemState(ctx, keyRefreshTokenPrefix+hashToken(rt))
		_ = p.store.DeleteSystemState(ctx, keyRefreshToAccessPrefix+hashToken(rt))
	}
}

// Revoke invalidates a token of either variant, cascading to its pair: an
// access token takes any refresh token pointing at it, a refresh token takes
// its associated access token. Revoking an unknown token is a no-op, per
// RFC 7009.
func (p *Provider) Revoke(ctx context.Context, token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accessTokens[token]; ok {
		p.revokeAccessTokenLocked(ctx, token)
		return
	}
	if _, ok := p.refreshTokens[token]; ok {
		p.revokeRefreshTokenLocked(ctx, token)
	}
}

// RevokeAccessToken invalidates an access token and any refresh token that
// points at it.
func (p *Provider) RevokeAccessToken(ctx context.Context, token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revokeAccessTokenLocked(ctx, token)
}

// LookupAccessToken satisfies security.TokenStore: it reports whether token
// is a live OAuth access token, and if so the client it was issued to.
func (p *Provider) LookupAccessToken(token string) (clientID string, scopes []string, ok bool) {
	p.mu.RLock()
	t, found := p.accessTokens[token]
	p.mu.RUnlock()
	if !found {
		return "", nil, false
	}
	if t.expired(time.Now()) {
		p.RevokeAccessToken(context.Background(), token)
		return "", nil, false
	}
	return t.ClientID, t.Scopes, true
}
