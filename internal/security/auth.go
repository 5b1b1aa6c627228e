// Package security resolves bearer credentials presented on the MCP and admin
// HTTP surfaces into an authenticated principal.
package security

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextKeyPrincipal is the gin context key for the resolved principal.
const ContextKeyPrincipal = "principal"

// Principal holds the resolved caller identity for one request.
type Principal struct {
	ClientID string
	Scopes   []string
}

// TokenStore is the subset of the OAuth provider that the resolver needs:
// looking up an access token without knowing about grant/refresh mechanics.
type TokenStore interface {
	LookupAccessToken(token string) (clientID string, scopes []string, ok bool)
}

// Resolver resolves a bearer string to a Principal using the two-tier
// priority described by the service's configuration: a static API key first,
// then the OAuth access-token store.
type Resolver struct {
	apiKey string
	tokens TokenStore
}

// NewResolver builds a Resolver. tokens may be nil when OAuth is not bundled;
// in that case only the static API key (if any) authenticates requests.
func NewResolver(apiKey string, tokens TokenStore) *Resolver {
	return &Resolver{apiKey: apiKey, tokens: tokens}
}

// Resolve authenticates a bearer token string against the configured API key
// first, then the OAuth token store. It returns ok=false when neither matches.
func (r *Resolver) Resolve(bearer string) (Principal, bool) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return Principal{}, false
	}
	if r.apiKey != "" && bearer == r.apiKey {
		return Principal{ClientID: "api_key_client", Scopes: []string{"mcp"}}, true
	}
	if r.tokens != nil {
		if clientID, scopes, ok := r.tokens.LookupAccessToken(bearer); ok {
			return Principal{ClientID: clientID, Scopes: scopes}, true
		}
	}
	return Principal{}, false
}

// Required reports whether any authentication is configured at all. When
// neither an API key nor OAuth is configured, the service runs unauthenticated.
func (r *Resolver) Required() bool {
	return r.apiKey != "" || r.tokens != nil
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(req *http.Request) string {
	auth := req.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(auth, prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}

// Middleware returns a gin.HandlerFunc that resolves the bearer token on every
// request and stores the Principal in the gin context. When the resolver has
// no credentials configured, every request is treated as anonymous and allowed
// through — matching the "no-auth" mode of the reference server.
func (r *Resolver) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.Required() {
			c.Set(ContextKeyPrincipal, Principal{ClientID: "anonymous"})
			c.Next()
			return
		}
		token := bearerToken(c.Request)
		principal, ok := r.Resolve(token)
		if !ok {
			c.Header("WWW-Authenticate", `Bearer realm="memory-mcp"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(ContextKeyPrincipal, principal)
		c.Next()
	}
}

// FromContext retrieves the Principal set by Middleware.
func FromContext(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(ContextKeyPrincipal)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
