package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Provider) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	p := newTestProvider()
	h, err := NewHandlers(p, "")
	if err != nil {
		t.Fatalf("NewHandlers: %v", err)
	}
	router := gin.New()
	h.Register(router)
	return router, p
}

func postForm(router *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func queryParam(rawURL, key string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get(key)
}

func TestAuthorizeRejectsUnknownClient(t *testing.T) {
	router, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/authorize?client_id=nope", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown client, got %d", w.Code)
	}
}

func TestAuthorizeRejectsUnregisteredRedirectURI(t *testing.T) {
	router, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/authorize?client_id=default-client&redirect_uri="+url.QueryEscape("http://evil.example/cb"), nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unregistered redirect_uri, got %d", w.Code)
	}
}

func TestLoginCallbackBadCredentialsReturns401(t *testing.T) {
	router, p := newTestRouter(t)
	client, _ := p.GetClient("default-client")
	loginURL := p.Authorize(client, client.RedirectURIs[0], []string{"mcp"}, "", "")
	state := queryParam(loginURL, "state")

	w := postForm(router, "/login/callback", url.Values{
		"state":    {state},
		"username": {"admin"},
		"password": {"wrong"},
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad credentials, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "invalid username or password") {
		t.Fatalf("expected the form to re-render with the error, got %q", w.Body.String())
	}
}

func TestFullFlowOverHTTPWithPKCEAndRotation(t *testing.T) {
	router, p := newTestRouter(t)

	verifier := "test-verifier-test-verifier-test-verifier-43chars"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	// /authorize redirects to /login carrying the state.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/authorize?client_id=default-client&scope=mcp&code_challenge="+challenge+
			"&redirect_uri="+url.QueryEscape("http://localhost:9000/callback"), nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusFound {
		t.Fatalf("expected redirect to login, got %d", w.Code)
	}
	state := queryParam(w.Header().Get("Location"), "state")
	if state == "" {
		t.Fatalf("expected state in login redirect, got %q", w.Header().Get("Location"))
	}

	// Valid credentials land on /auth/success with the client redirect embedded.
	w = postForm(router, "/login/callback", url.Values{
		"state":    {state},
		"username": {"admin"},
		"password": {"secret"},
	})
	if w.Code != http.StatusFound {
		t.Fatalf("expected redirect after login, got %d: %s", w.Code, w.Body.String())
	}
	clientRedirect := queryParam(w.Header().Get("Location"), "redirect")
	code := queryParam(clientRedirect, "code")
	if code == "" {
		t.Fatalf("expected authorization code in %q", clientRedirect)
	}

	// Wrong PKCE verifier must be rejected without consuming the code.
	w = postForm(router, "/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"default-client"},
		"code":          {code},
		"code_verifier": {"not-the-right-verifier"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected PKCE failure, got %d", w.Code)
	}

	w = postForm(router, "/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"default-client"},
		"code":          {code},
		"code_verifier": {verifier},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected token issuance, got %d: %s", w.Code, w.Body.String())
	}
	var first TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	if !strings.HasPrefix(first.AccessToken, "mcp_") || !strings.HasPrefix(first.RefreshToken, "mcp_refresh_") {
		t.Fatalf("expected prefixed opaque tokens, got %+v", first)
	}

	// Refresh rotates the pair.
	w = postForm(router, "/token", url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {"default-client"},
		"refresh_token": {first.RefreshToken},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected refresh to succeed, got %d: %s", w.Code, w.Body.String())
	}
	var second TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode refreshed token response: %v", err)
	}

	if _, _, ok := p.LookupAccessToken(first.AccessToken); ok {
		t.Fatal("expected rotated-out access token to be dead")
	}
	if _, _, ok := p.LookupAccessToken(second.AccessToken); !ok {
		t.Fatal("expected fresh access token to authenticate")
	}

	// Revoking the refresh token kills the whole pair.
	w = postForm(router, "/revoke", url.Values{"token": {second.RefreshToken}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected revoke to succeed, got %d", w.Code)
	}
	if _, _, ok := p.LookupAccessToken(second.AccessToken); ok {
		t.Fatal("expected revoking the refresh token to cascade to its access token")
	}
}
