package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// Handlers wires Provider into gin routes. The templatesDir passed to
// NewHandlers, when non-empty, is checked for login.html/success.html before
// falling back to the bundled copies.
type Handlers struct {
	provider *Provider
	tmpl     *template.Template
}

// NewHandlers parses templates (preferring templatesDir overrides) and
// returns a Handlers bound to provider.
func NewHandlers(provider *Provider, templatesDir string) (*Handlers, error) {
	tmpl, err := loadTemplates(templatesDir)
	if err != nil {
		return nil, err
	}
	return &Handlers{provider: provider, tmpl: tmpl}, nil
}

// Register mounts the OAuth 2.1 endpoints on router.
func (h *Handlers) Register(router gin.IRouter) {
	router.GET("/authorize", h.authorize)
	router.GET("/login", h.loginForm)
	router.POST("/login/callback", h.loginCallback)
	router.GET("/auth/success", h.success)
	router.POST("/token", h.token)
	router.POST("/revoke", h.revoke)
	router.POST("/register", h.registerClient)
}

func (h *Handlers) authorize(c *gin.Context) {
	clientID := c.Query("client_id")
	redirectURI := c.Query("redirect_uri")
	scope := c.Query("scope")
	state := c.Query("state")
	codeChallenge := c.Query("code_challenge")

	client, ok := h.provider.GetClient(clientID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_client", "error_description": "unknown client_id"})
		return
	}
	if redirectURI == "" {
		if len(client.RedirectURIs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "no redirect_uri"})
			return
		}
		redirectURI = client.RedirectURIs[0]
	} else if !client.allowsRedirect(redirectURI) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "redirect_uri not registered for client"})
		return
	}

	var scopes []string
	if scope != "" {
		scopes = strings.Fields(scope)
	}

	loginURL := h.provider.Authorize(client, redirectURI, scopes, codeChallenge, state)
	c.Redirect(http.StatusFound, loginURL)
}

func (h *Handlers) loginForm(c *gin.Context) {
	state := c.Query("state")
	if _, ok := h.provider.PendingAuthorization(state); !ok {
		c.String(http.StatusBadRequest, "invalid or expired login session")
		return
	}
	h.renderLogin(c, http.StatusOK, state, "")
}

func (h *Handlers) renderLogin(c *gin.Context, status int, state, errMsg string) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(status)
	data := struct {
		State      string
		ClientName string
		Error      string
	}{State: state, ClientName: "Memory MCP", Error: errMsg}
	if err := h.tmpl.ExecuteTemplate(c.Writer, "login.html", data); err != nil {
		log.Error("oauth: render login template failed", "err", err)
	}
}

func (h *Handlers) loginCallback(c *gin.Context) {
	state := c.Query("state")
	if state == "" {
		state = c.PostForm("state")
	}
	username := c.PostForm("username")
	password := c.PostForm("password")

	redirectURL, err := h.provider.CompleteLogin(c.Request.Context(), state, username, password)
	if err != nil {
		h.renderLogin(c, http.StatusUnauthorized, state, err.Error())
		return
	}

	successURL := "/auth/success?redirect=" + url.QueryEscape(redirectURL)
	c.Redirect(http.StatusFound, successURL)
}

func (h *Handlers) success(c *gin.Context) {
	redirect := c.Query("redirect")
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	data := struct{ Redirect string }{Redirect: redirect}
	if err := h.tmpl.ExecuteTemplate(c.Writer, "success.html", data); err != nil {
		log.Error("oauth: render success template failed", "err", err)
	}
}

func (h *Handlers) token(c *gin.Context) {
	grantType := c.PostForm("grant_type")
	clientID := c.PostForm("client_id")
	if clientID == "" {
		clientID, _, _ = c.Request.BasicAuth()
	}
	if _, ok := h.provider.GetClient(clientID); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_client"})
		return
	}

	switch grantType {
	case "authorization_code":
		code := c.PostForm("code")
		verifier := c.PostForm("code_verifier")
		if !h.verifyPKCE(code, verifier) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant", "error_description": "PKCE verification failed"})
			return
		}
		resp, err := h.provider.ExchangeAuthorizationCode(c.Request.Context(), clientID, code)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant", "error_description": err.Error()})
			return
		}
		c.JSON(http.StatusOK, resp)
	case "refresh_token":
		refreshToken := c.PostForm("refresh_token")
		var requested []string
		if scope := c.PostForm("scope"); scope != "" {
			requested = strings.Fields(scope)
		}
		resp, err := h.provider.ExchangeRefreshToken(c.Request.Context(), clientID, refreshToken, requested)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant", "error_description": err.Error()})
			return
		}
		c.JSON(http.StatusOK, resp)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_grant_type"})
	}
}

// verifyPKCE checks an S256 code_verifier against the challenge recorded on
// the authorization code at issuance time. A code issued without a challenge
// (PKCE not used by the client) always passes.
func (h *Handlers) verifyPKCE(code, verifier string) bool {
	challenge, ok := h.provider.codeChallengeFor(code)
	if !ok || challenge == "" {
		return true
	}
	if verifier == "" {
		return false
	}
	sum := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return computed == challenge
}

func (h *Handlers) revoke(c *gin.Context) {
	token := c.PostForm("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.provider.Revoke(c.Request.Context(), token)
	c.Status(http.StatusOK)
}

func (h *Handlers) registerClient(c *gin.Context) {
	var req Client
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_client_metadata"})
		return
	}
	if len(req.RedirectURIs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_redirect_uri"})
		return
	}
	if err := h.provider.RegisterClient(c.Request.Context(), req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusCreated, req)
}
