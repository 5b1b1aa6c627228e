package security

import "testing"

type staticTokens map[string]string

func (s staticTokens) LookupAccessToken(token string) (string, []string, bool) {
	clientID, ok := s[token]
	return clientID, []string{"mcp"}, ok
}

func TestResolveAPIKeyTakesPriority(t *testing.T) {
	r := NewResolver("sekrit", staticTokens{"sekrit": "oauth-client"})
	p, ok := r.Resolve("sekrit")
	if !ok {
		t.Fatal("expected API key to authenticate")
	}
	if p.ClientID != "api_key_client" {
		t.Fatalf("expected the API key principal to win over the token store, got %q", p.ClientID)
	}
}

func TestResolveFallsBackToTokenStore(t *testing.T) {
	r := NewResolver("sekrit", staticTokens{"mcp_abc": "client-1"})
	p, ok := r.Resolve("mcp_abc")
	if !ok || p.ClientID != "client-1" {
		t.Fatalf("expected token-store principal, got ok=%v %+v", ok, p)
	}
}

func TestResolveRejectsUnknownBearer(t *testing.T) {
	r := NewResolver("sekrit", staticTokens{})
	if _, ok := r.Resolve("nope"); ok {
		t.Fatal("expected unknown bearer to be rejected")
	}
	if _, ok := r.Resolve(""); ok {
		t.Fatal("expected empty bearer to be rejected")
	}
}

func TestRequired(t *testing.T) {
	if NewResolver("", nil).Required() {
		t.Fatal("expected no-credential resolver to be optional")
	}
	if !NewResolver("k", nil).Required() {
		t.Fatal("expected API-key resolver to require auth")
	}
}
