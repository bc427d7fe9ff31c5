package oauth

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultExpiresIn is the access token lifetime assumed when the token
// response omits expires_in.
const DefaultExpiresIn = 3600

// Token represents an OAuth token set returned by the token endpoint.
type Token struct {
	// AccessToken is the bearer token used for authorization.
	AccessToken string `json:"access_token"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// RefreshToken is used to obtain new access tokens (optional,
	// server-dependent).
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresIn is the token lifetime in seconds (from the token response).
	ExpiresIn int `json:"expires_in,omitempty"`

	// ExpiresAt is the calculated absolute expiration timestamp.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// Scope is the granted scope(s), space-separated.
	Scope string `json:"scope,omitempty"`
}

// SetExpiresAtFromExpiresIn calculates and sets ExpiresAt from ExpiresIn.
// When ExpiresIn is absent, DefaultExpiresIn is assumed.
func (t *Token) SetExpiresAtFromExpiresIn() {
	if !t.ExpiresAt.IsZero() {
		return
	}
	lifetime := t.ExpiresIn
	if lifetime <= 0 {
		lifetime = DefaultExpiresIn
	}
	t.ExpiresAt = time.Now().Add(time.Duration(lifetime) * time.Second)
}

// IsExpiredWithMargin checks if the token has expired or will expire within
// the margin.
func (t *Token) IsExpiredWithMargin(margin time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(t.ExpiresAt)
}

// ToOAuth2Token converts the Token to an oauth2.Token for compatibility with
// golang.org/x/oauth2.
func (t *Token) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
}

// ResourceMetadata represents OAuth 2.0 Protected Resource Metadata as defined
// in RFC 9728. Only the fields the discovery chain consumes are modeled.
type ResourceMetadata struct {
	// Resource is the protected resource identifier.
	Resource string `json:"resource,omitempty"`

	// AuthorizationServers lists the issuer URLs that can authorize access
	// to the resource. Discovery uses the first entry.
	AuthorizationServers []string `json:"authorization_servers"`

	// ScopesSupported lists the OAuth 2.0 scope values supported.
	ScopesSupported []string `json:"scopes_supported,omitempty"`
}

// Endpoints represents OAuth 2.0 Authorization Server Metadata as defined in
// RFC 8414, reduced to the endpoints this client uses.
type Endpoints struct {
	// Issuer is the authorization server's issuer identifier.
	Issuer string `json:"issuer"`

	// AuthorizationEndpoint is the URL of the authorization endpoint.
	AuthorizationEndpoint string `json:"authorization_endpoint"`

	// TokenEndpoint is the URL of the token endpoint.
	TokenEndpoint string `json:"token_endpoint"`

	// RegistrationEndpoint is the URL for dynamic client registration.
	RegistrationEndpoint string `json:"registration_endpoint,omitempty"`

	// CodeChallengeMethodsSupported lists the PKCE code challenge methods.
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// SupportsPKCE returns true if the server supports S256 PKCE.
func (e *Endpoints) SupportsPKCE() bool {
	for _, method := range e.CodeChallengeMethodsSupported {
		if method == "S256" {
			return true
		}
	}
	// If not specified, assume S256 is supported (OAuth 2.1 requirement)
	return len(e.CodeChallengeMethodsSupported) == 0
}

// ClientRegistration is the result of dynamic client registration.
type ClientRegistration struct {
	// ClientID is the identifier issued by the authorization server.
	// Treated as opaque by everything downstream.
	ClientID string `json:"client_id"`

	// ClientIDIssuedAt is the epoch time the identifier was issued (optional).
	ClientIDIssuedAt int64 `json:"client_id_issued_at,omitempty"`
}

// AuthChallenge represents parsed information from a WWW-Authenticate header.
type AuthChallenge struct {
	// Scheme is the authentication scheme (typically "Bearer" for OAuth 2.0).
	Scheme string

	// Realm is the protection realm (often the authorization server name or URL).
	Realm string

	// ResourceMetadataURL is the URL to the protected resource metadata.
	// This follows RFC 9728 for OAuth 2.0 Protected Resource Metadata.
	ResourceMetadataURL string

	// Scope is the space-separated list of required OAuth scopes.
	Scope string

	// Error is the error code from the WWW-Authenticate header (if any).
	Error string

	// ErrorDescription is a human-readable error description (if any).
	ErrorDescription string
}

// IsOAuthChallenge returns true if this represents an OAuth authentication
// challenge with enough information to start discovery.
func (c *AuthChallenge) IsOAuthChallenge() bool {
	if c == nil {
		return false
	}
	if !strings.EqualFold(c.Scheme, "Bearer") {
		return false
	}
	return c.ResourceMetadataURL != "" || c.Realm != ""
}

// PKCEChallenge represents a PKCE (Proof Key for Code Exchange) challenge.
// PKCE is required for OAuth 2.1 public clients to prevent authorization code
// interception.
type PKCEChallenge struct {
	// CodeVerifier is the cryptographically random string (32 bytes,
	// base64url-encoded). This is kept secret and only sent to the token
	// endpoint during the exchange.
	CodeVerifier string

	// CodeChallenge is the SHA256 hash of the verifier (base64url-encoded).
	// This is sent in the authorization request.
	CodeChallenge string

	// CodeChallengeMethod is always "S256" (plain is not allowed in OAuth 2.1).
	CodeChallengeMethod string
}
