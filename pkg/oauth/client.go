package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// DefaultHTTPTimeout is the default timeout for HTTP requests.
const DefaultHTTPTimeout = 30 * time.Second

// Client handles OAuth 2.1 protocol operations: endpoint discovery, dynamic
// client registration, token exchange, and token refresh.
//
// Endpoints are re-derived on every fresh run and never cached across runs;
// the singleflight group only deduplicates concurrent in-process fetches.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger

	metadataGroup singleflight.Group
}

// ClientOption configures the OAuth client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new OAuth client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// DiscoverEndpoints resolves the authorization server endpoints for a
// protected resource URL by following the challenge chain:
//
//  1. Probe the resource with a request designed to be rejected and collect
//     the 401 challenge header (or its proxy-remapped alias).
//  2. Extract the resource_metadata URL from the challenge parameters.
//  3. Fetch the protected resource metadata and take the first entry of its
//     authorization_servers list.
//  4. Fetch the authorization server metadata from its well-known endpoint.
//
// Every step failing returns a *DiscoveryError; the chain is strictly
// sequential with no retries.
func (c *Client) DiscoverEndpoints(ctx context.Context, resourceURL string) (*Endpoints, error) {
	challenge, err := c.probeResource(ctx, resourceURL)
	if err != nil {
		return nil, err
	}

	if !challenge.IsOAuthChallenge() {
		return nil, &DiscoveryError{
			Step:    "challenge",
			Message: fmt.Sprintf("challenge scheme %q is not an OAuth bearer challenge", challenge.Scheme),
		}
	}

	if challenge.ResourceMetadataURL == "" {
		return nil, &DiscoveryError{
			Step:    "challenge",
			Message: "challenge header carries no resource_metadata parameter",
		}
	}

	resMeta, err := c.fetchResourceMetadata(ctx, challenge.ResourceMetadataURL)
	if err != nil {
		return nil, err
	}

	if len(resMeta.AuthorizationServers) == 0 {
		return nil, &DiscoveryError{
			Step:    "resource-metadata",
			Message: "resource metadata lists no authorization servers",
		}
	}

	issuer := resMeta.AuthorizationServers[0]
	c.logger.Debug("discovered authorization server",
		"resource", resourceURL,
		"issuer", issuer)

	return c.discoverServerMetadata(ctx, issuer)
}

// probeResource issues a request to the resource URL that is expected to be
// rejected with a 401 challenge, and parses the challenge header.
func (c *Client) probeResource(ctx context.Context, resourceURL string) (*AuthChallenge, error) {
	// An unauthenticated POST with a JSON body reliably draws a 401 from the
	// resource instead of a method-level rejection.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resourceURL, strings.NewReader("{}"))
	if err != nil {
		return nil, &DiscoveryError{Step: "probe", Message: "failed to create probe request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &DiscoveryError{Step: "probe", Message: "probe request failed", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusUnauthorized {
		return nil, &DiscoveryError{
			Step:    "probe",
			Status:  resp.StatusCode,
			Message: "expected 401 challenge from resource",
		}
	}

	header := ChallengeHeaderFromResponse(resp)
	if header == "" {
		return nil, &DiscoveryError{
			Step:    "challenge",
			Message: "401 response carries no WWW-Authenticate header (or remapped alias)",
		}
	}

	challenge, err := ParseWWWAuthenticate(header)
	if err != nil {
		return nil, &DiscoveryError{Step: "challenge", Message: "unparseable challenge header", Err: err}
	}

	return challenge, nil
}

// fetchResourceMetadata fetches RFC 9728 protected resource metadata.
func (c *Client) fetchResourceMetadata(ctx context.Context, metadataURL string) (*ResourceMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, &DiscoveryError{Step: "resource-metadata", Message: "failed to create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &DiscoveryError{Step: "resource-metadata", Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &DiscoveryError{
			Step:    "resource-metadata",
			Status:  resp.StatusCode,
			Message: "resource metadata request failed",
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DiscoveryError{Step: "resource-metadata", Message: "failed to read response", Err: err}
	}

	var meta ResourceMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, &DiscoveryError{Step: "resource-metadata", Message: "failed to parse resource metadata", Err: err}
	}

	return &meta, nil
}

// discoverServerMetadata fetches authorization server metadata from the
// issuer's well-known endpoint. It tries RFC 8414
// (/.well-known/oauth-authorization-server) first, then falls back to OpenID
// Connect (/.well-known/openid-configuration).
func (c *Client) discoverServerMetadata(ctx context.Context, issuer string) (*Endpoints, error) {
	issuer = strings.TrimSuffix(issuer, "/")

	// Deduplicate concurrent fetches for the same issuer
	result, err, _ := c.metadataGroup.Do(issuer, func() (interface{}, error) {
		endpoints, err := c.fetchServerMetadata(ctx, issuer+"/.well-known/oauth-authorization-server")
		if err == nil {
			return endpoints, nil
		}

		c.logger.Debug("RFC 8414 metadata fetch failed, trying OIDC",
			"issuer", issuer,
			"error", err)

		endpoints, oidcErr := c.fetchServerMetadata(ctx, issuer+"/.well-known/openid-configuration")
		if oidcErr == nil {
			return endpoints, nil
		}

		return nil, &DiscoveryError{
			Step:    "server-metadata",
			Message: fmt.Sprintf("failed to discover metadata for %s", issuer),
			Err:     err,
		}
	})

	if err != nil {
		return nil, err
	}

	return result.(*Endpoints), nil
}

// fetchServerMetadata fetches authorization server metadata from a specific URL.
func (c *Client) fetchServerMetadata(ctx context.Context, metadataURL string) (*Endpoints, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var endpoints Endpoints
	if err := json.Unmarshal(body, &endpoints); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	c.logger.Debug("fetched authorization server metadata",
		"authorization_endpoint", endpoints.AuthorizationEndpoint,
		"token_endpoint", endpoints.TokenEndpoint,
		"registration_endpoint", endpoints.RegistrationEndpoint)

	return &endpoints, nil
}

// registrationRequest is the RFC 7591 client metadata sent during dynamic
// client registration. This is a PKCE-only public client: no client secret,
// token_endpoint_auth_method is "none".
type registrationRequest struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	SoftwareID              string   `json:"software_id,omitempty"`
}

// RegisterClient performs dynamic client registration (RFC 7591) against the
// discovered registration endpoint. Registration is attempted exactly once
// per run; any response other than 200/201 with a client_id is a
// *RegistrationError carrying the raw body for diagnosis.
func (c *Client) RegisterClient(ctx context.Context, registrationEndpoint, clientName, redirectURI string) (*ClientRegistration, error) {
	if registrationEndpoint == "" {
		return nil, &RegistrationError{Err: fmt.Errorf("authorization server does not advertise a registration endpoint")}
	}

	payload, err := json.Marshal(registrationRequest{
		ClientName:              clientName,
		RedirectURIs:            []string{redirectURI},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: "none",
		SoftwareID:              uuid.NewString(),
	})
	if err != nil {
		return nil, &RegistrationError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registrationEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &RegistrationError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RegistrationError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RegistrationError{Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &RegistrationError{Status: resp.StatusCode, Body: string(body)}
	}

	var reg ClientRegistration
	if err := json.Unmarshal(body, &reg); err != nil {
		return nil, &RegistrationError{Status: resp.StatusCode, Body: string(body), Err: err}
	}

	if reg.ClientID == "" {
		return nil, &RegistrationError{Status: resp.StatusCode, Body: string(body),
			Err: fmt.Errorf("registration response lacks client_id")}
	}

	c.logger.Debug("registered OAuth client",
		"registration_endpoint", registrationEndpoint,
		"client_id", reg.ClientID)

	return &reg, nil
}

// ExchangeCode exchanges an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, tokenEndpoint, code, redirectURI, clientID, codeVerifier string) (*Token, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"client_id":     {clientID},
		"code_verifier": {codeVerifier},
	}

	return c.doTokenRequest(ctx, tokenEndpoint, "authorization_code", data)
}

// RefreshToken obtains a new access token using a refresh token.
func (c *Client) RefreshToken(ctx context.Context, tokenEndpoint, refreshToken, clientID string) (*Token, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {clientID},
	}

	return c.doTokenRequest(ctx, tokenEndpoint, "refresh_token", data)
}

// doTokenRequest performs a token endpoint request. The presence of an access
// token in the parsed body is the success criterion, not the HTTP status alone.
func (c *Client) doTokenRequest(ctx context.Context, tokenEndpoint, grant string, data url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, &TokenExchangeError{Grant: grant, Err: err}
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TokenExchangeError{Grant: grant, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TokenExchangeError{Grant: grant, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("token request failed",
			"grant", grant,
			"status", resp.StatusCode,
			"body", string(body))
		return nil, &TokenExchangeError{Grant: grant, Status: resp.StatusCode, Body: string(body)}
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, &TokenExchangeError{Grant: grant, Status: resp.StatusCode, Body: string(body), Err: err}
	}

	if token.AccessToken == "" {
		return nil, &TokenExchangeError{Grant: grant, Status: resp.StatusCode, Body: string(body)}
	}

	token.SetExpiresAtFromExpiresIn()

	return &token, nil
}

// BuildAuthorizationURL constructs an OAuth authorization URL.
func (c *Client) BuildAuthorizationURL(authEndpoint, clientID, redirectURI, state, scope string, pkce *PKCEChallenge) (string, error) {
	authURL, err := url.Parse(authEndpoint)
	if err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}

	query := authURL.Query()
	query.Set("response_type", "code")
	query.Set("client_id", clientID)
	query.Set("redirect_uri", redirectURI)
	query.Set("state", state)

	if scope != "" {
		query.Set("scope", scope)
	}

	if pkce != nil {
		query.Set("code_challenge", pkce.CodeChallenge)
		query.Set("code_challenge_method", pkce.CodeChallengeMethod)
	}

	authURL.RawQuery = query.Encode()
	return authURL.String(), nil
}
