package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skippednote/granola-skill/internal/config"
	"github.com/skippednote/granola-skill/internal/credentials"
	"github.com/skippednote/granola-skill/pkg/logging"
	"github.com/skippednote/granola-skill/pkg/oauth"
)

// RefreshValidityMargin is the remaining-validity window below which the
// renewal path actually refreshes. A token valid for longer than this is
// reported as still valid and no network call is made.
const RefreshValidityMargin = 60 * time.Second

// Authorizer runs the credential-acquisition state machine: discovery,
// dynamic client registration, the PKCE authorization-code exchange against
// a local redirect listener, and persistence of the resulting token set.
//
// One Authorizer performs one run; PKCE material and the state token are
// generated fresh per attempt and never reused or persisted.
type Authorizer struct {
	cfg    config.Config
	client *oauth.Client
	store  *credentials.Store

	openURL func(string) error
	printf  func(format string, args ...interface{})
}

// AuthorizerOption configures an Authorizer.
type AuthorizerOption func(*Authorizer)

// WithOAuthClient sets a custom protocol client.
func WithOAuthClient(client *oauth.Client) AuthorizerOption {
	return func(a *Authorizer) {
		a.client = client
	}
}

// WithBrowserOpener replaces the system browser launcher (used by tests).
func WithBrowserOpener(open func(string) error) AuthorizerOption {
	return func(a *Authorizer) {
		a.openURL = open
	}
}

// WithPrinter replaces the user-facing output function.
func WithPrinter(printf func(format string, args ...interface{})) AuthorizerOption {
	return func(a *Authorizer) {
		a.printf = printf
	}
}

// NewAuthorizer creates an Authorizer for the given configuration and
// credential store.
func NewAuthorizer(cfg config.Config, store *credentials.Store, opts ...AuthorizerOption) *Authorizer {
	a := &Authorizer{
		cfg:     cfg,
		client:  oauth.NewClient(),
		store:   store,
		openURL: OpenBrowser,
		printf:  func(string, ...interface{}) {},
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Run executes the full authorization flow and persists the resulting
// credentials. The callback listener is bound before the authorization URL
// is disclosed and released on every exit path.
func (a *Authorizer) Run(ctx context.Context) (*oauth.Token, error) {
	endpoints, err := a.client.DiscoverEndpoints(ctx, a.cfg.ResourceURL)
	if err != nil {
		return nil, err
	}

	if endpoints.AuthorizationEndpoint == "" || endpoints.TokenEndpoint == "" {
		return nil, &oauth.DiscoveryError{
			Step:    "server-metadata",
			Message: "server metadata lacks authorization_endpoint or token_endpoint",
		}
	}

	// S256 is sent regardless (OAuth 2.1 requires it), but a server that
	// advertises only other methods will likely reject the request.
	if !endpoints.SupportsPKCE() {
		logging.Warn("Auth", "Authorization server does not advertise S256 PKCE support")
	}

	redirectURI := a.cfg.RedirectURI()

	reg, err := a.client.RegisterClient(ctx, endpoints.RegistrationEndpoint, a.cfg.ClientName, redirectURI)
	if err != nil {
		return nil, err
	}

	pkce, err := oauth.GeneratePKCE()
	if err != nil {
		return nil, err
	}

	state, err := oauth.GenerateState()
	if err != nil {
		return nil, err
	}

	// Listener first, URL second: the authorization server must not be able
	// to redirect before the listener accepts connections.
	server := NewCallbackServer(a.cfg.CallbackPort)
	if err := server.Start(ctx); err != nil {
		return nil, err
	}
	defer server.Stop()

	authURL, err := a.client.BuildAuthorizationURL(
		endpoints.AuthorizationEndpoint, reg.ClientID, redirectURI, state, "", pkce)
	if err != nil {
		return nil, err
	}

	a.printf("Opening browser for authorization...\n")
	if err := a.openURL(authURL); err != nil {
		// Non-fatal: the user can open the URL manually
		logging.Warn("Auth", "Could not open browser: %v", err)
		a.printf("Could not open browser automatically.\n")
	}
	a.printf("\nIf the browser does not open, visit:\n  %s\n\n", authURL)

	waitCtx, cancel := context.WithTimeout(ctx, a.authTimeout())
	defer cancel()

	result, err := server.WaitForCallback(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &FlowError{Kind: FlowTimeout, Err: err}
		}
		return nil, &FlowError{Err: err}
	}

	if result.IsError() {
		detail := result.Error
		if result.ErrorDescription != "" {
			detail = fmt.Sprintf("%s - %s", result.Error, result.ErrorDescription)
		}
		return nil, &FlowError{Kind: FlowRemoteError, Detail: detail}
	}

	if result.IsMalformed() {
		return nil, &FlowError{Kind: FlowInvalidResponse}
	}

	// Critical security check: the callback must belong to this request
	if result.State != state {
		logging.Warn("Auth", "OAuth state mismatch detected - possible CSRF attack (expected_len=%d received_len=%d)",
			len(state), len(result.State))
		return nil, &FlowError{Kind: FlowStateMismatch}
	}

	token, err := a.client.ExchangeCode(ctx, endpoints.TokenEndpoint, result.Code, redirectURI, reg.ClientID, pkce.CodeVerifier)
	if err != nil {
		return nil, err
	}

	if err := a.store.Save(token, reg.ClientID, endpoints.TokenEndpoint); err != nil {
		return nil, err
	}

	logging.Info("Auth", "Authorization complete (client_id=%s)", reg.ClientID)
	return token, nil
}

func (a *Authorizer) authTimeout() time.Duration {
	if a.cfg.AuthTimeout > 0 {
		return a.cfg.AuthTimeout
	}
	return config.DefaultAuthTimeout
}

// RenewalResult reports what the renewal path did.
type RenewalResult struct {
	// Refreshed is false when the stored token was still comfortably valid
	// and no network call was made.
	Refreshed bool

	// ExpiresAt is the access token expiry after the call.
	ExpiresAt time.Time
}

// Renew refreshes the stored credentials using the refresh grant. When the
// access token is still valid for more than RefreshValidityMargin and force
// is false, no network call is made. Missing refresh material returns
// ErrMissingRefreshMaterial; the caller should run the full flow instead.
func (a *Authorizer) Renew(ctx context.Context, force bool) (*RenewalResult, error) {
	record, err := a.store.Load()
	if err != nil {
		return nil, err
	}

	if !record.HasRefreshMaterial() {
		return nil, ErrMissingRefreshMaterial
	}

	if remaining := record.ExpiresIn(time.Now()); !force && remaining > RefreshValidityMargin {
		logging.Debug("Auth", "Access token still valid for %s, skipping refresh", remaining.Round(time.Second))
		return &RenewalResult{
			Refreshed: false,
			ExpiresAt: time.Unix(record.ExpiresAt, 0),
		}, nil
	}

	token, err := a.client.RefreshToken(ctx, record.TokenEndpoint, record.RefreshToken, record.ClientID)
	if err != nil {
		return nil, err
	}

	// Servers may rotate the refresh token or omit it entirely; keep the
	// previous one when none is returned so renewal keeps working.
	if token.RefreshToken == "" {
		token.RefreshToken = record.RefreshToken
	}

	if err := a.store.Save(token, record.ClientID, record.TokenEndpoint); err != nil {
		return nil, err
	}

	logging.Info("Auth", "Access token refreshed (expires_at=%s)", token.ExpiresAt.Format(time.RFC3339))
	return &RenewalResult{
		Refreshed: true,
		ExpiresAt: token.ExpiresAt,
	}, nil
}
