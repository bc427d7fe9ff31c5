// Package oauth implements the OAuth 2.1 protocol operations needed to obtain
// credentials for a protected resource: endpoint discovery via the
// WWW-Authenticate challenge chain (RFC 9728 + RFC 8414), dynamic client
// registration (RFC 7591), PKCE generation (RFC 7636), and the token endpoint
// grants (authorization_code and refresh_token).
//
// The package is transport-only: it performs single HTTP requests and returns
// typed errors (DiscoveryError, RegistrationError, TokenExchangeError) that
// carry the upstream status and body for diagnosis. It never retries and never
// persists anything; flow sequencing and storage live in internal/auth and
// internal/credentials.
//
// Example usage:
//
//	client := oauth.NewClient()
//	endpoints, err := client.DiscoverEndpoints(ctx, "https://mcp.granola.ai/mcp")
//	if err != nil {
//		return err
//	}
//	reg, err := client.RegisterClient(ctx, endpoints.RegistrationEndpoint, "granola-skill", redirectURI)
//	...
package oauth
