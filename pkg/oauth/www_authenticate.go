package oauth

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// RemappedChallengeHeader is the header name some API gateways substitute for
// WWW-Authenticate on proxied responses (AWS API Gateway remaps hop-sensitive
// headers with this prefix). Discovery checks both names.
const RemappedChallengeHeader = "X-Amzn-Remapped-WWW-Authenticate"

// ParseWWWAuthenticate parses a WWW-Authenticate header value.
// It supports the Bearer scheme with OAuth 2.0 parameters.
//
// Example headers:
//
//	Bearer realm="https://auth.example.com"
//	Bearer realm="https://auth.example.com", scope="openid profile"
//	Bearer resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"
//
// Returns an AuthChallenge with the parsed parameters, or an error if parsing fails.
func ParseWWWAuthenticate(header string) (*AuthChallenge, error) {
	if header == "" {
		return nil, fmt.Errorf("empty WWW-Authenticate header")
	}

	// Split into scheme and parameters
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if parts[0] == "" {
		return nil, fmt.Errorf("invalid WWW-Authenticate header format")
	}

	challenge := &AuthChallenge{
		Scheme: parts[0],
	}

	if len(parts) > 1 {
		params := parseAuthParams(parts[1])

		if realm, ok := params["realm"]; ok {
			challenge.Realm = realm
		}

		if resourceMeta, ok := params["resource_metadata"]; ok {
			challenge.ResourceMetadataURL = resourceMeta
		}

		if scope, ok := params["scope"]; ok {
			challenge.Scope = scope
		}

		if errCode, ok := params["error"]; ok {
			challenge.Error = errCode
		}

		if errDesc, ok := params["error_description"]; ok {
			challenge.ErrorDescription = errDesc
		}
	}

	return challenge, nil
}

// parseAuthParams parses the parameter portion of a WWW-Authenticate header.
// Parameters are in the format: key1="value1", key2="value2"
func parseAuthParams(paramStr string) map[string]string {
	params := make(map[string]string)

	// Simple key="value" extraction, tolerant of unknown co-existing parameters
	paramRegex := regexp.MustCompile(`(\w+)="([^"]*)"`)
	matches := paramRegex.FindAllStringSubmatch(paramStr, -1)

	for _, match := range matches {
		if len(match) == 3 {
			key := strings.ToLower(match[1])
			params[key] = match[2]
		}
	}

	return params
}

// ChallengeHeaderFromResponse returns the challenge header value from a
// response, checking WWW-Authenticate first and the proxy-remapped alias
// second. Header lookup is case-insensitive per net/http canonicalization.
// Returns the empty string when neither header is present.
func ChallengeHeaderFromResponse(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	if header := resp.Header.Get("WWW-Authenticate"); header != "" {
		return header
	}
	return resp.Header.Get(RemappedChallengeHeader)
}

// ParseWWWAuthenticateFromResponse extracts an auth challenge from a 401
// response. Returns nil if no challenge header is present or parsing fails.
func ParseWWWAuthenticateFromResponse(resp *http.Response) *AuthChallenge {
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return nil
	}

	header := ChallengeHeaderFromResponse(resp)
	if header == "" {
		return nil
	}

	challenge, err := ParseWWWAuthenticate(header)
	if err != nil {
		return nil
	}

	return challenge
}
