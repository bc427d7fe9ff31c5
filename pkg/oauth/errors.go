package oauth

import "fmt"

// DiscoveryError indicates a failure in the endpoint discovery chain
// (resource probe, resource metadata, or authorization server metadata).
// Discovery is a one-shot sequential chain; the first failing step aborts
// the whole run.
type DiscoveryError struct {
	// Step names the discovery step that failed ("probe", "challenge",
	// "resource-metadata", "server-metadata").
	Step string

	// Status is the HTTP status code, when the failure was an unexpected
	// response rather than a transport error.
	Status int

	// Message is the human-readable failure description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

func (e *DiscoveryError) Error() string {
	msg := fmt.Sprintf("discovery failed at %s: %s", e.Step, e.Message)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// RegistrationError indicates that dynamic client registration failed.
// It carries the raw response for diagnosis since registration endpoints
// vary widely in their error reporting.
type RegistrationError struct {
	Status int
	Body   string
	Err    error
}

func (e *RegistrationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("client registration failed: %v", e.Err)
	}
	return fmt.Sprintf("client registration failed with status %d: %s", e.Status, e.Body)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// TokenExchangeError indicates that a token endpoint request failed, either
// at the HTTP level or because the response lacked an access token.
type TokenExchangeError struct {
	// Grant is the grant type that was attempted ("authorization_code" or
	// "refresh_token").
	Grant string

	Status int
	Body   string
	Err    error
}

func (e *TokenExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s grant failed: %v", e.Grant, e.Err)
	}
	if e.Status != 0 && e.Status != 200 {
		return fmt.Sprintf("%s grant failed with status %d: %s", e.Grant, e.Status, e.Body)
	}
	return fmt.Sprintf("%s grant returned a malformed token response: %s", e.Grant, e.Body)
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }
