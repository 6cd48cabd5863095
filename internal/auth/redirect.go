package auth

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrNoCode is returned when a redirect URL carries no authorization code.
var ErrNoCode = errors.New("no authorization code in redirect")

// RedirectError is an authorization failure reported by the server through the redirect.
type RedirectError struct {
	Code        string
	Description string
}

func (e *RedirectError) Error() string {
	if e.Description == "" {
		return "authorization denied: " + e.Code
	}
	return fmt.Sprintf("authorization denied: %s (%s)", e.Code, e.Description)
}

// CodeFromRedirect extracts the "code" query parameter from the URL the
// authorization server redirected to. When wantState is non-empty the
// redirect must carry the same "state" value.
func CodeFromRedirect(rawURL, wantState string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing redirect URL: %w", err)
	}

	query := u.Query()
	if e := query.Get("error"); e != "" {
		return "", &RedirectError{Code: e, Description: query.Get("error_description")}
	}
	if wantState != "" && query.Get("state") != wantState {
		return "", fmt.Errorf("redirect state mismatch")
	}

	code := query.Get("code")
	if code == "" {
		return "", ErrNoCode
	}
	return code, nil
}
