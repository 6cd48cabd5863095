// Package auth exchanges OAuth2 authorization codes for bearer tokens.
//
// The photo API uses the standard authorization-code grant with client
// credentials sent as form parameters. A Session performs at most one
// exchange at a time:
//
//   - a second call for the code already in flight fails with ErrRequestInProgress
//   - a call for a different code cancels the one in flight and starts over
//   - a call repeating the code that just produced a token fails with ErrAlreadyHaveToken
//
// The authorization code itself arrives through a redirect. Use AuthCodeURL
// to build the page the user signs in on and CodeFromRedirect to pull the
// code out of the redirect URL:
//
//	link := session.AuthCodeURL(state)
//	// ... user signs in, browser is redirected ...
//	code, err := auth.CodeFromRedirect(redirectURL, state)
//	token, err := session.Exchange(ctx, code)
package auth
