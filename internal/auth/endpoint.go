package auth

import (
	"golang.org/x/oauth2"
)

// OutOfBandRedirectURI asks the authorization server to display the code
// instead of redirecting to a client-controlled URL.
const OutOfBandRedirectURI = "urn:ietf:wg:oauth:2.0:oob"

// Endpoint defines the OAuth2 endpoints of the photo service.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://unsplash.com/oauth/authorize",
	TokenURL:  "https://unsplash.com/oauth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// DefaultScopes grants read access to the feed and profile plus like management.
var DefaultScopes = []string{"public", "read_user", "write_likes"}
