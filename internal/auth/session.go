package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/photofeed/internal/event"
	"github.com/florianilch/photofeed/internal/flight"
	"github.com/florianilch/photofeed/internal/photoapi"
	"github.com/florianilch/photofeed/internal/tokenstore"
)

var (
	// ErrRequestInProgress is returned when an exchange for the same code is already running.
	ErrRequestInProgress = errors.New("token request already in progress")

	// ErrAlreadyHaveToken is returned when the code was just exchanged successfully.
	ErrAlreadyHaveToken = errors.New("code already exchanged for a token")
)

// Config describes the OAuth2 client.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	Endpoint     oauth2.Endpoint
}

// Phase marks the start or end of a blocking operation.
type Phase int

const (
	OperationStarted Phase = iota
	OperationEnded
)

// Activity brackets the time any token exchange is running so a presentation
// layer can block input meanwhile. OperationStarted is emitted when the first
// exchange begins and OperationEnded once none is left, so an exchange that
// supersedes another stays inside the same bracket.
type Activity struct {
	Phase Phase
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithHTTPClient sets the HTTP client used for token requests.
// If not provided, a client with a 30 second timeout is used.
func WithHTTPClient(httpClient *http.Client) SessionOption {
	return func(s *Session) {
		s.httpClient = httpClient
	}
}

// Session exchanges authorization codes for bearer tokens and persists them.
// Safe for concurrent use.
type Session struct {
	oauth      *oauth2.Config
	tokens     tokenstore.TokenStore
	httpClient *http.Client
	activity   event.Bus[Activity]

	mu sync.Mutex
	// exchange is keyed by the authorization code in flight.
	exchange flight.Slot
	// exchangedCode is the code of the last successful exchange, cleared
	// as soon as another exchange starts.
	exchangedCode string
	// running counts exchanges whose request has not returned yet.
	running int
}

// NewSession creates a Session that stores obtained tokens in tokens.
func NewSession(cfg Config, tokens tokenstore.TokenStore, opts ...SessionOption) (*Session, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("missing client id")
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("missing redirect uri")
	}
	if _, err := url.Parse(cfg.Endpoint.TokenURL); err != nil || cfg.Endpoint.TokenURL == "" {
		return nil, fmt.Errorf("invalid token url %q", cfg.Endpoint.TokenURL)
	}
	if tokens == nil {
		return nil, fmt.Errorf("missing token store")
	}

	s := &Session{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint:     cfg.Endpoint,
		},
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AuthCodeURL returns the authorization page URL with client_id, redirect_uri,
// response_type=code and scope. An empty state is omitted.
func (s *Session) AuthCodeURL(state string) string {
	u := s.oauth.AuthCodeURL(state)
	if state != "" {
		return u
	}

	// oauth2 always emits the state parameter
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	query := parsed.Query()
	query.Del("state")
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// SubscribeActivity registers fn for exchange start/end notifications.
func (s *Session) SubscribeActivity(fn func(Activity)) (unsubscribe func()) {
	return s.activity.Subscribe(fn)
}

// Pending reports the code currently being exchanged, if any.
func (s *Session) Pending() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exchange.State() == flight.Idle {
		return "", false
	}
	return s.exchange.Key(), true
}

// Exchange trades code for a bearer token and writes it to the token store.
//
// An exchange superseded by a call with a different code, or cancelled
// through Reset, returns photoapi.ErrCanceled and leaves all state alone.
// Failures clear the bookkeeping so the same code can be retried.
func (s *Session) Exchange(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("%w: empty authorization code", photoapi.ErrInvalidRequest)
	}

	s.mu.Lock()
	switch {
	case s.exchange.State() == flight.Pending && s.exchange.Key() == code:
		s.mu.Unlock()
		return "", ErrRequestInProgress
	case s.exchange.State() == flight.Idle && s.exchangedCode == code:
		s.mu.Unlock()
		return "", ErrAlreadyHaveToken
	}
	if s.exchange.State() == flight.Pending {
		slog.DebugContext(ctx, "superseding token request for a different code")
	}
	s.exchangedCode = ""
	reqCtx, ticket := s.exchange.Begin(ctx, code)
	s.running++
	first := s.running == 1
	s.mu.Unlock()

	if first {
		s.activity.Publish(Activity{Phase: OperationStarted})
	}
	token, err := s.oauth.Exchange(context.WithValue(reqCtx, oauth2.HTTPClient, s.httpClient), code)

	s.mu.Lock()
	s.running--
	if s.running == 0 {
		// Deferred before the unlock so it runs after it
		defer s.activity.Publish(Activity{Phase: OperationEnded})
	}
	defer s.mu.Unlock()

	if !s.exchange.Finish(ticket) {
		return "", fmt.Errorf("%w: superseded", photoapi.ErrCanceled)
	}

	if err != nil {
		err = classifyExchangeError(ctx, err)
		slog.WarnContext(ctx, "token exchange failed", "error", err)
		return "", err
	}

	if err := s.tokens.Write(ctx, token.AccessToken); err != nil {
		return "", fmt.Errorf("persisting token: %w", err)
	}
	s.exchangedCode = code

	slog.InfoContext(ctx, "obtained access token", "token_type", token.Type())
	return token.AccessToken, nil
}

// Reset cancels any exchange in flight and forgets the last exchanged code.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exchange.Cancel()
	s.exchangedCode = ""
}

// classifyExchangeError maps oauth2 failures onto the photoapi error taxonomy.
func classifyExchangeError(ctx context.Context, err error) error {
	var retrieveErr *oauth2.RetrieveError
	var urlErr *url.Error

	switch {
	case errors.As(err, &retrieveErr):
		status := &photoapi.StatusError{}
		if retrieveErr.Response != nil {
			status.Code = retrieveErr.Response.StatusCode
		}
		if retrieveErr.ErrorCode != "" {
			return fmt.Errorf("%w: %s", status, retrieveErr.ErrorCode)
		}
		return status
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %w", photoapi.ErrCanceled, ctx.Err())
	case errors.As(err, &urlErr):
		return fmt.Errorf("%w: %w", photoapi.ErrTransport, err)
	default:
		// oauth2 reports unparseable bodies and a missing access_token as plain errors
		return fmt.Errorf("%w: %w", photoapi.ErrDecoding, err)
	}
}
