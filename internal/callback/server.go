// Package callback receives the OAuth2 authorization redirect on a loopback
// address and hands the authorization code to the caller.
package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/florianilch/photofeed/internal/auth"
)

// Server listens for a single authorization redirect.
type Server struct {
	redirect *url.URL
	state    string

	mux    *http.ServeMux
	server *http.Server

	once    sync.Once
	results chan result
}

type result struct {
	code string
	err  error
}

// Compile-time check that Server implements http.Handler
var _ http.Handler = (*Server)(nil)

// IsLoopback reports whether redirectURI points at a plain-HTTP loopback
// address that this package can serve.
func IsLoopback(redirectURI string) bool {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Scheme != "http" {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// New creates a Server for redirectURI. When state is non-empty, redirects
// carrying a different state are rejected.
func New(redirectURI, state string) (*Server, error) {
	if !IsLoopback(redirectURI) {
		return nil, fmt.Errorf("redirect uri %q is not a loopback http address", redirectURI)
	}
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect uri: %w", err)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	s := &Server{
		redirect: u,
		state:    state,
		results:  make(chan result, 1),
	}

	mux := http.NewServeMux()
	mux.Handle("GET "+path, applyMiddlewares(http.HandlerFunc(s.handleRedirect),
		stripQuery,
		Logging(slog.Default()),
		Recovery,
	))
	s.mux = mux

	return s, nil
}

// Address returns the host:port from the redirect URI, defaulting to port 80.
func (s *Server) Address() string {
	port := s.redirect.Port()
	if port == "" {
		port = "80"
	}
	return net.JoinHostPort(s.redirect.Hostname(), port)
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	redirect := *r.URL
	redirect.RawQuery = rawQueryFrom(r.Context())

	code, err := auth.CodeFromRedirect(redirect.String(), s.state)

	var redirectErr *auth.RedirectError
	switch {
	case err == nil:
		s.deliver(result{code: code})
		writeText(w, http.StatusOK, "Signed in. You can close this window.")
	case errors.As(err, &redirectErr):
		s.deliver(result{err: err})
		writeText(w, http.StatusOK, "Sign-in was not completed. You can close this window.")
	default:
		// Stray or forged requests do not end the wait
		slog.WarnContext(r.Context(), "rejected authorization redirect", "error", err)
		writeText(w, http.StatusBadRequest, "Invalid authorization redirect.")
	}
}

// deliver hands over the first result only.
func (s *Server) deliver(res result) {
	s.once.Do(func() {
		s.results <- res
	})
}

// Wait blocks until a redirect with a code (or an authorization error) arrives.
func (s *Server) Wait(ctx context.Context) (string, error) {
	select {
	case res := <-s.results:
		return res.code, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (s *Server) Start(ctx context.Context, address string) (<-chan error, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.server = &http.Server{
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := s.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = s.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}

func writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintln(w, message)
}

type rawQueryKey struct{}

func withRawQuery(ctx context.Context, rawQuery string) context.Context {
	return context.WithValue(ctx, rawQueryKey{}, rawQuery)
}

func rawQueryFrom(ctx context.Context) string {
	rawQuery, _ := ctx.Value(rawQueryKey{}).(string)
	return rawQuery
}
