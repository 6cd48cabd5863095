// Package session resets the whole client back to the signed-out state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/florianilch/photofeed/internal/event"
	"github.com/florianilch/photofeed/internal/tokenstore"
)

// LoggedOut is published once a logout has run every reset step. Observers
// should return to the unauthenticated entry point.
type LoggedOut struct {
	// Err is non-nil when some step failed.
	Err error
}

// AuthResetter forgets in-flight and completed code exchanges.
type AuthResetter interface {
	Reset()
}

// ProfileClearer drops the stored profile and avatar URL.
type ProfileClearer interface {
	ClearProfile()
	ClearAvatarURL()
}

// FeedResetter empties the photo feed.
type FeedResetter interface {
	Reset()
}

// CookieClearer drops browser session cookies held for the authorization server.
type CookieClearer interface {
	Clear(ctx context.Context) error
}

// Components lists everything a logout resets. Auth and Cookies are optional.
type Components struct {
	Tokens  tokenstore.TokenStore
	Auth    AuthResetter
	Profile ProfileClearer
	Feed    FeedResetter
	Cookies CookieClearer
}

// Coordinator is the single entry point for logging out.
type Coordinator struct {
	c         Components
	loggedOut event.Bus[LoggedOut]
}

// NewCoordinator creates a Coordinator for the given components.
func NewCoordinator(c Components) (*Coordinator, error) {
	if c.Tokens == nil {
		return nil, fmt.Errorf("missing token store")
	}
	if c.Profile == nil {
		return nil, fmt.Errorf("missing profile")
	}
	if c.Feed == nil {
		return nil, fmt.Errorf("missing feed")
	}
	return &Coordinator{c: c}, nil
}

// SubscribeLoggedOut registers fn for logout notifications.
func (co *Coordinator) SubscribeLoggedOut(fn func(LoggedOut)) (unsubscribe func()) {
	return co.loggedOut.Subscribe(fn)
}

// Authenticated reports whether a token is stored.
func (co *Coordinator) Authenticated(ctx context.Context) (bool, error) {
	_, err := co.c.Tokens.Read(ctx)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading token: %w", err)
	}
	return true, nil
}

// Logout clears the token, profile, avatar URL, feed and cookies, in that
// order, then publishes LoggedOut. Every step runs even if an earlier one
// fails; the failures are joined. Logging out while signed out is a no-op
// that still succeeds. Cancelling ctx does not stop the clear steps, so an
// interrupted logout never leaves the token behind.
func (co *Coordinator) Logout(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error

	if co.c.Auth != nil {
		co.c.Auth.Reset()
	}
	if err := co.c.Tokens.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clearing token: %w", err))
	}
	co.c.Profile.ClearProfile()
	co.c.Profile.ClearAvatarURL()
	co.c.Feed.Reset()
	if co.c.Cookies != nil {
		if err := co.c.Cookies.Clear(ctx); err != nil {
			errs = append(errs, fmt.Errorf("clearing cookies: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		slog.ErrorContext(ctx, "logout incomplete", "error", err)
	} else {
		slog.InfoContext(ctx, "logged out")
	}

	co.loggedOut.Publish(LoggedOut{Err: err})
	return err
}
