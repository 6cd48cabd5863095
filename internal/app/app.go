package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/photofeed/internal/auth"
	"github.com/florianilch/photofeed/internal/cookies"
	"github.com/florianilch/photofeed/internal/feed"
	"github.com/florianilch/photofeed/internal/photoapi"
	"github.com/florianilch/photofeed/internal/profile"
	"github.com/florianilch/photofeed/internal/session"
	"github.com/florianilch/photofeed/internal/tokenstore"
)

// ErrSignedOut is returned by operations that need a stored token when none exists.
var ErrSignedOut = errors.New("not signed in")

// App wires the token store, auth session, feed, profile and logout
// coordinator around one shared HTTP client.
type App struct {
	cfg *Config

	tokens      tokenstore.TokenStore
	cookies     *cookies.Jar
	client      *photoapi.Client
	auth        *auth.Session
	feed        *feed.Service
	profile     *profile.Session
	coordinator *session.Coordinator
}

// New creates a new App instance. No network I/O is performed.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tokens, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	return newApp(cfg, tokens)
}

func newApp(cfg *Config, tokens tokenstore.TokenStore) (*App, error) {
	jar, err := cookies.NewJar()
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	httpClient := &http.Client{
		Timeout: cfg.API.Timeout,
		Jar:     jar,
	}

	client, err := photoapi.NewClient(cfg.API.BaseURL, tokens, photoapi.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	authSession, err := auth.NewSession(cfg.authConfig(), tokens, auth.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create auth session: %w", err)
	}

	feedService, err := feed.NewService(client, feed.WithPerPage(cfg.API.PerPage))
	if err != nil {
		return nil, fmt.Errorf("failed to create feed: %w", err)
	}

	profileSession, err := profile.NewSession(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile session: %w", err)
	}

	coordinator, err := session.NewCoordinator(session.Components{
		Tokens:  tokens,
		Auth:    authSession,
		Profile: profileSession,
		Feed:    feedService,
		Cookies: jar,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session coordinator: %w", err)
	}

	return &App{
		cfg:         cfg,
		tokens:      tokens,
		cookies:     jar,
		client:      client,
		auth:        authSession,
		feed:        feedService,
		profile:     profileSession,
		coordinator: coordinator,
	}, nil
}

// Auth returns the authorization session.
func (a *App) Auth() *auth.Session { return a.auth }

// Feed returns the photo feed.
func (a *App) Feed() *feed.Service { return a.feed }

// Profile returns the profile session.
func (a *App) Profile() *profile.Session { return a.profile }

// Coordinator returns the logout coordinator.
func (a *App) Coordinator() *session.Coordinator { return a.coordinator }

// Authenticated reports whether a token is stored.
func (a *App) Authenticated(ctx context.Context) (bool, error) {
	return a.coordinator.Authenticated(ctx)
}

// Login exchanges code for a token, then loads the profile and avatar.
// A failure after the exchange is logged and returned; the token stays stored.
func (a *App) Login(ctx context.Context, code string) (profile.Profile, error) {
	token, err := a.auth.Exchange(ctx, code)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("sign-in failed: %w", err)
	}
	slog.InfoContext(ctx, "signed in")

	return a.loadProfile(ctx, token)
}

// Bootstrap loads the signed-in state: the profile and avatar chain and the
// first feed page are fetched concurrently. Returns ErrSignedOut without a
// stored token.
func (a *App) Bootstrap(ctx context.Context) error {
	token, err := a.storedToken(ctx)
	if err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, err := a.loadProfile(gCtx, token)
		return err
	})
	g.Go(func() error {
		if err := a.feed.FetchNextPage(gCtx); err != nil {
			return fmt.Errorf("failed to load feed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.InfoContext(ctx, "session ready", "photos", a.feed.Len())
	return nil
}

// LoadProfile loads the profile and avatar for the stored token.
func (a *App) LoadProfile(ctx context.Context) (profile.Profile, error) {
	token, err := a.storedToken(ctx)
	if err != nil {
		return profile.Profile{}, err
	}
	return a.loadProfile(ctx, token)
}

// Logout resets every component back to the signed-out state.
func (a *App) Logout(ctx context.Context) error {
	return a.coordinator.Logout(ctx)
}

func (a *App) loadProfile(ctx context.Context, token string) (profile.Profile, error) {
	p, err := a.profile.FetchProfile(ctx, token)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("failed to load profile: %w", err)
	}

	if _, err := a.profile.FetchAvatarURL(ctx, p.Username); err != nil {
		return p, fmt.Errorf("failed to load avatar: %w", err)
	}

	return p, nil
}

func (a *App) storedToken(ctx context.Context) (string, error) {
	token, err := a.tokens.Read(ctx)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return "", ErrSignedOut
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return token, nil
}
