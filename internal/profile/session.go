// Package profile holds the signed-in user's profile and avatar URL.
//
// Both are fetched once per login and stay read-only until cleared. The
// profile and the avatar have separate lifecycles: each is fetched by its own
// request, superseded independently and cleared independently.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/florianilch/photofeed/internal/event"
	"github.com/florianilch/photofeed/internal/flight"
	"github.com/florianilch/photofeed/internal/photoapi"
)

// Profile is the signed-in user as shown on the profile screen. Name joins
// first and last name with a single space, skipping missing parts; LoginName
// is the username prefixed with "@".
type Profile struct {
	Username  string
	Name      string
	LoginName string
	Bio       string
}

// AvatarChange is published whenever a new avatar URL is stored.
type AvatarChange struct {
	URL string
}

// API is the subset of the photo API the profile depends on.
type API interface {
	Me(ctx context.Context, token string) (photoapi.ProfileResult, error)
	User(ctx context.Context, username string) (photoapi.UserResult, error)
}

// Compile-time check that the API client satisfies API
var _ API = (*photoapi.Client)(nil)

// Session fetches and caches the profile and avatar URL. Safe for concurrent use.
type Session struct {
	api    API
	avatar event.Bus[AvatarChange]

	mu            sync.Mutex
	profile       *Profile
	avatarURL     string
	profileFlight flight.Slot
	avatarFlight  flight.Slot
}

// NewSession creates an empty Session backed by api.
func NewSession(api API) (*Session, error) {
	if api == nil {
		return nil, fmt.Errorf("missing api")
	}
	return &Session{api: api}, nil
}

// SubscribeAvatar registers fn for avatar URL updates.
func (s *Session) SubscribeAvatar(fn func(AvatarChange)) (unsubscribe func()) {
	return s.avatar.Subscribe(fn)
}

// FetchProfile loads the profile of the user token belongs to and stores it.
// A profile fetch still in flight is cancelled and returns photoapi.ErrCanceled.
func (s *Session) FetchProfile(ctx context.Context, token string) (Profile, error) {
	s.mu.Lock()
	reqCtx, ticket := s.profileFlight.Begin(ctx, "")
	s.mu.Unlock()

	result, err := s.api.Me(reqCtx, token)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.profileFlight.Finish(ticket) {
		return Profile{}, fmt.Errorf("%w: superseded", photoapi.ErrCanceled)
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to fetch profile", "error", err)
		return Profile{}, fmt.Errorf("fetching profile: %w", err)
	}

	p := profileFromResult(result)
	s.profile = &p
	return p, nil
}

// FetchAvatarURL loads the avatar of username, stores its small variant and
// publishes an AvatarChange. An avatar fetch still in flight is cancelled.
func (s *Session) FetchAvatarURL(ctx context.Context, username string) (string, error) {
	s.mu.Lock()
	reqCtx, ticket := s.avatarFlight.Begin(ctx, username)
	s.mu.Unlock()

	result, err := s.api.User(reqCtx, username)

	s.mu.Lock()
	if !s.avatarFlight.Finish(ticket) {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: superseded", photoapi.ErrCanceled)
	}
	if err != nil {
		s.mu.Unlock()
		slog.WarnContext(ctx, "failed to fetch avatar", "username", username, "error", err)
		return "", fmt.Errorf("fetching avatar: %w", err)
	}
	url := result.ProfileImage.Small
	s.avatarURL = url
	s.mu.Unlock()

	s.avatar.Publish(AvatarChange{URL: url})
	return url, nil
}

// Profile returns the stored profile.
func (s *Session) Profile() (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.profile == nil {
		return Profile{}, false
	}
	return *s.profile, true
}

// AvatarURL returns the stored avatar URL.
func (s *Session) AvatarURL() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.avatarURL, s.avatarURL != ""
}

// ClearProfile drops the stored profile and cancels a profile fetch in flight.
func (s *Session) ClearProfile() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profileFlight.Cancel()
	s.profile = nil
}

// ClearAvatarURL drops the stored avatar URL and cancels an avatar fetch in flight.
func (s *Session) ClearAvatarURL() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.avatarFlight.Cancel()
	s.avatarURL = ""
}

func profileFromResult(r photoapi.ProfileResult) Profile {
	var parts []string
	for _, part := range []*string{r.FirstName, r.LastName} {
		if part != nil && *part != "" {
			parts = append(parts, *part)
		}
	}

	p := Profile{
		Username:  r.Username,
		Name:      strings.Join(parts, " "),
		LoginName: "@" + r.Username,
	}
	if r.Bio != nil {
		p.Bio = *r.Bio
	}
	return p
}
