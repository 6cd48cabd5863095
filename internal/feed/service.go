// Package feed keeps the paginated photo feed of the signed-in user in memory.
//
// Pages are appended in fetch order and never re-sorted. Like state changes
// only after the server confirms the like or unlike call; there is no
// optimistic update to roll back.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"github.com/florianilch/photofeed/internal/event"
	"github.com/florianilch/photofeed/internal/flight"
	"github.com/florianilch/photofeed/internal/photoapi"
)

// DefaultPerPage is the page size requested from the API.
const DefaultPerPage = 10

// AllPhotos is the Change index meaning the collection grew or was cleared.
const AllPhotos = -1

// ErrNotFound indicates the server confirmed a like for a photo that is not
// in the local collection, meaning the two have diverged.
var ErrNotFound = errors.New("photo not found in feed")

// API is the subset of the photo API the feed depends on.
type API interface {
	ListPhotos(ctx context.Context, page, perPage int) ([]photoapi.PhotoResult, error)
	LikePhoto(ctx context.Context, id string) error
	UnlikePhoto(ctx context.Context, id string) error
}

// Compile-time check that the API client satisfies API
var _ API = (*photoapi.Client)(nil)

// Change describes a mutation of the collection. Index is the position of the
// single photo that changed, or AllPhotos when photos were appended or removed
// and observers should diff the whole collection.
type Change struct {
	Index int
}

// Reload reports whether the change covers the whole collection.
func (c Change) Reload() bool {
	return c.Index == AllPhotos
}

// Option configures a Service.
type Option func(*Service)

// WithPerPage sets the number of photos requested per page.
func WithPerPage(n int) Option {
	return func(s *Service) {
		s.perPage = n
	}
}

// Service loads feed pages and tracks like state. Safe for concurrent use;
// at most one page fetch and one like call run at a time.
type Service struct {
	api     API
	perPage int
	changes event.Bus[Change]

	// notifyMu is held from a mutation until its Change is delivered, so
	// observers see changes in the order they were applied.
	notifyMu sync.Mutex

	mu       sync.Mutex
	photos   []Photo
	lastPage int
	fetch    flight.Slot
	like     flight.Slot
}

// NewService creates an empty feed backed by api.
func NewService(api API, opts ...Option) (*Service, error) {
	if api == nil {
		return nil, fmt.Errorf("missing api")
	}

	s := &Service{
		api:     api,
		perPage: DefaultPerPage,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.perPage < 1 {
		return nil, fmt.Errorf("invalid page size %d", s.perPage)
	}
	return s, nil
}

// Subscribe registers fn for collection changes. fn may read the feed but
// must not call FetchNextPage, SetLiked or Reset.
func (s *Service) Subscribe(fn func(Change)) (unsubscribe func()) {
	return s.changes.Subscribe(fn)
}

// FetchNextPage loads the page after the last one fetched and appends it.
//
// A call made while a fetch is outstanding returns nil without doing anything.
// On failure the collection is unchanged, no change is published and the
// same page is requested again on the next call.
func (s *Service) FetchNextPage(ctx context.Context) error {
	s.mu.Lock()
	if s.fetch.State() == flight.Pending {
		s.mu.Unlock()
		slog.DebugContext(ctx, "page fetch already in flight")
		return nil
	}
	page := s.lastPage + 1
	reqCtx, ticket := s.fetch.Begin(ctx, strconv.Itoa(page))
	s.mu.Unlock()

	results, err := s.api.ListPhotos(reqCtx, page, s.perPage)

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if !s.fetch.Finish(ticket) {
		s.mu.Unlock()
		return fmt.Errorf("%w: feed was reset", photoapi.ErrCanceled)
	}
	if err != nil {
		s.mu.Unlock()
		slog.WarnContext(ctx, "failed to fetch feed page", "page", page, "error", err)
		return fmt.Errorf("fetching page %d: %w", page, err)
	}

	for _, r := range results {
		s.photos = append(s.photos, photoFromResult(r))
	}
	s.lastPage = page
	total := len(s.photos)
	s.mu.Unlock()

	slog.DebugContext(ctx, "fetched feed page", "page", page, "photos", len(results), "total", total)
	s.changes.Publish(Change{Index: AllPhotos})
	return nil
}

// SetLiked likes or unlikes the photo with the given id. Any like call still
// in flight is cancelled and returns photoapi.ErrCanceled.
//
// The local flag is updated only after the server confirms, and a Change
// carrying the photo's index is published.
func (s *Service) SetLiked(ctx context.Context, id string, liked bool) error {
	s.mu.Lock()
	reqCtx, ticket := s.like.Begin(ctx, id)
	s.mu.Unlock()

	var err error
	if liked {
		err = s.api.LikePhoto(reqCtx, id)
	} else {
		err = s.api.UnlikePhoto(reqCtx, id)
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if !s.like.Finish(ticket) {
		s.mu.Unlock()
		return fmt.Errorf("%w: superseded", photoapi.ErrCanceled)
	}
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("updating like for %s: %w", id, err)
	}

	index := slices.IndexFunc(s.photos, func(p Photo) bool { return p.ID == id })
	if index < 0 {
		s.mu.Unlock()
		slog.ErrorContext(ctx, "confirmed like for photo missing from feed", "photo_id", id)
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.photos[index].Liked = liked
	s.mu.Unlock()

	s.changes.Publish(Change{Index: index})
	return nil
}

// Reset cancels outstanding requests, empties the collection and forgets the
// page cursor.
func (s *Service) Reset() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.fetch.Cancel()
	s.like.Cancel()
	s.photos = nil
	s.lastPage = 0
	s.mu.Unlock()

	s.changes.Publish(Change{Index: AllPhotos})
}

// Photos returns a copy of the collection in feed order.
func (s *Service) Photos() []Photo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.photos)
}

// Photo returns the photo at index i.
func (s *Service) Photo(i int) (Photo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.photos) {
		return Photo{}, false
	}
	return s.photos[i], true
}

// Len returns the number of loaded photos.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.photos)
}

// Page returns the last successfully fetched page, or 0 before the first fetch.
func (s *Service) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPage
}

// Fetching reports whether a page fetch is outstanding.
func (s *Service) Fetching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetch.State() == flight.Pending
}
