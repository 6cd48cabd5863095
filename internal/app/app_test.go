package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/florianilch/photofeed/internal/profile"
	"github.com/florianilch/photofeed/internal/session"
	"github.com/florianilch/photofeed/internal/tokenstore"
)

// fakeBackend serves the token endpoint and the photo API from one server.
type fakeBackend struct {
	*httptest.Server
	exchanges atomic.Int32
	feedCalls atomic.Int32
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		b.exchanges.Add(1)
		if r.FormValue("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]string{"error": "invalid_grant"})
			return
		}
		writeJSON(w, map[string]any{
			"access_token": "access-1",
			"token_type":   "bearer",
			"scope":        "public read_user write_likes",
		})
	})
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"username":   "alice",
			"first_name": "Alice",
			"last_name":  "Liddell",
			"bio":        "down the rabbit hole",
		})
	})
	mux.HandleFunc("GET /users/alice", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"profile_image": map[string]string{"small": "https://images.example/alice-s.jpg"},
		})
	})
	mux.HandleFunc("GET /photos", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		b.feedCalls.Add(1)
		writeJSON(w, []map[string]any{
			{"id": "p1", "width": 300, "height": 200, "urls": map[string]string{"thumb": "t1", "full": "f1"}},
			{"id": "p2", "width": 200, "height": 300, "urls": map[string]string{"thumb": "t2", "full": "f2"}},
		})
	})

	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

func authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer access-1" {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestApp(t *testing.T, backend *fakeBackend) (*App, *tokenstore.MemoryStore) {
	t.Helper()

	cfg := &Config{
		API:   APIConfig{BaseURL: backend.URL},
		OAuth: OAuthConfig{ClientID: "client-1", TokenURL: backend.URL + "/oauth/token"},
		Auth:  AuthConfig{Storage: TokenStorageTypeMemory},
	}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	store := tokenstore.NewMemoryStore()
	a, err := newApp(cfg, store)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	return a, store
}

func TestLoginLoadsProfile(t *testing.T) {
	backend := newFakeBackend(t)
	a, store := newTestApp(t, backend)
	ctx := context.Background()

	got, err := a.Login(ctx, "good-code")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	want := profile.Profile{
		Username:  "alice",
		Name:      "Alice Liddell",
		LoginName: "@alice",
		Bio:       "down the rabbit hole",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}

	if token, err := store.Read(ctx); err != nil || token != "access-1" {
		t.Errorf("stored token = %q, %v", token, err)
	}
	if url, ok := a.Profile().AvatarURL(); !ok || url != "https://images.example/alice-s.jpg" {
		t.Errorf("AvatarURL = %q, %v", url, ok)
	}
	if ok, err := a.Authenticated(ctx); err != nil || !ok {
		t.Errorf("Authenticated = %v, %v", ok, err)
	}
}

func TestLoginRejectedCode(t *testing.T) {
	backend := newFakeBackend(t)
	a, store := newTestApp(t, backend)
	ctx := context.Background()

	if _, err := a.Login(ctx, "bad-code"); err == nil {
		t.Fatal("Login with rejected code: expected error")
	}
	if _, err := store.Read(ctx); !errors.Is(err, tokenstore.ErrNotFound) {
		t.Errorf("token stored after rejected code: %v", err)
	}
	if _, ok := a.Profile().Profile(); ok {
		t.Error("profile stored after rejected code")
	}
}

func TestBootstrap(t *testing.T) {
	backend := newFakeBackend(t)
	a, store := newTestApp(t, backend)
	ctx := context.Background()

	if err := a.Bootstrap(ctx); !errors.Is(err, ErrSignedOut) {
		t.Fatalf("Bootstrap without token: got %v, want ErrSignedOut", err)
	}
	if n := backend.feedCalls.Load(); n != 0 {
		t.Errorf("feed requested without token: %d calls", n)
	}

	if err := store.Write(ctx, "access-1"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := a.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	if got := a.Feed().Len(); got != 2 {
		t.Errorf("feed length = %d, want 2", got)
	}
	if got := a.Feed().Page(); got != 1 {
		t.Errorf("feed page = %d, want 1", got)
	}
	if p, ok := a.Profile().Profile(); !ok || p.Username != "alice" {
		t.Errorf("Profile = %+v, %v", p, ok)
	}
}

func TestLogoutResetsEverything(t *testing.T) {
	backend := newFakeBackend(t)
	a, store := newTestApp(t, backend)
	ctx := context.Background()

	if _, err := a.Login(ctx, "good-code"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := a.Feed().FetchNextPage(ctx); err != nil {
		t.Fatalf("FetchNextPage: %v", err)
	}

	var events []session.LoggedOut
	unsubscribe := a.Coordinator().SubscribeLoggedOut(func(ev session.LoggedOut) {
		events = append(events, ev)
	})
	defer unsubscribe()

	if err := a.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, err := store.Read(ctx); !errors.Is(err, tokenstore.ErrNotFound) {
		t.Errorf("token after logout: %v", err)
	}
	if _, ok := a.Profile().Profile(); ok {
		t.Error("profile kept after logout")
	}
	if _, ok := a.Profile().AvatarURL(); ok {
		t.Error("avatar kept after logout")
	}
	if got := a.Feed().Len(); got != 0 {
		t.Errorf("feed length after logout = %d", got)
	}
	if len(events) != 1 || events[0].Err != nil {
		t.Errorf("LoggedOut events = %+v", events)
	}

	// The same code can be exchanged again after logout
	if _, err := a.Login(ctx, "good-code"); err != nil {
		t.Errorf("Login after logout: %v", err)
	}
	if n := backend.exchanges.Load(); n != 2 {
		t.Errorf("token endpoint calls = %d, want 2", n)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := &Config{Auth: AuthConfig{Storage: TokenStorageTypeMemory}}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}
	// No client id
	if _, err := New(cfg); err == nil {
		t.Error("New without client id: expected error")
	}
}
