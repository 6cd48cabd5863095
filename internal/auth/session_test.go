package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/oauth2"

	"github.com/florianilch/photofeed/internal/photoapi"
	"github.com/florianilch/photofeed/internal/tokenstore"
)

// tokenServer is a fake OAuth2 token endpoint. Codes listed in block wait
// until release is closed or the request is cancelled.
type tokenServer struct {
	*httptest.Server
	calls   atomic.Int32
	entered chan string
	release chan struct{}
	block   map[string]bool
	status  int
	body    string
	// onRequest observes every request after its form is parsed
	onRequest func(*http.Request)
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()

	ts := &tokenServer{
		entered: make(chan string, 10),
		release: make(chan struct{}),
		block:   map[string]bool{},
		status:  http.StatusOK,
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(ts.handle))
	t.Cleanup(func() {
		select {
		case <-ts.release:
		default:
			close(ts.release)
		}
		ts.Close()
	})
	return ts
}

func (ts *tokenServer) handle(w http.ResponseWriter, r *http.Request) {
	ts.calls.Add(1)
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if ts.onRequest != nil {
		ts.onRequest(r)
	}
	code := r.PostForm.Get("code")
	ts.entered <- code

	if ts.block[code] {
		select {
		case <-ts.release:
		case <-r.Context().Done():
			return
		}
	}

	if ts.status != http.StatusOK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(ts.status)
		_, _ = w.Write([]byte(`{"error": "invalid_grant"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if ts.body != "" {
		_, _ = w.Write([]byte(ts.body))
		return
	}
	_, _ = fmt.Fprintf(w, `{"access_token": "token-%s", "token_type": "bearer", "scope": "public"}`, code)
}

func newTestSession(t *testing.T, ts *tokenServer) (*Session, *tokenstore.MemoryStore) {
	t.Helper()

	store := tokenstore.NewMemoryStore()
	session, err := NewSession(Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURI:  OutOfBandRedirectURI,
		Scopes:       DefaultScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   ts.URL + "/oauth/authorize",
			TokenURL:  ts.URL + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}, store, WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return session, store
}

func waitEntered(t *testing.T, ts *tokenServer, want string) {
	t.Helper()
	select {
	case got := <-ts.entered:
		if got != want {
			t.Fatalf("server received code %q, want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for request with code %q", want)
	}
}

func storedToken(t *testing.T, store tokenstore.TokenStore) string {
	t.Helper()
	token, err := store.Read(context.Background())
	if errors.Is(err, tokenstore.ErrNotFound) {
		return ""
	}
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return token
}

func TestExchangeSuccess(t *testing.T) {
	var form url.Values
	ts := newTokenServer(t)
	ts.onRequest = func(r *http.Request) { form = r.PostForm }
	session, store := newTestSession(t, ts)

	token, err := session.Exchange(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if token != "token-abc" {
		t.Errorf("token = %q, want token-abc", token)
	}
	if got := storedToken(t, store); got != "token-abc" {
		t.Errorf("stored token = %q, want token-abc", got)
	}

	want := map[string]string{
		"client_id":     "client",
		"client_secret": "secret",
		"redirect_uri":  OutOfBandRedirectURI,
		"code":          "abc",
		"grant_type":    "authorization_code",
	}
	for key, value := range want {
		if got := form.Get(key); got != value {
			t.Errorf("form %s = %q, want %q", key, got, value)
		}
	}

	if _, pending := session.Pending(); pending {
		t.Error("session still pending after success")
	}
}

func TestExchangeSameCodeInFlight(t *testing.T) {
	ts := newTokenServer(t)
	ts.block["abc"] = true
	session, _ := newTestSession(t, ts)

	type result struct {
		token string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		token, err := session.Exchange(context.Background(), "abc")
		done <- result{token, err}
	}()
	waitEntered(t, ts, "abc")

	if code, pending := session.Pending(); !pending || code != "abc" {
		t.Errorf("Pending = %q, %v; want abc, true", code, pending)
	}
	if _, err := session.Exchange(context.Background(), "abc"); !errors.Is(err, ErrRequestInProgress) {
		t.Errorf("second Exchange: got %v, want ErrRequestInProgress", err)
	}

	close(ts.release)
	first := <-done
	if first.err != nil || first.token != "token-abc" {
		t.Fatalf("first Exchange = %q, %v", first.token, first.err)
	}
	if calls := ts.calls.Load(); calls != 1 {
		t.Errorf("token endpoint called %d times, want 1", calls)
	}
}

func TestExchangeAlreadyHaveToken(t *testing.T) {
	ts := newTokenServer(t)
	session, _ := newTestSession(t, ts)

	if _, err := session.Exchange(context.Background(), "abc"); err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if _, err := session.Exchange(context.Background(), "abc"); !errors.Is(err, ErrAlreadyHaveToken) {
		t.Errorf("repeat Exchange: got %v, want ErrAlreadyHaveToken", err)
	}
	if calls := ts.calls.Load(); calls != 1 {
		t.Errorf("token endpoint called %d times, want 1", calls)
	}

	// A different code is a new attempt and resets the marker
	if _, err := session.Exchange(context.Background(), "def"); err != nil {
		t.Fatalf("Exchange(def): %v", err)
	}

	session.Reset()
	if _, err := session.Exchange(context.Background(), "def"); err != nil {
		t.Errorf("Exchange after Reset: %v", err)
	}
	if calls := ts.calls.Load(); calls != 3 {
		t.Errorf("token endpoint called %d times, want 3", calls)
	}
}

func TestExchangeFailureAllowsRetry(t *testing.T) {
	ts := newTokenServer(t)
	ts.status = http.StatusBadRequest
	session, store := newTestSession(t, ts)

	_, err := session.Exchange(context.Background(), "abc")
	if code := photoapi.StatusCode(err); code != http.StatusBadRequest {
		t.Fatalf("Exchange: got %v (status %d), want HTTP 400", err, code)
	}
	if got := storedToken(t, store); got != "" {
		t.Errorf("token stored after failure: %q", got)
	}

	_, err = session.Exchange(context.Background(), "abc")
	if errors.Is(err, ErrAlreadyHaveToken) || errors.Is(err, ErrRequestInProgress) {
		t.Errorf("retry blocked: %v", err)
	}
	if calls := ts.calls.Load(); calls != 2 {
		t.Errorf("token endpoint called %d times, want 2", calls)
	}
}

func TestExchangeDifferentCodeSupersedes(t *testing.T) {
	ts := newTokenServer(t)
	ts.block["abc"] = true
	session, store := newTestSession(t, ts)

	done := make(chan error, 1)
	go func() {
		_, err := session.Exchange(context.Background(), "abc")
		done <- err
	}()
	waitEntered(t, ts, "abc")

	token, err := session.Exchange(context.Background(), "def")
	if err != nil {
		t.Fatalf("Exchange(def): %v", err)
	}
	if token != "token-def" {
		t.Errorf("token = %q, want token-def", token)
	}

	if err := <-done; !errors.Is(err, photoapi.ErrCanceled) {
		t.Errorf("superseded Exchange: got %v, want ErrCanceled", err)
	}
	if got := storedToken(t, store); got != "token-def" {
		t.Errorf("stored token = %q, want token-def", got)
	}
}

func TestExchangeDecodingError(t *testing.T) {
	ts := newTokenServer(t)
	ts.body = `{"token_type": "bearer"}`
	session, _ := newTestSession(t, ts)

	if _, err := session.Exchange(context.Background(), "abc"); !errors.Is(err, photoapi.ErrDecoding) {
		t.Errorf("Exchange: got %v, want ErrDecoding", err)
	}
}

func TestExchangeEmptyCode(t *testing.T) {
	ts := newTokenServer(t)
	session, _ := newTestSession(t, ts)

	if _, err := session.Exchange(context.Background(), ""); !errors.Is(err, photoapi.ErrInvalidRequest) {
		t.Errorf("Exchange(\"\"): got %v, want ErrInvalidRequest", err)
	}
	if calls := ts.calls.Load(); calls != 0 {
		t.Errorf("token endpoint called %d times, want 0", calls)
	}
}

func TestExchangeActivity(t *testing.T) {
	ts := newTokenServer(t)
	session, _ := newTestSession(t, ts)

	var mu sync.Mutex
	var phases []Phase
	unsubscribe := session.SubscribeActivity(func(a Activity) {
		mu.Lock()
		phases = append(phases, a.Phase)
		mu.Unlock()
	})

	if _, err := session.Exchange(context.Background(), "abc"); err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	unsubscribe()
	if _, err := session.Exchange(context.Background(), "def"); err != nil {
		t.Fatalf("Exchange: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]Phase{OperationStarted, OperationEnded}, phases); diff != "" {
		t.Errorf("activity mismatch (-want +got):\n%s", diff)
	}
}

func TestExchangeActivitySpansSupersededExchange(t *testing.T) {
	ts := newTokenServer(t)
	ts.block["abc"] = true
	ts.block["def"] = true
	session, _ := newTestSession(t, ts)

	var mu sync.Mutex
	var phases []Phase
	session.SubscribeActivity(func(a Activity) {
		mu.Lock()
		phases = append(phases, a.Phase)
		mu.Unlock()
	})
	snapshot := func() []Phase {
		mu.Lock()
		defer mu.Unlock()
		return append([]Phase(nil), phases...)
	}

	first := make(chan error, 1)
	go func() {
		_, err := session.Exchange(context.Background(), "abc")
		first <- err
	}()
	waitEntered(t, ts, "abc")

	second := make(chan error, 1)
	go func() {
		_, err := session.Exchange(context.Background(), "def")
		second <- err
	}()
	waitEntered(t, ts, "def")

	if err := <-first; !errors.Is(err, photoapi.ErrCanceled) {
		t.Fatalf("superseded Exchange: got %v, want ErrCanceled", err)
	}
	if diff := cmp.Diff([]Phase{OperationStarted}, snapshot()); diff != "" {
		t.Errorf("activity while def is running (-want +got):\n%s", diff)
	}

	close(ts.release)
	if err := <-second; err != nil {
		t.Fatalf("Exchange(def): %v", err)
	}
	if diff := cmp.Diff([]Phase{OperationStarted, OperationEnded}, snapshot()); diff != "" {
		t.Errorf("activity after def (-want +got):\n%s", diff)
	}
}

func TestExchangeActivityEndsOnReset(t *testing.T) {
	ts := newTokenServer(t)
	ts.block["abc"] = true
	session, _ := newTestSession(t, ts)

	ended := make(chan struct{}, 1)
	session.SubscribeActivity(func(a Activity) {
		if a.Phase == OperationEnded {
			ended <- struct{}{}
		}
	})

	done := make(chan error, 1)
	go func() {
		_, err := session.Exchange(context.Background(), "abc")
		done <- err
	}()
	waitEntered(t, ts, "abc")

	session.Reset()
	if err := <-done; !errors.Is(err, photoapi.ErrCanceled) {
		t.Fatalf("Exchange after Reset: got %v, want ErrCanceled", err)
	}
	select {
	case <-ended:
	default:
		t.Error("no OperationEnded after the cancelled exchange returned")
	}
}

func TestAuthCodeURL(t *testing.T) {
	ts := newTokenServer(t)
	session, _ := newTestSession(t, ts)

	tests := []struct {
		name      string
		state     string
		wantState bool
	}{
		{name: "with state", state: "xyz", wantState: true},
		{name: "without state", state: "", wantState: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(session.AuthCodeURL(tt.state))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			q := u.Query()
			if q.Get("client_id") != "client" || q.Get("response_type") != "code" {
				t.Errorf("unexpected query %v", q)
			}
			if q.Get("redirect_uri") != OutOfBandRedirectURI {
				t.Errorf("redirect_uri = %q", q.Get("redirect_uri"))
			}
			if q.Get("scope") != "public read_user write_likes" {
				t.Errorf("scope = %q", q.Get("scope"))
			}
			if _, ok := q["state"]; ok != tt.wantState {
				t.Errorf("state present = %v, want %v", ok, tt.wantState)
			}
		})
	}
}
