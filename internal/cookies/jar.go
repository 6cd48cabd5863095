// Package cookies provides the cookie jar shared by the authorization and API
// HTTP clients. Logging out clears it so the next sign-in starts without the
// previous user's authorization-server session.
package cookies

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// Jar is an http.CookieJar that can be emptied. Safe for concurrent use.
type Jar struct {
	mu  sync.RWMutex
	jar *cookiejar.Jar
}

// Compile-time check to ensure Jar implements http.CookieJar
var _ http.CookieJar = (*Jar)(nil)

// NewJar creates an empty Jar scoped by the public suffix list.
func NewJar() (*Jar, error) {
	jar, err := newCookieJar()
	if err != nil {
		return nil, err
	}
	return &Jar{jar: jar}, nil
}

func newCookieJar() (*cookiejar.Jar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	j.jar.SetCookies(u, cookies)
}

func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.jar.Cookies(u)
}

// Clear drops every stored cookie.
func (j *Jar) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	jar, err := newCookieJar()
	if err != nil {
		return err
	}

	j.mu.Lock()
	j.jar = jar
	j.mu.Unlock()
	return nil
}
