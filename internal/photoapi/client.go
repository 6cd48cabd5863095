package photoapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	"golang.org/x/oauth2"

	"github.com/florianilch/photofeed/internal/tokenstore"
)

// DefaultBaseURL is the production API base.
const DefaultBaseURL = "https://api.unsplash.com"

// requestIDHeader carries a per-request identifier that is also logged.
const requestIDHeader = "X-Request-Id"

// TokenReader provides the bearer token for authorized requests.
type TokenReader interface {
	Read(ctx context.Context) (string, error)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for API requests.
// If not provided, a client with a 30 second timeout is used.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger for request diagnostics. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client issues authorized requests against the photo API.
// Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenReader
	logger     *slog.Logger
}

// NewClient creates a Client for the API at baseURL, authorizing requests with
// the token read from tokens.
func NewClient(baseURL string, tokens TokenReader, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", baseURL)
	}
	if tokens == nil {
		return nil, fmt.Errorf("missing token reader")
	}

	c := &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListPhotos fetches one page of the photo feed. Pages start at 1.
func (c *Client) ListPhotos(ctx context.Context, page, perPage int) ([]PhotoResult, error) {
	if page < 1 || perPage < 1 {
		return nil, fmt.Errorf("%w: page %d, per page %d", ErrInvalidRequest, page, perPage)
	}

	token, err := c.storedToken(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))

	var photos []PhotoResult
	if err := c.do(ctx, http.MethodGet, "/photos", query, token, &photos); err != nil {
		return nil, err
	}
	return photos, nil
}

// LikePhoto marks the photo as liked by the authenticated user.
func (c *Client) LikePhoto(ctx context.Context, id string) error {
	return c.like(ctx, http.MethodPost, id)
}

// UnlikePhoto removes the authenticated user's like from the photo.
func (c *Client) UnlikePhoto(ctx context.Context, id string) error {
	return c.like(ctx, http.MethodDelete, id)
}

func (c *Client) like(ctx context.Context, method, id string) error {
	path, err := pathWithParam("/photos/%s/like", "id", id)
	if err != nil {
		return err
	}

	token, err := c.storedToken(ctx)
	if err != nil {
		return err
	}

	return c.do(ctx, method, path, nil, token, nil)
}

// Me fetches the profile of the user the token belongs to. The token is passed
// explicitly because the profile is loaded right after sign-in.
func (c *Client) Me(ctx context.Context, token string) (ProfileResult, error) {
	if token == "" {
		return ProfileResult{}, ErrUnauthorized
	}

	var profile ProfileResult
	if err := c.do(ctx, http.MethodGet, "/me", nil, token, &profile); err != nil {
		return ProfileResult{}, err
	}
	return profile, nil
}

// User fetches the public record of username.
func (c *Client) User(ctx context.Context, username string) (UserResult, error) {
	path, err := pathWithParam("/users/%s", "username", username)
	if err != nil {
		return UserResult{}, err
	}

	token, err := c.storedToken(ctx)
	if err != nil {
		return UserResult{}, err
	}

	var user UserResult
	if err := c.do(ctx, http.MethodGet, path, nil, token, &user); err != nil {
		return UserResult{}, err
	}
	return user, nil
}

// storedToken reads the bearer token, mapping a missing token to ErrUnauthorized.
func (c *Client) storedToken(ctx context.Context) (string, error) {
	token, err := c.tokens.Read(ctx)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return "", ErrUnauthorized
	}
	if err != nil && ctx.Err() != nil {
		return "", fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	if err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}
	return token, nil
}

// pathWithParam styles value as a simple path parameter and substitutes it into format.
func pathWithParam(format, name, value string) (string, error) {
	if value == "" {
		return "", fmt.Errorf("%w: empty %s", ErrInvalidRequest, name)
	}
	styled, err := runtime.StyleParamWithLocation("simple", false, name, runtime.ParamLocationPath, value)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return fmt.Sprintf(format, styled), nil
}

// do sends an authorized request and decodes a 2xx JSON body into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, token string, out any) error {
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.DebugContext(ctx, "api request failed",
			"request_id", requestID, "method", method, "path", endpoint.Path, "error", err)
		return transportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.DebugContext(ctx, "api request",
		"request_id", requestID,
		"method", method,
		"path", endpoint.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &StatusError{Code: resp.StatusCode}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
		}
		return fmt.Errorf("%w: %w", ErrDecoding, err)
	}
	return nil
}
