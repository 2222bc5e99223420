// Package disneyapi provides a catalog.Fetcher backed by the public Disney
// character API (https://disneyapi.dev).
//
// The API serves a paginated character collection at /character. The films
// query parameter narrows results to characters appearing in that film; when
// exactly one record matches, the API returns "data" as a bare object, which
// [catalog.Page] normalises.
//
// Example usage:
//
//	c := disneyapi.New(disneyapi.WithTimeout(10 * time.Second))
//	page, err := c.FetchPage(ctx, "Frozen", 1, catalog.FilteredPageSize)
package disneyapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/portraitquiz/pkg/catalog"
)

// DefaultBaseURL is the character endpoint of the public API.
const DefaultBaseURL = "https://api.disneyapi.dev/character"

const tracerName = "github.com/MrWong99/portraitquiz/pkg/catalog/disneyapi"

var _ catalog.Fetcher = (*Client)(nil)

// RequestHook observes every completed page request. status is "ok",
// "canceled", "error", or the numeric HTTP status for non-success answers.
type RequestHook func(ctx context.Context, status string, seconds float64)

// Client implements catalog.Fetcher over HTTP. It is safe for concurrent use.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	hook       RequestHook
}

// Option is a functional option for Client.
type Option func(*Client)

// WithBaseURL overrides the character endpoint. A trailing slash is stripped.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets a per-request timeout on the underlying HTTP client.
// A zero or negative value means no timeout (the default).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRequestHook registers h to observe every page request.
func WithRequestHook(h RequestHook) Option {
	return func(c *Client) { c.hook = h }
}

// New constructs a Client. Options are applied in order, so WithTimeout must
// follow WithHTTPClient to affect a caller-supplied client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		userAgent:  "portraitquiz",
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the endpoint this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// FetchPage implements catalog.Fetcher.
//
// Non-success statuses are reported as *catalog.StatusError, network and
// decoding failures wrap catalog.ErrTransport. When ctx is cancelled the
// context error is returned unwrapped from ErrTransport.
func (c *Client) FetchPage(ctx context.Context, filter string, page, pageSize int) (*catalog.Page, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "disneyapi.FetchPage")
	span.SetAttributes(
		attribute.String("catalog.filter", filter),
		attribute.Int("catalog.page", page),
		attribute.Int("catalog.page_size", pageSize),
	)
	defer span.End()

	start := time.Now()
	p, status, err := c.fetch(ctx, filter, page, pageSize)
	if c.hook != nil {
		c.hook(ctx, status, time.Since(start).Seconds())
	}
	if err != nil {
		if status != "canceled" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, fmt.Errorf("disneyapi: fetch page %d: %w", page, err)
	}
	span.SetAttributes(attribute.Int("catalog.characters", len(p.Characters)))
	return p, nil
}

func (c *Client) fetch(ctx context.Context, filter string, page, pageSize int) (*catalog.Page, string, error) {
	q := url.Values{}
	if filter != "" {
		q.Set("films", filter)
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, "error", errors.Join(catalog.ErrTransport, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "canceled", ctxErr
		}
		return nil, "error", errors.Join(catalog.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, strconv.Itoa(resp.StatusCode), &catalog.StatusError{Code: resp.StatusCode}
	}

	var p catalog.Page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "canceled", ctxErr
		}
		return nil, "error", errors.Join(catalog.ErrTransport, fmt.Errorf("decode response: %w", err))
	}
	return &p, "ok", nil
}
