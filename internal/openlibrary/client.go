// Package openlibrary looks up editions by ISBN on openlibrary.org and
// normalizes the loosely typed payload into a catalog book.
package openlibrary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/readshelf/apiserver/config"
	"github.com/readshelf/apiserver/internal/apperr"
	"github.com/readshelf/apiserver/internal/logger"
	"github.com/readshelf/apiserver/types"
)

const (
	DefaultBaseURL       = "https://openlibrary.org"
	DefaultCoversURL     = "https://covers.openlibrary.org"
	DefaultTimeout       = 10 * time.Second
	DefaultAuthorTimeout = 5 * time.Second

	maxPayloadBytes = 4 << 20
	maxCoverBytes   = 10 << 20
)

var (
	ErrNotFound            = apperr.New(apperr.ErrNotFound, "Book not found with this ISBN")
	ErrUpstream            = apperr.New(apperr.ErrUpstream, "Error occurred during external API call")
	ErrUpstreamTimeout     = apperr.New(apperr.ErrUpstreamTimeout, "Timeout during external API call")
	ErrUpstreamUnavailable = apperr.New(apperr.ErrUpstreamUnavailable, "Error occurred while accessing external API")
)

// Client talks to the Open Library JSON API.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	coversURL     string
	timeout       time.Duration
	authorTimeout time.Duration
	log           *logger.Logger
}

// Option customizes a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

func NewClient(cfg config.OpenLibraryConfig, opts ...Option) *Client {
	c := &Client{
		httpClient:    &http.Client{},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		coversURL:     strings.TrimRight(cfg.CoversURL, "/"),
		timeout:       cfg.Timeout,
		authorTimeout: cfg.AuthorTimeout,
		log:           logger.Nop(),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.coversURL == "" {
		c.coversURL = DefaultCoversURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.authorTimeout <= 0 {
		c.authorTimeout = DefaultAuthorTimeout
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LookupISBN fetches the edition for isbn and normalizes it. The returned
// book carries the given isbn and has no ID yet.
func (c *Client) LookupISBN(ctx context.Context, isbn string) (types.Book, error) {
	endpoint := fmt.Sprintf("%s/isbn/%s.json", c.baseURL, url.PathEscape(isbn))
	c.log.Infow("open library lookup", "url", endpoint)

	var payload edition
	status, err := c.getJSON(ctx, endpoint, c.timeout, &payload)
	if err != nil {
		c.log.Errorw("open library lookup failed", "isbn", isbn, "status", status, "err", err)
		return types.Book{}, err
	}

	book := normalize(payload, isbn, c.coversURL)
	if ref := firstAuthor(payload.Authors); ref.Key != "" {
		book.Author = c.resolveAuthor(ctx, ref.Key)
	} else if ref.Name != "" {
		book.Author = ref.Name
	}
	return book, nil
}

// resolveAuthor is best effort: any failure yields UnknownAuthor.
func (c *Client) resolveAuthor(ctx context.Context, key string) string {
	if !strings.HasPrefix(key, "/") {
		key = "/" + key
	}
	endpoint := c.baseURL + key + ".json"

	var payload author
	if _, err := c.getJSON(ctx, endpoint, c.authorTimeout, &payload); err != nil {
		c.log.Warnw("author lookup failed", "key", key, "err", err)
		return UnknownAuthor
	}
	return authorName(payload.Name)
}

// FetchCover downloads a cover image. The caller closes the body.
func (c *Client) FetchCover(ctx context.Context, coverURL string) (io.ReadCloser, string, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		cancel()
		return nil, "", 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, "", 0, classifyTransportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return nil, "", 0, ErrUpstream
	}
	if resp.ContentLength > maxCoverBytes {
		_ = resp.Body.Close()
		cancel()
		return nil, "", 0, fmt.Errorf("cover too large: %d bytes: %w", resp.ContentLength, ErrUpstream)
	}

	body := &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	return body, resp.Header.Get("Content-Type"), resp.ContentLength, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, timeout time.Duration, dst any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", ErrUpstream)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return resp.StatusCode, ErrUpstream
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPayloadBytes)).Decode(dst); err != nil {
		if isTimeout(err) {
			return resp.StatusCode, ErrUpstreamTimeout
		}
		return resp.StatusCode, fmt.Errorf("decode payload: %v: %w", err, ErrUpstream)
	}
	return resp.StatusCode, nil
}

func classifyTransportError(err error) error {
	if isTimeout(err) {
		return ErrUpstreamTimeout
	}
	return fmt.Errorf("%v: %w", err, ErrUpstreamUnavailable)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
