// Package remote talks to the meeting server's recording endpoints: fetching
// a stored artifact by id and uploading a finished capture. Every call is a
// single attempt.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/tiroq/meetaudio/internal/diaglog"
)

var (
	// ErrNotFound is returned when the server has no recording for the id.
	ErrNotFound = errors.New("recording not found")
	// ErrFetchFailed covers every other fetch failure: transport errors and
	// non-2xx responses.
	ErrFetchFailed = errors.New("recording fetch failed")
	// ErrUploadFailed covers transport errors and non-2xx upload responses.
	ErrUploadFailed = errors.New("recording upload failed")
)

// StatusError is a non-2xx response. It unwraps to ErrFetchFailed or
// ErrUploadFailed depending on the operation.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
	kind       error
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return e.kind }

// Config configures the client.
type Config struct {
	BaseURL        string
	Token          string // optional, sent as Bearer
	TimeoutSeconds int    // 0 means no client-side timeout
}

// Payload is a fetched recording.
type Payload struct {
	Data        []byte
	ContentType string
}

// Fetcher fetches stored recordings by id.
type Fetcher interface {
	FetchRecording(ctx context.Context, id string) (*Payload, error)
}

// Client is the HTTP implementation of Fetcher and Uploader.
type Client struct {
	cfg    Config
	base   *url.URL
	client *http.Client

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewClient creates a client. A configured Token is attached through a
// static oauth2 token source.
func NewClient(cfg Config) (*Client, error) {
	var ts oauth2.TokenSource
	if cfg.Token != "" {
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
	}
	return NewClientWithTokenSource(cfg, ts)
}

// NewClientWithTokenSource creates a client that authenticates every request
// with tokens from ts. A nil ts sends unauthenticated requests.
func NewClientWithTokenSource(cfg Config, ts oauth2.TokenSource) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", cfg.BaseURL)
	}

	hc := &http.Client{}
	if ts != nil {
		hc = oauth2.NewClient(context.Background(), ts)
	}
	if cfg.TimeoutSeconds > 0 {
		hc.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{cfg: cfg, base: base, client: hc}, nil
}

// SetLogger injects a diaglog.Logger for debug logging.
func (c *Client) SetLogger(l *diaglog.Logger) {
	c.loggerMu.Lock()
	c.logger = l
	c.loggerMu.Unlock()
}

func (c *Client) log(entry diaglog.LogEntry) {
	c.loggerMu.RLock()
	l := c.logger
	c.loggerMu.RUnlock()
	if entry.Component == "" {
		entry.Component = diaglog.ComponentRemote
	}
	l.Log(entry)
}

func (c *Client) endpoint(segments ...string) string {
	u := *c.base
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u.RawPath = strings.TrimRight(c.base.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.Join(segments, "/")
	return u.String()
}

// FetchRecording downloads the stored recording id. A 404 yields
// ErrNotFound; anything else that is not 2xx yields a *StatusError wrapping
// ErrFetchFailed.
func (c *Client) FetchRecording(ctx context.Context, id string) (*Payload, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty recording id", ErrFetchFailed)
	}
	target := c.endpoint("api", "recordings", id, "download")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrFetchFailed, err)
	}

	start := time.Now()
	c.log(diaglog.LogEntry{Event: diaglog.EventHTTPRequest, Payload: map[string]interface{}{"method": req.Method, "url": target}})
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	c.log(diaglog.LogEntry{
		Event:   diaglog.EventHTTPResponse,
		Payload: map[string]interface{}{"url": target, "status": resp.StatusCode, "latency_ms": time.Since(start).Milliseconds()},
	})

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("recording %s: %w", id, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Op: "fetch recording " + id, StatusCode: resp.StatusCode, Body: truncate(body, 200), kind: ErrFetchFailed}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetchFailed, err)
	}
	return &Payload{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

// truncate returns the first n bytes of body as a string.
func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
