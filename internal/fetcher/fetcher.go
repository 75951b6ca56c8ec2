// Package fetcher downloads images over HTTP(S) into memory.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/example/activity-check/internal/logging"
)

const (
	defaultDialTimeout           = 10 * time.Second
	defaultTLSHandshakeTimeout   = 10 * time.Second
	defaultResponseHeaderTimeout = 15 * time.Second
	defaultIdleConnTimeout       = 90 * time.Second
	defaultMaxIdleConnsPerHost   = 10
)

// ErrTooLarge is returned when the image body exceeds the configured limit.
var ErrTooLarge = errors.New("image exceeds maximum size")

// StatusError reports a non-200 response from the image origin.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Config controls download behaviour. Zero values disable the timeout and size limit.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
}

// Fetcher performs GET requests for image URLs. Safe for concurrent use.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	maxBytes  int64
	logger    *zap.Logger
}

// New constructs a Fetcher with a tuned transport.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
	}
	return NewWithClient(cfg, &http.Client{Transport: transport}, logger)
}

// NewWithClient constructs a Fetcher around an existing client.
func NewWithClient(cfg Config, client *http.Client, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{
		client:    client,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBytes,
		logger:    logger.Named("fetcher"),
	}
}

// Fetch downloads rawURL and returns the whole body. A non-200 status or an
// oversized body yields a KindDownload error; anything else is KindUnexpected.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if f.timeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, f.timeout)
			defer cancel()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, logging.NewKindError(logging.KindUnexpected, "fetcher.new_request", "", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, logging.NewKindError(logging.KindUnexpected, "fetcher.get", "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Debug("image origin returned non-200",
			zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return nil, logging.NewKindError(logging.KindDownload, "fetcher.get", "", &StatusError{StatusCode: resp.StatusCode})
	}

	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, logging.NewKindError(logging.KindDownload, "fetcher.read_body", "",
			fmt.Errorf("%w: content length %d > %d", ErrTooLarge, resp.ContentLength, f.maxBytes))
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, logging.NewKindError(logging.KindUnexpected, "fetcher.read_body", "", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, logging.NewKindError(logging.KindDownload, "fetcher.read_body", "",
			fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes))
	}
	return data, nil
}
