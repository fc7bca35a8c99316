package imgclass

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DownloadOpts configures an image download.
type DownloadOpts struct {
	MaxBytes  int64         // max response body size (default: 2MB)
	MinBytes  int           // reject if smaller (default: 0)
	Timeout   time.Duration // per-request timeout (default: cfg.Timeout)
	UserAgent string        // override config user agent
}

const (
	defaultMaxBytes = 2 << 20 // 2MB
	defaultTimeout  = 10 * time.Second
	retryBackoff    = 500 * time.Millisecond
)

// DownloadResult holds downloaded image data.
type DownloadResult struct {
	Data     []byte
	MIMEType string
}

// statusError is returned for non-200 responses.
type statusError struct {
	URL  string
	Code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}

// retryable reports whether err is worth another attempt: network failures,
// 5xx and 429 responses. Context errors never are.
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrNotImage) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return true
}

// wait blocks until the config's rate limiter admits another request.
func (cfg *Config) wait(ctx context.Context) error {
	if cfg.RequestsPerSecond < 0 {
		return nil
	}
	cfg.limiterOnce.Do(func() {
		cfg.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	})
	return cfg.limiter.Wait(ctx)
}

// withRetry runs fn up to 1+cfg.Retries times while it fails with a
// retryable error, backing off linearly between attempts.
func (cfg *Config) withRetry(ctx context.Context, url string, fn func() error) error {
	attempts := 1 + max(cfg.Retries, 0)
	var err error
	for i := range attempts {
		if err = cfg.wait(ctx); err != nil {
			return err
		}
		if err = fn(); err == nil || !retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		slog.Debug("imgclass: retrying request", "url", url, "attempt", i+1, "error", err.Error())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff * time.Duration(i+1)):
		}
	}
	return err
}

// Download fetches an image from url, retrying transient failures.
// Non-image responses fail with ErrNotImage.
func (cfg *Config) Download(ctx context.Context, url string, opts DownloadOpts) (*DownloadResult, error) {
	cfg.defaults()

	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = cfg.Timeout
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = cfg.UserAgent
	}

	var res *DownloadResult
	err := cfg.withRetry(ctx, url, func() error {
		var err error
		res, err = fetchImageData(ctx, cfg.HTTPClient, url, ua, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func fetchImageData(ctx context.Context, client *http.Client, imageURL, ua string, opts DownloadOpts) (*DownloadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", ua)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{URL: imageURL, Code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, opts.MaxBytes))
	if err != nil {
		return nil, err
	}
	if len(data) < opts.MinBytes {
		return nil, fmt.Errorf("%w: %d bytes from %s", ErrNotImage, len(data), imageURL)
	}

	ct := resp.Header.Get("Content-Type")
	// Strip MIME parameters: "image/jpeg; charset=utf-8" → "image/jpeg"
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	// Thumbnail hosts often answer with a generic type; sniff those.
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	if !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("%w: content type %q from %s", ErrNotImage, ct, imageURL)
	}

	return &DownloadResult{Data: data, MIMEType: ct}, nil
}

// fetch GETs a text resource (synset page, XML index) with retries.
func (cfg *Config) fetch(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	cfg.defaults()

	var body []byte
	err := cfg.withRetry(ctx, url, func() error {
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", cfg.UserAgent)

		resp, err := cfg.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return &statusError{URL: url, Code: resp.StatusCode}
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBytes))
		return err
	})
	return body, err
}
