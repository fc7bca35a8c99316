// Package imgclass scrapes ImageNet thumbnails, loads labelled image sets from
// disk, evaluates a pre-trained classifier over them and finds visually close
// images by raw pixel distance.
package imgclass

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the ImageNet host the scraper talks to.
const DefaultBaseURL = "http://image-net.org"

const (
	DefaultConcurrency       = 8
	DefaultRequestsPerSecond = 10
	DefaultRetries           = 2
	DefaultImageSize         = 224
	DefaultImageExt          = ".jpg"
)

var (
	ErrInvalidWNID     = errors.New("imgclass: invalid wordnet id")
	ErrSynsetNotFound  = errors.New("imgclass: synset not found")
	ErrIndexOutOfRange = errors.New("imgclass: index out of range")
	ErrShapeMismatch   = errors.New("imgclass: shape mismatch")
	ErrLengthMismatch  = errors.New("imgclass: length mismatch")
	ErrNoPreprocessor  = errors.New("imgclass: preprocessing requested without a preprocessor")
	ErrNoModel         = errors.New("imgclass: no model configured")
	ErrNotImage        = errors.New("imgclass: response is not an image")
)

// Model is a pre-trained classifier. Predict returns one confidence row per
// input array; column i is the score of the model's i-th class.
type Model interface {
	Predict(ctx context.Context, batch []*Array) ([][]float32, error)
}

// Preprocessor normalizes a batch into the value range a model expects.
// Implementations may modify the arrays they are given; callers pass clones.
type Preprocessor interface {
	PreprocessInput(batch []*Array) ([]*Array, error)
}

// Config holds the dependencies and tunables for network operations.
type Config struct {
	HTTPClient *http.Client // optional: default http client (nil = http.DefaultClient)
	BaseURL    string       // default: DefaultBaseURL
	UserAgent  string       // default: "Mozilla/5.0 (compatible; go-imgclass/1.0)"

	// Concurrency caps in-flight thumbnail downloads (default: DefaultConcurrency).
	Concurrency int

	// RequestsPerSecond throttles every request the scraper sends.
	// Zero means DefaultRequestsPerSecond, negative disables throttling.
	RequestsPerSecond float64

	Timeout time.Duration // per-request timeout (default: 10s)
	Retries int           // extra attempts on transient failures (default: DefaultRetries, negative = none)

	// MinImageSize rejects downloaded thumbnails narrower or shorter than this (default: 1).
	MinImageSize int

	// Dedup drops thumbnails that are perceptual duplicates of one already
	// saved during the same scrape.
	Dedup bool

	// Manifest, when set, records every saved thumbnail and lets reruns skip
	// URLs whose file is still on disk.
	Manifest *Manifest

	// Progress receives a one-line download progress display (nil = silent).
	Progress io.Writer

	// Optional callback for metrics/logging.
	OnDownload func(DownloadEvent)

	limiterOnce sync.Once
	limiter     *rate.Limiter
}

// DownloadEvent describes the outcome of one thumbnail download.
type DownloadEvent struct {
	URL  string
	Path string
	Err  error
}

func (c *Config) defaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; go-imgclass/1.0)"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Retries == 0 {
		c.Retries = DefaultRetries
	}
	if c.MinImageSize <= 0 {
		c.MinImageSize = 1
	}
}
