package imgclass

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// testConfig returns a Config aimed at srv with throttling and retry backoff
// kept out of the way.
func testConfig(srv *httptest.Server) *Config {
	return &Config{
		HTTPClient:        srv.Client(),
		BaseURL:           srv.URL,
		RequestsPerSecond: -1,
		Retries:           -1,
	}
}

func TestDownload_Success(t *testing.T) {
	t.Parallel()

	body := makeJPEG(8, 8)
	srv := newImageServer(t, "image/jpeg", body)

	res, err := testConfig(srv).Download(context.Background(), srv.URL+"/image.jpg", DownloadOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q, want image/jpeg", res.MIMEType)
	}
	if len(res.Data) != len(body) {
		t.Errorf("Data len = %d, want %d", len(res.Data), len(body))
	}
}

func TestDownload_NonImageContentType(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t, "text/html", []byte("<html></html>"))

	res, err := testConfig(srv).Download(context.Background(), srv.URL+"/page.html", DownloadOpts{})
	if !errors.Is(err, ErrNotImage) {
		t.Fatalf("err = %v, want ErrNotImage", err)
	}
	if res != nil {
		t.Errorf("expected nil result for non-image content type, got %v", res)
	}
}

func TestDownload_SniffsOctetStream(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t, "application/octet-stream", makeJPEG(4, 4))

	res, err := testConfig(srv).Download(context.Background(), srv.URL+"/thumb", DownloadOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q, want image/jpeg", res.MIMEType)
	}
}

func TestDownload_404(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	_, err := testConfig(srv).Download(context.Background(), srv.URL+"/missing.jpg", DownloadOpts{})
	var se *statusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("err = %v, want status 404", err)
	}
}

func TestDownload_MinBytesEnforcement(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t, "image/jpeg", []byte("tiny"))

	_, err := testConfig(srv).Download(context.Background(), srv.URL+"/small.jpg", DownloadOpts{MinBytes: 100})
	if !errors.Is(err, ErrNotImage) {
		t.Errorf("err = %v, want ErrNotImage when body smaller than MinBytes", err)
	}
}

func TestDownload_MaxBytesEnforcement(t *testing.T) {
	t.Parallel()

	const maxBytes = 10
	srv := newImageServer(t, "image/png", []byte(strings.Repeat("X", 100)))

	res, err := testConfig(srv).Download(context.Background(), srv.URL+"/big.png", DownloadOpts{MaxBytes: maxBytes})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if int64(len(res.Data)) > maxBytes {
		t.Errorf("Data len = %d, want <= %d", len(res.Data), maxBytes)
	}
}

func TestDownload_MIMEParameterStripping(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t, "image/webp; charset=utf-8", []byte("RIFFxxxxWEBP"))

	res, err := testConfig(srv).Download(context.Background(), srv.URL+"/img.webp", DownloadOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MIMEType != "image/webp" {
		t.Errorf("MIMEType = %q, want image/webp", res.MIMEType)
	}
}

func TestDownload_UserAgent(t *testing.T) {
	t.Parallel()

	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.UserAgent())
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(makeJPEG(2, 2))
	}))
	defer srv.Close()

	cfg := testConfig(srv)
	cfg.UserAgent = "imgclass-test"
	if _, err := cfg.Download(context.Background(), srv.URL+"/a.jpg", DownloadOpts{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ua, _ := got.Load().(string); ua != "imgclass-test" {
		t.Errorf("User-Agent = %q, want imgclass-test", ua)
	}
}

func TestDownload_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(makeJPEG(2, 2))
	}))
	defer srv.Close()

	cfg := testConfig(srv)
	cfg.Retries = 1
	if _, err := cfg.Download(context.Background(), srv.URL+"/a.jpg", DownloadOpts{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestDownload_NoRetryOnClientError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := testConfig(srv)
	cfg.Retries = 3
	if _, err := cfg.Download(context.Background(), srv.URL+"/a.jpg", DownloadOpts{}); err == nil {
		t.Fatal("expected error for 403")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: false},
		{name: "not image", err: ErrNotImage, want: false},
		{name: "500", err: &statusError{Code: 500}, want: true},
		{name: "429", err: &statusError{Code: 429}, want: true},
		{name: "404", err: &statusError{Code: 404}, want: false},
		{name: "network", err: errors.New("connection reset"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// redirectTransport returns a RoundTripper that rewrites all requests to target.
type redirectTransport string

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = "http"
	clone.URL.Host = strings.TrimPrefix(string(rt), "http://")
	return http.DefaultTransport.RoundTrip(clone)
}

func TestDownload_DefaultBaseURLRedirected(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t, "image/jpeg", makeJPEG(2, 2))

	cfg := &Config{
		HTTPClient:        &http.Client{Transport: redirectTransport(srv.URL)},
		RequestsPerSecond: -1,
	}
	if _, err := cfg.Download(context.Background(), DefaultBaseURL+"/nodes/x.thumb", DownloadOpts{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
