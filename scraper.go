package imgclass

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DownloadError records a thumbnail that could not be saved.
type DownloadError struct {
	URL string
	Err error
}

func (e DownloadError) Error() string {
	return fmt.Sprintf("%s: %v", e.URL, e.Err)
}

func (e DownloadError) Unwrap() error { return e.Err }

// ScrapeResult summarises one Scrape call.
type ScrapeResult struct {
	WNID      string
	SynsetID  int
	Available int // images ImageNet lists for the synset
	Requested int // download attempts after clamping to Available

	Saved      []string // files written, sorted
	Skipped    []string // files already present per the manifest, sorted
	Duplicates []string // URLs rejected as perceptual duplicates, sorted
	Failed     []DownloadError
}

// Scrape downloads up to limit thumbnails of the synset wnid into outputDir,
// creating it when absent. A limit <= 0 downloads every available image. Invalid or unresolvable ids
// abort the call; individual download failures are collected in
// ScrapeResult.Failed and never abort the batch.
func (cfg *Config) Scrape(ctx context.Context, wnid string, limit int, outputDir string) (*ScrapeResult, error) {
	cfg.defaults()

	if _, err := VerifyWNID(wnid); err != nil {
		slog.Warn("imgclass: rejected wordnet id", "wnid", wnid)
		return nil, err
	}

	synsetID, err := cfg.ResolveSynsetID(ctx, wnid)
	if err != nil {
		return nil, err
	}

	total, err := cfg.CountImages(ctx, synsetID)
	if err != nil {
		return nil, err
	}
	n := total
	if limit > 0 && limit < n {
		n = limit
	}

	res := &ScrapeResult{WNID: wnid, SynsetID: synsetID, Available: total, Requested: n}
	slog.Info("imgclass: scraping synset", "wnid", wnid, "synset_id", synsetID, "available", total, "requested", n)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if n == 0 {
		return res, nil
	}

	records, err := cfg.ImageRecords(ctx, synsetID, n)
	if err != nil {
		return nil, err
	}
	urls := make([]string, len(records))
	for i, r := range records {
		urls[i] = ThumbURL(cfg.BaseURL, r)
	}
	res.Requested = len(urls)

	err = cfg.downloadAll(ctx, urls, outputDir, res)
	return res, err
}

// DownloadImages saves every URL into outputDir with the same bounded,
// throttled pool Scrape uses. wnid and synsetID only label manifest entries.
func (cfg *Config) DownloadImages(ctx context.Context, urls []string, outputDir, wnid string, synsetID int) (*ScrapeResult, error) {
	cfg.defaults()
	res := &ScrapeResult{WNID: wnid, SynsetID: synsetID, Available: len(urls), Requested: len(urls)}
	err := cfg.downloadAll(ctx, urls, outputDir, res)
	return res, err
}

// ThumbFileName derives the local file name for a thumbnail URL: the base
// name of its path with the extension replaced by ".jpg".
func ThumbFileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	base := path.Base(u.Path)
	name := strings.TrimSuffix(base, path.Ext(base))
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("imgclass: no file name in %q", rawURL)
	}
	return name + ".jpg", nil
}

// batch is the shared state of one downloadAll call.
type batch struct {
	cfg       *Config
	outputDir string
	res       *ScrapeResult
	dedup     *dedupFilter
	progress  *progressTracker
	mu        sync.Mutex
}

func (cfg *Config) downloadAll(ctx context.Context, urls []string, outputDir string, res *ScrapeResult) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	b := &batch{
		cfg:       cfg,
		outputDir: outputDir,
		res:       res,
		progress:  newProgressTracker(cfg.Progress, len(urls)),
	}
	if cfg.Dedup {
		b.dedup = &dedupFilter{}
	}

	var g errgroup.Group
	g.SetLimit(cfg.Concurrency)
	for _, u := range urls {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			b.one(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	b.progress.stop()

	slices.Sort(res.Saved)
	slices.Sort(res.Skipped)
	slices.Sort(res.Duplicates)
	slices.SortFunc(res.Failed, func(x, y DownloadError) int { return strings.Compare(x.URL, y.URL) })

	slog.Info("imgclass: downloads finished",
		"wnid", res.WNID, "saved", len(res.Saved), "skipped", len(res.Skipped),
		"duplicates", len(res.Duplicates), "failed", len(res.Failed))

	return ctx.Err()
}

// one downloads a single URL and files the outcome into the result.
// Recovers from panics so that one bad response cannot take down the pool.
func (b *batch) one(ctx context.Context, rawURL string) {
	var (
		dest    string
		err     error
		skipped bool
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		b.finish(rawURL, dest, err, skipped)
	}()

	dest, skipped, err = b.fetch(ctx, rawURL)
}

func (b *batch) fetch(ctx context.Context, rawURL string) (string, bool, error) {
	name, err := ThumbFileName(rawURL)
	if err != nil {
		return "", false, err
	}
	dest := filepath.Join(b.outputDir, name)

	if m := b.cfg.Manifest; m != nil {
		e, ok, err := m.Lookup(ctx, rawURL)
		if err != nil {
			return "", false, err
		}
		// An entry recorded for another output directory is fetched again.
		if ok && filepath.Clean(e.Path) == filepath.Clean(dest) && fileExists(dest) {
			return dest, true, nil
		}
	}

	dl, err := b.cfg.Download(ctx, rawURL, DownloadOpts{})
	if err != nil {
		return "", false, err
	}
	if _, _, err := ValidateImageData(dl.Data, b.cfg.MinImageSize); err != nil {
		return "", false, err
	}

	var img image.Image
	if b.dedup != nil || b.cfg.Manifest != nil {
		img, _ = DecodeImage(dl.Data)
	}
	if b.dedup != nil && img != nil && b.dedup.isDuplicate(img) {
		slog.Debug("imgclass: dedup rejected", "url", rawURL)
		return "", false, errDuplicate
	}

	if err := os.WriteFile(dest, dl.Data, 0o644); err != nil {
		return "", false, err
	}

	if m := b.cfg.Manifest; m != nil {
		e := ManifestEntry{
			URL:      rawURL,
			WNID:     b.res.WNID,
			SynsetID: b.res.SynsetID,
			Path:     dest,
			Size:     int64(len(dl.Data)),
		}
		if img != nil {
			e.Hash = DifferenceHash(img)
		}
		if meta := ExtractImageMetadata(dl.Data); meta != nil {
			e.Artist = meta.Artist
			e.Copyright = meta.Copyright
		}
		if err := m.Record(ctx, e); err != nil {
			slog.Warn("imgclass: manifest write failed", "url", rawURL, "error", err.Error())
		}
	}
	return dest, false, nil
}

var errDuplicate = errors.New("imgclass: perceptual duplicate")

func (b *batch) finish(rawURL, dest string, err error, skipped bool) {
	b.mu.Lock()
	switch {
	case errors.Is(err, errDuplicate):
		b.res.Duplicates = append(b.res.Duplicates, rawURL)
		err = nil
	case err != nil:
		slog.Warn("imgclass: download failed", "url", rawURL, "error", err.Error())
		b.res.Failed = append(b.res.Failed, DownloadError{URL: rawURL, Err: err})
	case skipped:
		b.res.Skipped = append(b.res.Skipped, dest)
	default:
		b.res.Saved = append(b.res.Saved, dest)
	}
	b.mu.Unlock()

	b.progress.record(err, skipped)
	if b.cfg.OnDownload != nil {
		b.cfg.OnDownload(DownloadEvent{URL: rawURL, Path: dest, Err: err})
	}
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
