package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vanlife/go-imgclass"
	"github.com/vanlife/go-imgclass/internal/handlers"
	"github.com/vanlife/go-imgclass/onnxmodel"
)

const usage = `Usage: imgclass <command> [flags]

Commands:
  scrape     download thumbnails of one ImageNet synset
  dataset    download and load several classes as a labelled set
  similar    find the images closest to a reference image
  evaluate   score a model against a labelled set
  serve      expose a model over HTTP

Global flags (before the command):
  --debug           log at debug level
  --logfile=PATH    also write logs to PATH

Run "imgclass <command> -h" for command flags.
`

func main() {
	global := flag.NewFlagSet("imgclass", flag.ExitOnError)
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	debug := global.Bool("debug", false, "log at debug level")
	logfile := global.String("logfile", "", "also write logs to this file")
	_ = global.Parse(os.Args[1:])

	args := global.Args()
	if len(args) == 0 {
		global.Usage()
		os.Exit(1)
	}

	closeLog, err := setupLogger(*debug, *logfile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to setup logging: %v\n", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var run func(context.Context, []string) error
	switch args[0] {
	case "scrape":
		run = runScrape
	case "dataset":
		run = runDataset
	case "similar":
		run = runSimilar
	case "evaluate":
		run = runEvaluate
	case "serve":
		run = runServe
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		global.Usage()
		os.Exit(1)
	}

	if err := run(ctx, args[1:]); err != nil {
		slog.Error("imgclass: command failed", "command", args[0], "error", err.Error())
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		closeLog()
		os.Exit(1)
	}
}

// setupLogger installs a text slog handler on stderr, teeing to logfile when
// one is given.
func setupLogger(debug bool, logfile string) (func(), error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	var err error
	if logfile != "" {
		var f *os.File
		f, err = os.OpenFile(logfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			w = io.MultiWriter(os.Stderr, f)
			closeFn = func() { f.Close() }
		}
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return closeFn, err
}

// scrapeFlags are shared by scrape and dataset.
type scrapeFlags struct {
	baseURL     string
	concurrency int
	rps         float64
	retries     int
	dedup       bool
	manifest    string
	quiet       bool
}

func (s *scrapeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.baseURL, "base-url", imgclass.DefaultBaseURL, "ImageNet host")
	fs.IntVar(&s.concurrency, "concurrency", imgclass.DefaultConcurrency, "parallel downloads")
	fs.Float64Var(&s.rps, "rps", imgclass.DefaultRequestsPerSecond, "requests per second (negative = unlimited)")
	fs.IntVar(&s.retries, "retries", imgclass.DefaultRetries, "retries per request (negative = none)")
	fs.BoolVar(&s.dedup, "dedup", false, "drop perceptual duplicates")
	fs.StringVar(&s.manifest, "manifest", "", "SQLite manifest of downloads, enables skip on rerun")
	fs.BoolVar(&s.quiet, "quiet", false, "hide the progress line")
}

func (s *scrapeFlags) config() (*imgclass.Config, func(), error) {
	cfg := &imgclass.Config{
		HTTPClient:        &http.Client{},
		BaseURL:           s.baseURL,
		Concurrency:       s.concurrency,
		RequestsPerSecond: s.rps,
		Retries:           s.retries,
		Dedup:             s.dedup,
	}
	if !s.quiet {
		cfg.Progress = os.Stdout
	}
	closeFn := func() {}
	if s.manifest != "" {
		m, err := imgclass.OpenManifest(s.manifest)
		if err != nil {
			return nil, nil, err
		}
		cfg.Manifest = m
		closeFn = func() { m.Close() }
	}
	return cfg, closeFn, nil
}

func runScrape(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scrape", flag.ExitOnError)
	var sf scrapeFlags
	sf.register(fs)
	wnid := fs.String("wnid", "", "WordNet id of the synset, e.g. n02084071")
	limit := fs.Int("limit", 0, "maximum images to download (0 = all)")
	out := fs.String("out", "", "output directory (default: the wnid)")
	_ = fs.Parse(args)

	if *wnid == "" {
		return errors.New("missing --wnid")
	}
	if *out == "" {
		*out = *wnid
	}

	cfg, closeFn, err := sf.config()
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := cfg.Scrape(ctx, *wnid, *limit, *out)
	if res != nil {
		fmt.Printf("Saved %d, skipped %d, duplicates %d, failed %d of %d available\n",
			len(res.Saved), len(res.Skipped), len(res.Duplicates), len(res.Failed), res.Available)
	}
	return err
}

// parseClasses reads "wnid[:name],wnid[:name]".
func parseClasses(s string) []imgclass.ClassSpec {
	var out []imgclass.ClassSpec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		wnid, name, _ := strings.Cut(part, ":")
		out = append(out, imgclass.ClassSpec{WNID: wnid, Name: className(name)})
	}
	return out
}

// className normalizes a user-supplied class name the way directories are named.
func className(s string) string {
	if s == "" {
		return ""
	}
	return imgclass.ClassDirName(s)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runDataset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("dataset", flag.ExitOnError)
	var sf scrapeFlags
	sf.register(fs)
	classes := fs.String("classes", "", "comma-separated wnid:name pairs")
	dir := fs.String("dir", "images", "dataset root directory")
	perClass := fs.Int("per-class", 100, "images per class (0 = all)")
	size := fs.Int("size", imgclass.DefaultImageSize, "square image size after resizing")
	download := fs.Bool("download", true, "scrape before loading")
	_ = fs.Parse(args)

	specs := parseClasses(*classes)
	if len(specs) == 0 {
		return errors.New("missing --classes")
	}

	cfg, closeFn, err := sf.config()
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := cfg.GetImageNetData(ctx, imgclass.DatasetOptions{
		Download:     *download,
		Classes:      specs,
		Directory:    *dir,
		PerClass:     *perClass,
		ImageSize:    *size,
		Process:      true,
		Preprocessor: imgclass.UnitScale,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Loaded %d images (%d skipped)\n", len(res.Images), len(res.Skipped))
	for _, name := range res.Mapping.Names() {
		i, _ := res.Mapping.Index(name)
		fmt.Printf("  %d: %s\n", i, name)
	}

	if m := cfg.Manifest; m != nil {
		for _, s := range specs {
			st, err := m.Stats(ctx, s.WNID)
			if err != nil {
				return err
			}
			fmt.Printf("Manifest %s: %d files, %d distinct hashes, %d bytes\n", s.WNID, st.Total, st.UniqueHashes, st.Bytes)
		}
	}
	return nil
}

func runSimilar(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	dir := fs.String("dir", "images", "dataset root directory")
	classes := fs.String("classes", "", "comma-separated class directories")
	perClass := fs.Int("per-class", 0, "images per class (0 = all)")
	size := fs.Int("size", 64, "square image size after resizing")
	ref := fs.Int("ref", 0, "index of the reference image")
	count := fs.Int("count", 5, "number of neighbours")
	out := fs.String("out", "similar", "directory for the side-by-side PNG")
	scale := fs.Int("scale", 2, "PNG upscaling factor")
	dupes := fs.Int("dupes", 0, "also report perceptual near-duplicates within this hash distance")
	_ = fs.Parse(args)

	res, err := imgclass.LoadImages(imgclass.LoadOptions{
		Classes:   splitList(*classes),
		Directory: *dir,
		PerClass:  *perClass,
		ImageSize: *size,
	})
	if err != nil {
		return err
	}

	matches, err := imgclass.ClosestImages(res.Images, *ref, *count)
	if err != nil {
		return err
	}

	indices := []int{*ref}
	fmt.Printf("Reference %d (%s)\n", *ref, res.Labels[*ref])
	for _, m := range matches {
		fmt.Printf("  %d (%s): %.0f\n", m.Index, res.Labels[m.Index], m.Distance)
		indices = append(indices, m.Index)
	}

	strip, err := imgclass.ConcatenateIndices(res.Images, indices)
	if err != nil {
		return err
	}
	display := &imgclass.PNGDisplay{Dir: *out, Scale: *scale}
	if err := display.Show(fmt.Sprintf("closest_to_%d", *ref), strip); err != nil {
		return err
	}

	if *dupes > 0 {
		for _, group := range imgclass.NearDuplicates(res.Images, *dupes) {
			fmt.Printf("Near duplicates: %v\n", group)
		}
	}
	return nil
}

// modelFlags locate an ONNX model.
type modelFlags struct {
	model    string
	metadata string
	lib      string
}

func (m *modelFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&m.model, "model", "model.onnx", "ONNX model file")
	fs.StringVar(&m.metadata, "metadata", "metadata.json", "model metadata JSON")
	fs.StringVar(&m.lib, "ort-lib", os.Getenv("ONNXRUNTIME_LIB"), "onnxruntime shared library")
}

func (m *modelFlags) open() (*onnxmodel.Model, error) {
	return onnxmodel.New(onnxmodel.Options{
		ModelPath:    m.model,
		MetadataPath: m.metadata,
		LibraryPath:  m.lib,
	})
}

func runEvaluate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	var mf modelFlags
	mf.register(fs)
	dir := fs.String("dir", "images", "dataset root directory")
	perClass := fs.Int("per-class", 0, "images per class (0 = all)")
	simple := fs.Bool("simple", false, "print only the overall accuracy")
	show := fs.Int("show", 0, "random samples to print (0 = none)")
	which := fs.String("which", "any", "samples to show: any, correct or incorrect")
	showClasses := fs.String("show-classes", "", "comma-separated true classes to show (default: all)")
	displayDir := fs.String("display-dir", "", "write shown samples as PNG files here")
	_ = fs.Parse(args)

	model, err := mf.open()
	if err != nil {
		return err
	}
	defer model.Close()

	classes := model.Classes()
	res, err := imgclass.LoadImages(imgclass.LoadOptions{
		Classes:      classes,
		Directory:    *dir,
		PerClass:     *perClass,
		ImageSize:    model.ImageSize(),
		Process:      true,
		Preprocessor: model,
	})
	if err != nil {
		return err
	}
	answers, err := imgclass.OneHotFor(res.Labels, classes)
	if err != nil {
		return err
	}

	a := &imgclass.Analyzer{Model: model}
	if *displayDir != "" {
		a.Display = &imgclass.PNGDisplay{Dir: *displayDir, Scale: 2}
	}

	start := time.Now()
	predictions, err := a.Predict(ctx, res.Batch)
	if err != nil {
		return err
	}
	slog.Info("imgclass: predictions done", "images", len(predictions), "duration", time.Since(start).String())

	if err := a.Accuracy(predictions, answers, *simple, classes); err != nil {
		return err
	}
	if *show <= 0 {
		return nil
	}

	opts := imgclass.ShowOptions{SampleCount: *show}
	switch *which {
	case "correct":
		opts.Correctness = imgclass.CorrectOnly
	case "incorrect":
		opts.Correctness = imgclass.IncorrectOnly
	case "any":
	default:
		return fmt.Errorf("unknown --which %q", *which)
	}
	if *showClasses != "" {
		opts.Classes = splitList(*showClasses)
	}
	return a.ShowResults(predictions, answers, classes, res.Images, opts)
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var mf modelFlags
	mf.register(fs)
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	addr := fs.String("addr", ":"+port, "listen address")
	_ = fs.Parse(args)

	model, err := mf.open()
	if err != nil {
		return err
	}
	defer model.Close()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           handlers.NewHandler(model).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("imgclass: serving", "addr", *addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
