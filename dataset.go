package imgclass

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
)

// ClassSpec names one ImageNet class of a dataset.
type ClassSpec struct {
	WNID string
	Name string // directory and label name (default: the WNID)
}

// DatasetOptions configures GetImageNetData.
type DatasetOptions struct {
	Download  bool // scrape every class before loading
	Classes   []ClassSpec
	Directory string
	PerClass  int // images downloaded and loaded per class (<= 0 = all)
	ImageSize int

	Process      bool
	Preprocessor Preprocessor
}

// GetImageNetData optionally scrapes every class into <Directory>/<Name>, then
// loads the local images as a labelled set. A class that fails to scrape
// aborts the call; individual thumbnail failures are only logged.
func (cfg *Config) GetImageNetData(ctx context.Context, opts DatasetOptions) (*LoadResult, error) {
	cfg.defaults()

	names := make([]string, len(opts.Classes))
	for i, c := range opts.Classes {
		name := c.Name
		if name == "" {
			name = ClassDirName(c.WNID)
		}
		if name == "" {
			return nil, fmt.Errorf("%w: class %d has no name", ErrInvalidWNID, i)
		}
		names[i] = name
	}

	if opts.Download {
		for i, c := range opts.Classes {
			dir := filepath.Join(opts.Directory, names[i])
			res, err := cfg.Scrape(ctx, c.WNID, opts.PerClass, dir)
			if err != nil {
				return nil, fmt.Errorf("scrape %s (%s): %w", names[i], c.WNID, err)
			}
			slog.Info("imgclass: class downloaded",
				"class", names[i], "wnid", c.WNID, "saved", len(res.Saved),
				"skipped", len(res.Skipped), "failed", len(res.Failed))
		}
	}

	return LoadImages(LoadOptions{
		Classes:      names,
		Directory:    opts.Directory,
		PerClass:     opts.PerClass,
		ImageSize:    opts.ImageSize,
		Process:      opts.Process,
		Preprocessor: opts.Preprocessor,
	})
}
