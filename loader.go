package imgclass

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nfnt/resize"
)

// LoadOptions configures LoadImages.
type LoadOptions struct {
	Classes   []string // class sub-directories to read, in order
	Directory string   // root holding one sub-directory per class
	PerClass  int      // files considered per class (<= 0 = all)
	ImageSize int      // square edge after resizing (default: DefaultImageSize)
	Ext       string   // file extension to match (default: DefaultImageExt)

	// Process turns the loaded arrays into a preprocessed batch and the labels
	// into a one-hot matrix. Requires Preprocessor.
	Process      bool
	Preprocessor Preprocessor

	// Interpolation used when resizing. The zero value is resize.NearestNeighbor.
	Interpolation resize.InterpolationFunction
}

// Skipped records a file the loader could not use.
type Skipped struct {
	Path string
	Err  error
}

// LoadResult is the output of LoadImages. Images and Labels are always
// filled; Batch, OneHot and Mapping only when processing was requested.
type LoadResult struct {
	Images []*Array
	Labels []string

	Batch   []*Array
	OneHot  [][]float32
	Mapping LabelMap

	Skipped []Skipped
}

func (o *LoadOptions) defaults() {
	if o.ImageSize <= 0 {
		o.ImageSize = DefaultImageSize
	}
	if o.Ext == "" {
		o.Ext = DefaultImageExt
	}
}

// LoadImages reads up to PerClass images from <Directory>/<class>/*<Ext> for
// every class, resized to ImageSize×ImageSize. Files that fail to decode are
// reported in Skipped and still count toward the per-class cap. A class with
// no matching files contributes nothing.
func LoadImages(opts LoadOptions) (*LoadResult, error) {
	opts.defaults()
	if opts.Process && opts.Preprocessor == nil {
		return nil, ErrNoPreprocessor
	}

	res := &LoadResult{}
	for _, class := range opts.Classes {
		pattern := filepath.Join(opts.Directory, class, "*"+opts.Ext)
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}

		for i, path := range files {
			if opts.PerClass > 0 && i == opts.PerClass {
				break
			}
			arr, err := loadImageFile(path, opts.ImageSize, opts.Interpolation)
			if err != nil {
				slog.Warn("imgclass: skipping image", "path", path, "error", err.Error())
				res.Skipped = append(res.Skipped, Skipped{Path: path, Err: err})
				continue
			}
			res.Images = append(res.Images, arr)
			res.Labels = append(res.Labels, class)
		}
	}

	slog.Debug("imgclass: images loaded", "images", len(res.Images), "skipped", len(res.Skipped))

	if !opts.Process {
		return res, nil
	}

	batch := make([]*Array, len(res.Images))
	for i, a := range res.Images {
		batch[i] = a.Clone()
	}
	batch, err := opts.Preprocessor.PreprocessInput(batch)
	if err != nil {
		return nil, fmt.Errorf("preprocess batch: %w", err)
	}
	res.Batch = batch

	res.Mapping = BuildLabelMap(res.Labels)
	slog.Info("imgclass: label mapping", "classes", res.Mapping.Names())
	res.OneHot, err = res.Mapping.OneHot(res.Labels)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// loadImageFile decodes, orients and resizes a single file.
func loadImageFile(path string, size int, interp resize.InterpolationFunction) (*Array, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ImageArray(data, size, interp)
}

// ImageArray decodes data, rotates it upright and resizes it to size×size,
// the same way LoadImages prepares every file.
func ImageArray(data []byte, size int, interp resize.InterpolationFunction) (*Array, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	resized := resize.Resize(uint(size), uint(size), img, interp)
	return ArrayFromImage(resized), nil
}

// DecodeImage decodes data with the registered decoders (JPEG, PNG, GIF,
// WebP) and rotates it upright according to its EXIF orientation.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if meta := ExtractImageMetadata(data); meta != nil {
		img = applyOrientation(img, meta.Orientation)
	}
	return img, nil
}
