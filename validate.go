package imgclass

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// ValidateImageData checks that data carries a decodable image header and
// that both dimensions are at least minSize pixels. ImageNet serves small
// HTML pages and placeholders for dead thumbnails; those fail here.
func ValidateImageData(data []byte, minSize int) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	if cfg.Width < minSize || cfg.Height < minSize {
		return cfg, format, fmt.Errorf("%w: %dx%d is below %dpx", ErrNotImage, cfg.Width, cfg.Height, minSize)
	}
	return cfg, format, nil
}
