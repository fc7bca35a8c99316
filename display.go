package imgclass

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/image/draw"
)

// Display renders a pixel array for visual inspection.
type Display interface {
	Show(title string, img *Array) error
}

// DisplayFunc adapts a plain function to Display.
type DisplayFunc func(title string, img *Array) error

func (f DisplayFunc) Show(title string, img *Array) error { return f(title, img) }

// PNGDisplay writes every shown array as a PNG file in Dir, upscaled by Scale
// with nearest-neighbour sampling so small thumbnails stay legible.
type PNGDisplay struct {
	Dir   string
	Scale int // default: 1

	mu    sync.Mutex
	count int
}

// Show writes <Dir>/<n>_<title>.png and returns once the file is closed.
func (d *PNGDisplay) Show(title string, img *Array) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return err
	}

	d.mu.Lock()
	d.count++
	n := d.count
	d.mu.Unlock()

	var out image.Image = img.Image()
	if d.Scale > 1 {
		b := out.Bounds()
		scaled := image.NewRGBA(image.Rect(0, 0, b.Dx()*d.Scale, b.Dy()*d.Scale))
		draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), out, b, draw.Src, nil)
		out = scaled
	}

	path := filepath.Join(d.Dir, fmt.Sprintf("%04d_%s.png", n, sanitizeTitle(title)))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, out); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

func sanitizeTitle(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
