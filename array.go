package imgclass

import (
	"fmt"
	"image"
	"image/color"
)

// Array is a dense height × width × channels pixel tensor stored row-major.
// Loaded images hold values in 0..255; preprocessed arrays may hold any range.
type Array struct {
	Height   int
	Width    int
	Channels int
	Pix      []float32
}

// NewArray allocates a zeroed array.
func NewArray(height, width, channels int) *Array {
	return &Array{
		Height:   height,
		Width:    width,
		Channels: channels,
		Pix:      make([]float32, height*width*channels),
	}
}

func (a *Array) offset(y, x, c int) int {
	return (y*a.Width+x)*a.Channels + c
}

// At returns the value at row y, column x, channel c.
func (a *Array) At(y, x, c int) float32 {
	return a.Pix[a.offset(y, x, c)]
}

// Set stores v at row y, column x, channel c.
func (a *Array) Set(y, x, c int, v float32) {
	a.Pix[a.offset(y, x, c)] = v
}

// Shape returns (height, width, channels).
func (a *Array) Shape() [3]int {
	return [3]int{a.Height, a.Width, a.Channels}
}

// SameShape reports whether a and b have identical dimensions.
func (a *Array) SameShape(b *Array) bool {
	return a.Shape() == b.Shape()
}

func (a *Array) String() string {
	return fmt.Sprintf("Array(%d, %d, %d)", a.Height, a.Width, a.Channels)
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	out := &Array{Height: a.Height, Width: a.Width, Channels: a.Channels}
	out.Pix = make([]float32, len(a.Pix))
	copy(out.Pix, a.Pix)
	return out
}

// ArrayFromImage converts img to a 3-channel RGB array with 0..255 values.
// Alpha is discarded.
func ArrayFromImage(img image.Image) *Array {
	b := img.Bounds()
	out := NewArray(b.Dy(), b.Dx(), 3)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out.Pix[i] = float32(r >> 8)
			out.Pix[i+1] = float32(g >> 8)
			out.Pix[i+2] = float32(bl >> 8)
			i += 3
		}
	}
	return out
}

// Image renders the array as an RGBA image, converting each value to uint8.
// Single-channel arrays render as grey; channels beyond the third are ignored.
func (a *Array) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, a.Width, a.Height))
	for y := range a.Height {
		for x := range a.Width {
			var c color.RGBA
			c.A = 255
			switch {
			case a.Channels >= 3:
				c.R = toUint8(a.At(y, x, 0))
				c.G = toUint8(a.At(y, x, 1))
				c.B = toUint8(a.At(y, x, 2))
			case a.Channels > 0:
				v := toUint8(a.At(y, x, 0))
				c.R, c.G, c.B = v, v, v
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// toUint8 truncates toward zero and clamps to 0..255.
func toUint8(v float32) uint8 {
	switch {
	case v != v, v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}
