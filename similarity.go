package imgclass

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// Match is one neighbour found by ClosestImages.
type Match struct {
	Index    int
	Distance float64
}

// ManhattanDistance returns the sum of absolute per-value differences of two
// arrays of identical shape.
func ManhattanDistance(a, b *Array) (float64, error) {
	if !a.SameShape(b) {
		return 0, fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, a, b)
	}
	var sum float64
	for i, v := range a.Pix {
		sum += math.Abs(float64(v) - float64(b.Pix[i]))
	}
	return sum, nil
}

// ClosestImages returns the count images nearest to images[ref] by Manhattan
// distance, closest first. The reference itself is never returned and equal
// distances keep index order. Fewer than count matches are returned when the
// collection is smaller.
func ClosestImages(images []*Array, ref, count int) ([]Match, error) {
	if ref < 0 || ref >= len(images) {
		return nil, fmt.Errorf("%w: reference %d of %d images", ErrIndexOutOfRange, ref, len(images))
	}
	if count <= 0 {
		return []Match{}, nil
	}

	target := images[ref]
	matches := make([]Match, 0, len(images)-1)
	for i, img := range images {
		if i == ref {
			continue
		}
		d, err := ManhattanDistance(target, img)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		matches = append(matches, Match{Index: i, Distance: d})
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})

	if len(matches) > count {
		matches = matches[:count]
	}
	return matches, nil
}

// Concatenate places images side by side, left to right, converting values to
// the 0..255 integer range. All images must share height and channel count.
func Concatenate(images ...*Array) (*Array, error) {
	if len(images) == 0 {
		return nil, errors.New("imgclass: nothing to concatenate")
	}

	h, c := images[0].Height, images[0].Channels
	width := 0
	for i, img := range images {
		if img.Height != h || img.Channels != c {
			return nil, fmt.Errorf("%w: image %d is %v, want height %d and %d channels",
				ErrShapeMismatch, i, img, h, c)
		}
		width += img.Width
	}

	out := NewArray(h, width, c)
	for y := range h {
		x0 := 0
		for _, img := range images {
			row := img.Pix[y*img.Width*c : (y+1)*img.Width*c]
			dst := out.Pix[(y*width+x0)*c:]
			for i, v := range row {
				dst[i] = float32(toUint8(v))
			}
			x0 += img.Width
		}
	}
	return out, nil
}

// ConcatenateIndices concatenates images[i] for every i in indices.
func ConcatenateIndices(images []*Array, indices []int) (*Array, error) {
	selected := make([]*Array, len(indices))
	for n, i := range indices {
		if i < 0 || i >= len(images) {
			return nil, fmt.Errorf("%w: %d of %d images", ErrIndexOutOfRange, i, len(images))
		}
		selected[n] = images[i]
	}
	return Concatenate(selected...)
}
