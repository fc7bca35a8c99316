package onnxmodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/vanlife/go-imgclass"
)

// Tensor layouts.
const (
	LayoutNCHW = "NCHW"
	LayoutNHWC = "NHWC"
)

// Input normalizations.
const (
	NormUnit        = "unit"         // 0..255 to 0..1
	NormMobileNetV2 = "mobilenet_v2" // 0..255 to -1..1
	NormNone        = "none"
)

// Metadata describes an exported classifier.
type Metadata struct {
	InputShape    []int64  `json:"input_shape"`
	OutputShape   []int64  `json:"output_shape"`
	Classes       []string `json:"classes"`
	ImageSize     int      `json:"image_size"`
	InputName     string   `json:"input_name"`
	OutputName    string   `json:"output_name"`
	Layout        string   `json:"layout"`
	Normalization string   `json:"normalization"`
}

// LoadMetadata reads and validates a metadata file, filling defaults.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if err := m.normalize(); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

func (m *Metadata) normalize() error {
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	if m.Layout == "" {
		m.Layout = LayoutNCHW
	}
	if m.Normalization == "" {
		m.Normalization = NormUnit
	}

	if len(m.InputShape) != 4 {
		return fmt.Errorf("input_shape must have 4 dimensions, got %v", m.InputShape)
	}
	if m.InputShape[0] != 1 {
		return fmt.Errorf("input_shape batch dimension must be 1, got %d", m.InputShape[0])
	}
	if len(m.Classes) == 0 {
		return errors.New("metadata lists no classes")
	}
	if n := outputSize(m.OutputShape); n != int64(len(m.Classes)) {
		return fmt.Errorf("output_shape %v holds %d scores for %d classes", m.OutputShape, n, len(m.Classes))
	}

	var h, w int64
	switch m.Layout {
	case LayoutNCHW:
		h, w = m.InputShape[2], m.InputShape[3]
	case LayoutNHWC:
		h, w = m.InputShape[1], m.InputShape[2]
	default:
		return fmt.Errorf("unknown layout %q", m.Layout)
	}
	if h != w {
		return fmt.Errorf("input_shape %v is not square", m.InputShape)
	}
	if m.ImageSize == 0 {
		m.ImageSize = int(h)
	}
	if int64(m.ImageSize) != h {
		return fmt.Errorf("image_size %d does not match input_shape %v", m.ImageSize, m.InputShape)
	}

	switch m.Normalization {
	case NormUnit, NormMobileNetV2, NormNone:
	default:
		return fmt.Errorf("unknown normalization %q", m.Normalization)
	}
	return nil
}

// Channels is the channel count the model expects.
func (m Metadata) Channels() int {
	if m.Layout == LayoutNHWC {
		return int(m.InputShape[3])
	}
	return int(m.InputShape[1])
}

// InputSize is the number of values in one input tensor.
func (m Metadata) InputSize() int {
	return int(outputSize(m.InputShape))
}

// Preprocessor returns the normalization the model was trained with.
func (m Metadata) Preprocessor() imgclass.Preprocessor {
	switch m.Normalization {
	case NormMobileNetV2:
		return imgclass.MobileNetV2
	case NormNone:
		return imgclass.ScalePreprocessor{Scale: 1}
	}
	return imgclass.UnitScale
}

func outputSize(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

// pack flattens an HWC array into dst in the model's layout.
func (m Metadata) pack(a *imgclass.Array, dst []float32) error {
	size, c := m.ImageSize, m.Channels()
	if a.Height != size || a.Width != size || a.Channels != c {
		return fmt.Errorf("%w: got %v, want %dx%dx%d", imgclass.ErrShapeMismatch, a, size, size, c)
	}
	if len(dst) != len(a.Pix) {
		return fmt.Errorf("%w: tensor holds %d values, array %d", imgclass.ErrShapeMismatch, len(dst), len(a.Pix))
	}
	if m.Layout == LayoutNHWC {
		copy(dst, a.Pix)
		return nil
	}
	plane := size * size
	for p := range plane {
		for ch := range c {
			dst[ch*plane+p] = a.Pix[p*c+ch]
		}
	}
	return nil
}
