package imgclass

// ScalePreprocessor maps every value v to v*Scale + Offset.
type ScalePreprocessor struct {
	Scale  float32
	Offset float32
}

var (
	// MobileNetV2 scales 0..255 pixels to -1..1.
	MobileNetV2 = ScalePreprocessor{Scale: 1.0 / 127.5, Offset: -1}
	// UnitScale scales 0..255 pixels to 0..1.
	UnitScale = ScalePreprocessor{Scale: 1.0 / 255}
)

// PreprocessInput rescales the batch in place and returns it.
func (p ScalePreprocessor) PreprocessInput(batch []*Array) ([]*Array, error) {
	for _, a := range batch {
		for i, v := range a.Pix {
			a.Pix[i] = v*p.Scale + p.Offset
		}
	}
	return batch, nil
}

// PreprocessorFunc adapts a plain function to Preprocessor.
type PreprocessorFunc func(batch []*Array) ([]*Array, error)

func (f PreprocessorFunc) PreprocessInput(batch []*Array) ([]*Array, error) {
	return f(batch)
}
