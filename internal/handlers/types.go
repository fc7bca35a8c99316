package handlers

import (
	"context"

	"github.com/vanlife/go-imgclass"
)

// Classifier is a model that also knows its classes, input size and
// normalization. *onnxmodel.Model satisfies it.
type Classifier interface {
	Predict(ctx context.Context, batch []*imgclass.Array) ([][]float32, error)
	PreprocessInput(batch []*imgclass.Array) ([]*imgclass.Array, error)
	Classes() []string
	ImageSize() int
}

type PredictionRequest struct {
	Image []float32 `json:"image"`
}

type PredictionResponse struct {
	Class       string             `json:"class"`
	Confidence  float32            `json:"confidence"`
	Predictions map[string]float32 `json:"predictions"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
