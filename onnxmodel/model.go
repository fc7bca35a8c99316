// Package onnxmodel runs an exported image classifier with ONNX Runtime.
package onnxmodel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/vanlife/go-imgclass"
)

// Options locates the model files.
type Options struct {
	ModelPath    string
	MetadataPath string
	LibraryPath  string // onnxruntime shared library (empty = system default)
}

// Model is an imgclass.Model backed by one ONNX Runtime session. Runs are
// serialized because the session shares its input and output tensors.
type Model struct {
	Metadata Metadata

	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// New loads the metadata, initializes the runtime and opens a session.
func New(opts Options) (*Model, error) {
	meta, err := LoadMetadata(opts.MetadataPath)
	if err != nil {
		return nil, err
	}

	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{meta.InputName}, []string{meta.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	slog.Info("imgclass: model loaded", "model", opts.ModelPath,
		"classes", len(meta.Classes), "image_size", meta.ImageSize, "layout", meta.Layout)

	return &Model{
		Metadata:     meta,
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Classes lists the class names in output column order.
func (m *Model) Classes() []string { return m.Metadata.Classes }

// ImageSize is the square edge the model expects.
func (m *Model) ImageSize() int { return m.Metadata.ImageSize }

// PreprocessInput applies the model's normalization in place.
func (m *Model) PreprocessInput(batch []*imgclass.Array) ([]*imgclass.Array, error) {
	return m.Metadata.Preprocessor().PreprocessInput(batch)
}

// Predict runs every array through the session, one sample per run.
func (m *Model) Predict(ctx context.Context, batch []*imgclass.Array) ([][]float32, error) {
	out := make([][]float32, len(batch))
	for i, a := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := m.run(a)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out[i] = row
	}
	return out, nil
}

func (m *Model) run(a *imgclass.Array) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.Metadata.pack(a, m.inputTensor.GetData()); err != nil {
		return nil, err
	}
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return append([]float32(nil), m.outputTensor.GetData()...), nil
}

// Close releases the session and its tensors and tears down the runtime.
func (m *Model) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inputTensor != nil {
		m.inputTensor.Destroy()
	}
	if m.outputTensor != nil {
		m.outputTensor.Destroy()
	}
	if m.session != nil {
		m.session.Destroy()
	}
	ort.DestroyEnvironment()
}
