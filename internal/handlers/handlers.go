// Package handlers exposes a Classifier over HTTP.
package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/nfnt/resize"

	"github.com/vanlife/go-imgclass"
)

// maxUploadBytes bounds multipart uploads.
const maxUploadBytes = 10 << 20

type Handler struct {
	model Classifier
}

func NewHandler(model Classifier) *Handler {
	return &Handler{model: model}
}

// Router wires the endpoints with permissive CORS.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	r.Use(cors.New(config))

	r.GET("/health", h.Health)
	r.POST("/predict", h.Predict)
	r.POST("/predict/image", h.PredictFromImage)
	return r
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "classes": len(h.model.Classes())})
}

// Predict classifies a flattened HWC array of 0..255 RGB values.
func (h *Handler) Predict(c *gin.Context) {
	var req PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON"})
		return
	}

	size := h.model.ImageSize()
	expected := size * size * 3
	if len(req.Image) != expected {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("Expected %d values, got %d", expected, len(req.Image)),
		})
		return
	}

	arr := &imgclass.Array{Height: size, Width: size, Channels: 3, Pix: req.Image}
	h.respond(c, arr)
}

// PredictFromImage classifies an uploaded JPEG, PNG, GIF or WebP file sent
// in the "image" form field.
func (h *Handler) PredictFromImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	header, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "No image file provided. Use 'image' as the form field name"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to read upload"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to read upload"})
		return
	}

	// Uploads go through the loader's decode, orientation and resize path.
	arr, err := imgclass.ImageArray(data, h.model.ImageSize(), resize.NearestNeighbor)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid image format. Supported: JPEG, PNG, GIF, WebP"})
		return
	}
	slog.Debug("imgclass: upload received", "file", header.Filename, "bytes", len(data))

	h.respond(c, arr)
}

func (h *Handler) respond(c *gin.Context, arr *imgclass.Array) {
	batch, err := h.model.PreprocessInput([]*imgclass.Array{arr})
	if err != nil {
		slog.Error("imgclass: preprocessing failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to preprocess image"})
		return
	}

	rows, err := h.model.Predict(c.Request.Context(), batch)
	if err != nil || len(rows) != 1 {
		slog.Error("imgclass: prediction failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Prediction failed"})
		return
	}

	res, err := newPredictionResponse(rows[0], h.model.Classes())
	if err != nil {
		slog.Error("imgclass: prediction failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Prediction failed"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func newPredictionResponse(row []float32, classes []string) (*PredictionResponse, error) {
	best := imgclass.ArgMax(row)
	if best < 0 || len(row) > len(classes) {
		return nil, fmt.Errorf("%w: %d scores for %d classes", imgclass.ErrShapeMismatch, len(row), len(classes))
	}
	preds := make(map[string]float32, len(row))
	for i, v := range row {
		preds[classes[i]] = v
	}
	return &PredictionResponse{
		Class:       classes[best],
		Confidence:  row[best],
		Predictions: preds,
	}, nil
}
