package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/ecovision/internal/classification"
	"github.com/example/ecovision/internal/repository"
	"github.com/example/ecovision/internal/usecase"
)

// MaxUploadSize is the default request body limit for image uploads.
const MaxUploadSize = 10 << 20

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// ClassificationService is what the routes need from the use case.
type ClassificationService interface {
	ClassifyImage(ctx context.Context, imageBytes []byte) (string, *classification.Result, error)
	GetResult(ctx context.Context, requestID string) (*repository.ClassificationLog, error)
	ListHistory(ctx context.Context, limit int) ([]*repository.ClassificationLog, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

type classifyRequest struct {
	Image string `json:"image"`
}

type classifyResponse struct {
	RequestID string `json:"request_id"`
	classification.Result
}

type endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var endpoints = []endpoint{
	{Path: "/", Method: http.MethodGet, Description: "This help message"},
	{Path: "/api/test", Method: http.MethodGet, Description: "Test endpoint"},
	{Path: "/api/classify-trash", Method: http.MethodPost, Description: "Classify trash images"},
	{Path: "/api/results/:id", Method: http.MethodGet, Description: "Look up a previous classification"},
	{Path: "/api/history", Method: http.MethodGet, Description: "Recent classifications"},
	{Path: "/api/metrics", Method: http.MethodGet, Description: "Aggregated classification metrics"},
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc ClassificationService, maxUploadSize int64) {
	if maxUploadSize <= 0 {
		maxUploadSize = MaxUploadSize
	}

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"message":   "Trash Scanner API is running",
			"endpoints": endpoints,
		})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"message":   "API is working",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	api.POST("/classify-trash", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

		var (
			data   []byte
			status int
			msg    string
		)
		if c.ContentType() == "multipart/form-data" {
			data, status, msg = readMultipartImage(c)
		} else {
			data, status, msg = readJSONImage(c)
		}
		if status != 0 {
			c.JSON(status, gin.H{"error": msg})
			return
		}

		requestID, result, err := svc.ClassifyImage(c.Request.Context(), data)
		if errors.Is(err, usecase.ErrNoImageData) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No image data provided"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to classify trash"})
			return
		}

		c.Set("classification_id", requestID)
		c.Header("X-Classification-ID", requestID)
		c.JSON(http.StatusOK, classifyResponse{RequestID: requestID, Result: *result})
	})

	api.GET("/results/:id", func(c *gin.Context) {
		requestID := c.Param("id")
		log, err := svc.GetResult(c.Request.Context(), requestID)
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load result"})
			return
		}
		c.JSON(http.StatusOK, log)
	})

	api.GET("/history", func(c *gin.Context) {
		limit := defaultHistoryLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = parsed
		}
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}

		logs, err := svc.ListHistory(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
			return
		}
		if logs == nil {
			logs = []*repository.ClassificationLog{}
		}
		c.JSON(http.StatusOK, gin.H{"history": logs, "count": len(logs)})
	})

	api.GET("/metrics", func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func readMultipartImage(c *gin.Context) ([]byte, int, string) {
	file, err := c.FormFile("image")
	if err != nil {
		if isBodyTooLarge(err) {
			return nil, http.StatusRequestEntityTooLarge, "image exceeds upload limit"
		}
		return nil, http.StatusBadRequest, "No image data provided"
	}

	if !strings.HasPrefix(file.Header.Get("Content-Type"), "image/") {
		return nil, http.StatusUnsupportedMediaType, "unsupported image content type"
	}

	src, err := file.Open()
	if err != nil {
		return nil, http.StatusBadRequest, "unable to open image"
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, http.StatusInternalServerError, "failed to read image"
	}
	return data, 0, ""
}

func readJSONImage(c *gin.Context) ([]byte, int, string) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if isBodyTooLarge(err) {
			return nil, http.StatusRequestEntityTooLarge, "image exceeds upload limit"
		}
		return nil, http.StatusBadRequest, "No image data provided"
	}

	data, err := decodeImageData(req.Image)
	if err != nil {
		return nil, http.StatusBadRequest, err.Error()
	}
	return data, 0, ""
}

// decodeImageData accepts raw base64 or a data URI.
func decodeImageData(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, ","); idx >= 0 {
		raw = raw[idx+1:]
	}
	if raw == "" {
		return nil, errors.New("No image data provided")
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(raw, "="))
		if err != nil {
			return nil, errors.New("Invalid base64 image data")
		}
	}
	return data, nil
}

func isBodyTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
