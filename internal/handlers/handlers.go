package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/example/cardscan/internal/auth"
	"github.com/example/cardscan/internal/imageloader"
	"github.com/example/cardscan/internal/metrics"
	"github.com/example/cardscan/internal/repository"
	"github.com/example/cardscan/internal/usecase"
	"github.com/example/cardscan/internal/websearch"
)

const (
	// MaxUploadSize is the default per-image limit.
	MaxUploadSize = imageloader.DefaultMaxBytes
	// MaxRequestSize caps a whole request body, batches included.
	MaxRequestSize = 64 << 20
)

// Recognizer is the use case surface the HTTP layer depends on.
type Recognizer interface {
	RecognizeBatch(ctx context.Context, subject string, refs []string) []usecase.ItemResult
	RecognizeImages(ctx context.Context, subject string, imgs []imageloader.Image) []usecase.ItemResult
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
	GetResult(ctx context.Context, subject, requestID string) (*repository.RecognitionLog, error)
}

// WebSearcher proxies the auxiliary search and scraping services.
type WebSearcher interface {
	Search(ctx context.Context, query string) (map[string]any, error)
	Scrape(ctx context.Context, pageURL string) (map[string]any, error)
}

// Options tune request limits. Zero values fall back to the package defaults.
type Options struct {
	MaxImageBytes   int64
	MaxRequestBytes int64
}

type recognizeRequest struct {
	Images []string `json:"images"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router. A nil authMiddleware
// leaves /api open.
func RegisterRoutes(router *gin.Engine, uc Recognizer, search WebSearcher, authMiddleware gin.HandlerFunc, opts Options) {
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = MaxUploadSize
	}
	if opts.MaxRequestBytes <= 0 {
		opts.MaxRequestBytes = MaxRequestSize
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	if authMiddleware != nil {
		api.Use(authMiddleware)
	}

	api.POST("/recognize", func(c *gin.Context) {
		if !limitBody(c, opts.MaxRequestBytes) {
			return
		}

		var req recognizeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			if isTooLarge(err) {
				tooLarge(c)
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
			return
		}
		if len(req.Images) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "images is required"})
			return
		}

		subject, _ := auth.GetSubject(c.Request.Context())
		results := uc.RecognizeBatch(c.Request.Context(), subject, req.Images)
		c.JSON(http.StatusOK, gin.H{
			"cards":   usecase.Cards(results),
			"results": results,
		})
	})

	api.POST("/recognize/upload", func(c *gin.Context) {
		if !limitBody(c, opts.MaxRequestBytes) {
			return
		}

		form, err := c.MultipartForm()
		if err != nil {
			if isTooLarge(err) {
				tooLarge(c)
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form is required"})
			return
		}
		files := form.File["image"]
		if len(files) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}

		imgs := make([]imageloader.Image, 0, len(files))
		for _, file := range files {
			if file.Size > opts.MaxImageBytes {
				tooLarge(c)
				return
			}
			img, err := readUpload(file, opts.MaxImageBytes)
			switch {
			case errors.Is(err, imageloader.ErrImageTooLarge):
				tooLarge(c)
				return
			case errors.Is(err, imageloader.ErrImageUnavailable):
				c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported image type"})
				return
			case err != nil:
				c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read image"})
				return
			}
			imgs = append(imgs, img)
		}

		subject, _ := auth.GetSubject(c.Request.Context())
		results := uc.RecognizeImages(c.Request.Context(), subject, imgs)
		c.JSON(http.StatusOK, gin.H{
			"cards":   usecase.Cards(results),
			"results": results,
		})
	})

	api.GET("/search", func(c *gin.Context) {
		query := strings.TrimSpace(c.Query("q"))
		if query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
			return
		}
		proxy(c, func(ctx context.Context) (map[string]any, error) {
			return search.Search(ctx, query)
		})
	})

	api.GET("/article", func(c *gin.Context) {
		pageURL := strings.TrimSpace(c.Query("url"))
		if pageURL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
			return
		}
		proxy(c, func(ctx context.Context) (map[string]any, error) {
			return search.Scrape(ctx, pageURL)
		})
	})

	api.GET("/result/:id", func(c *gin.Context) {
		requestID := c.Param("id")
		if requestID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
			return
		}

		subject, _ := auth.GetSubject(c.Request.Context())
		log, err := uc.GetResult(c.Request.Context(), subject, requestID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, usecase.ErrAuditLogDisabled):
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load result"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id": log.RequestID,
			"image_hash": log.ImageHash,
			"model":      log.Model,
			"status":     log.Status,
			"details":    log.Details,
			"latency_ms": log.LatencyMs,
			"cache_hit":  log.CacheHit,
			"created_at": log.CreatedAt,
		})
	})

	api.GET("/metrics/summary", func(c *gin.Context) {
		summary, err := uc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func proxy(c *gin.Context, call func(ctx context.Context) (map[string]any, error)) {
	out, err := call(c.Request.Context())
	if err != nil {
		if errors.Is(err, websearch.ErrUpstream) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

func readUpload(file *multipart.FileHeader, maxBytes int64) (imageloader.Image, error) {
	src, err := file.Open()
	if err != nil {
		return imageloader.Image{}, err
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxBytes+1))
	if err != nil {
		return imageloader.Image{}, err
	}
	return imageloader.FromBytes(data, maxBytes)
}

// limitBody rejects requests whose declared length exceeds limit and caps the
// body reader for the rest.
func limitBody(c *gin.Context, limit int64) bool {
	if c.Request.ContentLength > limit {
		tooLarge(c)
		return false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	return true
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

func tooLarge(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
}
