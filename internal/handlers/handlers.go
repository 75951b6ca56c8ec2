package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/activity-check/internal/labels"
	"github.com/example/activity-check/internal/logging"
	"github.com/example/activity-check/internal/usecase"
)

// DownloadFailedMessage is returned when the image origin does not answer with 200.
const DownloadFailedMessage = "Failed to download the image"

// Analyzer runs the analysis flow for one image URL.
type Analyzer interface {
	Analyze(ctx context.Context, requestID, imageURL string) (*usecase.Analysis, error)
}

type analyzeRequest struct {
	ImageURL string `json:"image_url"`
}

type analyzeResponse struct {
	DetectedLabels   []labels.Label `json:"detected_labels"`
	DetectedActivity string         `json:"detected_activity"`
	RiskLevel        int            `json:"risk_level"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router. authMiddleware and
// metricsHandler may be nil.
func RegisterRoutes(router *gin.Engine, analyzer Analyzer, authMiddleware gin.HandlerFunc, metricsHandler http.Handler) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	analyzeHandlers := []gin.HandlerFunc{}
	if authMiddleware != nil {
		analyzeHandlers = append(analyzeHandlers, authMiddleware)
	}
	analyzeHandlers = append(analyzeHandlers, analyzeImage(analyzer))
	router.POST("/analyze", analyzeHandlers...)
}

func analyzeImage(analyzer Analyzer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req analyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": usecase.MissingImageURLMessage})
			return
		}

		analysis, err := analyzer.Analyze(c.Request.Context(), RequestIDFrom(c), req.ImageURL)
		if err != nil {
			status, message := errorResponse(err)
			c.JSON(status, gin.H{"error": message})
			return
		}

		detected := analysis.Labels
		if detected == nil {
			detected = []labels.Label{}
		}
		c.JSON(http.StatusOK, analyzeResponse{
			DetectedLabels:   detected,
			DetectedActivity: analysis.Activity,
			RiskLevel:        analysis.Risk,
		})
	}
}

// errorResponse maps a tagged error to its HTTP status and public message.
func errorResponse(err error) (int, string) {
	switch logging.KindOf(err) {
	case logging.KindValidation:
		return http.StatusBadRequest, logging.Cause(err).Error()
	case logging.KindDownload:
		return http.StatusBadRequest, DownloadFailedMessage
	default:
		return http.StatusInternalServerError, logging.Cause(err).Error()
	}
}
