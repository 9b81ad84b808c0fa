package handler

import (
	"net/http"
	"time"

	"interview-concierge/internal/admin"
	"interview-concierge/internal/auth"
	"interview-concierge/internal/interview"
	"interview-concierge/internal/metrics"
	"interview-concierge/internal/proxy"
	"interview-concierge/internal/recap"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// longPollTimeout bounds a recap request waiting for AI fields
const longPollTimeout = 25 * time.Second

// Handler handles HTTP requests
type Handler struct {
	proxy      *proxy.Service
	interviews *interview.Service
	recaps     *recap.Service
	poller     *recap.Poller
	admin      *admin.Service
	gate       *auth.Service
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	proxySvc *proxy.Service,
	interviews *interview.Service,
	recaps *recap.Service,
	poller *recap.Poller,
	adminSvc *admin.Service,
	gate *auth.Service,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		proxy:      proxySvc,
		interviews: interviews,
		recaps:     recaps,
		poller:     poller,
		admin:      adminSvc,
		gate:       gate,
		metrics:    m,
		logger:     logger,
	}
}

// RegisterRoutes registers all API routes. Everything under /api except
// the passcode exchange runs behind protect.
func (h *Handler) RegisterRoutes(r *gin.Engine, protect gin.HandlerFunc) {
	r.GET("/health", h.HealthCheck)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	r.POST("/api/auth/passcode", h.ExchangePasscode)

	api := r.Group("/api")
	api.Use(protect)
	{
		api.Any("/airtable", h.Proxy)
		api.GET("/questions", h.Questions)

		interviews := api.Group("/interviews")
		interviews.POST("", h.StartInterview)
		interviews.GET("/:id", h.GetInterview)
		interviews.POST("/:id/permission", h.ReportPermission)
		interviews.POST("/:id/text-only", h.ContinueTextOnly)
		interviews.POST("/:id/speech", h.SpeechResult)
		interviews.PUT("/:id/text", h.SetText)
		interviews.POST("/:id/audio-level", h.AudioLevel)
		interviews.POST("/:id/toggle-mode", h.ToggleMode)
		interviews.POST("/:id/submit", h.Submit)
		interviews.GET("/:id/recap", h.Recap)
		interviews.POST("/:id/send", h.SendCopy)

		adminGroup := api.Group("/admin")
		adminGroup.GET("/sessions", h.ListSessions)
		adminGroup.POST("/sessions/:id/abandon", h.AbandonSession)
	}
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "interview-concierge",
	})
}

// Questions returns the configured interview questions
func (h *Handler) Questions(c *gin.Context) {
	questions := h.interviews.Questions()
	c.JSON(http.StatusOK, gin.H{
		"questions": questions,
		"total":     len(questions),
	})
}
