package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"pixelpharm-backend/internal/bloodtests"
	"pixelpharm-backend/internal/bodycomp"
	"pixelpharm-backend/internal/insights"
	"pixelpharm-backend/internal/processing"
	"pixelpharm-backend/internal/shared/config"
	"pixelpharm-backend/internal/shared/metrics"
	"pixelpharm-backend/internal/shared/server/middleware"
	"pixelpharm-backend/internal/shared/server/respond"
	"pixelpharm-backend/internal/uploads"
	"pixelpharm-backend/internal/usage"
	"pixelpharm-backend/internal/users"
)

// Rate limit groups. Status polling gets a larger bucket than writes.
const (
	groupDefault = "DEFAULT"
	groupPolling = "POLLING"
	groupUpload  = "UPLOAD"
	groupLLM     = "LLM"
)

// RouterDeps carries the handlers mounted under /api/v1. Nil handlers are skipped.
type RouterDeps struct {
	Config            config.Config
	UsersHandler      *users.Handler
	UsageHandler      *usage.Handler
	UploadsHandler    *uploads.Handler
	ProcessingHandler *processing.Handler
	BloodHandler      *bloodtests.Handler
	BodyHandler       *bodycomp.Handler
	InsightsHandler   *insights.Handler
	// Limiter overrides the rate limiter. Used by tests.
	Limiter *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	cfg := deps.Config
	r.Use(
		middleware.RequestID(),
		otelgin.Middleware(cfg.OTelServiceName),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.Auth(cfg.Env),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:        rateLimitRules(),
			DefaultGroup: groupDefault,
			GroupFor:     rateLimitGroup,
			Limiter:      deps.Limiter,
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})

	if deps.UsersHandler != nil {
		deps.UsersHandler.RegisterRoutes(api)
	}
	if deps.UsageHandler != nil {
		deps.UsageHandler.RegisterRoutes(api)
	}
	if deps.UploadsHandler != nil {
		deps.UploadsHandler.RegisterRoutes(api)
	}
	if deps.ProcessingHandler != nil {
		deps.ProcessingHandler.RegisterRoutes(api)
	}
	if deps.BloodHandler != nil {
		deps.BloodHandler.RegisterRoutes(api)
	}
	if deps.BodyHandler != nil {
		deps.BodyHandler.RegisterRoutes(api)
	}
	if deps.InsightsHandler != nil {
		deps.InsightsHandler.RegisterRoutes(api)
	}
	if cfg.IsDevLike() && deps.UsageHandler != nil {
		dev := api.Group("/dev")
		deps.UsageHandler.RegisterDevRoutes(dev)
	}

	return r
}

func rateLimitRules() map[string]middleware.RateLimitRule {
	return map[string]middleware.RateLimitRule{
		groupDefault: {Rate: 5, Burst: 30},
		groupPolling: {Rate: 2, Burst: 60},
		groupUpload:  {Rate: 0.2, Burst: 10},
		groupLLM:     {Rate: 0.1, Burst: 5},
	}
}

func rateLimitGroup(c *gin.Context) string {
	method := c.Request.Method
	switch c.FullPath() {
	case "/api/v1/uploads/:id/processing", "/api/v1/uploads/:id", "/api/v1/processing/:id":
		if method == http.MethodGet {
			return groupPolling
		}
	case "/api/v1/uploads", "/api/v1/uploads/presign", "/api/v1/uploads/from-s3":
		if method == http.MethodPost {
			return groupUpload
		}
	case "/api/v1/uploads/:id/process", "/api/v1/process", "/api/v1/insights":
		if method == http.MethodPost {
			return groupLLM
		}
	}
	return groupDefault
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
