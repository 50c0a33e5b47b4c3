package rest

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andrejs2008/evomint/internal/logging"
	"github.com/andrejs2008/evomint/internal/server/admission"
	"github.com/andrejs2008/evomint/internal/server/auth"
	"github.com/andrejs2008/evomint/internal/server/credentials"
	"github.com/andrejs2008/evomint/internal/server/lifecycle"
	"github.com/andrejs2008/evomint/internal/server/models"
)

// operatorKey is the gin context key the admin middleware stores the
// verified operator name under.
const operatorKey = "operator"

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
			return slices.Contains(models.Categories, fl.Field().String())
		})
		_ = v.RegisterValidation("genmode", func(fl validator.FieldLevel) bool {
			mode := fl.Field().String()
			return mode == models.ModeSelection || mode == models.ModePrompt
		})
	}
}

// RouterConfig carries the HTTP-layer settings that are not services.
type RouterConfig struct {
	AdminSecret   []byte
	TokenValidity time.Duration
	QuotaSeedPath string
	StaticDir     string
}

// NewRouter assembles the gin engine: public item routes, the websocket
// feed, the metrics endpoint and the JWT-guarded admin group.
func NewRouter(lc *lifecycle.Service, adm *admission.Service, creds *credentials.Service,
	hub *Hub, cfg RouterConfig, logger logging.Logger) *gin.Engine {

	h := &Handlers{
		lifecycle:     lc,
		admission:     adm,
		credentials:   creds,
		hub:           hub,
		logger:        logger,
		adminSecret:   cfg.AdminSecret,
		tokenValidity: cfg.TokenValidity,
		quotaSeedPath: cfg.QuotaSeedPath,
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.StaticDir != "" {
		router.Static("/static", cfg.StaticDir)
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", h.health)
		v1.GET("/events", h.events)

		v1.POST("/items", h.createItem)
		v1.GET("/items", h.listItems)
		v1.POST("/items/breed", h.breedItem)
		v1.GET("/items/:id", h.getItem)
		v1.GET("/items/:id/history", h.getHistory)
		v1.GET("/items/:id/image-url", h.getImageURL)
		v1.POST("/items/:id/evolve", h.evolveItem)

		v1.GET("/availability/:creator/:category", h.getAvailability)
		v1.POST("/waitlist", h.joinWaitlist)
		v1.POST("/credentials", h.saveCredentials)
	}

	admin := v1.Group("/admin")
	admin.POST("/token", h.adminToken)

	guarded := admin.Group("")
	guarded.Use(adminAuth(cfg.AdminSecret))
	{
		guarded.POST("/sweeps/retry", h.runRetrySweep)
		guarded.POST("/sweeps/diff", h.runDiffSweep)
		guarded.POST("/evolve-due", h.runEvolveDue)
		guarded.GET("/quotas", h.listQuotas)
		guarded.POST("/quotas/seed", h.reseedQuotas)
	}

	return router
}

// requestLogger emits one structured line per request after it completes.
func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// adminAuth verifies the bearer token and stashes the operator name for
// the handlers behind it.
func adminAuth(secretKey []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.Request.Header.Get("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "detail": "missing bearer token"})
			return
		}

		operator, err := auth.OperatorFromToken(token, secretKey)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "detail": err.Error()})
			return
		}

		c.Set(operatorKey, operator)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
