package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mamadbah2/feria/internal/server/handlers"
)

// New wires the Gin engine with required routes and middlewares. A nil
// gatherer leaves /metrics unmounted.
func New(sales *handlers.SalesHandler, admin *handlers.AdminHandler, gatherer prometheus.Gatherer, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/v1", handlers.Authenticate())
	api.POST("/sales", sales.RecordSale)
	api.GET("/sales/pending", sales.PendingSales)
	api.GET("/status", sales.Status)
	api.POST("/connectivity", sales.SetConnectivity)
	api.GET("/feria/active", sales.ActiveFeria)
	api.GET("/report", sales.LiveReport)

	adm := api.Group("/admin", handlers.RequireAdmin())
	adm.PUT("/feria/active", admin.ConfigureActive)
	adm.POST("/feria/archive", admin.Archive)
	adm.GET("/history", admin.ListHistory)
	adm.GET("/history/:id", admin.GetHistory)
	adm.POST("/history/:id/activate", admin.Activate)
	adm.DELETE("/history/:id", admin.DeleteHistory)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("operator", c.GetHeader(handlers.HeaderOperatorID)))
	}
}
