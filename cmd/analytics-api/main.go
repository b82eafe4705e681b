package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shoplytics/analytics_backend/auth"
	"github.com/shoplytics/analytics_backend/config"
	"github.com/shoplytics/analytics_backend/events"
	"github.com/shoplytics/analytics_backend/middlewares"
	"github.com/shoplytics/analytics_backend/models"
	"github.com/shoplytics/analytics_backend/reports"
	"github.com/shoplytics/analytics_backend/shopsync"
	"github.com/shoplytics/analytics_backend/utils"
	"github.com/shoplytics/analytics_backend/webhooks"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("ANALYTICS_API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	scheduler := shopsync.NewScheduler()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(func(c *gin.Context) {
		if c.GetHeader("token") == "" {
			authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
			if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				token := strings.TrimSpace(authHeader[7:])
				if token != "" {
					c.Request.Header.Set("token", token)
				}
			}
		}
		c.Next()
	})
	r.Use(middlewares.SessionMiddleware())
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	// Auth & tenancy
	r.POST("/api/auth/register", auth.RegisterTenantHandler())
	r.POST("/api/auth/login", auth.LoginHandler())
	r.POST("/api/auth/logout", auth.LogoutHandler())

	// Shops
	r.POST("/api/shops", auth.RegisterShopHandler())
	r.GET("/api/shops", auth.ListShopsHandler())

	// Sync pipeline
	r.POST("/api/shops/:id/sync", shopsync.RunSyncHandler())
	r.GET("/api/shops/:id/jobs", shopsync.ListJobsHandler())
	r.GET("/api/jobs/:id", shopsync.JobDetailHandler())
	r.GET("/api/sync-status", shopsync.SyncStatusHandler(scheduler))
	r.POST("/api/shops/:id/schedule", shopsync.StartShopScheduleHandler(scheduler))
	r.DELETE("/api/shops/:id/schedule", shopsync.StopShopScheduleHandler(scheduler))

	// Behavioral events & analytics
	r.POST("/api/shops/:id/events", events.TrackEventHandler())
	r.POST("/api/shops/:id/events/product-viewed", events.TrackTypedEventHandler(models.EventTypeProductViewed))
	r.POST("/api/shops/:id/events/checkout-started", events.TrackTypedEventHandler(models.EventTypeCheckoutStarted))
	r.POST("/api/shops/:id/events/cart-abandoned", events.TrackTypedEventHandler(models.EventTypeCartAbandoned))
	r.GET("/api/shops/:id/analytics/behavior", events.BehaviorAnalyticsHandler())
	r.GET("/api/shops/:id/analytics/top-engaged", events.TopCustomersHandler())

	// Dashboard metrics
	r.GET("/api/shops/:id/metrics/overview", reports.OverviewHandler())
	r.GET("/api/shops/:id/metrics/orders-by-date", reports.OrdersByDateHandler())
	r.GET("/api/shops/:id/metrics/top-customers", reports.TopCustomersHandler())
	r.GET("/api/shops/:id/metrics/export", reports.ExportMetricsHandler())

	// Platform webhook ingress (HMAC verified, no session).
	r.POST("/webhooks/shopify", webhooks.IngressHandler())

	// Pub/Sub push endpoint for event producers.
	r.POST("/pubsub/analytics-events", events.PubSubPushHandler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("DISABLE_SYNC_SCHEDULER")), "true") {
		scheduler.Start()
		defer scheduler.Stop()
	} else {
		logger.WithFields(logrus.Fields{"field": "scheduler"}).Warn("DISABLE_SYNC_SCHEDULER=true; recurring sync passes disabled")
	}

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}
