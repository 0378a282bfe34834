package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/mpf/internal/api/handlers"
	"github.com/your-org/mpf/internal/api/ws"
	"github.com/your-org/mpf/internal/auth"
	"github.com/your-org/mpf/internal/storage"
)

type RouterConfig struct {
	APIKey string
	Store  storage.RecordStore
	// Blobs is nil when photo storage is not configured.
	Blobs   storage.BlobStore
	Ledger  handlers.MatchLedger
	Alerts  AlertService
	Hub     *ws.Hub
	Checks  map[string]handlers.Check
	Records handlers.RecordOptions
	// Searcher is nil when face models are not loaded.
	Searcher handlers.PhotoSearcher
}

// AlertService is the alerting hook as seen by the API.
type AlertService interface {
	handlers.NotificationService
	handlers.SubmissionNotifier
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	// Records
	opts := cfg.Records
	if opts.Notifier == nil && cfg.Alerts != nil {
		opts.Notifier = cfg.Alerts
	}
	recordH := handlers.NewRecordHandler(cfg.Store, cfg.Blobs, cfg.Ledger, opts)
	v1.POST("/records", recordH.Create)
	v1.GET("/records", recordH.List)
	v1.GET("/records/:id", recordH.Get)
	v1.GET("/records/:id/photo", recordH.Photo)
	v1.PATCH("/records/:id/status", recordH.UpdateStatus)
	v1.DELETE("/records/:id", recordH.Delete)
	v1.POST("/records/:id/rematch", recordH.Rematch)
	v1.GET("/records/:id/matches", recordH.Matches)
	v1.GET("/stats", recordH.Stats)

	// Photo search
	searchH := handlers.NewSearchHandler(cfg.Searcher, opts.Estimator)
	v1.POST("/search", searchH.Search)

	// Matches
	matchH := handlers.NewMatchHandler(cfg.Ledger)
	v1.GET("/matches", matchH.List)
	v1.PATCH("/matches/:id", matchH.Update)

	// Notifications
	notifH := handlers.NewNotificationHandler(cfg.Alerts)
	v1.GET("/notifications", notifH.List)
	v1.POST("/notifications/:id/read", notifH.MarkRead)
	v1.DELETE("/notifications/:id", notifH.Delete)

	return r
}
