package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/dermascan/internal/api/handlers"
	"github.com/your-org/dermascan/internal/api/ws"
	"github.com/your-org/dermascan/internal/auth"
	"github.com/your-org/dermascan/internal/scanner"
	"github.com/your-org/dermascan/internal/storage"
)

type RouterConfig struct {
	APIKey  string
	Station *scanner.Station
	Store   storage.Store
	MinIO   *storage.MinIOStore // nil when snapshots are disabled
	Hub     *ws.Hub
	Checks  []handlers.Check
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(corsConfig()))

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks...)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	if cfg.Station != nil {
		cfg.Hub.OnConnect(StateGreeting(cfg.Station))
	}
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Scan flow
	scanH := handlers.NewScanHandler(cfg.Station)
	v1.POST("/login", scanH.Login)
	v1.POST("/scans", scanH.Start)
	v1.GET("/scans/current", scanH.Current)
	v1.DELETE("/scans/current", scanH.Stop)
	v1.POST("/analyze", scanH.Analyze)

	// Profiles
	profileH := handlers.NewProfileHandler(cfg.Store)
	v1.GET("/profiles/:id", profileH.Get)
	v1.PUT("/profiles/:id", profileH.Put)

	// History
	historyH := handlers.NewHistoryHandler(cfg.Store, cfg.MinIO, cfg.Station)
	v1.GET("/history", historyH.List)
	v1.GET("/history/:id", historyH.Get)
	v1.GET("/history/:id/snapshot", historyH.Snapshot)

	return r
}

// corsConfig is cors.Default plus the API key header the station UI sends.
func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowHeaders = append(cfg.AllowHeaders, "X-API-Key")
	return cfg
}
