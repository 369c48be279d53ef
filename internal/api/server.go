package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/vodhub/vodhub/internal/database"
	"github.com/vodhub/vodhub/internal/jobs"
	"github.com/vodhub/vodhub/internal/logger"
)

// Trigger dispatches one job asynchronously
type Trigger interface {
	Trigger(name string)
}

// Server is the engine's HTTP boundary. It accepts provider change
// notifications and exposes a small admin surface over jobs and providers.
type Server struct {
	stores  *database.Stores
	queue   *jobs.Queue
	trigger Trigger
	check   func() error
	http    *http.Server
}

// NewServer creates the HTTP boundary
func NewServer(stores *database.Stores, queue *jobs.Queue, trigger Trigger) *Server {
	return &Server{
		stores:  stores,
		queue:   queue,
		trigger: trigger,
		check:   database.HealthCheck,
	}
}

// Router builds the gin engine with middleware and routes
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	logUnmanaged := s.stores.Settings.GetOr(context.Background(),
		"log_unmanaged_endpoints", "false") == "true"

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(RequestLogger(logUnmanaged))
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/health", s.health)

	api := router.Group("/api")
	{
		api.GET("/jobs", s.listJobs)
		api.GET("/providers", s.listProviders)
		api.POST("/providers", s.createProvider)
		api.POST("/providers/:id/changed", s.providerChanged)
	}

	return router
}

// Start begins serving on the configured port. It blocks until the
// listener closes.
func (s *Server) Start(port int) error {
	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	logger.AppLogger().WithFields(map[string]interface{}{"port": port}).
		Info("http boundary listening")

	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
