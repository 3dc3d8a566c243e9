// Package api exposes the transcription pipeline over REST and websocket.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medscribe/medscribe/pkg/logging"
	"github.com/medscribe/medscribe/pkg/notify"
	"github.com/medscribe/medscribe/pkg/pipeline"
	"github.com/medscribe/medscribe/pkg/store"
)

// Server serves the transcription API. Routing is request/response plumbing
// only; all pipeline state lives in the injected collaborators.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	dispatcher *pipeline.Dispatcher
	store      *store.Store
	notifier   *notify.Registry
	logger     *logging.Logger
}

// NewServer wires the API routes around the pipeline collaborators.
func NewServer(
	addr string,
	dispatcher *pipeline.Dispatcher,
	jobStore *store.Store,
	notifier *notify.Registry,
	logger *logging.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	s := &Server{
		router:     router,
		dispatcher: dispatcher,
		store:      jobStore,
		notifier:   notifier,
		logger:     logger,
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	apiGroup := s.router.Group("/api")
	apiGroup.GET("/health", s.handleHealth)
	apiGroup.POST("/transcribe/:encounterID", s.handleSubmit)
	apiGroup.GET("/transcribe/:encounterID/status", s.handleStatus)
	apiGroup.GET("/transcriptions/:encounterID", s.handleList)
	apiGroup.DELETE("/transcriptions/:encounterID", s.handleDelete)
	apiGroup.GET("/ws/transcription/:encounterID", s.handleSubscription)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(shutdownCtx)
}

// requestID tags every response for log correlation.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Request-ID", uuid.New().String())
		c.Next()
	}
}
