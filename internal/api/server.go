// Package api exposes the engine's read-side state and operator controls
// over HTTP, plus a WebSocket stream of engine events.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"mesh-trading-engine/config"
	"mesh-trading-engine/internal/auth"
	"mesh-trading-engine/internal/consensus"
	"mesh-trading-engine/internal/database"
	"mesh-trading-engine/internal/engine"
	"mesh-trading-engine/internal/events"
	"mesh-trading-engine/internal/gate"
	"mesh-trading-engine/internal/logging"
	"mesh-trading-engine/internal/market"
	"mesh-trading-engine/internal/router"
	"mesh-trading-engine/internal/sweeper"
	"mesh-trading-engine/internal/vault"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// EngineAPI is what the server needs from the engine: read-side projections
// and the pause/resume controls.
type EngineAPI interface {
	Status() engine.Status
	Directive() gate.Directive
	Decisions() map[string]consensus.Decision
	LastSweeps() []*sweeper.Result
	Colonies() []engine.ColonyView
	Instances() []engine.InstanceView
	MarketSnapshot() *market.Snapshot
	Pause()
	Resume()
	IsPaused() bool
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	engine      EngineAPI
	repo        *database.Repository // nil when persistence is disabled
	conv        *router.Router       // nil when routing is disabled
	eventBus    *events.EventBus
	hub         *WSHub
	cfg         config.ServerConfig
	authService *auth.Service // nil when auth is disabled
	vaultClient *vault.Client // nil when vault is disabled
	rateLimiter *RateLimiter
	logger      *logging.Logger
}

// NewServer creates a new API server. repo, conv, authService and
// vaultClient may be nil; the matching routes degrade or disappear.
func NewServer(
	cfg config.ServerConfig,
	eng EngineAPI,
	repo *database.Repository,
	conv *router.Router,
	eventBus *events.EventBus,
	authService *auth.Service,
	vaultClient *vault.Client,
	logger *logging.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "*" || cfg.AllowedOrigins == "" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{cfg.AllowedOrigins}
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	server := &Server{
		router:      r,
		engine:      eng,
		repo:        repo,
		conv:        conv,
		eventBus:    eventBus,
		hub:         NewWSHub(logger),
		cfg:         cfg,
		authService: authService,
		vaultClient: vaultClient,
		rateLimiter: NewRateLimiter(120, time.Minute),
		logger:      logger.WithComponent("api"),
	}

	server.setupRoutes()

	// Stream every engine event to connected WebSocket clients.
	go server.hub.Run()
	eventBus.SubscribeAll(server.hub.BroadcastEvent)

	return server
}

// rateLimitMiddleware rate limits requests per endpoint path.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if !s.rateLimiter.Allow(path) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
				"path":  path,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api")
	api.Use(s.rateLimitMiddleware())

	// Read-side state, public.
	api.GET("/status", s.handleStatus)
	api.GET("/directive", s.handleDirective)
	api.GET("/decisions", s.handleDecisions)
	api.GET("/colonies", s.handleColonies)
	api.GET("/instances", s.handleInstances)
	api.GET("/sweeps", s.handleSweeps)
	api.GET("/market", s.handleMarket)
	api.GET("/routes", s.handleRoutes)

	if s.authService != nil {
		api.POST("/auth/login", s.handleLogin)

		// Operator controls require a valid token.
		control := api.Group("/control")
		control.Use(auth.Middleware(s.authService.JWT()))
		control.POST("/pause", s.handlePause)
		control.POST("/resume", s.handleResume)
		if s.vaultClient != nil {
			control.POST("/venues/credentials", s.handleStoreCredentials)
		}
	}
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
	}

	s.logger.Info("API server listening", "address", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
