package api

import (
	"net/http"
	"strconv"
	"strings"

	"mesh-trading-engine/internal/auth"
	"mesh-trading-engine/internal/vault"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"paused": s.engine.IsPaused(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status())
}

func (s *Server) handleDirective(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Directive())
}

func (s *Server) handleDecisions(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Decisions())
}

func (s *Server) handleColonies(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Colonies())
}

func (s *Server) handleInstances(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Instances())
}

// handleSweeps returns the most recent cycle's sweeps, or persisted history
// when ?history=N is given and a repository is configured.
func (s *Server) handleSweeps(c *gin.Context) {
	if raw := c.Query("history"); raw != "" {
		if s.repo == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence not configured"})
			return
		}
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "history must be between 1 and 1000"})
			return
		}
		results, err := s.repo.SweepHistory(c.Request.Context(), limit)
		if err != nil {
			s.logger.Error("sweep history query failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sweep history"})
			return
		}
		c.JSON(http.StatusOK, results)
		return
	}
	c.JSON(http.StatusOK, s.engine.LastSweeps())
}

func (s *Server) handleMarket(c *gin.Context) {
	snap := s.engine.MarketSnapshot()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no market snapshot yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// handleRoutes answers conversion path queries: ?from=BTC&to=ETH[&amount=1.5].
func (s *Server) handleRoutes(c *gin.Context) {
	if s.conv == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "routing not configured"})
		return
	}

	from := strings.ToUpper(c.Query("from"))
	to := strings.ToUpper(c.Query("to"))
	if from == "" || to == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to query parameters are required"})
		return
	}

	path, err := s.conv.GetBestPath(from, to, 4)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	count, avgProfit, successRate := s.conv.PathUsage(path)
	c.JSON(http.StatusOK, gin.H{
		"path": path,
		"hops": len(path),
		"usage": gin.H{
			"count":        count,
			"avg_profit":   avgProfit,
			"success_rate": successRate,
		},
	})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	pair, err := s.authService.Login(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (s *Server) handlePause(c *gin.Context) {
	s.engine.Pause()
	s.logger.Info("engine paused by operator", "operator", c.GetString(auth.ContextKeyOperator))
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (s *Server) handleResume(c *gin.Context) {
	s.engine.Resume()
	s.logger.Info("engine resumed by operator", "operator", c.GetString(auth.ContextKeyOperator))
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

type credentialsRequest struct {
	Venue     string `json:"venue" binding:"required"`
	APIKey    string `json:"api_key" binding:"required"`
	SecretKey string `json:"secret_key" binding:"required"`
	Testnet   bool   `json:"testnet"`
}

func (s *Server) handleStoreCredentials(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "venue, api_key and secret_key are required"})
		return
	}

	creds := vault.Credentials{
		Venue:     strings.ToLower(req.Venue),
		APIKey:    req.APIKey,
		SecretKey: req.SecretKey,
		Testnet:   req.Testnet,
	}
	if err := s.vaultClient.StoreCredentials(c.Request.Context(), creds); err != nil {
		s.logger.Error("failed to store venue credentials", "venue", creds.Venue, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stored": true, "venue": creds.Venue})
}
