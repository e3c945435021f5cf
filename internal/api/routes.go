package api

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rawblock/sentinel/internal/backpressure"
	"github.com/rawblock/sentinel/internal/counters"
	"github.com/rawblock/sentinel/internal/db"
	"github.com/rawblock/sentinel/internal/state"
	"github.com/rawblock/sentinel/internal/triggers"
)

// APIHandler wires the read-only inspection API and operator
// dashboard endpoints to the subsystems they surface.
type APIHandler struct {
	dbStore     *db.Store
	counters    *counters.Store
	stateMgr    *state.Manager
	evaluator   *triggers.Evaluator
	backpressure *backpressure.Manager
	wsHub       *Hub
}

// SetupRouter builds the gin router exposing health/readiness/metrics
// endpoints, the read-only token/alert inspection API, and the
// operator dashboard websocket stream.
func SetupRouter(dbStore *db.Store, counterStore *counters.Store, stateMgr *state.Manager, evaluator *triggers.Evaluator, bp *backpressure.Manager, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{
		dbStore:      dbStore,
		counters:     counterStore,
		stateMgr:     stateMgr,
		evaluator:    evaluator,
		backpressure: bp,
		wsHub:        wsHub,
	}

	// ── Public endpoints (no auth) ─────────────────────────────
	pub := r.Group("/")
	{
		pub.GET("/healthz", handler.handleHealthz)
		pub.GET("/readyz", handler.handleReadyz)
		pub.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api/v1")
	{
		api.GET("/stream", wsHub.Subscribe)
		api.GET("/tokens/:mint", handler.handleGetToken)
		api.GET("/alerts", handler.handleListAlerts)
	}

	// ── Protected endpoints (require bearer token if API_AUTH_TOKEN set) ──
	auth := r.Group("/api/v1")
	auth.Use(AuthMiddleware())
	auth.Use(NewRateLimiter(60, 10).Middleware())
	{
		auth.POST("/triggers/reload", handler.handleReloadTriggers)
	}

	return r
}

func (h *APIHandler) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *APIHandler) handleReadyz(c *gin.Context) {
	if h.backpressure != nil && h.backpressure.IsCritical() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "critical", "mode": h.backpressure.Mode()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *APIHandler) handleGetToken(c *gin.Context) {
	mint := c.Param("mint")
	ctx := context.Background()

	profile, err := h.dbStore.GetTokenProfile(ctx, mint)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if profile == nil {
		tier, _ := h.stateMgr.GetState(ctx, mint)
		c.JSON(http.StatusOK, gin.H{"mint": mint, "state": tier, "profile": nil})
		return
	}

	resp := gin.H{"profile": profile}
	if h.counters != nil {
		stats5m, err := h.counters.GetStats(ctx, mint, 300)
		if err == nil {
			resp["stats_5m"] = stats5m
		}
		stats1h, err := h.counters.GetStats(ctx, mint, 3600)
		if err == nil {
			resp["stats_1h"] = stats1h
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *APIHandler) handleListAlerts(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	alerts, err := h.dbStore.ListRecentAlerts(context.Background(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (h *APIHandler) handleReloadTriggers(c *gin.Context) {
	path := os.Getenv("TRIGGER_CONFIG_PATH")
	if path == "" {
		path = "./triggers.yaml"
	}
	if err := h.evaluator.LoadFile(path); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}
