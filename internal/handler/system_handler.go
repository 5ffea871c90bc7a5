package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/placipy/assessment-backend/internal/response"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SystemHandler exposes service health.
type SystemHandler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		pool:      pool,
		rdb:       rdb,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

// Health godoc
// GET /health
// Reports liveness plus the state of the store and cache connections.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	status := http.StatusOK

	dbStatus := "up"
	if err := h.pool.Ping(ctx); err != nil {
		h.log.Error().Err(err).Msg("Database ping failed")
		dbStatus = "down"
		status = http.StatusServiceUnavailable
	}

	redisStatus := "up"
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		h.log.Error().Err(err).Msg("Redis ping failed")
		redisStatus = "down"
		status = http.StatusServiceUnavailable
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}

	response.Success(c, status, gin.H{
		"status":   overall,
		"uptime":   time.Since(h.startTime).Round(time.Second).String(),
		"database": dbStatus,
		"redis":    redisStatus,
	})
}
