package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edgard/webhookd/internal/database"
	"github.com/edgard/webhookd/internal/ingest"
)

// signatureHeader carries the hex-encoded HMAC-SHA256 of the raw body.
const signatureHeader = "X-Signature"

// handleWebhook ingests one signed message. The body is captured raw before
// any parsing so the verified bytes are exactly the bytes the sender signed.
func (s *Server) handleWebhook(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "failed to read request body"})
		return
	}

	result := s.coordinator.Ingest(c.Request.Context(), rawBody, c.GetHeader(signatureHeader))

	switch result.Status {
	case ingest.StatusInvalidSignature:
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "invalid signature"})
	case ingest.StatusValidationError:
		c.JSON(http.StatusBadRequest, gin.H{"detail": result.Err.Error()})
	case ingest.StatusStoreError:
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "storage unavailable"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// handleListMessages serves filtered, paginated queries. Out-of-range limit
// and offset values are clamped; values that fail to parse as their expected
// type are rejected.
func (s *Server) handleListMessages(c *gin.Context) {
	filter := database.MessageFilter{
		Sender: c.Query("from"),
		Query:  c.Query("q"),
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "limit must be an integer"})
			return
		}
		filter.Limit = limit
	}

	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "offset must be an integer"})
			return
		}
		filter.Offset = offset
	}

	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "since must be a valid RFC3339 instant"})
			return
		}
		since = since.UTC()
		filter.Since = &since
	}

	filter.Normalize()

	messages, total, err := s.store.ListMessages(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "storage unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   messages,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// handleStats serves aggregate statistics over the entire stored corpus.
func (s *Server) handleStats(c *gin.Context) {
	snapshot, err := s.store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "storage unavailable"})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// handleHealthLive reports process liveness.
func (s *Server) handleHealthLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleHealthReady reports readiness: the shared secret must be configured
// and the store reachable.
func (s *Server) handleHealthReady(c *gin.Context) {
	secretConfigured := s.cfg.Webhook.Secret != ""
	storeReachable := s.store.Ping(c.Request.Context()) == nil

	if secretConfigured && storeReachable {
		c.JSON(http.StatusOK, gin.H{
			"status":            "ready",
			"store_reachable":   true,
			"secret_configured": true,
		})
		return
	}

	reason := "store unreachable"
	if !secretConfigured {
		reason = "webhook secret not set"
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"status":            "not ready",
		"reason":            reason,
		"store_reachable":   storeReachable,
		"secret_configured": secretConfigured,
	})
}

// handleMetrics serves the Prometheus text exposition.
func (s *Server) handleMetrics(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8",
		[]byte(s.collector.RenderPrometheus()))
}
