package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stablelab/growth-milestone-service/internal/service/milestone"
	"github.com/stablelab/growth-milestone-service/pkg/metrics"
	"github.com/stablelab/growth-milestone-service/pkg/redisutil"
)

type WebhookHandler struct {
	svc     *milestone.Service
	deduper *redisutil.Deduper
	logger  *zap.Logger
}

// NewWebhookHandler builds the completion-webhook handler. deduper may be
// nil, in which case every delivery is processed.
func NewWebhookHandler(svc *milestone.Service, deduper *redisutil.Deduper, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{svc: svc, deduper: deduper, logger: logger}
}

type completionWebhookRequest struct {
	MilestoneID  string         `json:"milestone_id"`
	Status       string         `json:"status"`
	CurrentValue float64        `json:"current_value"`
	Target       float64        `json:"target"`
	CompletedAt  string         `json:"completed_at"`
	Metadata     map[string]any `json:"metadata"`
}

func (h *WebhookHandler) MilestoneComplete(c *gin.Context) {
	var req completionWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.MilestoneID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "milestone_id is required"})
		return
	}

	eventKey := fmt.Sprintf("%s:%s:%g", req.MilestoneID, req.Status, req.CurrentValue)
	if !h.deduper.AcquireOnce(c.Request.Context(), eventKey) {
		h.logger.Info("Duplicate completion webhook acknowledged",
			zap.String("remote_id", req.MilestoneID),
			zap.String("status", req.Status),
		)
		metrics.IncrementWebhookReceived("duplicate")
		c.JSON(http.StatusOK, gin.H{"status": "received", "updated": false})
		return
	}

	result, err := h.svc.HandleCompletionWebhook(c.Request.Context(), milestone.WebhookInput{
		MilestoneID:  req.MilestoneID,
		Status:       req.Status,
		CurrentValue: req.CurrentValue,
		Target:       req.Target,
		CompletedAt:  req.CompletedAt,
	})
	if err != nil {
		if errors.Is(err, milestone.ErrNotFound) {
			// The sender may reference a milestone this store never
			// created or already deleted.
			h.logger.Warn("Orphan completion webhook",
				zap.String("remote_id", req.MilestoneID),
				zap.String("status", req.Status),
			)
			metrics.IncrementWebhookReceived("orphan")
			c.JSON(http.StatusNotFound, gin.H{"error": "no milestone for remote id"})
			return
		}
		h.logger.Error("MilestoneComplete: internal error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	metrics.IncrementWebhookReceived("updated")
	c.JSON(http.StatusOK, gin.H{
		"status":      "received",
		"internal_id": result.InternalID,
		"updated":     result.Updated,
	})
}
