package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stablelab/growth-milestone-service/internal/service/milestone"
)

type MilestoneHandler struct {
	svc    *milestone.Service
	logger *zap.Logger
}

func NewMilestoneHandler(svc *milestone.Service, logger *zap.Logger) *MilestoneHandler {
	return &MilestoneHandler{svc: svc, logger: logger}
}

type createMilestoneRequest struct {
	ProjectID      string         `json:"project_id"`
	KpiID          string         `json:"kpi_id"`
	Target         *float64       `json:"target"`
	MilestoneIndex int            `json:"milestone_index"`
	TimeframeFrom  string         `json:"timeframe_from"`
	TimeframeTo    string         `json:"timeframe_to"`
	Scopes         []string       `json:"scopes"`
	Metadata       map[string]any `json:"metadata"`
	SyncToForse    *bool          `json:"sync_to_forse"`
}

func (h *MilestoneHandler) CreateMilestone(c *gin.Context) {
	var req createMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("CreateMilestone: malformed request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.svc.Create(c.Request.Context(), milestone.CreateInput{
		ProjectID:      req.ProjectID,
		KpiID:          req.KpiID,
		Target:         req.Target,
		MilestoneIndex: req.MilestoneIndex,
		TimeframeFrom:  req.TimeframeFrom,
		TimeframeTo:    req.TimeframeTo,
		Scopes:         req.Scopes,
		Metadata:       req.Metadata,
		SyncToForse:    req.SyncToForse,
	})
	if err != nil {
		h.respondError(c, "CreateMilestone", err)
		return
	}

	resp := gin.H{
		"internal_id": result.InternalID,
		"status":      "created",
		"synced":      result.Synced,
	}
	if result.RemoteID != "" {
		resp["remote_id"] = result.RemoteID
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *MilestoneHandler) GetMilestone(c *gin.Context) {
	record, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "GetMilestone", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *MilestoneHandler) ListMilestones(c *gin.Context) {
	records, err := h.svc.List(c.Request.Context(), milestone.ListFilter{
		ProjectID: c.Query("project_id"),
		Status:    c.Query("status"),
	})
	if err != nil {
		h.respondError(c, "ListMilestones", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":      len(records),
		"milestones": records,
	})
}

type updateMilestoneRequest struct {
	Target      *float64 `json:"target"`
	SyncToForse *bool    `json:"sync_to_forse"`
}

func (h *MilestoneHandler) UpdateMilestone(c *gin.Context) {
	var req updateMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Target == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target is required"})
		return
	}

	syncToForse := req.SyncToForse == nil || *req.SyncToForse
	result, err := h.svc.Update(c.Request.Context(), c.Param("id"), *req.Target, syncToForse)
	if err != nil {
		h.respondError(c, "UpdateMilestone", err)
		return
	}

	resp := gin.H{
		"internal_id": result.InternalID,
		"status":      "updated",
		"old_target":  result.OldTarget,
		"new_target":  result.NewTarget,
	}
	if result.Effect != nil {
		resp["effect"] = result.Effect
	}
	c.JSON(http.StatusOK, resp)
}

func (h *MilestoneHandler) DeleteMilestone(c *gin.Context) {
	deleteFromRemote := c.DefaultQuery("delete_from_remote", "true") != "false"

	result, err := h.svc.Delete(c.Request.Context(), c.Param("id"), deleteFromRemote)
	if err != nil {
		h.respondError(c, "DeleteMilestone", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"internal_id":    result.InternalID,
		"status":         "deleted",
		"remote_deleted": result.RemoteDeleted,
	})
}

func (h *MilestoneHandler) ExportStore(c *gin.Context) {
	doc, err := h.svc.Export(c.Request.Context())
	if err != nil {
		h.respondError(c, "ExportStore", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// respondError maps service errors onto HTTP statuses: validation → 400,
// not found → 404, sync failure → 500 with upstream detail, everything
// else → 500 with a generic message and the detail only in the log.
func (h *MilestoneHandler) respondError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, milestone.ErrValidation):
		h.logger.Warn(op+": validation failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, milestone.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "milestone not found"})
	case errors.Is(err, milestone.ErrSync):
		h.logger.Error(op+": forse sync failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		h.logger.Error(op+": internal error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
