// Package forse talks to the Forse evaluation service, the external system
// that scores milestone progress and reports completion back via webhook.
package forse

import (
	"context"
)

// CreateRequest carries the milestone fields Forse needs to start evaluating.
type CreateRequest struct {
	ProjectID      string   `json:"project_id"`
	KpiID          string   `json:"kpi_id"`
	Target         float64  `json:"target"`
	MilestoneIndex int      `json:"milestone_index"`
	TimeframeFrom  string   `json:"timeframe_from,omitempty"`
	TimeframeTo    string   `json:"timeframe_to,omitempty"`
	Scopes         []string `json:"scopes,omitempty"`
}

// Effect is the opaque payload Forse returns from a target update. It may
// carry a revised status for the milestone.
type Effect map[string]any

// Status returns the status field of the effect, or "" when absent.
func (e Effect) Status() string {
	if e == nil {
		return ""
	}
	if s, ok := e["status"].(string); ok {
		return s
	}
	return ""
}

// Client is the remote sync capability. Create failures are fatal to the
// caller's creation flow; UpdateTarget failures are advisory; Delete is
// best-effort and never returns an error.
type Client interface {
	Create(ctx context.Context, req CreateRequest) (remoteID string, err error)
	UpdateTarget(ctx context.Context, remoteID string, target float64) (Effect, error)
	Delete(ctx context.Context, remoteID string) bool
}
