package model

import "time"

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Milestone is one tracked milestone. InternalID is minted locally and is
// the primary key; RemoteID is assigned by Forse and present iff the record
// was synced at creation time.
type Milestone struct {
	InternalID     string         `json:"internal_id"`
	RemoteID       string         `json:"remote_id,omitempty"`
	ProjectID      string         `json:"project_id"`
	KpiID          string         `json:"kpi_id"`
	Target         float64        `json:"target"`
	MilestoneIndex int            `json:"milestone_index"`
	TimeframeFrom  string         `json:"timeframe_from,omitempty"`
	TimeframeTo    string         `json:"timeframe_to,omitempty"`
	Scopes         []string       `json:"scopes,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Status         string         `json:"status"`
	Synced         bool           `json:"synced"`
	IsCompleted    bool           `json:"is_completed"`
	CompletedAt    string         `json:"completed_at,omitempty"`
	CurrentValue   float64        `json:"current_value"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// DocumentMetadata is store-level bookkeeping.
type DocumentMetadata struct {
	Created     time.Time `json:"created"`
	LastUpdated time.Time `json:"last_updated"`
}

// Document is the whole persisted state: every milestone keyed by internal
// id, plus store metadata. No record exists outside a document.
type Document struct {
	Milestones map[string]Milestone `json:"milestones"`
	Metadata   DocumentMetadata     `json:"metadata"`
}

// NewDocument returns an empty document stamped with a creation time.
func NewDocument(now time.Time) *Document {
	return &Document{
		Milestones: make(map[string]Milestone),
		Metadata: DocumentMetadata{
			Created:     now,
			LastUpdated: now,
		},
	}
}
