// Package milestone orchestrates identifier minting, remote sync to Forse,
// and store persistence for milestone records. The local store is
// authoritative once a record exists: only the initial create treats a
// failed sync as fatal, later syncs are advisory.
package milestone

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stablelab/growth-milestone-service/internal/forse"
	"github.com/stablelab/growth-milestone-service/internal/model"
	"github.com/stablelab/growth-milestone-service/internal/repository"
	"github.com/stablelab/growth-milestone-service/pkg/metrics"
	"github.com/stablelab/growth-milestone-service/pkg/trace"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("milestone not found")
	ErrSync       = errors.New("forse sync failed")
)

type Service struct {
	store  repository.Store
	forse  forse.Client
	logger *zap.Logger
}

func NewService(store repository.Store, forseClient forse.Client, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		forse:  forseClient,
		logger: logger,
	}
}

// CreateInput carries the caller-supplied milestone fields. Target and
// SyncToForse are pointers so that "absent" is distinguishable from zero;
// SyncToForse defaults to true.
type CreateInput struct {
	ProjectID      string
	KpiID          string
	Target         *float64
	MilestoneIndex int
	TimeframeFrom  string
	TimeframeTo    string
	Scopes         []string
	Metadata       map[string]any
	SyncToForse    *bool
}

type CreateResult struct {
	InternalID string
	RemoteID   string
	Synced     bool
}

// Create mints an internal id, optionally registers the milestone with
// Forse, and persists the record. A failed Forse create aborts the whole
// operation; nothing is persisted.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if in.ProjectID == "" {
		return nil, fmt.Errorf("%w: project_id is required", ErrValidation)
	}
	if in.KpiID == "" {
		return nil, fmt.Errorf("%w: kpi_id is required", ErrValidation)
	}
	if in.Target == nil {
		return nil, fmt.Errorf("%w: target is required", ErrValidation)
	}

	internalID := "ms_" + trace.GenerateID()
	index := in.MilestoneIndex
	if index <= 0 {
		index = 1
	}

	syncRequested := in.SyncToForse == nil || *in.SyncToForse

	var remoteID string
	if syncRequested {
		var err error
		remoteID, err = s.forse.Create(ctx, forse.CreateRequest{
			ProjectID:      in.ProjectID,
			KpiID:          in.KpiID,
			Target:         *in.Target,
			MilestoneIndex: index,
			TimeframeFrom:  in.TimeframeFrom,
			TimeframeTo:    in.TimeframeTo,
			Scopes:         in.Scopes,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSync, err)
		}
	}

	now := time.Now().UTC()
	record := model.Milestone{
		InternalID:     internalID,
		RemoteID:       remoteID,
		ProjectID:      in.ProjectID,
		KpiID:          in.KpiID,
		Target:         *in.Target,
		MilestoneIndex: index,
		TimeframeFrom:  in.TimeframeFrom,
		TimeframeTo:    in.TimeframeTo,
		Scopes:         in.Scopes,
		Metadata:       in.Metadata,
		Status:         model.StatusPending,
		Synced:         syncRequested,
		CurrentValue:   0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Put(ctx, &record); err != nil {
		return nil, err
	}

	metrics.IncrementMilestoneCreated(record.Synced)
	s.logger.Info("Milestone created",
		zap.String("internal_id", internalID),
		zap.String("remote_id", remoteID),
		zap.String("project_id", in.ProjectID),
		zap.Bool("synced", record.Synced),
	)

	return &CreateResult{
		InternalID: internalID,
		RemoteID:   remoteID,
		Synced:     record.Synced,
	}, nil
}

// Get returns the record for internalID.
func (s *Service) Get(ctx context.Context, internalID string) (*model.Milestone, error) {
	m, err := s.store.Get(ctx, internalID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return m, err
}

// ListFilter narrows List results; empty fields match everything.
type ListFilter struct {
	ProjectID string
	Status    string
}

// List returns all records matching every supplied filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]model.Milestone, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]model.Milestone, 0, len(all))
	for _, m := range all {
		if filter.ProjectID != "" && m.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		matched = append(matched, m)
	}
	return matched, nil
}

type UpdateResult struct {
	InternalID string
	OldTarget  float64
	NewTarget  float64
	Effect     forse.Effect
}

// Update overwrites the record's target. When the record is synced, the new
// target is also pushed to Forse; a failure there is logged and the local
// update proceeds, but a returned effect status overwrites the local status.
func (s *Service) Update(ctx context.Context, internalID string, newTarget float64, syncToForse bool) (*UpdateResult, error) {
	record, err := s.store.Get(ctx, internalID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	result := &UpdateResult{
		InternalID: internalID,
		OldTarget:  record.Target,
		NewTarget:  newTarget,
	}

	if syncToForse && record.Synced && record.RemoteID != "" {
		effect, err := s.forse.UpdateTarget(ctx, record.RemoteID, newTarget)
		if err != nil {
			s.logger.Warn("Forse target update failed, continuing with local update",
				zap.String("internal_id", internalID),
				zap.String("remote_id", record.RemoteID),
				zap.Error(err),
			)
		} else {
			result.Effect = effect
			if status := effect.Status(); status != "" {
				record.Status = status
			}
		}
	}

	record.Target = newTarget
	record.UpdatedAt = time.Now().UTC()
	if err := s.store.Put(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("Milestone updated",
		zap.String("internal_id", internalID),
		zap.Float64("old_target", result.OldTarget),
		zap.Float64("new_target", newTarget),
	)
	return result, nil
}

type DeleteResult struct {
	InternalID    string
	RemoteDeleted bool
}

// Delete removes the record locally and best-effort from Forse. The remote
// outcome is reported but never blocks the local removal.
func (s *Service) Delete(ctx context.Context, internalID string, deleteFromRemote bool) (*DeleteResult, error) {
	record, err := s.store.Get(ctx, internalID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	remoteDeleted := false
	if deleteFromRemote && record.Synced && record.RemoteID != "" {
		remoteDeleted = s.forse.Delete(ctx, record.RemoteID)
	}

	if err := s.store.Delete(ctx, internalID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.logger.Info("Milestone deleted",
		zap.String("internal_id", internalID),
		zap.Bool("remote_deleted", remoteDeleted),
	)
	return &DeleteResult{InternalID: internalID, RemoteDeleted: remoteDeleted}, nil
}

// WebhookInput is a completion notification from Forse. MilestoneID is the
// remote id Forse issued at creation.
type WebhookInput struct {
	MilestoneID  string
	Status       string
	CurrentValue float64
	Target       float64
	CompletedAt  string
}

type WebhookResult struct {
	InternalID string
	Updated    bool
}

// HandleCompletionWebhook reconciles a Forse notification onto the local
// record matched by remote id. Status strings are stored verbatim; the
// completed_at timestamp is kept only while status is "completed".
func (s *Service) HandleCompletionWebhook(ctx context.Context, in WebhookInput) (*WebhookResult, error) {
	record, err := s.store.FindByRemoteID(ctx, in.MilestoneID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	record.Status = in.Status
	record.CurrentValue = in.CurrentValue
	record.IsCompleted = in.Status == model.StatusCompleted
	if record.IsCompleted {
		record.CompletedAt = in.CompletedAt
	} else {
		record.CompletedAt = ""
	}
	record.UpdatedAt = time.Now().UTC()

	if err := s.store.Put(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("Completion webhook applied",
		zap.String("internal_id", record.InternalID),
		zap.String("remote_id", in.MilestoneID),
		zap.String("status", in.Status),
		zap.Float64("current_value", in.CurrentValue),
	)
	return &WebhookResult{InternalID: record.InternalID, Updated: true}, nil
}

// Export returns the entire store document verbatim.
func (s *Service) Export(ctx context.Context) (*model.Document, error) {
	return s.store.Load(ctx)
}
