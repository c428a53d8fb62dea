package repository

import (
	"context"
	"sync"
	"time"

	"github.com/stablelab/growth-milestone-service/internal/model"
)

// MemoryStore keeps the document in process memory. Used in tests and as an
// ephemeral backend; contents vanish on restart.
type MemoryStore struct {
	mu  sync.Mutex
	doc *model.Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{doc: model.NewDocument(time.Now().UTC())}
}

func (s *MemoryStore) Backend() string  { return "memory" }
func (s *MemoryStore) Location() string { return "in-memory" }

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Load(ctx context.Context) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyDoc(), nil
}

func (s *MemoryStore) Save(ctx context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := &model.Document{
		Milestones: make(map[string]model.Milestone, len(doc.Milestones)),
		Metadata:   doc.Metadata,
	}
	for id, m := range doc.Milestones {
		copied.Milestones[id] = m
	}
	copied.Metadata.LastUpdated = time.Now().UTC()
	s.doc = copied
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, internalID string) (*model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.doc.Milestones[internalID]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemoryStore) Put(ctx context.Context, m *model.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Milestones[m.InternalID] = *m
	s.doc.Metadata.LastUpdated = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, internalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Milestones[internalID]; !ok {
		return ErrNotFound
	}
	delete(s.doc.Milestones, internalID)
	s.doc.Metadata.LastUpdated = time.Now().UTC()
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	milestones := make([]model.Milestone, 0, len(s.doc.Milestones))
	for _, m := range s.doc.Milestones {
		milestones = append(milestones, m)
	}
	return milestones, nil
}

func (s *MemoryStore) FindByRemoteID(ctx context.Context, remoteID string) (*model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.doc.Milestones {
		if m.RemoteID != "" && m.RemoteID == remoteID {
			return &m, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) copyDoc() *model.Document {
	copied := &model.Document{
		Milestones: make(map[string]model.Milestone, len(s.doc.Milestones)),
		Metadata:   s.doc.Metadata,
	}
	for id, m := range s.doc.Milestones {
		copied.Milestones[id] = m
	}
	return copied
}
