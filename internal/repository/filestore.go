package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stablelab/growth-milestone-service/internal/model"
	"github.com/stablelab/growth-milestone-service/pkg/metrics"
)

// FileStore persists the whole milestone document as one JSON file. Every
// operation is a full load-mutate-save cycle serialized by an in-process
// mutex; fine at low request rates, a scalability limit beyond that.
type FileStore struct {
	path              string
	allowCorruptReset bool
	logger            *zap.Logger

	mu sync.Mutex
}

func NewFileStore(path string, allowCorruptReset bool, logger *zap.Logger) *FileStore {
	return &FileStore{
		path:              path,
		allowCorruptReset: allowCorruptReset,
		logger:            logger,
	}
}

func (s *FileStore) Backend() string  { return "file" }
func (s *FileStore) Location() string { return s.path }

func (s *FileStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.load()
	return err
}

func (s *FileStore) Load(ctx context.Context) (*model.Document, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	metrics.RecordStoreOpDuration("load", s.Backend(), time.Since(start))
	return doc, err
}

func (s *FileStore) Save(ctx context.Context, doc *model.Document) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.save(doc)
	metrics.RecordStoreOpDuration("save", s.Backend(), time.Since(start))
	return err
}

func (s *FileStore) Get(ctx context.Context, internalID string) (*model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	m, ok := doc.Milestones[internalID]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *FileStore) Put(ctx context.Context, m *model.Milestone) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Milestones[m.InternalID] = *m
	err = s.save(doc)
	metrics.RecordStoreOpDuration("put", s.Backend(), time.Since(start))
	return err
}

func (s *FileStore) Delete(ctx context.Context, internalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Milestones[internalID]; !ok {
		return ErrNotFound
	}
	delete(doc.Milestones, internalID)
	return s.save(doc)
}

func (s *FileStore) List(ctx context.Context) ([]model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	milestones := make([]model.Milestone, 0, len(doc.Milestones))
	for _, m := range doc.Milestones {
		milestones = append(milestones, m)
	}
	return milestones, nil
}

func (s *FileStore) FindByRemoteID(ctx context.Context, remoteID string) (*model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, m := range doc.Milestones {
		if m.RemoteID != "" && m.RemoteID == remoteID {
			return &m, nil
		}
	}
	return nil, ErrNotFound
}

// load reads the document from disk. A missing file yields a fresh empty
// document; an unparseable file is an ErrCorrupt unless corrupt-reset was
// opted into, in which case the document is replaced and the data lost.
// Callers must hold s.mu.
func (s *FileStore) load() (*model.Document, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		doc := model.NewDocument(time.Now().UTC())
		if err := s.save(doc); err != nil {
			return nil, err
		}
		s.logger.Info("Created new milestone store", zap.String("path", s.path))
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		if !s.allowCorruptReset {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
		}
		s.logger.Warn("Store document unparseable, resetting to empty",
			zap.String("path", s.path),
			zap.Error(err),
		)
		return model.NewDocument(time.Now().UTC()), nil
	}
	if doc.Milestones == nil {
		doc.Milestones = make(map[string]model.Milestone)
	}
	return &doc, nil
}

// save rewrites last_updated and writes the whole document via a temp file
// rename. Callers must hold s.mu.
func (s *FileStore) save(doc *model.Document) error {
	doc.Metadata.LastUpdated = time.Now().UTC()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store document: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}
