package jobs

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryStore struct {
	mu           sync.Mutex
	jobs         map[string]*Job
	bySuggestion map[string]string
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:         map[string]*Job{},
		bySuggestion: map[string]string{},
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Enqueue(_ context.Context, req EnqueueRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.bySuggestion[req.SuggestionID]; ok {
		return id, nil
	}
	now := s.now()
	job := &Job{
		ID:           uuid.NewString(),
		SuggestionID: strings.TrimSpace(req.SuggestionID),
		Action:       req.Action,
		Platform:     req.Platform,
		NewPriority:  req.NewPriority,
		Reason:       req.Reason,
		Actor:        req.Actor,
		Status:       StatusQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.jobs[job.ID] = job
	s.bySuggestion[job.SuggestionID] = job.ID
	return job.ID, nil
}

func (s *MemoryStore) ListQueued(_ context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	queued := make([]Job, 0)
	for _, job := range s.jobs {
		if job.Status == StatusQueued {
			queued = append(queued, *job)
		}
	}
	sort.Slice(queued, func(i, j int) bool {
		if queued[i].CreatedAt.Equal(queued[j].CreatedAt) {
			return queued[i].ID < queued[j].ID
		}
		return queued[i].CreatedAt.Before(queued[j].CreatedAt)
	})
	if len(queued) > limit {
		queued = queued[:limit]
	}
	return queued, nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, from, to Status, patch TransitionPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, ErrNotFound
	}
	if job.Status != from {
		return false, nil
	}
	job.Status = to
	if patch.Attempts != nil {
		job.Attempts = *patch.Attempts
	}
	if patch.LastError != nil {
		job.LastError = *patch.LastError
	}
	job.UpdatedAt = s.now()
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *job, nil
}

func (s *MemoryStore) Close() error { return nil }
