// Package registry keeps the stream catalog in memory. Streams are transient
// runtime configuration, so nothing is persisted across restarts.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/artrack/internal/models"
)

var ErrNotFound = errors.New("stream not found")

type Registry struct {
	mu      sync.RWMutex
	streams map[uuid.UUID]*models.Stream
	stats   map[uuid.UUID]models.StreamStats
}

func New() *Registry {
	return &Registry{
		streams: make(map[uuid.UUID]*models.Stream),
		stats:   make(map[uuid.UUID]models.StreamStats),
	}
}

func (r *Registry) Create(name, url string, streamType models.StreamType, fps int) *models.Stream {
	now := time.Now().UTC()
	s := &models.Stream{
		ID:         uuid.New(),
		Name:       name,
		URL:        url,
		StreamType: streamType,
		FPS:        fps,
		Status:     models.StreamStatusStopped,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	r.mu.Lock()
	r.streams[s.ID] = s
	r.mu.Unlock()

	return s
}

func (r *Registry) Get(id uuid.UUID) (models.Stream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[id]
	if !ok {
		return models.Stream{}, ErrNotFound
	}
	return *s, nil
}

// List returns all streams ordered by creation time.
func (r *Registry) List() []models.Stream {
	r.mu.RLock()
	out := make([]models.Stream, 0, len(r.streams))
	for _, s := range r.streams {
		out = append(out, *s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) Delete(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.streams[id]; !ok {
		return ErrNotFound
	}
	delete(r.streams, id)
	delete(r.stats, id)
	return nil
}

func (r *Registry) SetStatus(id uuid.UUID, status models.StreamStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	s.ErrorMessage = errMsg
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// SetStats records the latest tracking state reported by a worker.
func (r *Registry) SetStats(id uuid.UUID, stats models.StreamStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.streams[id]; !ok {
		return ErrNotFound
	}
	r.stats[id] = stats
	return nil
}

func (r *Registry) Stats(id uuid.UUID) (models.StreamStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.streams[id]; !ok {
		return models.StreamStats{}, ErrNotFound
	}
	return r.stats[id], nil
}
