package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bestyn/bestynapp-sub001/internal/logging"
	"github.com/bestyn/bestynapp-sub001/internal/metrics"
)

// Registry owns the sessions of the running story flows. Each session
// lives from Create until Close.
type Registry struct {
	newSession func(id string) (*Session, error)
	logger     *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns a registry that builds sessions with newSession.
func NewRegistry(newSession func(id string) (*Session, error), logger *slog.Logger) *Registry {
	return &Registry{
		newSession: newSession,
		logger:     logging.WithComponent(logging.OrDiscard(logger), "sessions"),
		sessions:   make(map[string]*Session),
	}
}

func (r *Registry) Create() (*Session, error) {
	id := uuid.NewString()
	s, err := r.newSession(id)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	metrics.SessionOpened()
	r.logger.Info("session created", "session_id", id)
	return s, nil
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// IDs returns the open session ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close closes and forgets one session.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.Close()
	metrics.SessionClosed()
	r.logger.Info("session closed", "session_id", id)
	return true
}

// CloseAll closes every session, used on shutdown.
func (r *Registry) CloseAll() {
	for _, id := range r.IDs() {
		r.Close(id)
	}
}
