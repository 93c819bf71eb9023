// Package story persists published stories and runs their export jobs.
package story

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bestyn/bestynapp-sub001/internal/composition"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrNothingToRun = errors.New("story has no visible segments")
)

// Story is a committed composition handed over by an editing session.
type Story struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id,omitempty"`
	Title       string          `json:"title"`
	Duration    float64         `json:"duration"`
	ClipCount   int             `json:"clip_count"`
	Composition json.RawMessage `json:"composition,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Decode returns the stored composition.
func (s *Story) Decode() (*composition.Composition, error) {
	if len(s.Composition) == 0 {
		return nil, fmt.Errorf("story %s: no composition stored", s.ID)
	}
	var c composition.Composition
	if err := json.Unmarshal(s.Composition, &c); err != nil {
		return nil, fmt.Errorf("story %s: decode composition: %w", s.ID, err)
	}
	return &c, nil
}

const (
	JobTypeRender = "render"

	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

type Job struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	StoryID    string    `json:"story_id,omitempty"`
	Progress   int       `json:"progress"`
	OutputPath string    `json:"output_path,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Done reports whether the job reached a final status.
func (j *Job) Done() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

func NewID() string {
	return uuid.NewString()
}
