package story

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bestyn/bestynapp-sub001/internal/composition"
	"github.com/bestyn/bestynapp-sub001/internal/logging"
)

const maxTitleLen = 200

// PublishRequest carries a committed composition out of an editing session.
type PublishRequest struct {
	Title       string
	SessionID   string
	Composition *composition.Composition
	ClipCount   int
}

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logging.WithComponent(logging.OrDiscard(logger), "stories")}
}

// Publish stores the composition as a new story and queues its render.
func (s *Service) Publish(ctx context.Context, req PublishRequest) (*Story, *Job, error) {
	c := req.Composition
	if c == nil || len(c.VisibleSegments()) == 0 {
		return nil, nil, ErrNothingToRun
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Story " + time.Now().Format("2006-01-02 15:04")
	}
	if r := []rune(title); len(r) > maxTitleLen {
		title = string(r[:maxTitleLen])
	}

	body, err := json.Marshal(c)
	if err != nil {
		return nil, nil, fmt.Errorf("encode composition: %w", err)
	}

	clipCount := req.ClipCount
	if clipCount == 0 {
		clipCount = len(c.Segments)
	}

	st := &Story{
		ID:          NewID(),
		SessionID:   req.SessionID,
		Title:       title,
		Duration:    c.Duration(),
		ClipCount:   clipCount,
		Composition: body,
		CreatedAt:   time.Now(),
	}
	if err := s.repo.CreateStory(ctx, st); err != nil {
		return nil, nil, fmt.Errorf("create story: %w", err)
	}

	job, err := s.queueRender(ctx, st.ID)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("story published",
		"story_id", st.ID,
		"session_id", st.SessionID,
		"duration", st.Duration,
		"job_id", job.ID,
	)
	return st, job, nil
}

// Rerender queues another render of an existing story.
func (s *Service) Rerender(ctx context.Context, storyID string) (*Job, error) {
	if _, err := s.GetStory(ctx, storyID); err != nil {
		return nil, err
	}
	return s.queueRender(ctx, storyID)
}

func (s *Service) queueRender(ctx context.Context, storyID string) (*Job, error) {
	now := time.Now()
	job := &Job{
		ID:        NewID(),
		Type:      JobTypeRender,
		Status:    JobStatusPending,
		StoryID:   storyID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create render job: %w", err)
	}
	s.logger.Info("render job created", "job_id", job.ID, "story_id", storyID)
	return job, nil
}

func (s *Service) GetStory(ctx context.Context, id string) (*Story, error) {
	st, err := s.repo.GetStory(ctx, id)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("story %s: %w", id, ErrNotFound)
	}
	return st, nil
}

func (s *Service) ListStories(ctx context.Context, limit int) ([]*Story, error) {
	return s.repo.ListStories(ctx, limit)
}

func (s *Service) DeleteStory(ctx context.Context, id string) error {
	if _, err := s.GetStory(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteStory(ctx, id)
}

func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	j, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return j, nil
}

func (s *Service) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	return s.repo.ListJobs(ctx, limit)
}

func (s *Service) StoryJobs(ctx context.Context, storyID string) ([]*Job, error) {
	return s.repo.ListJobsByStory(ctx, storyID)
}
