package api

import (
	"time"

	"github.com/bestyn/bestynapp-sub001/internal/frames"
	"github.com/bestyn/bestynapp-sub001/internal/story"
	"github.com/bestyn/bestynapp-sub001/internal/timeline"
)

type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	UptimeS        int64  `json:"uptime_s"`
	Sessions       int    `json:"sessions"`
	JobsRunning    int    `json:"jobs_running"`
	RunnerPaused   bool   `json:"runner_paused"`
	DecoderBackend string `json:"decoder_backend,omitempty"`
}

type SourceRequest struct {
	URI      string  `json:"uri"`
	Duration float64 `json:"duration,omitempty"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
}

// toSource leaves the kind to be guessed from the file extension.
func (r SourceRequest) toSource() timeline.Source {
	return timeline.Source{URI: r.URI, Duration: r.Duration, Width: r.Width, Height: r.Height}
}

type CreateSessionRequest struct {
	Seed []SourceRequest `json:"seed,omitempty"`
}

type SessionsResponse struct {
	Sessions []string `json:"sessions"`
}

type AddClipResponse struct {
	Clip timeline.Clip `json:"clip"`
}

type RemoveClipResponse struct {
	Emptied bool `json:"emptied"`
}

type MoveClipRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type RangeRequest struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// AudioRequest attaches a background track. An omitted volume means
// composition.DefaultBedVolume; 0 mutes the track.
type AudioRequest struct {
	URI      string   `json:"uri"`
	Duration float64  `json:"duration"`
	Volume   *float64 `json:"volume,omitempty"`
}

type CapacityResponse struct {
	Count      int  `json:"count"`
	CanAddMore bool `json:"can_add_more"`
}

type FrameResponse struct {
	ClipID string  `json:"clip_id"`
	Index  int     `json:"index"`
	Second float64 `json:"second"`
	Image  []byte  `json:"image"`
}

func FrameToResponse(f frames.Frame) FrameResponse {
	return FrameResponse{ClipID: f.ClipID, Index: f.Index, Second: f.Second, Image: f.Image}
}

type ThumbnailsResponse struct {
	Frames []FrameResponse `json:"frames"`
}

type LocateResponse struct {
	ClipID       string  `json:"clip_id"`
	Index        int     `json:"index"`
	SourceSecond float64 `json:"source_second"`
	Still        bool    `json:"still"`
}

type SelectorRequest struct {
	Width       float64 `json:"width"`
	PinOnScroll bool    `json:"pin_on_scroll"`
}

type DragRequest struct {
	Phase  string  `json:"phase"`
	Handle string  `json:"handle,omitempty"`
	X      float64 `json:"x,omitempty"`
}

type WidthRequest struct {
	Width float64 `json:"width"`
}

type ScrollRequest struct {
	Offset float64 `json:"offset"`
}

type SelectorResponse struct {
	Range           timeline.Range `json:"range"`
	Pointer         float64        `json:"pointer"`
	ScrollOffset    float64        `json:"scroll_offset"`
	PixelsPerSecond float64        `json:"pixels_per_second"`
	ContentWidth    float64        `json:"content_width"`
	MinSpan         float64        `json:"min_span"`
	Dragging        string         `json:"dragging,omitempty"`
}

type PublishRequest struct {
	Title string `json:"title,omitempty"`
}

type PublishResponse struct {
	StoryID  string  `json:"story_id"`
	JobID    string  `json:"job_id"`
	Duration float64 `json:"duration"`
}

type StoryResponse struct {
	ID        string  `json:"id"`
	SessionID string  `json:"session_id,omitempty"`
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	ClipCount int     `json:"clip_count"`
	CreatedAt string  `json:"created_at"`
}

type StoriesResponse struct {
	Stories []StoryResponse `json:"stories"`
}

type JobResponse struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	StoryID    string `json:"story_id,omitempty"`
	Progress   int    `json:"progress"`
	OutputPath string `json:"output_path,omitempty"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func StoryToResponse(s *story.Story) StoryResponse {
	return StoryResponse{
		ID:        s.ID,
		SessionID: s.SessionID,
		Title:     s.Title,
		Duration:  s.Duration,
		ClipCount: s.ClipCount,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
}

func JobToResponse(j *story.Job) JobResponse {
	return JobResponse{
		ID:         j.ID,
		Type:       j.Type,
		Status:     j.Status,
		StoryID:    j.StoryID,
		Progress:   j.Progress,
		OutputPath: j.OutputPath,
		Error:      j.Error,
		CreatedAt:  j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  j.UpdatedAt.Format(time.RFC3339),
	}
}
