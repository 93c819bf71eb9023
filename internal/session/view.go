package session

import (
	"github.com/bestyn/bestynapp-sub001/internal/composition"
	"github.com/bestyn/bestynapp-sub001/internal/timeline"
)

// Snapshot is a consistent read of the session for callers outside the
// flow, such as the HTTP API.
type Snapshot struct {
	ID             string                  `json:"id"`
	State          string                  `json:"state"`
	Clips          []timeline.Clip         `json:"clips"`
	TotalDuration  float64                 `json:"total_duration"`
	FinalRange     timeline.Range          `json:"final_range"`
	Draft          *DraftView              `json:"draft,omitempty"`
	Audio          *composition.AudioTrack `json:"audio,omitempty"`
	Version        uint64                  `json:"version"`
	AppliedVersion uint64                  `json:"applied_version"`
	Pending        bool                    `json:"pending"`
	LastError      string                  `json:"last_error,omitempty"`
	MaxClips       int                     `json:"max_clips"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		ID:            s.id,
		State:         s.state.String(),
		Clips:         s.tl.Clips(),
		TotalDuration: s.tl.TotalDuration(),
		FinalRange:    s.finalRange,
		Draft:         s.draftViewLocked(),
		Version:       s.version,
		Pending:       s.pending > 0,
		MaxClips:      s.cfg.MaxClips,
	}
	if s.audio != nil {
		a := *s.audio
		snap.Audio = &a
	}
	if s.current != nil {
		snap.AppliedVersion = s.current.Version
	}
	if s.failErr != nil && s.failed == s.version {
		snap.LastError = s.failErr.Error()
	}
	return snap
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Timeline returns a copy of the committed timeline.
func (s *Session) Timeline() timeline.Timeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tl.Clone()
}

func (s *Session) TotalDuration() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tl.TotalDuration()
}

func (s *Session) FinalRange() timeline.Range {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalRange
}

// Draft returns the open draft, or nil.
func (s *Session) Draft() Draft {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draft
}

func (s *Session) DraftView() *DraftView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draftViewLocked()
}

func (s *Session) draftViewLocked() *DraftView {
	switch d := s.draft.(type) {
	case ClipDraft:
		return &DraftView{Kind: DraftKindClip, ClipID: d.ClipID, Range: d.Range, Limits: s.draftLimitsLocked()}
	case WholeTimelineDraft:
		return &DraftView{Kind: DraftKindWholeTimeline, Range: d.Range, Limits: s.draftLimitsLocked()}
	default:
		return nil
	}
}

// Composition returns the last applied composition of the committed
// timeline, or nil.
func (s *Session) Composition() *composition.Composition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Preview returns what the player shows: the draft preview while a draft
// is open, otherwise the committed composition.
func (s *Session) Preview() *composition.Composition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.preview != nil {
		return s.preview
	}
	return s.current
}
