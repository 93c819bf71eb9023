package session

import (
	"github.com/bestyn/bestynapp-sub001/internal/timeline"
)

// Draft is the single open edit: either the whole-timeline final range or
// one clip's trim. The zero value of the interface means no draft.
type Draft interface {
	// Current is the candidate range held by the draft.
	Current() timeline.Range
	withRange(r timeline.Range) Draft
}

// WholeTimelineDraft edits the final range of the story.
type WholeTimelineDraft struct {
	Range timeline.Range
}

func (d WholeTimelineDraft) Current() timeline.Range { return d.Range }

func (d WholeTimelineDraft) withRange(r timeline.Range) Draft {
	d.Range = r
	return d
}

// ClipDraft edits the trim of one clip, in source seconds.
type ClipDraft struct {
	ClipID string
	Range  timeline.Range
}

func (d ClipDraft) Current() timeline.Range { return d.Range }

func (d ClipDraft) withRange(r timeline.Range) Draft {
	d.Range = r
	return d
}

// DraftView is the serialisable form of a draft.
type DraftView struct {
	Kind   string         `json:"kind"`
	ClipID string         `json:"clip_id,omitempty"`
	Range  timeline.Range `json:"range"`
	Limits timeline.Range `json:"limits"`
}

const (
	DraftKindWholeTimeline = "whole_timeline"
	DraftKindClip          = "clip"
)
