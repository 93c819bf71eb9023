package session

import (
	"github.com/bestyn/bestynapp-sub001/internal/composition"
	"github.com/bestyn/bestynapp-sub001/internal/timeline"
)

// Player is the preview surface. A call to Replace means "replace the
// current playback item". Implementations must not call back into the
// Session synchronously.
type Player interface {
	Replace(c *composition.Composition)
	SetWindow(w timeline.Range)
	Seek(second float64)
	Pause()
	Resume()
}

// Observer is told about rebuild results and the end of the timeline.
// Like Player, it must not call back into the Session synchronously.
type Observer interface {
	CompositionApplied(version uint64, c *composition.Composition)
	RebuildFailed(version uint64, err error)
	TimelineEmptied()
}

type noopPlayer struct{}

func (noopPlayer) Replace(*composition.Composition) {}
func (noopPlayer) SetWindow(timeline.Range)         {}
func (noopPlayer) Seek(float64)                     {}
func (noopPlayer) Pause()                           {}
func (noopPlayer) Resume()                          {}

type noopObserver struct{}

func (noopObserver) CompositionApplied(uint64, *composition.Composition) {}
func (noopObserver) RebuildFailed(uint64, error)                         {}
func (noopObserver) TimelineEmptied()                                    {}
