// Package export writes published stories out as CMX3600 edit decision
// lists.
package export

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/bestyn/bestynapp-sub001/internal/composition"
)

// FromComposition lists the visible part of c as EDL events, in playback
// order.
func FromComposition(c *composition.Composition) []ResolvedClip {
	visible := c.VisibleSegments()
	out := make([]ResolvedClip, 0, len(visible))
	for _, s := range visible {
		name := SanitizeName(strings.TrimSuffix(filepath.Base(s.Source.URI), filepath.Ext(s.Source.URI)), 160)
		if name == "" {
			name = s.ClipID
		}
		out = append(out, ResolvedClip{
			ClipID:     s.ClipID,
			ClipName:   name,
			MediaPath:  s.Source.URI,
			StartMs:    toMs(s.SourceRange.Lower),
			EndMs:      toMs(s.SourceRange.Upper),
			RecordInMs: toMs(s.Output.Lower),
			Still:      s.Still,
		})
	}
	return out
}

func GenerateEDL(clips []ResolvedClip, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	fcm := "FCM: NON-DROP FRAME"
	if math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01 {
		fcm = "FCM: DROP FRAME"
	}
	lines := []string{"TITLE: " + title, fcm, ""}

	for i, clip := range clips {
		durationMs := clip.EndMs - clip.StartMs
		reel := "AX"
		if clip.Still {
			reel = "BL"
		}
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, reel, "V",
				msToTimecode(clip.StartMs, fps), msToTimecode(clip.EndMs, fps),
				msToTimecode(clip.RecordInMs, fps), msToTimecode(clip.RecordInMs+durationMs, fps)),
			"* FROM CLIP NAME:  "+clip.ClipName,
			"* MEDIA PATH:  "+clip.MediaPath,
		)
		if clip.Still {
			lines = append(lines, "* STILL IMAGE")
		}
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func msToTimecode(ms int, fps int) string {
	totalFrames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	return fmt.Sprintf("%02d:%02d:%02d:%02d", totalSeconds/3600, totalSeconds/60%60, totalSeconds%60, frames)
}

func toMs(sec float64) int {
	return int(math.Round(sec * 1000))
}
