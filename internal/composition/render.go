package composition

import (
	"fmt"
	"strconv"
	"strings"
)

// Default encoding settings
const (
	DefaultCRF        = 23
	DefaultPreset     = "medium"
	DefaultVideoCodec = "libx264"
	DefaultAudioCodec = "aac"
	DefaultSampleRate = 48000

	// DefaultBedVolume is the background track level when the caller names
	// none. A track volume of 0 is muted.
	DefaultBedVolume = 0.5

	defaultClipVolume = 1.0
)

type RenderOptions struct {
	VideoCodec string
	AudioCodec string
	CRF        int
	Preset     string
}

// RenderPlan returns the ffmpeg arguments (without the binary and global
// flags) that encode the visible part of c into output.
func RenderPlan(c *Composition, output string, opts RenderOptions) ([]string, error) {
	if output == "" {
		return nil, fmt.Errorf("output path is required")
	}
	visible := c.VisibleSegments()
	if len(visible) == 0 {
		return nil, ErrEmptyTimeline
	}
	if opts.VideoCodec == "" {
		opts.VideoCodec = DefaultVideoCodec
	}
	if opts.AudioCodec == "" {
		opts.AudioCodec = DefaultAudioCodec
	}
	if opts.CRF == 0 {
		opts.CRF = DefaultCRF
	}
	if opts.Preset == "" {
		opts.Preset = DefaultPreset
	}

	var args []string
	for _, s := range visible {
		dur := secs(s.SourceRange.Duration())
		if s.Still {
			args = append(args, "-loop", "1", "-t", dur, "-i", s.Source.URI)
		} else {
			args = append(args, "-ss", secs(s.SourceRange.Lower), "-t", dur, "-i", s.Source.URI)
		}
	}
	bedInput := -1
	if c.Audio != nil {
		bedInput = len(visible)
		if c.Audio.Loops > 1 {
			args = append(args, "-stream_loop", "-1")
		}
		args = append(args, "-i", c.Audio.Track.URI)
	}

	w, h := c.RenderSize.Width, c.RenderSize.Height
	fps := strconv.FormatFloat(c.FrameRate, 'f', -1, 64)
	var graph []string
	var concatInputs strings.Builder
	for i, s := range visible {
		graph = append(graph, fmt.Sprintf(
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%s,format=yuv420p[v%d]",
			i, w, h, w, h, fps, i))
		if s.HasAudio {
			graph = append(graph, fmt.Sprintf("[%d:a]aresample=%d,asetpts=PTS-STARTPTS[a%d]", i, DefaultSampleRate, i))
		} else {
			graph = append(graph, fmt.Sprintf("anullsrc=r=%d:cl=stereo,atrim=duration=%s[a%d]",
				DefaultSampleRate, secs(s.SourceRange.Duration()), i))
		}
		fmt.Fprintf(&concatInputs, "[v%d][a%d]", i, i)
	}
	graph = append(graph, fmt.Sprintf("%sconcat=n=%d:v=1:a=1[vout][acat]", concatInputs.String(), len(visible)))

	audioOut := "[acat]"
	if bedInput >= 0 {
		vol := c.Audio.Track.Volume
		graph = append(graph,
			fmt.Sprintf("[%d:a]atrim=0:%s,asetpts=PTS-STARTPTS,volume=%s[bed]",
				bedInput, secs(c.Audio.Output.Duration()), strconv.FormatFloat(vol, 'f', 2, 64)),
			fmt.Sprintf("[acat]volume=%s[fg]", strconv.FormatFloat(defaultClipVolume, 'f', 2, 64)),
			"[fg][bed]amix=inputs=2:duration=first:dropout_transition=0[aout]",
		)
		audioOut = "[aout]"
	}

	args = append(args,
		"-filter_complex", strings.Join(graph, ";"),
		"-map", "[vout]",
		"-map", audioOut,
		"-c:v", opts.VideoCodec,
		"-preset", opts.Preset,
		"-crf", strconv.Itoa(opts.CRF),
		"-c:a", opts.AudioCodec,
		"-t", secs(c.Duration()),
		"-movflags", "+faststart",
		output,
	)
	return args, nil
}

func secs(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
