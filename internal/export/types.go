package export

// EDLRequest asks for an EDL of a published story.
type EDLRequest struct {
	Title     string  `json:"title"`
	Format    string  `json:"format"`
	FrameRate float64 `json:"frame_rate"`
	OutputDir string  `json:"output_dir"`
}

// ResolvedClip is one EDL event: a source span and where it lands on the
// record timeline.
type ResolvedClip struct {
	ClipID     string
	ClipName   string
	MediaPath  string
	StartMs    int
	EndMs      int
	RecordInMs int
	Still      bool
}

type EDLResponse struct {
	Status     string `json:"status"`
	Format     string `json:"format"`
	OutputPath string `json:"output_path"`
	ClipCount  int    `json:"clip_count"`
}
