package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bestyn/bestynapp-sub001/internal/export"
	"github.com/bestyn/bestynapp-sub001/internal/playback"
	"github.com/bestyn/bestynapp-sub001/internal/session"
	"github.com/bestyn/bestynapp-sub001/internal/story"
)

func storyRequest(sessionID, title string, exp session.Export) story.PublishRequest {
	return story.PublishRequest{
		Title:       title,
		SessionID:   sessionID,
		Composition: exp.Composition,
		ClipCount:   len(exp.Clips),
	}
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 || n > 500 {
		return 50
	}
	return n
}

func listStoriesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stories, err := cfg.Stories.ListStories(r.Context(), queryLimit(r))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list stories", "INTERNAL_ERROR")
			return
		}
		resp := StoriesResponse{Stories: make([]StoryResponse, len(stories))}
		for i, s := range stories {
			resp.Stories[i] = StoryToResponse(s)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// getStoryHandler returns the story metadata together with its stored
// composition and export jobs.
func getStoryHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := cfg.Stories.GetStory(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		jobs, err := cfg.Stories.StoryJobs(r.Context(), st.ID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp := struct {
			StoryResponse
			Composition json.RawMessage `json:"composition"`
			Jobs        []JobResponse   `json:"jobs"`
		}{
			StoryResponse: StoryToResponse(st),
			Composition:   st.Composition,
			Jobs:          make([]JobResponse, len(jobs)),
		}
		for i, j := range jobs {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func deleteStoryHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Stories.DeleteStory(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func rerenderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Stories.Rerender(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, JobToResponse(job))
	}
}

// exportEDLHandler writes an EDL of a published story into a caller-chosen
// directory.
func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req export.EDLRequest
		if !decode(w, r, &req) {
			return
		}
		if f := strings.ToLower(req.Format); f != "" && f != "edl" {
			WriteError(w, http.StatusBadRequest, "format must be edl", "BAD_REQUEST")
			return
		}
		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			writeServiceError(w, err)
			return
		}

		st, err := cfg.Stories.GetStory(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		c, err := st.Decode()
		if err != nil {
			writeServiceError(w, err)
			return
		}

		title := export.SanitizeName(req.Title, 120)
		if title == "" {
			title = st.Title
		}
		frameRate := req.FrameRate
		if frameRate <= 0 {
			frameRate = c.FrameRate
		}

		clips := export.FromComposition(c)
		edl := export.GenerateEDL(clips, title, frameRate)
		outputPath := filepath.Join(req.OutputDir, export.FileStem(title, st.ID)+".edl")
		if err := os.WriteFile(outputPath, []byte(edl), 0o644); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to write export file", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, export.EDLResponse{
			Status:     "ok",
			Format:     "edl",
			OutputPath: outputPath,
			ClipCount:  len(clips),
		})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := cfg.Stories.ListJobs(r.Context(), queryLimit(r))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}
		resp := JobsResponse{Jobs: make([]JobResponse, len(jobs))}
		for i, j := range jobs {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Stories.GetJob(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

// jobOutputHandler streams the video of a completed render job.
func jobOutputHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Playback == nil {
			WriteError(w, http.StatusServiceUnavailable, "playback not configured", "UNAVAILABLE")
			return
		}
		job, err := cfg.Stories.GetJob(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if job.Status != story.JobStatusCompleted || job.OutputPath == "" {
			WriteError(w, http.StatusConflict, "job has no output yet", "INVALID_STATE")
			return
		}

		err = cfg.Playback.ServeFile(w, r, job.OutputPath)
		switch {
		case err == nil:
		case errors.Is(err, playback.ErrNotFound):
			WriteError(w, http.StatusNotFound, "rendered file missing", "NOT_FOUND")
		case errors.Is(err, playback.ErrOutsideRoot):
			cfg.Logger.Warn("job output outside export dir", "job_id", job.ID)
			WriteError(w, http.StatusForbidden, "output is not servable", "FORBIDDEN")
		default:
			cfg.Logger.Error("failed to serve job output", "job_id", job.ID, "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to serve output", "INTERNAL_ERROR")
		}
	}
}
