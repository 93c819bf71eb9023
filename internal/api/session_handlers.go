package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bestyn/bestynapp-sub001/internal/composition"
	"github.com/bestyn/bestynapp-sub001/internal/session"
	"github.com/bestyn/bestynapp-sub001/internal/timeline"
)

type sessionKey struct{}

const maxThumbnails = 60

// sessionCtx resolves {id} to an open session.
func sessionCtx(cfg ServerConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := cfg.Sessions.Get(chi.URLParam(r, "id"))
			if !ok {
				WriteError(w, http.StatusNotFound, "session not found", "NOT_FOUND")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, s)))
		})
	}
}

func sessionFrom(r *http.Request) *session.Session {
	return r.Context().Value(sessionKey{}).(*session.Session)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return false
	}
	return true
}

func writeSnapshot(w http.ResponseWriter, status int, s *session.Session) {
	WriteJSON(w, status, s.Snapshot())
}

func listSessionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, SessionsResponse{Sessions: cfg.Sessions.IDs()})
	}
}

// createSessionHandler opens a session and starts editing right away,
// optionally seeded with clips.
func createSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if r.ContentLength != 0 && !decode(w, r, &req) {
			return
		}
		seed := make([]timeline.Source, 0, len(req.Seed))
		for _, src := range req.Seed {
			if src.URI == "" {
				WriteError(w, http.StatusBadRequest, "seed uri is required", "BAD_REQUEST")
				return
			}
			seed = append(seed, src.toSource())
		}

		s, err := cfg.Sessions.Create()
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if _, err := s.StartEditing(r.Context(), seed...); err != nil {
			cfg.Sessions.Close(s.ID())
			writeServiceError(w, err)
			return
		}
		writeSnapshot(w, http.StatusCreated, s)
	}
}

// startEditingHandler restarts editing on an idle session, e.g. after its
// last clip was removed.
func startEditingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if r.ContentLength != 0 && !decode(w, r, &req) {
			return
		}
		seed := make([]timeline.Source, 0, len(req.Seed))
		for _, src := range req.Seed {
			seed = append(seed, src.toSource())
		}
		s := sessionFrom(r)
		if _, err := s.StartEditing(r.Context(), seed...); err != nil {
			writeServiceError(w, err)
			return
		}
		writeSnapshot(w, http.StatusOK, s)
	}
}

func getSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeSnapshot(w, http.StatusOK, sessionFrom(r))
	}
}

func deleteSessionHandler(cfg ServerConfig, sel *selectorSet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := sessionFrom(r).ID()
		sel.drop(id)
		cfg.Sessions.Close(id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func resetSessionHandler(sel *selectorSet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r)
		sel.drop(s.ID())
		s.Reset()
		writeSnapshot(w, http.StatusOK, s)
	}
}

func capacityHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count := 1
		if v := r.URL.Query().Get("count"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				WriteError(w, http.StatusBadRequest, "count must be a non-negative integer", "BAD_REQUEST")
				return
			}
			count = n
		}
		WriteJSON(w, http.StatusOK, CapacityResponse{Count: count, CanAddMore: sessionFrom(r).CanAddMore(count)})
	}
}

// compositionHandler returns the composition the player should show: the
// clip preview while a clip draft is open, else the committed composition.
func compositionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r)
		c := s.Preview()
		if c == nil {
			c = s.Composition()
		}
		if c == nil {
			WriteError(w, http.StatusNotFound, "no composition built yet", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, c)
	}
}

// locateHandler maps a playback second (relative to the window start) to
// the clip and source second that play it.
func locateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := strconv.ParseFloat(r.URL.Query().Get("t"), 64)
		if err != nil || t < 0 {
			WriteError(w, http.StatusBadRequest, "t must be a non-negative number of seconds", "BAD_REQUEST")
			return
		}
		s := sessionFrom(r)
		c := s.Preview()
		if c == nil {
			c = s.Composition()
		}
		if c == nil {
			WriteError(w, http.StatusNotFound, "no composition built yet", "NOT_FOUND")
			return
		}
		if t > c.Duration() {
			WriteError(w, http.StatusBadRequest, "t is past the end of the story", "BAD_REQUEST")
			return
		}
		seg, second, ok := c.Locate(c.Window.Lower + t)
		if !ok {
			WriteError(w, http.StatusNotFound, "no segment plays at t", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, LocateResponse{
			ClipID:       seg.ClipID,
			Index:        seg.Index,
			SourceSecond: second,
			Still:        seg.Still,
		})
	}
}

func addClipHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SourceRequest
		if !decode(w, r, &req) {
			return
		}
		if req.URI == "" {
			WriteError(w, http.StatusBadRequest, "uri is required", "BAD_REQUEST")
			return
		}
		clip, err := sessionFrom(r).AddClip(r.Context(), req.toSource())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, AddClipResponse{Clip: clip})
	}
}

func addStillHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SourceRequest
		if !decode(w, r, &req) {
			return
		}
		if req.URI == "" {
			WriteError(w, http.StatusBadRequest, "uri is required", "BAD_REQUEST")
			return
		}
		clip, err := sessionFrom(r).AddStillImage(r.Context(), req.URI, req.Width, req.Height)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, AddClipResponse{Clip: clip})
	}
}

func moveClipHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MoveClipRequest
		if !decode(w, r, &req) {
			return
		}
		s := sessionFrom(r)
		if err := s.MoveClip(req.From, req.To); err != nil {
			writeServiceError(w, err)
			return
		}
		writeSnapshot(w, http.StatusOK, s)
	}
}

func removeClipHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		emptied, err := sessionFrom(r).RemoveClip(chi.URLParam(r, "clipID"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, RemoveClipResponse{Emptied: emptied})
	}
}

func selectClipHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r)
		if err := s.SelectClip(chi.URLParam(r, "clipID")); err != nil {
			writeServiceError(w, err)
			return
		}
		writeSnapshot(w, http.StatusOK, s)
	}
}

func trimHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r)
		if err := s.BeginWholeTimelineTrim(); err != nil {
			writeServiceError(w, err)
			return
		}
		writeSnapshot(w, http.StatusOK, s)
	}
}

func draftRangeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RangeRequest
		if !decode(w, r, &req) {
			return
		}
		s := sessionFrom(r)
		if err := s.RangeChanged(timeline.Range{Lower: req.Lower, Upper: req.Upper}); err != nil {
			writeServiceError(w, err)
			return
		}
		writeSnapshot(w, http.StatusOK, s)
	}
}

func confirmDraftHandler(sel *selectorSet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r)
		if err := s.ConfirmDraft(); err != nil {
			writeServiceError(w, err)
			return
		}
		sel.drop(s.ID())
		writeSnapshot(w, http.StatusOK, s)
	}
}

func cancelDraftHandler(sel *selectorSet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r)
		if err := s.CancelDraft(); err != nil {
			writeServiceError(w, err)
			return
		}
		sel.drop(s.ID())
		writeSnapshot(w, http.StatusOK, s)
	}
}

func setAudioHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AudioRequest
		if !decode(w, r, &req) {
			return
		}
		s := sessionFrom(r)
		track := &composition.AudioTrack{URI: req.URI, Duration: req.Duration, Volume: composition.DefaultBedVolume}
		if req.Volume != nil {
			track.Volume = *req.Volume
		}
		if err := s.SetAudioTrack(track); err != nil {
			writeServiceError(w, err)
			return
		}
		writeSnapshot(w, http.StatusOK, s)
	}
}

func clearAudioHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r)
		if err := s.SetAudioTrack(nil); err != nil {
			writeServiceError(w, err)
			return
		}
		writeSnapshot(w, http.StatusOK, s)
	}
}

// thumbnailsHandler collects a batch of evenly spaced frames. Frames that
// fail to decode are missing from the response.
func thumbnailsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := cfg.ThumbnailCount
		if v := r.URL.Query().Get("count"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 1 || parsed > maxThumbnails {
				WriteError(w, http.StatusBadRequest, "count must be between 1 and 60", "BAD_REQUEST")
				return
			}
			n = parsed
		}

		ch, err := sessionFrom(r).Thumbnails(r.Context(), chi.URLParam(r, "clipID"), n)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp := ThumbnailsResponse{Frames: make([]FrameResponse, 0, n)}
		for f := range ch {
			resp.Frames = append(resp.Frames, FrameToResponse(f))
		}
		sort.Slice(resp.Frames, func(i, j int) bool { return resp.Frames[i].Index < resp.Frames[j].Index })
		WriteJSON(w, http.StatusOK, resp)
	}
}

func coverHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		second := 0.0
		if v := r.URL.Query().Get("second"); v != "" {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil || parsed < 0 {
				WriteError(w, http.StatusBadRequest, "second must be a non-negative number", "BAD_REQUEST")
				return
			}
			second = parsed
		}

		fut, err := sessionFrom(r).CoverFrame(r.Context(), chi.URLParam(r, "clipID"), second)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		frame, err := fut.Wait(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(frame.Image)))
		w.WriteHeader(http.StatusOK)
		w.Write(frame.Image)
	}
}

func publishHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PublishRequest
		if r.ContentLength != 0 && !decode(w, r, &req) {
			return
		}
		s := sessionFrom(r)

		ctx, cancel := context.WithTimeout(r.Context(), cfg.FlushTimeout)
		defer cancel()
		if err := s.Flush(ctx); err != nil {
			writeServiceError(w, err)
			return
		}

		exp, err := s.SaveEdit()
		if err != nil {
			writeServiceError(w, err)
			return
		}
		st, job, err := cfg.Stories.Publish(r.Context(), storyRequest(s.ID(), req.Title, exp))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, PublishResponse{StoryID: st.ID, JobID: job.ID, Duration: st.Duration})
	}
}
