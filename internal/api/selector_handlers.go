package api

import (
	"net/http"
	"sync"

	"github.com/bestyn/bestynapp-sub001/internal/selector"
)

// selectorSet holds the range selector of each session's open draft.
type selectorSet struct {
	mu   sync.Mutex
	byID map[string]*selector.Selector
}

func newSelectorSet() *selectorSet {
	return &selectorSet{byID: make(map[string]*selector.Selector)}
}

func (s *selectorSet) put(id string, sel *selector.Selector) {
	s.mu.Lock()
	s.byID[id] = sel
	s.mu.Unlock()
}

func (s *selectorSet) get(id string) (*selector.Selector, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sel, ok := s.byID[id]
	return sel, ok
}

func (s *selectorSet) drop(id string) {
	s.mu.Lock()
	delete(s.byID, id)
	s.mu.Unlock()
}

func selectorState(sel *selector.Selector) SelectorResponse {
	resp := SelectorResponse{
		Range:           sel.Range(),
		Pointer:         sel.Pointer(),
		ScrollOffset:    sel.ScrollOffset(),
		PixelsPerSecond: sel.PixelsPerSecond(),
		ContentWidth:    sel.ContentWidth(),
		MinSpan:         sel.MinSpan(),
	}
	if h := sel.Dragging(); h != selector.HandleNone {
		resp.Dragging = h.String()
	}
	return resp
}

func createSelectorHandler(set *selectorSet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectorRequest
		if !decode(w, r, &req) {
			return
		}
		s := sessionFrom(r)
		sel, err := s.DraftSelector(req.Width, req.PinOnScroll)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		set.put(s.ID(), sel)
		WriteJSON(w, http.StatusCreated, selectorState(sel))
	}
}

func withSelector(set *selectorSet, fn func(w http.ResponseWriter, r *http.Request, sel *selector.Selector)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sel, ok := set.get(sessionFrom(r).ID())
		if !ok {
			WriteError(w, http.StatusNotFound, "no selector for the open draft", "NOT_FOUND")
			return
		}
		fn(w, r, sel)
	}
}

func getSelectorHandler(set *selectorSet) http.HandlerFunc {
	return withSelector(set, func(w http.ResponseWriter, r *http.Request, sel *selector.Selector) {
		WriteJSON(w, http.StatusOK, selectorState(sel))
	})
}

// dragSelectorHandler drives one gesture step: phase "begin" grabs a
// handle, "move" drags it to x and "end" releases it.
func dragSelectorHandler(set *selectorSet) http.HandlerFunc {
	return withSelector(set, func(w http.ResponseWriter, r *http.Request, sel *selector.Selector) {
		var req DragRequest
		if !decode(w, r, &req) {
			return
		}
		var err error
		switch req.Phase {
		case "begin":
			var h selector.Handle
			if h, err = selector.ParseHandle(req.Handle); err != nil {
				WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
				return
			}
			err = sel.BeginDrag(h)
		case "move":
			err = sel.DragTo(req.X)
		case "end":
			err = sel.EndDrag()
		default:
			WriteError(w, http.StatusBadRequest, "phase must be begin, move or end", "BAD_REQUEST")
			return
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, selectorState(sel))
	})
}

func scrollSelectorHandler(set *selectorSet) http.HandlerFunc {
	return withSelector(set, func(w http.ResponseWriter, r *http.Request, sel *selector.Selector) {
		var req ScrollRequest
		if !decode(w, r, &req) {
			return
		}
		if err := sel.ScrollTo(req.Offset); err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, selectorState(sel))
	})
}

// resizeSelectorHandler follows a track width change; handle times stay.
func resizeSelectorHandler(set *selectorSet) http.HandlerFunc {
	return withSelector(set, func(w http.ResponseWriter, r *http.Request, sel *selector.Selector) {
		var req WidthRequest
		if !decode(w, r, &req) {
			return
		}
		if err := sel.SetWidth(req.Width); err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, selectorState(sel))
	})
}
