// Package playback streams rendered stories back to the editor.
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bestyn/bestynapp-sub001/internal/logging"
)

var (
	ErrOutsideRoot = errors.New("path is outside the export directory")
	ErrNotFound    = errors.New("rendered file not found")
)

var contentTypes = map[string]string{
	".mp4": "video/mp4",
	".mov": "video/quicktime",
	".edl": "text/plain; charset=utf-8",
}

// Server serves files below one export directory. Range, If-Range and HEAD
// requests are handled so players can seek without downloading everything.
type Server struct {
	root   string
	logger *slog.Logger
}

func NewServer(root string, logger *slog.Logger) *Server {
	return &Server{
		root:   filepath.Clean(root),
		logger: logging.WithComponent(logging.OrDiscard(logger), "playback"),
	}
}

// Contains reports whether path resolves to a file below the export root.
func (s *Server) Contains(path string) bool {
	rel, err := filepath.Rel(s.root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ServeFile writes the file at path. Errors are returned before anything is
// written to w.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, path string) error {
	if !s.Contains(path) {
		return ErrOutsideRoot
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("open rendered file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat rendered file: %w", err)
	}
	if stat.IsDir() {
		return ErrNotFound
	}

	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(name))
	contentType, ok := contentTypes[ext]
	if !ok {
		contentType = mime.TypeByExtension(ext)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))

	s.logger.Debug("serving rendered file", "path", logging.SanitizePath(path), "size", stat.Size(), "range", r.Header.Get("Range"))
	http.ServeContent(w, r, name, stat.ModTime(), file)
	return nil
}
