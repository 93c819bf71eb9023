package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

var ErrBadOutputDir = errors.New("invalid output_dir")

const maxTitleLen = 120

// SanitizeName drops control characters and replaces anything outside a
// conservative filename alphabet with '_'. maxLen counts runes; 0 means no
// limit.
func SanitizeName(s string, maxLen int) string {
	cleaned := strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune(" -_.,()", r):
			return r
		default:
			return '_'
		}
	}, s))

	if runes := []rune(cleaned); maxLen > 0 && len(runes) > maxLen {
		cleaned = string(runes[:maxLen])
	}
	return cleaned
}

// FileStem names the output files of a story: the sanitized title followed
// by a short id suffix so equal titles never collide.
func FileStem(title, id string) string {
	name := strings.ReplaceAll(SanitizeName(title, maxTitleLen), " ", "_")
	if name == "" {
		name = "story"
	}
	if len(id) > 8 {
		id = id[:8]
	}
	if id == "" {
		return name
	}
	return name + "_" + id
}

func ValidateOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("%w: output_dir is required", ErrBadOutputDir)
	}

	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return fmt.Errorf("%w: path traversal", ErrBadOutputDir)
		}
	}
	if filepath.Clean(dir) != dir {
		return fmt.Errorf("%w: must be a clean path", ErrBadOutputDir)
	}

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("%w: does not exist", ErrBadOutputDir)
	case err != nil:
		return fmt.Errorf("%w: %v", ErrBadOutputDir, err)
	case !info.IsDir():
		return fmt.Errorf("%w: not a directory", ErrBadOutputDir)
	}
	return nil
}
