package artifact

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Dirs are the roots artifacts are written under, one per kind.
type Dirs struct {
	Screenshots string
	Traces      string
	Logs        string
}

// FileSink persists artifacts to a filesystem. Screenshots and DOM
// snapshots go under Dirs.Screenshots, trace recordings under Dirs.Traces,
// everything else under Dirs.Logs.
type FileSink struct {
	fs   afero.Fs
	dirs Dirs
}

// NewFileSink creates a sink writing to fs.
func NewFileSink(fs afero.Fs, dirs Dirs) *FileSink {
	return &FileSink{fs: fs, dirs: dirs}
}

// NewOSFileSink creates a sink writing to the local disk.
func NewOSFileSink(dirs Dirs) *FileSink {
	return NewFileSink(afero.NewOsFs(), dirs)
}

// Fs returns the underlying filesystem.
func (s *FileSink) Fs() afero.Fs {
	return s.fs
}

// Path returns where an artifact with the given name and MIME type is stored.
func (s *FileSink) Path(name, mimeType string) string {
	return filepath.Join(s.dirFor(mimeType), SanitizeName(name))
}

// Attach writes data to Path(name, mimeType), creating directories as needed.
func (s *FileSink) Attach(name, mimeType string, data []byte) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("artifact name is required")
	}

	path := s.Path(name, mimeType)
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact %s: %w", path, err)
	}
	return nil
}

func (s *FileSink) dirFor(mimeType string) string {
	switch KindOf(mimeType) {
	case KindScreenshot, KindDOMSnapshot:
		return s.dirs.Screenshots
	case KindTrace:
		return s.dirs.Traces
	default:
		return s.dirs.Logs
	}
}

// SanitizeName turns a label (often a test name containing slashes) into a
// single safe file name.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "artifact"
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)

	// Reject names that resolve to the directory itself or its parent.
	if strings.Trim(cleaned, ".") == "" {
		return "artifact"
	}
	return cleaned
}
