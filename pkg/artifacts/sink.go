// Package artifacts persists non-text byproducts of code execution (plots,
// images, data files) under a fixed artifacts directory with collision-free
// names. Capture failures never fail the loop; they degrade to "no artifact
// produced" and are logged.
package artifacts

import (
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/reagent-dev/reagent/pkg/api"
)

// Sink owns one session's artifact directory. Filenames carry a monotonic
// per-session sequence number, so they never collide no matter how many
// artifact-producing calls the session makes.
type Sink struct {
	dir string

	mu  sync.Mutex
	seq int
}

// NewSink creates a sink rooted at <root>/<sessionID>.
func NewSink(root, sessionID string) (*Sink, error) {
	dir := filepath.Join(root, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}
	return &Sink{dir: dir}, nil
}

// Dir returns the sink's directory.
func (s *Sink) Dir() string {
	return s.dir
}

// Capture drains the staging directory: every regular file found there is
// moved into the artifact directory under a fresh name and returned as an
// Artifact. Capture never returns an error; unreadable files are skipped
// and logged.
func (s *Sink) Capture(stagingDir string) []api.Artifact {
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("artifact capture failed", "dir", stagingDir, "error", err.Error())
		}
		return nil
	}

	var captured []api.Artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(stagingDir, entry.Name())
		art, err := s.adopt(src, entry.Name())
		if err != nil {
			slog.Warn("artifact capture skipped file", "file", src, "error", err.Error())
			continue
		}
		captured = append(captured, art)
	}
	return captured
}

// Store persists an inline payload (e.g., a file returned by the remote
// sandbox) as an artifact.
func (s *Sink) Store(name string, data []byte) (api.Artifact, error) {
	dst, stored := s.nextPath(name)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return api.Artifact{}, fmt.Errorf("write artifact: %w", err)
	}
	return api.Artifact{
		ID:        api.NewArtifactID(),
		Name:      stored,
		MediaType: mediaType(name),
		Size:      int64(len(data)),
		Path:      dst,
	}, nil
}

// adopt moves a staged file into the artifact directory.
func (s *Sink) adopt(src, name string) (api.Artifact, error) {
	info, err := os.Stat(src)
	if err != nil {
		return api.Artifact{}, err
	}

	dst, stored := s.nextPath(name)
	if err := os.Rename(src, dst); err != nil {
		// Cross-device fallback: copy then remove.
		data, readErr := os.ReadFile(src)
		if readErr != nil {
			return api.Artifact{}, readErr
		}
		if writeErr := os.WriteFile(dst, data, 0o644); writeErr != nil {
			return api.Artifact{}, writeErr
		}
		os.Remove(src)
	}

	return api.Artifact{
		ID:        api.NewArtifactID(),
		Name:      stored,
		MediaType: mediaType(name),
		Size:      info.Size(),
		Path:      dst,
	}, nil
}

// nextPath reserves the next sequence number and returns the destination
// path and stored filename for an artifact named after the original file.
func (s *Sink) nextPath(name string) (path, stored string) {
	s.mu.Lock()
	s.seq++
	n := s.seq
	s.mu.Unlock()

	stored = fmt.Sprintf("%04d-%s", n, sanitize(name))
	return filepath.Join(s.dir, stored), stored
}

// sanitize strips path components and characters unsafe in filenames.
func sanitize(name string) string {
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." {
		return "artifact"
	}
	return name
}

// mediaType resolves a media type from the file extension, defaulting to
// application/octet-stream.
func mediaType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".svg":
		return "image/svg+xml"
	case ".gif":
		return "image/gif"
	case ".csv":
		return "text/csv"
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
