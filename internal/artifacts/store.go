// Package artifacts names and writes the screenshot files a run produces.
package artifacts

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
)

const (
	// Ext is the extension of PNG artifacts, the default capture format.
	Ext = ".png"
	// ExtJPEG is used when the capture is JPEG encoded.
	ExtJPEG = ".jpg"
	// PreconditionName is the artifact captured when the precondition phase fails.
	PreconditionName = "pre"

	stampLayout = "20060102-150405"
	// maxCollisions bounds the numeric suffixes tried before giving up on a name.
	maxCollisions = 1000
)

// Store writes artifacts below Dir. Existing files are never overwritten.
type Store struct {
	Dir string
}

// New resolves dir (expanding a leading ~) and returns a store rooted there.
func New(dir string) (*Store, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand artifact directory %q: %w", dir, err)
	}
	return &Store{Dir: expanded}, nil
}

// Sub returns a store for a child directory, used to separate scenarios in a suite.
func (s *Store) Sub(name string) *Store {
	return &Store{Dir: filepath.Join(s.Dir, Sanitize(name))}
}

// Write stores data under name and returns the path written. The extension follows the
// image format of data. When the name is taken a numeric suffix is added ("done-1.png",
// "done-2.png", ...).
func (s *Store) Write(name string, data []byte) (string, error) {
	path, err := s.reserve(name, extFor(data))
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write artifact %s: %w", path, err)
	}
	return path, nil
}

// reserve creates an empty file for name so concurrent writers never share a path.
func (s *Store) reserve(name, ext string) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory %s: %w", s.Dir, err)
	}

	base := Sanitize(name)
	for i := 0; i < maxCollisions; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}
		path := filepath.Join(s.Dir, candidate+ext)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create artifact %s: %w", path, err)
		}
		return path, f.Close()
	}
	return "", fmt.Errorf("failed to reserve artifact %q: too many name collisions", name)
}

func extFor(data []byte) string {
	if http.DetectContentType(data) == "image/jpeg" {
		return ExtJPEG
	}
	return Ext
}

// NewRunID returns a fresh identifier for a run.
func NewRunID() string {
	return uuid.New().String()
}

// RunStamp builds the per-run prefix of iteration artifacts: the start time plus the first
// block of the run ID, so two runs started in the same second do not collide.
func RunStamp(t time.Time, runID string) string {
	short, _, _ := strings.Cut(runID, "-")
	if short == "" {
		return t.Format(stampLayout)
	}
	return t.Format(stampLayout) + "-" + short
}

// IterationName is the artifact name for a failure in main iteration i.
func IterationName(runStamp string, i int) string {
	return fmt.Sprintf("%s-%d", runStamp, i)
}

// Sanitize maps name onto a safe single path component.
func Sanitize(name string) string {
	name = strings.TrimSuffix(strings.TrimSuffix(name, Ext), ExtJPEG)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "artifact"
	}
	return out
}
