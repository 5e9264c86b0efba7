package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"vigilstream/pkg/errors"
	"vigilstream/pkg/logger"
)

// Local keeps objects as files under a root directory and probes duration
// with ffprobe.
type Local struct {
	root    string
	ffprobe string
	baseURL string
	probe   func(ctx context.Context, path string) (float64, error)
	logger  *logger.Logger
}

func NewLocal(root, ffprobePath, baseURL string) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("local object store requires a root directory")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve object store root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create object store root: %w", err)
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	l := &Local{
		root:    abs,
		ffprobe: ffprobePath,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.WithFields("component", "objectstore-local", "root", abs),
	}
	l.probe = l.probeDuration
	return l, nil
}

// Root is the directory objects are stored in.
func (l *Local) Root() string { return l.root }

// resolve maps ref to a path inside root, rejecting escapes.
func (l *Local) resolve(ref string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(ref))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("%w: empty object reference", errors.ErrInvalidArgument)
	}
	return filepath.Join(l.root, clean), nil
}

func (l *Local) FetchMetadata(ctx context.Context, ref string) (Metadata, error) {
	path, err := l.resolve(ref)
	if err != nil {
		return Metadata{}, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, fmt.Errorf("%w: %s", errors.ErrObjectNotFound, ref)
		}
		return Metadata{}, fmt.Errorf("failed to stat object %s: %w", ref, err)
	}

	duration, err := l.probe(ctx, path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to probe duration of %s: %w", ref, err)
	}
	l.logger.Debug("probed object metadata", "ref", ref, "durationSeconds", duration)
	return Metadata{DurationSeconds: &duration}, nil
}

func (l *Local) probeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=nokey=1:noprint_wrappers=1",
		path,
	}
	out, err := exec.CommandContext(ctx, l.ffprobe, args...).Output()
	if err != nil {
		return 0, err
	}
	value := strings.TrimSpace(string(out))
	if value == "" || value == "N/A" {
		return 0, fmt.Errorf("duration missing")
	}
	return strconv.ParseFloat(value, 64)
}

// Delete removes the file. A missing file is not an error.
func (l *Local) Delete(_ context.Context, ref string) error {
	path, err := l.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object %s: %w", ref, err)
	}
	l.logger.Debug("object deleted", "ref", ref)
	return nil
}

func (l *Local) URL(ref string) string {
	escaped := (&url.URL{Path: strings.TrimLeft(filepath.ToSlash(ref), "/")}).EscapedPath()
	if l.baseURL == "" {
		return "/" + escaped
	}
	return l.baseURL + "/" + escaped
}
