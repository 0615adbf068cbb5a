package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// ImageCamera replays a fixed list of encoded stills, one per Frame call,
// wrapping around at the end. It backs offline runs and tests.
type ImageCamera struct {
	mu      sync.Mutex
	frames  [][]byte
	next    int
	seq     uint64
	started bool
	stopped bool
}

// NewImageCamera creates a camera cycling through frames.
func NewImageCamera(frames ...[]byte) *ImageCamera {
	return &ImageCamera{frames: frames}
}

// NewImageCameraFromDir loads every .jpg, .jpeg, .png and .webp file in dir, sorted by name.
func NewImageCameraFromDir(dir string) (*ImageCamera, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading image dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png", ".webp":
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	frames := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name)) //nolint:gosec // dir is from trusted config
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		frames = append(frames, data)
	}
	return NewImageCamera(frames...), nil
}

// Start marks the camera as running. It fails when there are no frames.
func (c *ImageCamera) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrStopped
	}
	if len(c.frames) == 0 {
		return errors.New("no images to replay")
	}
	c.started = true
	return nil
}

// Frame returns the next still.
func (c *ImageCamera) Frame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return Frame{}, ErrStopped
	}
	if !c.started {
		return Frame{}, ErrNotStarted
	}

	data := c.frames[c.next]
	c.next = (c.next + 1) % len(c.frames)
	c.seq++
	return Frame{Seq: c.seq, Timestamp: time.Now(), Data: data}, nil
}

// Stop ends the replay.
func (c *ImageCamera) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	return nil
}
