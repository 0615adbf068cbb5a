package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultStartTimeout = 10 * time.Second
	defaultStaleAfter   = 5 * time.Second
	defaultMaxBytes     = 16 << 20
)

// ErrSnapshotTooLarge is returned for snapshots above SnapshotConfig.MaxBytes.
var ErrSnapshotTooLarge = errors.New("snapshot too large")

// SnapshotConfig configures a SnapshotCamera.
type SnapshotConfig struct {
	URL          string        // JPEG/PNG snapshot endpoint of an IP or USB webcam bridge
	Interval     time.Duration // poll interval, defaults to 100ms
	StartTimeout time.Duration // how long Start waits for the first frame
	StaleAfter   time.Duration // Frame fails when the newest frame is older and polling is failing
	MaxBytes     int64         // largest accepted snapshot, defaults to 16 MiB
	Client       *http.Client
	Logger       *zap.Logger
}

// SnapshotCamera polls an HTTP snapshot URL into a single-slot mailbox.
type SnapshotCamera struct {
	cfg    SnapshotConfig
	client *http.Client
	logger *zap.Logger

	mu      sync.RWMutex
	latest  Frame
	lastErr error
	started bool
	stopped bool

	ready     chan struct{}
	readyOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSnapshotCamera creates a camera polling cfg.URL.
func NewSnapshotCamera(cfg SnapshotConfig) (*SnapshotCamera, error) {
	if cfg.URL == "" {
		return nil, errors.New("camera URL is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultPollInterval
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = defaultStartTimeout
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotCamera{
		cfg:    cfg,
		client: client,
		logger: logger,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Start begins polling and waits for the first frame.
func (c *SnapshotCamera) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	pollCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.started = true
	c.mu.Unlock()

	go c.poll(pollCtx)

	timer := time.NewTimer(c.cfg.StartTimeout)
	defer timer.Stop()

	select {
	case <-c.ready:
		c.logger.Info("camera ready", zap.String("url", c.cfg.URL))
		return nil
	case <-ctx.Done():
		_ = c.Stop()
		return ctx.Err()
	case <-timer.C:
		err := c.lastError()
		_ = c.Stop()
		if err == nil {
			err = errors.New("no frame received")
		}
		return fmt.Errorf("camera did not produce a frame within %s: %w", c.cfg.StartTimeout, err)
	}
}

func (c *SnapshotCamera) poll(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	var seq uint64
	for {
		data, err := c.fetch(ctx)
		if err != nil && ctx.Err() == nil {
			c.mu.Lock()
			c.lastErr = err
			c.mu.Unlock()
			c.logger.Debug("snapshot failed", zap.Error(err))
		} else if err == nil {
			seq++
			c.mu.Lock()
			c.latest = Frame{Seq: seq, Timestamp: time.Now(), Data: data}
			c.lastErr = nil
			c.mu.Unlock()
			c.readyOnce.Do(func() { close(c.ready) })
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *SnapshotCamera) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot error (status %d)", resp.StatusCode)
	}

	// One byte over the limit tells a full-size image from a truncated one.
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if int64(len(data)) > c.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrSnapshotTooLarge, c.cfg.MaxBytes)
	}
	if len(data) == 0 {
		return nil, errors.New("empty snapshot")
	}
	return data, nil
}

func (c *SnapshotCamera) lastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Frame returns the most recent snapshot.
func (c *SnapshotCamera) Frame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case c.stopped:
		return Frame{}, ErrStopped
	case !c.started || c.latest.Seq == 0:
		return Frame{}, ErrNotStarted
	case c.lastErr != nil && time.Since(c.latest.Timestamp) > c.cfg.StaleAfter:
		return Frame{}, fmt.Errorf("no fresh frame for %s: %w", time.Since(c.latest.Timestamp).Round(time.Second), c.lastErr)
	}
	return c.latest, nil
}

// Stop stops polling and waits for the poller to exit.
func (c *SnapshotCamera) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-c.done
	c.logger.Info("camera stopped", zap.String("url", c.cfg.URL))
	return nil
}
