package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// ErrNoSound is returned when no sound file or command is configured.
var ErrNoSound = errors.New("no sound configured")

// Player plays the alert sound. Play returns once playback has started;
// end callbacks fire when it finishes.
type Player interface {
	Play(ctx context.Context) error
	OnEnd(fn func())
}

type endCallbacks struct {
	mu  sync.Mutex
	fns []func()
}

func (e *endCallbacks) add(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fns = append(e.fns, fn)
}

func (e *endCallbacks) fire() {
	e.mu.Lock()
	fns := append([]func(){}, e.fns...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// CommandPlayer plays a sound file with an external audio player.
type CommandPlayer struct {
	name string
	args []string
	ends endCallbacks
}

// NewCommandPlayer builds a player. An explicit command wins; otherwise the
// file is played with paplay on Linux or afplay on macOS.
func NewCommandPlayer(command []string, file string) (*CommandPlayer, error) {
	if len(command) > 0 {
		return &CommandPlayer{name: command[0], args: command[1:]}, nil
	}
	if file == "" {
		return nil, ErrNoSound
	}
	switch runtime.GOOS {
	case "darwin":
		return &CommandPlayer{name: "afplay", args: []string{file}}, nil
	default:
		return &CommandPlayer{name: "paplay", args: []string{file}}, nil
	}
}

func (p *CommandPlayer) OnEnd(fn func()) { p.ends.add(fn) }

// Play starts the command and returns without waiting for it to exit.
func (p *CommandPlayer) Play(_ context.Context) error {
	cmd := exec.Command(p.name, p.args...) //nolint:noctx // playback outlives the frame context
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", p.name, err)
	}
	go func() {
		_ = cmd.Wait()
		p.ends.fire()
	}()
	return nil
}

// BellPlayer rings the terminal bell and reports the end after duration.
type BellPlayer struct {
	out      io.Writer
	duration time.Duration
	ends     endCallbacks
}

// NewBellPlayer writes the bell character to out.
func NewBellPlayer(out io.Writer, duration time.Duration) *BellPlayer {
	return &BellPlayer{out: out, duration: duration}
}

func (p *BellPlayer) OnEnd(fn func()) { p.ends.add(fn) }

func (p *BellPlayer) Play(_ context.Context) error {
	if _, err := io.WriteString(p.out, "\a"); err != nil {
		return fmt.Errorf("ringing bell: %w", err)
	}
	time.AfterFunc(p.duration, p.ends.fire)
	return nil
}
