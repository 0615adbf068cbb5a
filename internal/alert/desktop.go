package alert

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
)

// DesktopNotifier shows a native desktop notification through the
// platform's command line tool (notify-send on Linux, osascript on macOS).
type DesktopNotifier struct {
	goos string
	run  func(ctx context.Context, name string, args ...string) error
}

// NewDesktopNotifier creates a notifier for the current platform.
func NewDesktopNotifier() *DesktopNotifier {
	return &DesktopNotifier{goos: runtime.GOOS, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, out)
	}
	return nil
}

func (n *DesktopNotifier) Notify(ctx context.Context, title, body string) error {
	switch n.goos {
	case "linux", "freebsd", "openbsd":
		return n.run(ctx, "notify-send", "--app-name=touch-guard", title, body)
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", strconv.Quote(body), strconv.Quote(title))
		return n.run(ctx, "osascript", "-e", script)
	default:
		return fmt.Errorf("desktop notifications are not supported on %s", n.goos)
	}
}
