package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kozaktomas/touch-guard/internal/config"
)

// isolateEnv clears the variables newRuntime reads so a local .env cannot leak in.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CAMERA_URL", "CAMERA_DIR", "DATABASE_URL", "EXAMPLES_PATH",
		"EMBEDDING_BACKEND", "CLASSIFIER_METRIC", "CLASSIFIER_INDEX", "SOUND_COMMAND", "SOUND_FILE",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("NOTIFY_BACKEND", "none")
	t.Setenv("LOG_LEVEL", "error")
}

func imageDir(t *testing.T, withImage bool) string {
	t.Helper()
	dir := t.TempDir()
	if withImage {
		png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
		if err := os.WriteFile(filepath.Join(dir, "frame.png"), png, 0o600); err != nil {
			t.Fatalf("writing frame: %v", err)
		}
	}
	return dir
}

func TestNewRuntime_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "no camera configured",
			env:     map[string]string{},
			wantErr: "CAMERA_URL",
		},
		{
			name:    "unknown metric",
			env:     map[string]string{"CAMERA_DIR": "with-image", "CLASSIFIER_METRIC": "manhattan"},
			wantErr: "manhattan",
		},
		{
			name:    "unknown notify backend",
			env:     map[string]string{"CAMERA_DIR": "with-image", "NOTIFY_BACKEND": "pager"},
			wantErr: "pager",
		},
		{
			name:    "camera without frames",
			env:     map[string]string{"CAMERA_DIR": "empty"},
			wantErr: "no images",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			for key, value := range tt.env {
				switch value {
				case "with-image":
					value = imageDir(t, true)
				case "empty":
					value = imageDir(t, false)
				}
				t.Setenv(key, value)
			}

			var rt *runtime
			var err error
			func() {
				defer func() {
					if r := recover(); r != nil {
						t.Fatalf("newRuntime panicked: %v", r)
					}
				}()
				rt, err = newRuntime(context.Background(), config.Load())
			}()

			if err == nil {
				rt.Close()
				t.Fatalf("newRuntime() error = nil, want containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("newRuntime() error = %v, want containing %q", err, tt.wantErr)
			}
			if rt != nil {
				t.Errorf("newRuntime() returned a runtime alongside error %v", err)
			}
		})
	}
}

func TestNewRuntime_ImageDir(t *testing.T) {
	isolateEnv(t)
	t.Setenv("CAMERA_DIR", imageDir(t, true))

	rt, err := newRuntime(context.Background(), config.Load())
	if err != nil {
		t.Fatalf("newRuntime() error = %v", err)
	}
	if rt.session == nil {
		t.Fatal("session not wired")
	}
	if got := rt.session.Status().Running; got {
		t.Error("Status().Running = true before detection started")
	}
	if err := rt.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
