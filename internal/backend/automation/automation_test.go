package automation_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/micro-nova/flick-go/internal/backend"
	"github.com/micro-nova/flick-go/internal/backend/automation"
	"github.com/micro-nova/flick-go/internal/models"
)

// writeLauncher creates a shell script that appends its arguments to a log.
func writeLauncher(t *testing.T, exitCode int) (launcher, logPath string) {
	t.Helper()
	dir := t.TempDir()
	logPath = filepath.Join(dir, "calls.log")
	launcher = filepath.Join(dir, "launcher.sh")
	script := "#!/bin/sh\necho \"$@\" >> " + logPath + "\n"
	if exitCode != 0 {
		script += "echo 'automation not found' >&2\nexit 1\n"
	}
	if err := os.WriteFile(launcher, []byte(script), 0755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return launcher, logPath
}

func readLog(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestRunnerRunsNamedAutomations(t *testing.T) {
	launcher, logPath := writeLauncher(t, 0)
	r := automation.New(automation.Options{
		Launcher: launcher,
		Names:    map[models.Command]string{models.NextTrack: "SkipIt"},
	})

	ctx := context.Background()
	for _, cmd := range []models.Command{models.NextTrack, models.PreviousTrack, models.TogglePlayPause} {
		if err := backend.Execute(ctx, r, cmd); err != nil {
			t.Fatalf("Execute(%s) error = %v", cmd, err)
		}
	}

	got := readLog(t, logPath)
	want := []string{"run SkipIt", "run FlickPrevious", "run FlickPlayPause"}
	if len(got) != len(want) {
		t.Fatalf("calls = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRunnerReportsFailure(t *testing.T) {
	launcher, _ := writeLauncher(t, 1)
	r := automation.New(automation.Options{Launcher: launcher})

	err := r.SkipNext(context.Background())
	if err == nil {
		t.Fatal("SkipNext() error = nil, want failure")
	}
	if !strings.Contains(err.Error(), "automation not found") {
		t.Errorf("error %q should carry stderr", err)
	}
}

func TestRunnerHasNoState(t *testing.T) {
	r := automation.New(automation.Options{})
	if _, err := r.IsPlaying(context.Background()); err != automation.ErrNoState {
		t.Errorf("IsPlaying() error = %v, want ErrNoState", err)
	}
}
