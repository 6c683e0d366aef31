// Package automation is the automation backend: each command runs a named
// automation through an external launcher program.
package automation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/micro-nova/flick-go/internal/backend"
	"github.com/micro-nova/flick-go/internal/models"
)

const (
	// DefaultLauncher is invoked as `<launcher> run <automation name>`.
	DefaultLauncher = "flick-automation"
	defaultTimeout  = 10 * time.Second
)

// DefaultNames are the automation names installed by the setup flow.
var DefaultNames = map[models.Command]string{
	models.NextTrack:       "FlickNext",
	models.PreviousTrack:   "FlickPrevious",
	models.TogglePlayPause: "FlickPlayPause",
}

// ErrNoState is returned by IsPlaying; automations have no readable state.
var ErrNoState = errors.New("automation: playback state not available")

// Options configures a Runner.
type Options struct {
	Launcher string
	// ScriptsDir is searched for the launcher after $PATH and /usr/bin.
	ScriptsDir string
	Names      map[models.Command]string
	Timeout    time.Duration
}

// Runner executes automations.
type Runner struct {
	launcher string
	names    map[models.Command]string
	timeout  time.Duration
}

// New returns a Runner. Missing names fall back to DefaultNames.
func New(opts Options) *Runner {
	if opts.Launcher == "" {
		opts.Launcher = DefaultLauncher
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	names := make(map[models.Command]string, len(DefaultNames))
	for cmd, n := range DefaultNames {
		names[cmd] = n
	}
	for cmd, n := range opts.Names {
		if n != "" {
			names[cmd] = n
		}
	}
	return &Runner{
		launcher: findBinary(opts.Launcher, opts.ScriptsDir),
		names:    names,
		timeout:  opts.Timeout,
	}
}

// findBinary locates name in $PATH, /usr/bin or scriptsDir. It returns
// name unchanged if nothing is found so exec fails with a clear error.
func findBinary(name, scriptsDir string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if p, err := exec.LookPath(name); err == nil {
		return p
	}
	if p := filepath.Join("/usr/bin", name); fileExists(p) {
		return p
	}
	if scriptsDir != "" {
		if p := filepath.Join(scriptsDir, name); fileExists(p) {
			return p
		}
	}
	return name
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Run runs the automation for cmd.
func (r *Runner) Run(ctx context.Context, cmd models.Command) error {
	name, ok := r.names[cmd]
	if !ok {
		return fmt.Errorf("%w: %q", models.ErrUnknownCommand, cmd)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stderr bytes.Buffer
	c := exec.CommandContext(ctx, r.launcher, "run", name)
	c.Stderr = &stderr
	slog.Debug("automation: running", "name", name, "launcher", r.launcher)
	if err := c.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("automation %s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("automation %s: %w", name, err)
	}
	return nil
}

func (r *Runner) SkipNext(ctx context.Context) error        { return r.Run(ctx, models.NextTrack) }
func (r *Runner) SkipPrevious(ctx context.Context) error    { return r.Run(ctx, models.PreviousTrack) }
func (r *Runner) TogglePlayPause(ctx context.Context) error { return r.Run(ctx, models.TogglePlayPause) }

// Pause and Resume both run the toggle automation.
func (r *Runner) Pause(ctx context.Context) error  { return r.TogglePlayPause(ctx) }
func (r *Runner) Resume(ctx context.Context) error { return r.TogglePlayPause(ctx) }

func (r *Runner) IsPlaying(context.Context) (bool, error) { return false, ErrNoState }

var (
	_ backend.Player  = (*Runner)(nil)
	_ backend.Toggler = (*Runner)(nil)
)
