// Package source turns external inputs into commands for the companion's
// outbox. Gesture classification happens upstream; a source only ever sees
// finished commands.
package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/micro-nova/flick-go/internal/models"
)

// Emit receives each command produced by a source.
type Emit func(models.Command)

// Lines reads one command token per line from r until EOF or ctx is
// cancelled. Blank lines and lines starting with '#' are ignored; unknown
// tokens are logged and skipped.
func Lines(ctx context.Context, r io.Reader, emit Emit) error {
	done := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if ctx.Err() != nil {
				break
			}
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			cmd, err := models.ParseCommand(line)
			if err != nil {
				slog.Warn("source: skipping unknown command", "line", line, "err", err)
				continue
			}
			emit(cmd)
		}
		done <- sc.Err()
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-done:
		if err != nil {
			return fmt.Errorf("source: read commands: %w", err)
		}
		return nil
	}
}
