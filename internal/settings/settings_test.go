package settings_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/micro-nova/flick-go/internal/models"
	"github.com/micro-nova/flick-go/internal/settings"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flickd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	v := settings.NewViper()
	v.Set("config_dir", t.TempDir())

	s, err := settings.Load(v, "")
	require.NoError(t, err)

	assert.NotEmpty(t, s.Node)
	assert.Equal(t, "websocket", s.Link.Transport)
	assert.Equal(t, 2*time.Second, s.Relay.RetryInterval)
	assert.Equal(t, time.Second, s.Backend.ConnectTimeout)
	assert.Equal(t, ":8080", s.HTTP.Addr)
	assert.Zero(t, s.Relay.MaxQueued)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
node: kitchen
link:
  transport: serial
  serial_port: /dev/ttyUSB0
  baud: 9600
relay:
  retry_interval: 5s
  max_queued: 16
backend:
  automations:
    nextTrack: SkipSong
source:
  gpio:
    GPIO17: playPause
`)
	s, err := settings.Load(settings.NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, "kitchen", s.Node)
	assert.Equal(t, "serial", s.Link.Transport)
	assert.Equal(t, "/dev/ttyUSB0", s.Link.SerialPort)
	assert.Equal(t, 9600, s.Link.Baud)
	assert.Equal(t, 5*time.Second, s.Relay.RetryInterval)
	assert.Equal(t, 16, s.Relay.MaxQueued)
	assert.Equal(t, map[models.Command]string{models.NextTrack: "SkipSong"}, s.AutomationNames())
	assert.Len(t, s.Source.GPIO, 1)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "http:\n  addr: 127.0.0.1:9000\n")
	t.Setenv("FLICK_HTTP_ADDR", "127.0.0.1:9100")
	t.Setenv("FLICK_BACKEND_CONNECT_TIMEOUT", "250ms")

	s, err := settings.Load(settings.NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9100", s.HTTP.Addr)
	assert.Equal(t, 250*time.Millisecond, s.Backend.ConnectTimeout)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown transport", "link:\n  transport: carrier-pigeon\n"},
		{"serial without port", "link:\n  transport: serial\n"},
		{"bad addr", "http:\n  addr: not an address\n"},
		{"negative cap", "relay:\n  max_queued: -1\n"},
		{"unknown automation command", "backend:\n  automations:\n    shuffle: Shuffle\n"},
		{"unknown gpio command", "source:\n  gpio:\n    GPIO4: rewind\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := settings.Load(settings.NewViper(), writeFile(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := settings.Load(settings.NewViper(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestYAMLRoundTrip(t *testing.T) {
	v := settings.NewViper()
	v.Set("config_dir", t.TempDir())
	s, err := settings.Load(v, "")
	require.NoError(t, err)

	b, err := s.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(b), "retry_interval: 2s")

	var back map[string]any
	require.NoError(t, yaml.Unmarshal(b, &back))
	assert.Equal(t, s.Node, back["node"])
}
