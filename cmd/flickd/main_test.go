package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runRoot(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("FLICK_CONFIG_DIR", t.TempDir())

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	got, err := runRoot(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if got != "flickd dev\n" {
		t.Errorf("output = %q", got)
	}
}

func TestConfigCmd_Defaults(t *testing.T) {
	got, err := runRoot(t, "", "config")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	for _, want := range []string{"transport: websocket", "retry_interval: 2s", "connect_timeout: 1s"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestConfigCmd_FlagsAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flickd.yaml")
	if err := os.WriteFile(path, []byte("relay:\n  retry_interval: 4s\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := runRoot(t, "", "config", "--config", path, "--node", "kitchen")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if !strings.Contains(got, "node: kitchen") {
		t.Errorf("--node not applied:\n%s", got)
	}
	if !strings.Contains(got, "retry_interval: 4s") {
		t.Errorf("settings file not applied:\n%s", got)
	}
}

func TestConfigCmd_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flickd.yaml")
	if err := os.WriteFile(path, []byte("link:\n  transport: smoke-signals\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := runRoot(t, "", "config", "--config", path); err == nil {
		t.Fatal("expected an error for an invalid transport")
	}
}

func TestDemoCmd(t *testing.T) {
	input := strings.Join([]string{
		"nextTrack",
		"backend remote",
		"prev",
		"reverse",
		"nextTrack",
		"backend automation",
		"playPause",
		"rewind",
	}, "\n") + "\n"

	got, err := runRoot(t, input, "demo")
	if err != nil {
		t.Fatalf("demo: %v", err)
	}
	for _, want := range []string{
		"commandExecuted nextTrack backend=local",
		"commandExecuted previousTrack backend=remote",
		"backendConnectionStateChanged backend=remote state=connected",
		"commandExecuted playPause backend=automation",
		"? unknown command",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if n := strings.Count(got, "commandExecuted previousTrack backend=remote"); n != 2 {
		t.Errorf("reversed nextTrack should run previousTrack; got %d remote previousTrack lines:\n%s", n, got)
	}
}

func TestListenPort(t *testing.T) {
	if p, err := listenPort(":8080"); err != nil || p != 8080 {
		t.Errorf("listenPort(:8080) = %d, %v", p, err)
	}
	if _, err := listenPort("localhost"); err == nil {
		t.Error("listenPort without port should fail")
	}
}
