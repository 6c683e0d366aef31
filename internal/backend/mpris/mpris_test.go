package mpris

import (
	"context"
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/micro-nova/flick-go/internal/backend"
	"github.com/micro-nova/flick-go/internal/models"
)

type fakeObject struct {
	status  string
	methods []string
	err     error
}

func (f *fakeObject) CallWithContext(_ context.Context, method string, _ dbus.Flags, _ ...interface{}) *dbus.Call {
	f.methods = append(f.methods, method)
	return &dbus.Call{Err: f.err}
}

func (f *fakeObject) GetProperty(p string) (dbus.Variant, error) {
	if p != playerIface+".PlaybackStatus" {
		return dbus.Variant{}, errors.New("unknown property")
	}
	return dbus.MakeVariant(f.status), nil
}

func TestPlayerMethods(t *testing.T) {
	obj := &fakeObject{status: "Paused"}
	p := newWithObject(obj)
	ctx := context.Background()

	for _, cmd := range []models.Command{models.NextTrack, models.PreviousTrack, models.TogglePlayPause} {
		if err := backend.Execute(ctx, p, cmd); err != nil {
			t.Fatalf("Execute(%s) error = %v", cmd, err)
		}
	}
	want := []string{playerIface + ".Next", playerIface + ".Previous", playerIface + ".Play"}
	if len(obj.methods) != len(want) {
		t.Fatalf("methods = %v, want %v", obj.methods, want)
	}
	for i := range want {
		if obj.methods[i] != want[i] {
			t.Errorf("methods[%d] = %q, want %q", i, obj.methods[i], want[i])
		}
	}
}

func TestIsPlaying(t *testing.T) {
	cases := map[string]bool{"Playing": true, "Paused": false, "Stopped": false, "": false}
	for status, want := range cases {
		p := newWithObject(&fakeObject{status: status})
		got, err := p.IsPlaying(context.Background())
		if err != nil {
			t.Fatalf("IsPlaying() error = %v", err)
		}
		if got != want {
			t.Errorf("IsPlaying() with %q = %v, want %v", status, got, want)
		}
	}
}

func TestCallErrorIsWrapped(t *testing.T) {
	noPlayer := errors.New("org.freedesktop.DBus.Error.ServiceUnknown")
	p := newWithObject(&fakeObject{err: noPlayer})
	err := p.SkipNext(context.Background())
	if !errors.Is(err, noPlayer) {
		t.Errorf("SkipNext() error = %v, want wrapped %v", err, noPlayer)
	}
}
