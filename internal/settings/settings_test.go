package settings

import (
	"context"
	"errors"
	"testing"
)

type fakeSettingsGateway struct {
	tray        bool
	silentStart bool
	readErr     error
	writeErr    error
}

func (f *fakeSettingsGateway) TrayEnabled(ctx context.Context) (bool, error) {
	return f.tray, f.readErr
}

func (f *fakeSettingsGateway) SetTrayEnabled(ctx context.Context, enabled bool) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.tray = enabled
	return nil
}

func (f *fakeSettingsGateway) SilentStartEnabled(ctx context.Context) (bool, error) {
	return f.silentStart, f.readErr
}

func (f *fakeSettingsGateway) SetSilentStartEnabled(ctx context.Context, enabled bool) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.silentStart = enabled
	return nil
}

func TestReadsPassThrough(t *testing.T) {
	gw := &fakeSettingsGateway{tray: false, silentStart: true}
	m := NewManager(gw)

	if m.TrayEnabled(context.Background()) {
		t.Fatal("expected persisted tray=false")
	}
	if !m.SilentStartEnabled(context.Background()) {
		t.Fatal("expected persisted silentStart=true")
	}
}

func TestReadFailureUsesDefaults(t *testing.T) {
	gw := &fakeSettingsGateway{tray: false, silentStart: true, readErr: errors.New("store gone")}
	m := NewManager(gw)

	if !m.TrayEnabled(context.Background()) {
		t.Fatal("tray must default to enabled on read failure")
	}
	if m.SilentStartEnabled(context.Background()) {
		t.Fatal("silent start must default to disabled on read failure")
	}
}

func TestWritesPersistAndPropagateErrors(t *testing.T) {
	gw := &fakeSettingsGateway{}
	m := NewManager(gw)

	if err := m.SetTrayEnabled(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if err := m.SetSilentStartEnabled(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	if gw.tray || !gw.silentStart {
		t.Fatalf("flags not persisted: tray=%v silentStart=%v", gw.tray, gw.silentStart)
	}

	gw.writeErr = errors.New("disk full")
	if err := m.SetTrayEnabled(context.Background(), true); err == nil {
		t.Fatal("write failure must propagate")
	}
	if err := m.SetSilentStartEnabled(context.Background(), false); err == nil {
		t.Fatal("write failure must propagate")
	}
}
