package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Audio.FramesPerBlock != 512 || cfg.Audio.ChannelCapacity != 4 {
		t.Fatalf("unexpected defaults %+v", cfg.Audio)
	}
	if cfg.Audio.OpenTimeout.Std() != 2*time.Second {
		t.Fatalf("expected 2s open timeout, got %v", cfg.Audio.OpenTimeout.Std())
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
log_level: debug
audio:
  preferred_host_api: ALSA
  input_device: USB Interface
  open_timeout: 500ms
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Audio.PreferredHostAPI != "ALSA" || cfg.Audio.InputDevice != "USB Interface" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Audio.OpenTimeout.Std() != 500*time.Millisecond {
		t.Fatalf("expected 500ms, got %v", cfg.Audio.OpenTimeout.Std())
	}
	if cfg.Audio.FramesPerBlock != 512 {
		t.Fatalf("expected default frames to survive, got %d", cfg.Audio.FramesPerBlock)
	}
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("audio:\n  channel_capacity: 0\n  meter_gain: -1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFile(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"channel_capacity", "meter_gain"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %s, got %v", want, err)
		}
	}
}

func TestSaveRoundTripsDeviceSelection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	cfg.Audio.InputDevice = "Built-in Mic"
	cfg.Audio.OutputDevice = "Built-in Speakers"
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	again, err := LoadFile(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Audio.InputDevice != "Built-in Mic" || again.Audio.OutputDevice != "Built-in Speakers" {
		t.Fatalf("selection not persisted: %+v", again.Audio)
	}
	if again.Audio.OpenTimeout.Std() != 2*time.Second {
		t.Fatalf("expected open timeout to survive save, got %v", again.Audio.OpenTimeout.Std())
	}
	if again.Path() != path {
		t.Fatalf("expected path %s, got %s", path, again.Path())
	}
}
