package discovery

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestReadSettingsDefaultsWhenConfigMissing(t *testing.T) {
	s, err := ReadSettings(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("read settings failed: %v", err)
	}
	if s.InputDir != DefaultInputDir || s.OutputRoot != DefaultOutputRoot {
		t.Fatalf("directory defaults mismatch: %+v", s)
	}
	if s.FrameTimeout.Std() != 300*time.Second || s.FallbackTimeout.Std() != 600*time.Second {
		t.Fatalf("timeout defaults mismatch: %s / %s", s.FrameTimeout, s.FallbackTimeout)
	}
	if s.MaxFailureRatio != 1 {
		t.Fatalf("failure ratio default mismatch: %g", s.MaxFailureRatio)
	}
	if !reflect.DeepEqual(s.Extensions, DefaultExtensions) {
		t.Fatalf("extension defaults mismatch: %v", s.Extensions)
	}
}

func TestUpdateSettingsRoundTripKeepsExplicitZeroRatio(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config", "settings.json")
	s := DefaultSettings()
	s.MaxFailureRatio = 0
	s.FrameTimeout = Duration(90 * time.Second)
	s.Extensions = []string{".MKV", "mkv", " mp4 "}

	if _, err := UpdateSettings(UpdateSettingsOptions{ConfigPath: cfg, Settings: s}); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	raw, err := os.ReadFile(cfg)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(raw), `"frame_timeout": "1m30s"`) {
		t.Fatalf("durations should be stored as text:\n%s", raw)
	}

	got, err := ReadSettings(cfg)
	if err != nil {
		t.Fatalf("read settings: %v", err)
	}
	if got.MaxFailureRatio != 0 {
		t.Fatalf("explicit zero ratio was replaced: %g", got.MaxFailureRatio)
	}
	if got.FrameTimeout.Std() != 90*time.Second {
		t.Fatalf("frame timeout mismatch: %s", got.FrameTimeout)
	}
	if !reflect.DeepEqual(got.Extensions, []string{"mkv", "mp4"}) {
		t.Fatalf("extensions not normalized: %v", got.Extensions)
	}
}

func TestLoadSettingsEnvOverridesFile(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "settings.json")
	s := DefaultSettings()
	s.InputDir = "from-file"
	s.Model = "file-model"
	if _, err := UpdateSettings(UpdateSettingsOptions{ConfigPath: cfg, Settings: s}); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	t.Setenv("UPSCALE_INPUT_DIR", "from-env")
	t.Setenv("UPSCALE_FRAME_TIMEOUT", "45")
	t.Setenv("UPSCALE_EXTENSIONS", "mov,webm")
	t.Setenv("UPSCALE_CHECKPOINT_STORE", "sqlite")

	got, err := LoadSettings(cfg)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if got.InputDir != "from-env" {
		t.Fatalf("env should win over file, got %q", got.InputDir)
	}
	if got.Model != "file-model" {
		t.Fatalf("unset env must keep file value, got %q", got.Model)
	}
	if got.FrameTimeout.Std() != 45*time.Second {
		t.Fatalf("bare seconds not parsed: %s", got.FrameTimeout)
	}
	if !reflect.DeepEqual(got.Extensions, []string{"mov", "webm"}) {
		t.Fatalf("extensions from env mismatch: %v", got.Extensions)
	}
	if got.CheckpointStore != "sqlite" {
		t.Fatalf("checkpoint store mismatch: %q", got.CheckpointStore)
	}
}

func TestLoadSettingsRejectsFailureRatioOutOfRange(t *testing.T) {
	t.Setenv("UPSCALE_MAX_FAILURE_RATIO", "1.5")
	_, err := LoadSettings(filepath.Join(t.TempDir(), "settings.json"))
	if err == nil || !strings.Contains(err.Error(), "max_failure_ratio") {
		t.Fatalf("expected ratio validation error, got %v", err)
	}
}

func TestLoadSettingsRejectsUnknownCheckpointStore(t *testing.T) {
	t.Setenv("UPSCALE_CHECKPOINT_STORE", "redis")
	_, err := LoadSettings(filepath.Join(t.TempDir(), "settings.json"))
	if err == nil || !strings.Contains(err.Error(), "checkpoint_store") {
		t.Fatalf("expected checkpoint store validation error, got %v", err)
	}
}

func TestSetSettingValue(t *testing.T) {
	s := DefaultSettings()
	if err := SetSettingValue(&s, "poll_idle", "30s"); err != nil {
		t.Fatalf("set poll_idle: %v", err)
	}
	if err := SetSettingValue(&s, "MAX_FAILURE_RATIO", "0.25"); err != nil {
		t.Fatalf("set ratio: %v", err)
	}
	if s.PollIdle.Std() != 30*time.Second || s.MaxFailureRatio != 0.25 {
		t.Fatalf("unexpected settings %+v", s)
	}
	if err := SetSettingValue(&s, "frame_timeout", "soon"); err == nil {
		t.Fatalf("expected invalid duration error")
	}
	if err := SetSettingValue(&s, "workers", "4"); err == nil || !strings.Contains(err.Error(), "unknown setting") {
		t.Fatalf("expected unknown setting error, got %v", err)
	}
}
