package discovery

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"upscale-manager/internal/pipeline"
	"upscale-manager/internal/runstore"
)

const settingsSchemaVersion = 1

// Duration is a time.Duration that reads and writes as "300s" in JSON and
// the environment. A bare number is taken as seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func ParseDuration(raw string) (time.Duration, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return d, nil
}

// Settings is the persisted configuration. Values resolve as flags, then
// UPSCALE_* environment variables, then config/settings.json, then defaults.
type Settings struct {
	InputDir        string   `json:"input_dir" env:"UPSCALE_INPUT_DIR"`
	OutputRoot      string   `json:"output_root" env:"UPSCALE_OUTPUT_ROOT"`
	UpscaylBinary   string   `json:"upscayl_bin" env:"UPSCALE_UPSCAYL_BIN"`
	ModelsPath      string   `json:"models_path,omitempty" env:"UPSCALE_MODELS_PATH"`
	Model           string   `json:"model" env:"UPSCALE_MODEL"`
	GPUID           string   `json:"gpu_id" env:"UPSCALE_GPU_ID"`
	FallbackGPUID   string   `json:"fallback_gpu_id" env:"UPSCALE_FALLBACK_GPU_ID"`
	FrameTimeout    Duration `json:"frame_timeout" env:"UPSCALE_FRAME_TIMEOUT"`
	FallbackTimeout Duration `json:"fallback_timeout" env:"UPSCALE_FALLBACK_TIMEOUT"`
	Extensions      []string `json:"extensions" env:"UPSCALE_EXTENSIONS" envSeparator:","`
	Container       string   `json:"container" env:"UPSCALE_CONTAINER"`
	PollBusy        Duration `json:"poll_busy" env:"UPSCALE_POLL_BUSY"`
	PollIdle        Duration `json:"poll_idle" env:"UPSCALE_POLL_IDLE"`
	FailureCooldown Duration `json:"failure_cooldown" env:"UPSCALE_FAILURE_COOLDOWN"`
	MaxFailureRatio float64  `json:"max_failure_ratio" env:"UPSCALE_MAX_FAILURE_RATIO"`
	CheckpointStore string   `json:"checkpoint_store" env:"UPSCALE_CHECKPOINT_STORE"`
	MetricsAddr     string   `json:"metrics_addr,omitempty" env:"UPSCALE_METRICS_ADDR"`
	LogLevel        string   `json:"log_level,omitempty" env:"UPSCALE_LOG_LEVEL"`
	FFmpegBinary    string   `json:"ffmpeg_bin" env:"UPSCALE_FFMPEG_BIN"`
	FFprobeBinary   string   `json:"ffprobe_bin" env:"UPSCALE_FFPROBE_BIN"`
	X264Preset      string   `json:"x264_preset" env:"UPSCALE_X264_PRESET"`
	AudioBitrate    string   `json:"audio_bitrate" env:"UPSCALE_AUDIO_BITRATE"`
}

type settingsFile struct {
	SchemaVersion int      `json:"schema_version"`
	UpdatedAt     string   `json:"updated_at"`
	Settings      Settings `json:"settings"`
}

type UpdateSettingsOptions struct {
	ConfigPath string
	Settings   Settings
}

type UpdateSettingsResult struct {
	ConfigPath string   `json:"config_path"`
	Settings   Settings `json:"settings"`
}

func DefaultSettings() Settings {
	return Settings{
		InputDir:        DefaultInputDir,
		OutputRoot:      DefaultOutputRoot,
		UpscaylBinary:   DefaultUpscaylBinary,
		Model:           DefaultModel,
		GPUID:           DefaultGPUID,
		FallbackGPUID:   DefaultFallbackGPUID,
		FrameTimeout:    Duration(DefaultFrameTimeout),
		FallbackTimeout: Duration(DefaultFallbackTimeout),
		Extensions:      append([]string(nil), DefaultExtensions...),
		Container:       DefaultContainer,
		PollBusy:        Duration(DefaultPollBusy),
		PollIdle:        Duration(DefaultPollIdle),
		FailureCooldown: Duration(DefaultFailureCooldown),
		MaxFailureRatio: DefaultMaxFailureRatio,
		CheckpointStore: DefaultCheckpointStore,
		FFmpegBinary:    DefaultFFmpegBinary,
		FFprobeBinary:   DefaultFFprobeBinary,
		X264Preset:      DefaultX264Preset,
		AudioBitrate:    DefaultAudioBitrate,
	}
}

// NormalizeSettings fills blanks with defaults. Out-of-range values are left
// for Validate to report.
func NormalizeSettings(raw Settings) Settings {
	def := DefaultSettings()
	norm := raw
	norm.InputDir = firstNonEmpty(norm.InputDir, def.InputDir)
	norm.OutputRoot = firstNonEmpty(norm.OutputRoot, def.OutputRoot)
	norm.UpscaylBinary = firstNonEmpty(norm.UpscaylBinary, def.UpscaylBinary)
	norm.ModelsPath = strings.TrimSpace(norm.ModelsPath)
	norm.Model = firstNonEmpty(norm.Model, def.Model)
	norm.GPUID = firstNonEmpty(norm.GPUID, def.GPUID)
	norm.FallbackGPUID = firstNonEmpty(norm.FallbackGPUID, def.FallbackGPUID)
	if norm.FrameTimeout <= 0 {
		norm.FrameTimeout = def.FrameTimeout
	}
	if norm.FallbackTimeout <= 0 {
		norm.FallbackTimeout = def.FallbackTimeout
	}
	norm.Extensions = normalizeExtensions(norm.Extensions)
	if len(norm.Extensions) == 0 {
		norm.Extensions = def.Extensions
	}
	norm.Container = strings.TrimPrefix(firstNonEmpty(strings.ToLower(norm.Container), def.Container), ".")
	if norm.PollBusy <= 0 {
		norm.PollBusy = def.PollBusy
	}
	if norm.PollIdle <= 0 {
		norm.PollIdle = def.PollIdle
	}
	if norm.FailureCooldown < 0 {
		norm.FailureCooldown = def.FailureCooldown
	}
	norm.CheckpointStore = strings.ToLower(firstNonEmpty(norm.CheckpointStore, def.CheckpointStore))
	norm.MetricsAddr = strings.TrimSpace(norm.MetricsAddr)
	norm.LogLevel = strings.ToLower(strings.TrimSpace(norm.LogLevel))
	norm.FFmpegBinary = firstNonEmpty(norm.FFmpegBinary, def.FFmpegBinary)
	norm.FFprobeBinary = firstNonEmpty(norm.FFprobeBinary, def.FFprobeBinary)
	norm.X264Preset = firstNonEmpty(norm.X264Preset, def.X264Preset)
	norm.AudioBitrate = firstNonEmpty(norm.AudioBitrate, def.AudioBitrate)
	return norm
}

func (s Settings) Validate() error {
	if s.MaxFailureRatio < 0 || s.MaxFailureRatio > 1 {
		return fmt.Errorf("max_failure_ratio must be between 0 and 1, got %g", s.MaxFailureRatio)
	}
	switch s.CheckpointStore {
	case runstore.CheckpointStoreFile, runstore.CheckpointStoreSQLite:
	default:
		return fmt.Errorf("checkpoint_store must be %q or %q, got %q", runstore.CheckpointStoreFile, runstore.CheckpointStoreSQLite, s.CheckpointStore)
	}
	if s.GPUID == s.FallbackGPUID {
		return fmt.Errorf("fallback_gpu_id must differ from gpu_id (%s)", s.GPUID)
	}
	return nil
}

func (s Settings) ExecutorOptions() pipeline.ExecutorOptions {
	return pipeline.ExecutorOptions{
		Device:          s.GPUID,
		FallbackDevice:  s.FallbackGPUID,
		Timeout:         s.FrameTimeout.Std(),
		FallbackTimeout: s.FallbackTimeout.Std(),
	}
}

func normalizeConfigPath(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return DefaultSettingsConfigPath
	}
	return p
}

func loadSettingsFile(path string) (settingsFile, error) {
	file := settingsFile{Settings: DefaultSettings()}
	if _, err := os.Stat(path); err != nil {
		return settingsFile{}, err
	}
	if err := runstore.ReadJSON(path, &file); err != nil {
		return settingsFile{}, err
	}
	file.Settings = NormalizeSettings(file.Settings)
	return file, nil
}

func saveSettingsFile(path string, file settingsFile) error {
	file.SchemaVersion = settingsSchemaVersion
	return runstore.WriteJSON(path, file)
}

// ReadSettings returns the file's settings, or the defaults when the file
// does not exist. The environment is not consulted.
func ReadSettings(configPath string) (Settings, error) {
	path := normalizeConfigPath(configPath)
	file, err := loadSettingsFile(path)
	if err == nil {
		return file.Settings, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return DefaultSettings(), nil
	}
	return Settings{}, err
}

// LoadSettings resolves the file, then UPSCALE_* environment overrides.
func LoadSettings(configPath string) (Settings, error) {
	s, err := ReadSettings(configPath)
	if err != nil {
		return Settings{}, err
	}
	if err := ApplyEnv(&s); err != nil {
		return Settings{}, err
	}
	s = NormalizeSettings(s)
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// ApplyEnv overwrites only the fields whose UPSCALE_* variable is set.
func ApplyEnv(s *Settings) error {
	if err := env.Parse(s); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

func EnsureSettingsFile(configPath string) (Settings, bool, error) {
	path := normalizeConfigPath(configPath)
	file, err := loadSettingsFile(path)
	if err == nil {
		return file.Settings, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return Settings{}, false, err
	}
	file = settingsFile{
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		Settings:  DefaultSettings(),
	}
	if err := saveSettingsFile(path, file); err != nil {
		return Settings{}, false, err
	}
	return file.Settings, true, nil
}

func UpdateSettings(opts UpdateSettingsOptions) (UpdateSettingsResult, error) {
	configPath := normalizeConfigPath(opts.ConfigPath)
	if _, _, err := EnsureSettingsFile(configPath); err != nil {
		return UpdateSettingsResult{}, err
	}
	next := NormalizeSettings(opts.Settings)
	if err := next.Validate(); err != nil {
		return UpdateSettingsResult{}, err
	}
	file := settingsFile{
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		Settings:  next,
	}
	if err := saveSettingsFile(configPath, file); err != nil {
		return UpdateSettingsResult{}, err
	}
	return UpdateSettingsResult{ConfigPath: configPath, Settings: next}, nil
}

var settingSetters = map[string]func(s *Settings, v string) error{
	"input_dir":         func(s *Settings, v string) error { s.InputDir = v; return nil },
	"output_root":       func(s *Settings, v string) error { s.OutputRoot = v; return nil },
	"upscayl_bin":       func(s *Settings, v string) error { s.UpscaylBinary = v; return nil },
	"models_path":       func(s *Settings, v string) error { s.ModelsPath = v; return nil },
	"model":             func(s *Settings, v string) error { s.Model = v; return nil },
	"gpu_id":            func(s *Settings, v string) error { s.GPUID = v; return nil },
	"fallback_gpu_id":   func(s *Settings, v string) error { s.FallbackGPUID = v; return nil },
	"frame_timeout":     func(s *Settings, v string) error { return s.FrameTimeout.UnmarshalText([]byte(v)) },
	"fallback_timeout":  func(s *Settings, v string) error { return s.FallbackTimeout.UnmarshalText([]byte(v)) },
	"extensions":        func(s *Settings, v string) error { s.Extensions = strings.Split(v, ","); return nil },
	"container":         func(s *Settings, v string) error { s.Container = v; return nil },
	"poll_busy":         func(s *Settings, v string) error { return s.PollBusy.UnmarshalText([]byte(v)) },
	"poll_idle":         func(s *Settings, v string) error { return s.PollIdle.UnmarshalText([]byte(v)) },
	"failure_cooldown":  func(s *Settings, v string) error { return s.FailureCooldown.UnmarshalText([]byte(v)) },
	"max_failure_ratio": setFailureRatio,
	"checkpoint_store":  func(s *Settings, v string) error { s.CheckpointStore = v; return nil },
	"metrics_addr":      func(s *Settings, v string) error { s.MetricsAddr = v; return nil },
	"log_level":         func(s *Settings, v string) error { s.LogLevel = v; return nil },
	"ffmpeg_bin":        func(s *Settings, v string) error { s.FFmpegBinary = v; return nil },
	"ffprobe_bin":       func(s *Settings, v string) error { s.FFprobeBinary = v; return nil },
	"x264_preset":       func(s *Settings, v string) error { s.X264Preset = v; return nil },
	"audio_bitrate":     func(s *Settings, v string) error { s.AudioBitrate = v; return nil },
}

func setFailureRatio(s *Settings, v string) error {
	ratio, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("max_failure_ratio must be a number, got %q", v)
	}
	s.MaxFailureRatio = ratio
	return nil
}

// SetSettingValue assigns one setting by its JSON key.
func SetSettingValue(s *Settings, key, value string) error {
	set, ok := settingSetters[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return fmt.Errorf("unknown setting %q (known: %s)", key, strings.Join(SettingKeys(), ", "))
	}
	return set(s, strings.TrimSpace(value))
}

func SettingKeys() []string {
	keys := make([]string, 0, len(settingSetters))
	for k := range settingSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalizeExtensions(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, e := range raw {
		v := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
