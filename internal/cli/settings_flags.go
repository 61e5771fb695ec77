package cli

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"upscale-manager/internal/discovery"
	"upscale-manager/internal/logging"
)

// settingsFlagKeys maps command-line flags onto settings keys. Flags only
// override when given, so the file and UPSCALE_* values stay in effect
// otherwise.
var settingsFlagKeys = map[string]string{
	"input":             "input_dir",
	"output":            "output_root",
	"upscayl-bin":       "upscayl_bin",
	"models":            "models_path",
	"model":             "model",
	"gpu":               "gpu_id",
	"fallback-gpu":      "fallback_gpu_id",
	"frame-timeout":     "frame_timeout",
	"fallback-timeout":  "fallback_timeout",
	"extensions":        "extensions",
	"container":         "container",
	"checkpoint-store":  "checkpoint_store",
	"max-failure-ratio": "max_failure_ratio",
	"metrics-addr":      "metrics_addr",
	"log-level":         "log_level",
}

type settingsFlags struct {
	fs      *flag.FlagSet
	config  *string
	noColor *bool
}

func bindSettingsFlags(fs *flag.FlagSet) *settingsFlags {
	f := &settingsFlags{
		fs:      fs,
		config:  fs.String("config", discovery.DefaultSettingsConfigPath, "settings file path"),
		noColor: fs.Bool("no-color", false, "disable colored log output"),
	}
	fs.String("input", "", "input directory watched for videos (default "+discovery.DefaultInputDir+")")
	fs.String("output", "", "output root for job directories (default "+discovery.DefaultOutputRoot+")")
	fs.String("upscayl-bin", "", "upscaler binary (default "+discovery.DefaultUpscaylBinary+")")
	fs.String("models", "", "upscaler models directory")
	fs.String("model", "", "upscaler model name (default "+discovery.DefaultModel+")")
	fs.String("gpu", "", "primary GPU id (default "+discovery.DefaultGPUID+")")
	fs.String("fallback-gpu", "", "fallback device id after a timeout (default "+discovery.DefaultFallbackGPUID+")")
	fs.String("frame-timeout", "", "per-frame timeout on the primary device, e.g. 300s")
	fs.String("fallback-timeout", "", "per-frame timeout on the fallback device, e.g. 600s")
	fs.String("extensions", "", "comma-separated accepted source extensions")
	fs.String("container", "", "final video container (default "+discovery.DefaultContainer+")")
	fs.String("checkpoint-store", "", "checkpoint backend: file|sqlite")
	fs.String("max-failure-ratio", "", "largest share of failed frames still reassembled, 0..1")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	fs.String("log-level", "", "log level: debug|info|warn|error")
	return f
}

func (f *settingsFlags) configPath() string {
	return strings.TrimSpace(*f.config)
}

// resolve layers explicitly set flags over the file and environment.
func (f *settingsFlags) resolve() (discovery.Settings, error) {
	s, err := discovery.LoadSettings(f.configPath())
	if err != nil {
		return discovery.Settings{}, err
	}
	var setErr error
	f.fs.Visit(func(fl *flag.Flag) {
		key, ok := settingsFlagKeys[fl.Name]
		if !ok || setErr != nil {
			return
		}
		if err := discovery.SetSettingValue(&s, key, fl.Value.String()); err != nil {
			setErr = fmt.Errorf("--%s: %w", fl.Name, err)
		}
	})
	if setErr != nil {
		return discovery.Settings{}, setErr
	}
	s = discovery.NormalizeSettings(s)
	if err := s.Validate(); err != nil {
		return discovery.Settings{}, err
	}
	return s, nil
}

func (f *settingsFlags) logger(s discovery.Settings) (*slog.Logger, error) {
	level, err := logging.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, err
	}
	color := !*f.noColor && logging.ColorEnabled(os.Stderr)
	return logging.New(os.Stderr, level, color), nil
}

func (f *settingsFlags) load() (discovery.Settings, *slog.Logger, error) {
	s, err := f.resolve()
	if err != nil {
		return discovery.Settings{}, nil, err
	}
	log, err := f.logger(s)
	if err != nil {
		return discovery.Settings{}, nil, err
	}
	return s, log, nil
}
