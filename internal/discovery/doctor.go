package discovery

import (
	"os"
	"path/filepath"
	"strings"

	"upscale-manager/internal/ffmpeg"
	"upscale-manager/internal/runstore"
	"upscale-manager/internal/upscayl"
)

type DoctorOptions struct {
	Settings   Settings
	ConfigPath string
}

type DoctorResult struct {
	OK     bool          `json:"ok"`
	Checks []DoctorCheck `json:"checks"`
}

type DoctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type InitWorkspaceOptions struct {
	ConfigPath string
}

type InitWorkspaceResult struct {
	InputDir          string       `json:"input_dir"`
	OutputRoot        string       `json:"output_root"`
	ConfigPath        string       `json:"config_path"`
	CreatedInputDir   bool         `json:"created_input_dir"`
	CreatedOutputRoot bool         `json:"created_output_root"`
	CreatedConfig     bool         `json:"created_config"`
	DoctorResult      DoctorResult `json:"doctor"`
}

func Doctor(opts DoctorOptions) (DoctorResult, error) {
	s := NormalizeSettings(opts.Settings)
	configPath := normalizeConfigPath(opts.ConfigPath)

	checks := make([]DoctorCheck, 0, 7)
	media := ffmpeg.DependencyStatus(s.FFmpegBinary, s.FFprobeBinary)
	checks = append(checks, DoctorCheck{
		Name:    "dependency:ffmpeg",
		OK:      media.FFmpegFound,
		Message: dependencyMessage(media.FFmpegFound, media.FFmpegPath, s.FFmpegBinary),
	})
	checks = append(checks, DoctorCheck{
		Name:    "dependency:ffprobe",
		OK:      media.FFprobeFound,
		Message: dependencyMessage(media.FFprobeFound, media.FFprobePath, s.FFprobeBinary),
	})
	up := upscayl.DependencyStatus(s.UpscaylBinary)
	checks = append(checks, DoctorCheck{
		Name:    "dependency:upscayl",
		OK:      up.Found,
		Message: dependencyMessage(up.Found, up.Path, s.UpscaylBinary),
	})
	if s.ModelsPath != "" {
		_, err := os.Stat(s.ModelsPath)
		msg := "found"
		if err != nil {
			msg = err.Error()
		}
		checks = append(checks, DoctorCheck{Name: "directory:models", OK: err == nil, Message: msg})
	}

	for _, d := range []struct {
		name string
		path string
	}{
		{"directory:input", s.InputDir},
		{"directory:output", s.OutputRoot},
		{"directory:processed", runstore.ArchiveDir(s.OutputRoot)},
		{"directory:config", filepath.Dir(configPath)},
	} {
		ok, msg := ensureWritableDir(d.path)
		checks = append(checks, DoctorCheck{Name: d.name, OK: ok, Message: msg})
	}

	ok := true
	for _, c := range checks {
		if !c.OK {
			ok = false
			break
		}
	}
	return DoctorResult{OK: ok, Checks: checks}, nil
}

// Failed lists the names of checks that did not pass.
func (r DoctorResult) Failed() []string {
	var out []string
	for _, c := range r.Checks {
		if !c.OK {
			out = append(out, c.Name)
		}
	}
	return out
}

func InitWorkspace(opts InitWorkspaceOptions) (InitWorkspaceResult, error) {
	configPath := normalizeConfigPath(opts.ConfigPath)
	_, createdConfig, err := EnsureSettingsFile(configPath)
	if err != nil {
		return InitWorkspaceResult{}, err
	}
	s, err := LoadSettings(configPath)
	if err != nil {
		return InitWorkspaceResult{}, err
	}

	createdInput := !runstore.Exists(s.InputDir)
	if err := runstore.Mkdir(s.InputDir); err != nil {
		return InitWorkspaceResult{}, err
	}
	createdOutput := !runstore.Exists(s.OutputRoot)
	if err := runstore.Mkdir(runstore.ArchiveDir(s.OutputRoot)); err != nil {
		return InitWorkspaceResult{}, err
	}

	doc, err := Doctor(DoctorOptions{Settings: s, ConfigPath: configPath})
	if err != nil {
		return InitWorkspaceResult{}, err
	}
	return InitWorkspaceResult{
		InputDir:          s.InputDir,
		OutputRoot:        s.OutputRoot,
		ConfigPath:        configPath,
		CreatedInputDir:   createdInput,
		CreatedOutputRoot: createdOutput,
		CreatedConfig:     createdConfig,
		DoctorResult:      doc,
	}, nil
}

func dependencyMessage(ok bool, path, name string) string {
	if ok {
		return name + " found at " + path
	}
	return name + " not found on PATH"
}

func ensureWritableDir(path string) (bool, string) {
	if strings.TrimSpace(path) == "" {
		return false, "empty path"
	}
	if err := runstore.Mkdir(path); err != nil {
		return false, err.Error()
	}
	f, err := os.CreateTemp(path, "upscale-manager-check-*.tmp")
	if err != nil {
		return false, err.Error()
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return true, "writable"
}
