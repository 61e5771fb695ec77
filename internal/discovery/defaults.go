package discovery

import (
	"time"

	"upscale-manager/internal/runstore"
	"upscale-manager/internal/upscayl"
)

const (
	DefaultSettingsConfigPath = "config/settings.json"
	DefaultInputDir           = "input_videos"
	DefaultOutputRoot         = "results"
	DefaultContainer          = "mp4"
	DefaultPollBusy           = 5 * time.Second
	DefaultPollIdle           = 10 * time.Second
	DefaultFailureCooldown    = 60 * time.Second
	DefaultMaxFailureRatio    = 1.0
	DefaultCheckpointStore    = runstore.CheckpointStoreFile
	DefaultFFmpegBinary       = "ffmpeg"
	DefaultFFprobeBinary      = "ffprobe"
	DefaultX264Preset         = "veryslow"
	DefaultAudioBitrate       = "192k"

	DefaultUpscaylBinary   = upscayl.DefaultBinary
	DefaultModel           = upscayl.DefaultModel
	DefaultGPUID           = upscayl.DefaultDevice
	DefaultFallbackGPUID   = upscayl.CPUDevice
	DefaultFrameTimeout    = upscayl.DefaultTimeout
	DefaultFallbackTimeout = upscayl.DefaultCPUTimeout
)

// DefaultExtensions are the source containers picked up from the input dir.
var DefaultExtensions = []string{"mp4", "mkv", "mov", "avi", "webm", "m4v"}
