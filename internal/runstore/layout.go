package runstore

import (
	"path/filepath"
	"strings"
)

const (
	ArchiveDirName       = "processed_videos"
	FramesDirName        = "frames"
	UpscaledDirName      = "upscaled"
	InflightDirName      = ".inflight"
	CheckpointFileName   = "progress.txt"
	JobMetaFileName      = "job.json"
	AudioFileName        = "audio.mka"
	LosslessFileName     = "temp_lossless.mkv"
	ConcatListFileName   = "frames.txt"
	CheckpointDBFileName = "checkpoints.db"
)

// JobLayout names every artifact inside one job's working directory.
type JobLayout struct {
	Root      string
	Name      string
	Container string
}

func NewJobLayout(outputRoot, name, container string) JobLayout {
	container = strings.TrimPrefix(strings.TrimSpace(container), ".")
	if container == "" {
		container = "mp4"
	}
	return JobLayout{
		Root:      filepath.Join(outputRoot, name),
		Name:      name,
		Container: container,
	}
}

func (l JobLayout) FramesDir() string        { return filepath.Join(l.Root, FramesDirName) }
func (l JobLayout) PartialFramesDir() string { return filepath.Join(l.Root, FramesDirName+".partial") }
func (l JobLayout) UpscaledDir() string      { return filepath.Join(l.Root, UpscaledDirName) }
func (l JobLayout) InflightDir() string      { return filepath.Join(l.Root, UpscaledDirName, InflightDirName) }
func (l JobLayout) CheckpointPath() string   { return filepath.Join(l.Root, CheckpointFileName) }
func (l JobLayout) AudioPath() string        { return filepath.Join(l.Root, AudioFileName) }
func (l JobLayout) PartialAudioPath() string { return filepath.Join(l.Root, "audio.partial.mka") }
func (l JobLayout) LosslessPath() string     { return filepath.Join(l.Root, LosslessFileName) }
func (l JobLayout) ConcatListPath() string   { return filepath.Join(l.Root, ConcatListFileName) }

func (l JobLayout) FinalPath() string {
	return filepath.Join(l.Root, l.Name+"_upscaled."+l.Container)
}

func (l JobLayout) PartialFinalPath() string {
	return filepath.Join(l.Root, l.Name+"_upscaled.partial."+l.Container)
}

func ArchiveDir(outputRoot string) string {
	return filepath.Join(outputRoot, ArchiveDirName)
}

// JobName derives the job key from a source file name.
func JobName(sourcePath string) string {
	base := filepath.Base(sourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
