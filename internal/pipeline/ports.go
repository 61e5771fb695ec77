package pipeline

import (
	"context"

	"upscale-manager/internal/upscayl"
)

// Enhancer runs the image-enhancement tool on one frame.
type Enhancer interface {
	Enhance(ctx context.Context, req upscayl.Request) error
}

// Media covers the ffmpeg work around the frame loop.
type Media interface {
	ExtractFrames(ctx context.Context, src, dir, template string) error
	ExtractAudio(ctx context.Context, src, dst string) error
	ProbeFrameRate(ctx context.Context, src string) (string, error)
	EncodeLossless(ctx context.Context, listPath, frameRate, dst string) error
	Mux(ctx context.Context, video, audio, dst string) error
}
