package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"upscale-manager/internal/discovery"
	"upscale-manager/internal/ffmpeg"
	"upscale-manager/internal/metrics"
	"upscale-manager/internal/pipeline"
	"upscale-manager/internal/runstore"
	"upscale-manager/internal/upscayl"
)

// session holds what a processing command needs for its whole lifetime:
// the output-root lock, the checkpoint store, the metrics listener and the
// driver built on the external tools.
type session struct {
	settings    discovery.Settings
	log         *slog.Logger
	lock        runstore.RunLock
	checkpoints runstore.CheckpointStore
	metrics     *http.Server
	driver      *pipeline.Driver
}

func openSession(ctx context.Context, s discovery.Settings, log *slog.Logger, configPath, command string) (*session, error) {
	doc, err := discovery.Doctor(discovery.DoctorOptions{Settings: s, ConfigPath: configPath})
	if err != nil {
		return nil, err
	}
	if !doc.OK {
		for _, c := range doc.Checks {
			if !c.OK {
				log.Error("startup check failed", "check", c.Name, "detail", c.Message)
			}
		}
		return nil, fmt.Errorf("startup checks failed: %s (run 'upscale-manager doctor')", strings.Join(doc.Failed(), ", "))
	}

	lock, err := runstore.AcquireRunLock(s.OutputRoot, command)
	if err != nil {
		return nil, err
	}
	sess := &session{settings: s, log: log, lock: lock}

	store, err := runstore.OpenCheckpointStore(s.CheckpointStore, s.OutputRoot, log)
	if err != nil {
		sess.Close()
		return nil, err
	}
	sess.checkpoints = store

	if s.MetricsAddr != "" {
		srv, err := metrics.Serve(ctx, s.MetricsAddr, log)
		if err != nil {
			sess.Close()
			return nil, fmt.Errorf("metrics listener: %w", err)
		}
		sess.metrics = srv
	}

	media := ffmpeg.New(ffmpeg.Options{
		Binary:       s.FFmpegBinary,
		ProbeBinary:  s.FFprobeBinary,
		X264Preset:   s.X264Preset,
		AudioBitrate: s.AudioBitrate,
	})
	enhancer := upscayl.New(upscayl.Options{
		Binary:     s.UpscaylBinary,
		ModelsPath: s.ModelsPath,
		Model:      s.Model,
	})
	sess.driver = pipeline.NewDriver(pipeline.Options{
		OutputRoot:      s.OutputRoot,
		Container:       s.Container,
		Executor:        s.ExecutorOptions(),
		MaxFailureRatio: s.MaxFailureRatio,
		Checkpoints:     store,
		Progress:        os.Stdout,
		LiveProgress:    stdoutIsTTY(),
		Logger:          log,
	}, media, enhancer)

	log.Debug("session ready",
		"input", s.InputDir,
		"output", s.OutputRoot,
		"model", s.Model,
		"gpu", s.GPUID,
		"fallback_gpu", s.FallbackGPUID,
		"checkpoint_store", s.CheckpointStore,
	)
	return sess, nil
}

func (sess *session) Close() {
	if sess.metrics != nil {
		_ = sess.metrics.Close()
	}
	if sess.checkpoints != nil {
		if err := sess.checkpoints.Close(); err != nil {
			sess.log.Warn("close checkpoint store", "error", err)
		}
	}
	if err := sess.lock.Release(); err != nil {
		sess.log.Warn("release output root lock", "error", err)
	}
}
