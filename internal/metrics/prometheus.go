package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upscale_frames_total",
		Help: "Frame attempts by outcome (success, tool_failure, timeout, skipped)",
	}, []string{"outcome"})

	FrameDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "upscale_frame_duration_seconds",
		Help:    "Wall-clock time of non-skipped frame attempts, fallback included",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 900},
	})

	FallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upscale_fallbacks_total",
		Help: "Frames retried on the CPU after a primary timeout",
	})

	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upscale_jobs_total",
		Help: "Finished job runs by result (done, failed, failed_permanent, interrupted)",
	}, []string{"result"})

	JobETA = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "upscale_job_eta_seconds",
		Help: "Projected remaining enhancement time of the active job",
	}, []string{"job"})

	JobCheckpoint = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "upscale_job_checkpoint",
		Help: "Last persisted next-frame index of the active job",
	}, []string{"job"})

	StageTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upscale_stage_transitions_total",
		Help: "Job stage transitions by target stage",
	}, []string{"stage"})
)

// ForgetJob drops the per-job series once a job leaves the driver.
func ForgetJob(job string) {
	JobETA.DeleteLabelValues(job)
	JobCheckpoint.DeleteLabelValues(job)
}
