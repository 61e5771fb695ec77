package pipeline

import (
	"fmt"
	"sort"
	"time"
)

const defaultEstimatorWindow = 10

// Estimator projects remaining time from the median of the most recent
// frame durations. One slow fallback frame moves the mean a lot and the
// median barely at all.
type Estimator struct {
	window  []time.Duration
	size    int
	started time.Time
	now     func() time.Time
}

func NewEstimator(size int, now func() time.Time) *Estimator {
	if size <= 0 {
		size = defaultEstimatorWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Estimator{
		window:  make([]time.Duration, 0, size),
		size:    size,
		started: now(),
		now:     now,
	}
}

func (e *Estimator) Record(d time.Duration) {
	if len(e.window) == e.size {
		copy(e.window, e.window[1:])
		e.window = e.window[:e.size-1]
	}
	e.window = append(e.window, d)
}

func (e *Estimator) Samples() int {
	return len(e.window)
}

func (e *Estimator) Median() time.Duration {
	n := len(e.window)
	if n == 0 {
		return 0
	}
	sorted := make([]time.Duration, n)
	copy(sorted, e.window)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func (e *Estimator) Remaining(units int) time.Duration {
	if units <= 0 {
		return 0
	}
	return e.Median() * time.Duration(units)
}

func (e *Estimator) Elapsed() time.Duration {
	return e.now().Sub(e.started)
}

// FormatClock renders mm:ss below an hour and hh:mm:ss from there on.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d.Round(time.Second) / time.Second)
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
