package progress

import (
	"fmt"
	"time"
)

const (
	// SampleInterval is the minimum spacing between estimator samples.
	SampleInterval = 250 * time.Millisecond
	// baselineTTL bounds how long one reference point is used for the rate.
	baselineTTL = 120 * time.Second
	// minRate substitutes a zero or negative rate (percent per second).
	minRate = 1e-10
)

// Estimator derives a remaining-time figure from overall progress samples.
// It is not safe for concurrent use; the pipeline event loop owns it.
type Estimator struct {
	now func() time.Time

	baseAt      time.Time
	basePercent float64
	lastSample  time.Time
	lastETA     time.Duration
}

// NewEstimator starts the rolling baseline at the current time and 0%.
func NewEstimator(now func() time.Time) *Estimator {
	if now == nil {
		now = time.Now
	}
	t := now()
	return &Estimator{now: now, baseAt: t, lastETA: -1}
}

// Observe records percent and returns the current ETA. Samples closer than
// SampleInterval to the previous one return the previous ETA and ok=false.
func (e *Estimator) Observe(percent float64) (eta time.Duration, ok bool) {
	t := e.now()
	if !e.lastSample.IsZero() && t.Sub(e.lastSample) < SampleInterval {
		return e.lastETA, false
	}
	e.lastSample = t

	elapsed := t.Sub(e.baseAt).Seconds()
	rate := minRate
	if elapsed > 0 {
		if r := (percent - e.basePercent) / elapsed; r > minRate {
			rate = r
		}
	}
	remaining := 100 - percent
	if remaining < 0 {
		remaining = 0
	}
	secs := remaining / rate
	if secs > maxETA.Seconds() {
		e.lastETA = maxETA
	} else {
		e.lastETA = time.Duration(secs * float64(time.Second))
	}

	if t.Sub(e.baseAt) > baselineTTL {
		e.baseAt = t
		e.basePercent = percent
	}
	return e.lastETA, true
}

// maxETA is the largest value FormatETA can show.
const maxETA = 99*time.Minute + 59*time.Second

// FormatETA renders d as mm:ss, or --:-- when unknown.
func FormatETA(d time.Duration) string {
	if d < 0 {
		return "--:--"
	}
	if d > maxETA {
		d = maxETA
	}
	s := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
