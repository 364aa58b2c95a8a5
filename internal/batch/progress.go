package batch

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/clipforge/internal/clip"
	"github.com/roach88/clipforge/internal/plan"
)

// Estimator is the rough per-job time model behind simulated progress:
// a base constant scaled by media kind, plus rendering time proportional
// to the output's length.
type Estimator struct {
	Base            time.Duration
	ImageFactor     float64
	VideoFactor     float64
	ImageSeconds    float64
	VideoMinSeconds float64
	VideoMaxSeconds float64
	// RenderPerSecond is rendering time per second of output.
	RenderPerSecond time.Duration
	// Cap is the highest simulated percentage before the real result lands.
	Cap float64
}

// DefaultEstimator is used when no estimate settings are configured.
var DefaultEstimator = Estimator{
	Base:            20 * time.Second,
	ImageFactor:     1.0,
	VideoFactor:     1.5,
	ImageSeconds:    3,
	VideoMinSeconds: 5,
	VideoMaxSeconds: 15,
	RenderPerSecond: time.Second,
	Cap:             95,
}

// ClipSeconds is the expected on-screen length of one clip.
func (e Estimator) ClipSeconds(c clip.ClipRef) float64 {
	if c.Kind != clip.KindVideo {
		return e.ImageSeconds
	}
	if c.DurationSeconds != nil {
		return min(max(*c.DurationSeconds, e.VideoMinSeconds), e.VideoMaxSeconds)
	}
	return (e.VideoMinSeconds + e.VideoMaxSeconds) / 2
}

// Estimate returns the expected render time of job.
func (e Estimator) Estimate(job plan.Job) time.Duration {
	factor := e.ImageFactor
	var seconds float64
	for _, m := range job.Media {
		if m.Kind == clip.KindVideo {
			factor = e.VideoFactor
		}
		seconds += e.ClipSeconds(m)
	}
	if factor <= 0 {
		factor = 1
	}
	return time.Duration(float64(e.Base)*factor) + time.Duration(seconds*float64(e.RenderPerSecond))
}

// Percent maps elapsed time onto a simulated percentage that grows with
// elapsed and never exceeds Cap.
func (e Estimator) Percent(elapsed, estimate time.Duration) float64 {
	limit := e.Cap
	if limit <= 0 || limit >= 100 {
		limit = DefaultEstimator.Cap
	}
	if estimate <= 0 || elapsed <= 0 {
		return 0
	}
	p := 100 * float64(elapsed) / float64(estimate)
	return min(p, limit)
}

// Ticker delivers periodic ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker with the given period.
type TickerFunc func(d time.Duration) Ticker

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

// NewTicker wraps time.NewTicker.
func NewTicker(d time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(d)}
}

// simulation runs the simulated progress of one job. Stop cancels it and
// waits for the ticking goroutine to exit, so no progress is reported for
// the job after Stop returns.
type simulation struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func startSimulation(ctx context.Context, ticker Ticker, est Estimator, estimate time.Duration, start time.Time, now func() time.Time, report func(float64)) *simulation {
	ctx, cancel := context.WithCancel(ctx)
	s := &simulation{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		defer ticker.Stop()
		last := -1.0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				p := est.Percent(now().Sub(start), estimate)
				if p > last {
					last = p
					report(p)
				}
			}
		}
	}()
	return s
}

func (s *simulation) Stop() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}
