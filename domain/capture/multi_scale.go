package capture

import (
	"image"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// MultiScaleOptions configures multi-scale template matching.
// Scales: explicit factors to try. If empty, factors are generated from
// MinScale..MaxScale using ScaleStep, or 1.0 alone when that range is unset.
// StopOnScore disables when set to 0; it is never applied below NCC.Threshold.
type MultiScaleOptions struct {
	Scales      []float64
	NCC         NCCOptions
	StopOnScore float64
	MinScale    float64
	MaxScale    float64
	ScaleStep   float64
	Workers     int // defaults to runtime.NumCPU()
}

// MultiScaleResult is the best match found across scales. W and H are the
// dimensions of the template at the winning scale.
type MultiScaleResult struct {
	X, Y            int
	W, H            int
	Score           float64
	Scale           float64
	Found           bool
	Duration        time.Duration
	ScalesEvaluated int
}

// Rect returns the matched window in frame coordinates.
func (r MultiScaleResult) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// scaleFactors expands opts into the list of factors to evaluate.
func scaleFactors(opts MultiScaleOptions) []float64 {
	if len(opts.Scales) > 0 {
		return opts.Scales
	}
	if opts.MinScale <= 0 || opts.MaxScale <= 0 || opts.ScaleStep <= 0 || opts.MaxScale < opts.MinScale {
		return []float64{1.0}
	}
	maxSteps := min(1+int((opts.MaxScale-opts.MinScale)/opts.ScaleStep+0.5), 200)
	scales := make([]float64, 0, maxSteps)
	for s := opts.MinScale; s <= opts.MaxScale+1e-9 && len(scales) < maxSteps; s += opts.ScaleStep {
		scales = append(scales, s)
	}
	return scales
}

// MultiScaleMatch evaluates the template at each scale factor with a bounded
// number of workers and returns the best match. All workers have exited when
// it returns.
func MultiScaleMatch(frame *image.RGBA, tmpl image.Image, opts MultiScaleOptions) MultiScaleResult {
	if frame == nil || tmpl == nil {
		return MultiScaleResult{Score: -1}
	}
	pre := buildGrayPrecomp(frame)
	base := newTemplatePrecomp(tmpl)
	if base == nil {
		return MultiScaleResult{Score: -1}
	}
	origin := frame.Bounds().Min

	stopAt := opts.StopOnScore
	if stopAt > 0 && stopAt < opts.NCC.Threshold {
		stopAt = opts.NCC.Threshold
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var (
		mu        sync.Mutex
		best      = MultiScaleResult{Score: -1}
		earlyStop atomic.Bool
		totalDur  atomic.Int64
		evaluated atomic.Int64
	)
	var g errgroup.Group
	g.SetLimit(workers)
	for _, factor := range scaleFactors(opts) {
		if factor <= 0 {
			continue
		}
		factor := factor
		g.Go(func() error {
			if earlyStop.Load() {
				return nil
			}
			pc := scaledTemplatePrecomp(tmpl, base, factor)
			if pc == nil {
				return nil
			}
			res := matchPrecomp(pre, pc, opts.NCC, origin)
			evaluated.Add(1)
			if opts.NCC.DebugTiming {
				totalDur.Add(res.Dur.Nanoseconds())
			}
			mu.Lock()
			if res.Score > best.Score {
				best = MultiScaleResult{X: res.X, Y: res.Y, W: res.W, H: res.H, Score: res.Score, Scale: factor, Found: res.Found}
			}
			mu.Unlock()
			if stopAt > 0 && res.Score >= stopAt {
				earlyStop.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()

	best.Duration = time.Duration(totalDur.Load())
	best.ScalesEvaluated = int(evaluated.Load())
	return best
}
