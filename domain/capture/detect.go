package capture

import (
	"errors"
	"image"

	"github.com/soocke/pixel-auto/config"
)

// ErrNoImage is returned by Detect when the frame or template is missing.
var ErrNoImage = errors.New("capture: frame and template are required")

// OptionsFromConfig maps the match section of the configuration onto
// matcher options. The per-search threshold is supplied by the caller.
func OptionsFromConfig(cfg config.MatchConfig) MultiScaleOptions {
	return MultiScaleOptions{
		MinScale:    cfg.MinScale,
		MaxScale:    cfg.MaxScale,
		ScaleStep:   cfg.ScaleStep,
		StopOnScore: cfg.StopOnScore,
		NCC: NCCOptions{
			Threshold: cfg.Confidence,
			Stride:    cfg.Stride,
			Refine:    cfg.Refine,
		},
	}
}

// Detect runs a multi-scale NCC search for tmpl inside frame using opts with
// its threshold replaced by threshold. Template pixels under half opacity
// are masked out of the score.
func Detect(frame *image.RGBA, tmpl image.Image, threshold float64, opts MultiScaleOptions) (MultiScaleResult, error) {
	if frame == nil || tmpl == nil {
		return MultiScaleResult{Score: -1}, ErrNoImage
	}
	opts.NCC.Threshold = threshold
	return MultiScaleMatch(frame, tmpl, opts), nil
}
