package capture

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/soocke/pixel-auto/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// blobs renders two soft spots on a faint ramp.
func blobs(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	fw, fh := float64(w), float64(h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fx, fy := float64(x), float64(y)
			a := math.Exp(-((fx-0.3*fw)*(fx-0.3*fw) + (fy-0.4*fh)*(fy-0.4*fh)) / (0.02 * fw * fw))
			b := math.Exp(-((fx-0.75*fw)*(fx-0.75*fw) + (fy-0.7*fh)*(fy-0.7*fh)) / (0.01 * fw * fw))
			v := 30 + 0.5*fx + 160*a + 60*b
			g := uint8(math.Min(255, v))
			img.SetNRGBA(x, y, color.NRGBA{R: g, G: g, B: g, A: 255})
		}
	}
	return img
}

func whiteFrame(w, h int) *image.RGBA {
	f := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(f, f.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return f
}

func paste(dst *image.RGBA, src image.Image, at image.Point) {
	b := src.Bounds()
	draw.Draw(dst, image.Rectangle{Min: at, Max: at.Add(b.Size())}, src, b.Min, draw.Over)
}

func TestMatchTemplateNCC_ExactHit(t *testing.T) {
	tmpl := blobs(32, 24)
	frame := whiteFrame(160, 120)
	paste(frame, tmpl, image.Pt(37, 51))

	res := MatchTemplateNCC(frame, tmpl, NCCOptions{Threshold: 0.95, Stride: 1})
	require.True(t, res.Found)
	assert.Equal(t, 37, res.X)
	assert.Equal(t, 51, res.Y)
	assert.Equal(t, 32, res.W)
	assert.InDelta(t, 1.0, res.Score, 1e-4)
}

func TestMatchTemplateNCC_StrideWithRefine(t *testing.T) {
	tmpl := blobs(32, 24)
	frame := whiteFrame(160, 120)
	paste(frame, tmpl, image.Pt(37, 51))

	res := MatchTemplateNCC(frame, tmpl, NCCOptions{Threshold: 0.95, Stride: 3, Refine: true, DebugTiming: true})
	require.True(t, res.Found)
	assert.Equal(t, image.Pt(37, 51), image.Pt(res.X, res.Y))
	assert.Positive(t, res.Dur)
}

func TestMatchTemplateNCC_BelowThreshold(t *testing.T) {
	tmpl := blobs(32, 24)
	frame := whiteFrame(160, 120)
	paste(frame, imaging.FlipH(tmpl), image.Pt(10, 10))

	res := MatchTemplateNCC(frame, tmpl, NCCOptions{Threshold: 0.99, Stride: 1})
	assert.False(t, res.Found)
	assert.Less(t, res.Score, 0.99)
	assert.Zero(t, res.X)

	res = MatchTemplateNCC(frame, tmpl, NCCOptions{Threshold: 0.99, Stride: 1, ReturnBestEven: true})
	assert.False(t, res.Found)
	assert.NotZero(t, res.X+res.Y)
}

func TestMatchTemplateNCC_UniformTemplate(t *testing.T) {
	frame := whiteFrame(50, 40)
	patch := image.NewUniform(color.RGBA{R: 200, G: 10, B: 10, A: 255})
	draw.Draw(frame, image.Rect(20, 15, 28, 21), patch, image.Point{}, draw.Src)
	tmpl := imaging.New(8, 6, color.RGBA{R: 200, G: 10, B: 10, A: 255})

	res := MatchTemplateNCC(frame, tmpl, NCCOptions{Threshold: 0.9})
	require.True(t, res.Found)
	assert.Equal(t, image.Pt(20, 15), image.Pt(res.X, res.Y))

	blank := whiteFrame(50, 40)
	assert.False(t, MatchTemplateNCC(blank, tmpl, NCCOptions{Threshold: 0.9}).Found)
}

// framed wraps src in a transparent border of the given width.
func framed(src image.Image, border int) *image.NRGBA {
	b := src.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx()+2*border, b.Dy()+2*border))
	draw.Draw(out, b.Sub(b.Min).Add(image.Pt(border, border)), src, b.Min, draw.Src)
	return out
}

func TestMatchTemplateNCC_TransparentBorderIgnored(t *testing.T) {
	tmpl := framed(blobs(28, 20), 6)
	frame := whiteFrame(200, 150)
	paste(frame, tmpl, image.Pt(70, 50))

	res, err := Detect(frame, tmpl, 0.9, MultiScaleOptions{NCC: NCCOptions{Stride: 1}})
	require.NoError(t, err)
	require.True(t, res.Found, "score %.4f", res.Score)
	assert.Equal(t, image.Rect(70, 50, 110, 82), res.Rect())
	assert.InDelta(t, 1.0, res.Score, 1e-4)

	// The border pixels must not matter: a black surround still matches.
	dark := image.NewRGBA(image.Rect(0, 0, 200, 150))
	draw.Draw(dark, dark.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	paste(dark, tmpl, image.Pt(20, 30))
	res, err = Detect(dark, tmpl, 0.9, MultiScaleOptions{Scales: []float64{0.9, 1.0, 1.1}, Workers: 2, NCC: NCCOptions{Stride: 1}})
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, 1.0, res.Scale)
	assert.Equal(t, image.Pt(20, 30), image.Pt(res.X, res.Y))
}

func TestMatchTemplateNCC_MaskedUniformTemplate(t *testing.T) {
	red := color.RGBA{R: 200, G: 10, B: 10, A: 255}
	tmpl := framed(imaging.New(8, 6, red), 3)
	frame := blobsFrame(90, 70)
	draw.Draw(frame, image.Rect(40, 30, 48, 36), image.NewUniform(red), image.Point{}, draw.Src)

	res := MatchTemplateNCC(frame, tmpl, NCCOptions{Threshold: 0.9})
	require.True(t, res.Found)
	assert.Equal(t, image.Pt(37, 27), image.Pt(res.X, res.Y))
	assert.Equal(t, 14, res.W)
}

func TestMatchTemplateNCC_FullyTransparentTemplate(t *testing.T) {
	tmpl := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	res := MatchTemplateNCC(whiteFrame(50, 50), tmpl, NCCOptions{Threshold: 0.1})
	assert.False(t, res.Found)
	assert.Equal(t, -1.0, res.Score)
}

// blobsFrame returns blobs(w, h) as an RGBA frame.
func blobsFrame(w, h int) *image.RGBA {
	f := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(f, f.Bounds(), blobs(w, h), image.Point{}, draw.Src)
	return f
}

func TestMatchTemplateNCC_TemplateLargerThanFrame(t *testing.T) {
	res := MatchTemplateNCC(whiteFrame(10, 10), blobs(20, 20), NCCOptions{Threshold: 0.5})
	assert.False(t, res.Found)
	assert.Equal(t, -1.0, res.Score)
}

func TestMatchTemplateNCC_FrameOrigin(t *testing.T) {
	tmpl := blobs(16, 12)
	full := whiteFrame(100, 80)
	paste(full, tmpl, image.Pt(60, 40))
	sub := full.SubImage(image.Rect(50, 30, 100, 80)).(*image.RGBA)

	res := MatchTemplateNCC(sub, tmpl, NCCOptions{Threshold: 0.95, Stride: 1})
	require.True(t, res.Found)
	assert.Equal(t, image.Pt(60, 40), image.Pt(res.X, res.Y))
}

func TestScaleFactors(t *testing.T) {
	assert.Equal(t, []float64{1.0}, scaleFactors(MultiScaleOptions{}))
	assert.Equal(t, []float64{0.5, 2}, scaleFactors(MultiScaleOptions{Scales: []float64{0.5, 2}}))
	got := scaleFactors(MultiScaleOptions{MinScale: 0.8, MaxScale: 1.2, ScaleStep: 0.1})
	require.Len(t, got, 5)
	assert.InDelta(t, 0.8, got[0], 1e-9)
	assert.InDelta(t, 1.2, got[4], 1e-9)
	assert.Equal(t, []float64{1.0}, scaleFactors(MultiScaleOptions{MinScale: 2, MaxScale: 1, ScaleStep: 0.1}))
}

func TestMultiScaleMatch_FindsResizedTemplate(t *testing.T) {
	tmpl := blobs(40, 30)
	frame := whiteFrame(200, 150)
	paste(frame, imaging.Resize(tmpl, 48, 36, imaging.Linear), image.Pt(50, 40))

	res := MultiScaleMatch(frame, tmpl, MultiScaleOptions{
		MinScale: 0.8, MaxScale: 1.4, ScaleStep: 0.1, Workers: 3,
		NCC: NCCOptions{Threshold: 0.8, Stride: 1},
	})
	require.True(t, res.Found)
	assert.InDelta(t, 1.2, res.Scale, 0.11)
	assert.InDelta(t, 50, res.X, 3)
	assert.InDelta(t, 40, res.Y, 3)
	assert.Equal(t, 7, res.ScalesEvaluated)
	assert.Equal(t, image.Rect(res.X, res.Y, res.X+res.W, res.Y+res.H), res.Rect())
}

func TestMultiScaleMatch_EarlyStopNeverBelowThreshold(t *testing.T) {
	tmpl := blobs(24, 18)
	frame := whiteFrame(120, 90)
	paste(frame, tmpl, image.Pt(30, 20))
	// Damage the copy so the best score sits between the two thresholds.
	draw.Draw(frame, image.Rect(30, 20, 38, 26), image.NewUniform(color.Black), image.Point{}, draw.Src)

	base := MultiScaleOptions{Scales: []float64{1.0, 0.9, 1.1}, StopOnScore: 0.1, Workers: 1, NCC: NCCOptions{Stride: 1}}
	var found []bool
	for _, th := range []float64{0.999, 0.9, 0.7, 0.5, 0.3} {
		opts := base
		opts.NCC.Threshold = th
		res := MultiScaleMatch(frame, tmpl, opts)
		if res.Found {
			assert.GreaterOrEqual(t, res.Score, th)
		}
		found = append(found, res.Found)
	}
	first := -1
	for i, f := range found {
		if f && first < 0 {
			first = i
		}
		if first >= 0 {
			assert.True(t, f, "threshold index %d lost a match found at index %d", i, first)
		}
	}
	assert.GreaterOrEqual(t, first, 0)
}

func TestDetect(t *testing.T) {
	_, err := Detect(nil, blobs(4, 4), 0.9, MultiScaleOptions{})
	require.ErrorIs(t, err, ErrNoImage)

	opts := OptionsFromConfig(config.DefaultConfig().Match)
	assert.Equal(t, 0.99, opts.StopOnScore)
	assert.Equal(t, 2, opts.NCC.Stride)

	tmpl := blobs(20, 16)
	frame := whiteFrame(90, 70)
	paste(frame, tmpl, image.Pt(40, 30))
	res, err := Detect(frame, tmpl, 0.9, opts)
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, image.Rect(40, 30, 60, 46), res.Rect())
}
