package capture

import (
	"image"
	"math"
	"time"

	"github.com/disintegration/imaging"
)

// grayPrecomp stores per-frame grayscale values and their summed-area tables
// (integral images). The integrals allow O(1) window sum and variance queries.
type grayPrecomp struct {
	gray       []float64 // per pixel grayscale (length W*H)
	integral   []float64 // summed-area table of grayscale
	integralSq []float64 // summed-area table of grayscale squared
	W, H       int
}

// templatePrecomp holds grayscale pixels and summary statistics for a
// template (or a scaled version of it). Statistics cover opaque pixels only.
type templatePrecomp struct {
	gray   []float32
	mask   []bool // nil when every pixel is opaque
	W, H   int
	n      float64 // opaque pixel count
	anchor int     // index of the first opaque pixel
	meanT  float64
	stdT   float64
}

// NCCOptions configures normalized cross-correlation template matching.
type NCCOptions struct {
	Threshold      float64 // Minimum NCC score for a positive match
	Stride         int     // Coarse stride for scanning (default 1)
	Refine         bool    // If true and Stride>1, do a refinement pass around best window
	ReturnBestEven bool    // If true, best coordinates are returned even if below threshold
	DebugTiming    bool    // If true, measure elapsed time
}

// NCCResult holds the outcome of a single-scale template match. X and Y are
// the top-left corner of the best window, W and H its size.
type NCCResult struct {
	X, Y  int
	W, H  int
	Score float64
	Found bool
	Dur   time.Duration // Only set if DebugTiming
}

// Window and template variances at or below minVariance are treated as
// flat. Gray values are on the 0..255 scale.
const minVariance = 1e-3

// luma returns the Rec. 709 weighted grayscale of 8-bit channel values.
func luma(r, g, b float64) float64 {
	return 0.2126*r + 0.7152*g + 0.0722*b
}

// minOpaque is the alpha (16-bit) below which a template pixel is masked out.
const minOpaque = 0x8000

// newTemplatePrecomp builds grayscale statistics for tmpl. Pixels under half
// opacity are masked out of the score. It returns nil for an empty or fully
// transparent template.
func newTemplatePrecomp(tmpl image.Image) *templatePrecomp {
	if tmpl == nil {
		return nil
	}
	b := tmpl.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}
	gray := make([]float32, w*h)
	mask := make([]bool, w*h)
	opaque := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bb, a := tmpl.At(b.Min.X+x, b.Min.Y+y).RGBA()
			if a < minOpaque {
				continue
			}
			// RGBA() is premultiplied; recover the straight color.
			k := float64(a) / 0x101 / 0xff
			gray[y*w+x] = float32(luma(float64(r)/0x101/k, float64(g)/0x101/k, float64(bb)/0x101/k))
			mask[y*w+x] = true
			opaque++
		}
	}
	if opaque == 0 {
		return nil
	}
	if opaque == w*h {
		mask = nil
	}
	return finishPrecomp(gray, mask, w, h)
}

func finishPrecomp(gray []float32, mask []bool, w, h int) *templatePrecomp {
	pc := &templatePrecomp{gray: gray, mask: mask, W: w, H: h, anchor: -1}
	var sumT float64
	for i, v := range gray {
		if !pc.opaque(i) {
			continue
		}
		if pc.anchor < 0 {
			pc.anchor = i
		}
		sumT += float64(v)
		pc.n++
	}
	pc.meanT = sumT / pc.n
	var dev2 float64
	for i, v := range gray {
		if !pc.opaque(i) {
			continue
		}
		d := float64(v) - pc.meanT
		dev2 += d * d
	}
	if varT := dev2 / pc.n; varT > minVariance {
		pc.stdT = math.Sqrt(varT)
	}
	return pc
}

// scaledTemplatePrecomp resamples tmpl by factor and rebuilds its statistics.
// base is the unscaled precomputation of tmpl. Factors producing a template
// smaller than 2x2 return nil.
func scaledTemplatePrecomp(tmpl image.Image, base *templatePrecomp, factor float64) *templatePrecomp {
	if base == nil || factor <= 0 {
		return nil
	}
	if factor == 1.0 {
		return base
	}
	w := int(float64(base.W) * factor)
	h := int(float64(base.H) * factor)
	if w < 2 || h < 2 {
		return nil
	}
	return newTemplatePrecomp(imaging.Resize(tmpl, w, h, imaging.Linear))
}

// opaque reports whether template pixel i takes part in the score.
func (pc *templatePrecomp) opaque(i int) bool {
	return pc.mask == nil || pc.mask[i]
}

// windowScore returns the NCC score of pc placed at (x, y), or ok=false when
// the frame window has no variance. Masked template pixels are left out of
// both the template and the window statistics.
func windowScore(pre *grayPrecomp, pc *templatePrecomp, x, y int) (float64, bool) {
	w, h := pc.W, pc.H
	n := pc.n
	var sumF, sumF2, sumFT float64
	if pc.mask == nil {
		sumF = integralSum(pre.integral, pre.W, x, y, x+w-1, y+h-1)
		sumF2 = integralSum(pre.integralSq, pre.W, x, y, x+w-1, y+h-1)
		if (sumF2-sumF*sumF/n)/n <= minVariance {
			return 0, false
		}
	}
	for py := 0; py < h; py++ {
		row := pre.gray[(y+py)*pre.W+x : (y+py)*pre.W+x+w]
		trow := pc.gray[py*w : py*w+w]
		if pc.mask == nil {
			for px := range trow {
				sumFT += row[px] * float64(trow[px])
			}
			continue
		}
		for px, on := range pc.mask[py*w : py*w+w] {
			if !on {
				continue
			}
			f := row[px]
			sumF += f
			sumF2 += f * f
			sumFT += f * float64(trow[px])
		}
	}
	meanF := sumF / n
	varF := (sumF2 - sumF*sumF/n) / n
	if varF <= minVariance {
		return 0, false
	}
	denom := n * math.Sqrt(varF) * pc.stdT
	if denom <= 0 {
		return 0, false
	}
	score := (sumFT - n*meanF*pc.meanT) / denom
	return min(max(score, -1), 1), true
}

// matchPrecomp computes NCC between a templatePrecomp and a frame represented
// by grayPrecomp. Coordinates in the result are relative to origin.
func matchPrecomp(pre *grayPrecomp, pc *templatePrecomp, opts NCCOptions, origin image.Point) (res NCCResult) {
	start := time.Now()
	res = NCCResult{Score: -1}
	if pre == nil || pc == nil {
		return res
	}
	W, H := pre.W, pre.H
	w, h := pc.W, pc.H
	res.W, res.H = w, h
	if w == 0 || h == 0 || W < w || H < h {
		return res
	}
	stride := opts.Stride
	if stride <= 0 {
		stride = 1
	}
	defer func() {
		if opts.DebugTiming {
			res.Dur = time.Since(start)
		}
	}()

	// Zero-variance template: NCC is undefined, fall back to an exact scan.
	if pc.stdT == 0 {
		ref := float64(pc.gray[pc.anchor])
		ax, ay := pc.anchor%w, pc.anchor/w
		for y := 0; y <= H-h; y++ {
			for x := 0; x <= W-w; x++ {
				if math.Abs(pre.gray[(y+ay)*W+x+ax]-ref) > uniformTolerance {
					continue
				}
				if uniformWindow(pre, pc, x, y, ref) {
					res.X, res.Y = x+origin.X, y+origin.Y
					res.Score = 1
					res.Found = true
					return res
				}
			}
		}
		return res
	}

	bestX, bestY, bestScore := 0, 0, -1.0
	for y := 0; y <= H-h; y += stride {
		for x := 0; x <= W-w; x += stride {
			if score, ok := windowScore(pre, pc, x, y); ok && score > bestScore {
				bestScore, bestX, bestY = score, x, y
			}
		}
	}
	if opts.Refine && stride > 1 && bestScore > -1 {
		minY := max(0, bestY-stride)
		maxY := min(H-h, bestY+stride)
		minX := max(0, bestX-stride)
		maxX := min(W-w, bestX+stride)
		for y := minY; y <= maxY; y++ {
			for x := minX; x <= maxX; x++ {
				if score, ok := windowScore(pre, pc, x, y); ok && score > bestScore {
					bestScore, bestX, bestY = score, x, y
				}
			}
		}
	}
	res.Score = bestScore
	res.Found = bestScore > -1 && bestScore >= opts.Threshold
	if res.Found || opts.ReturnBestEven {
		res.X, res.Y = bestX+origin.X, bestY+origin.Y
	}
	return res
}

// uniformTolerance absorbs float32 rounding of template gray values while
// staying below the smallest one-level intensity step (0.0722).
const uniformTolerance = 0.01

func uniformWindow(pre *grayPrecomp, pc *templatePrecomp, x, y int, ref float64) bool {
	w := pc.W
	for py := 0; py < pc.H; py++ {
		row := pre.gray[(y+py)*pre.W+x : (y+py)*pre.W+x+w]
		for px, v := range row {
			if !pc.opaque(py*w+px) {
				continue
			}
			if math.Abs(v-ref) > uniformTolerance {
				return false
			}
		}
	}
	return true
}

// buildGrayPrecomp computes per-pixel grayscale values and their summed-area
// tables for a frame. Alpha==0 pixels contribute zero.
func buildGrayPrecomp(frame *image.RGBA) *grayPrecomp {
	if frame == nil {
		return nil
	}
	b := frame.Bounds()
	W, H := b.Dx(), b.Dy()
	need := W * H
	p := &grayPrecomp{
		gray:       make([]float64, need),
		integral:   make([]float64, need),
		integralSq: make([]float64, need),
		W:          W,
		H:          H,
	}
	for y := 0; y < H; y++ {
		var rowSum, rowSum2 float64
		pix := frame.Pix[y*frame.Stride : y*frame.Stride+W*4]
		for x := 0; x < W; x++ {
			px := pix[x*4 : x*4+4 : x*4+4]
			var gray float64
			if px[3] != 0 {
				gray = luma(float64(px[0]), float64(px[1]), float64(px[2]))
			}
			off := y*W + x
			p.gray[off] = gray
			rowSum += gray
			rowSum2 += gray * gray
			if y == 0 {
				p.integral[off] = rowSum
				p.integralSq[off] = rowSum2
			} else {
				p.integral[off] = p.integral[off-W] + rowSum
				p.integralSq[off] = p.integralSq[off-W] + rowSum2
			}
		}
	}
	return p
}

// integralSum returns the inclusive sum over rectangle [x0..x1] x [y0..y1]
// from an integral image stored in row-major order with width W.
func integralSum(I []float64, W int, x0, y0, x1, y1 int) float64 {
	if x0 > x1 || y0 > y1 {
		return 0
	}
	A := func(x, y int) float64 {
		if x < 0 || y < 0 {
			return 0
		}
		return I[y*W+x]
	}
	return A(x1, y1) - A(x0-1, y1) - A(x1, y0-1) + A(x0-1, y0-1)
}

// MatchTemplateNCC performs masked NCC on RGBA images at a single scale.
// Template pixels under half opacity are ignored, so a template with a
// transparent border matches its visible pixels wherever they appear. Frame
// alpha==0 pixels count as black. It returns the best match according to
// Threshold and Stride options.
func MatchTemplateNCC(frame *image.RGBA, tmpl image.Image, opts NCCOptions) NCCResult {
	if frame == nil || tmpl == nil {
		return NCCResult{Score: -1}
	}
	return matchPrecomp(buildGrayPrecomp(frame), newTemplatePrecomp(tmpl), opts, frame.Bounds().Min)
}
