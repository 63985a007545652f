package ocr

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"github.com/disintegration/imaging"
)

// PreprocessOptions is the single named tunable set applied to every leaderboard screenshot
// before recognition. Values come from the per-guild config; DefaultPreprocess covers the
// common dark-UI game client.
type PreprocessOptions struct {
	WhiteThreshold uint8   // pixels at or above this gray level become white, rest black
	Contrast       float64 // percentage passed to imaging.AdjustContrast
	Brightness     float64 // percentage passed to imaging.AdjustBrightness
	Gamma          float64 // gamma correction factor (1.0 = no-op)
	Median         int     // median denoise window (odd, 0 disables)
	Blur           float64 // light gaussian blur sigma (0 disables)
	Upscale        int     // integer resize factor (1 = no-op)
}

// DefaultPreprocess matches the tuning used in production for the game's leaderboard view.
func DefaultPreprocess() PreprocessOptions {
	return PreprocessOptions{
		WhiteThreshold: 180,
		Contrast:       20,
		Brightness:     5,
		Gamma:          1.2,
		Median:         3,
		Blur:           0.4,
		Upscale:        2,
	}
}

// Preprocess runs the fixed pipeline over src and returns an OCR-ready image:
// grayscale -> contrast -> brightness -> gamma -> binarize -> median denoise ->
// light blur -> integer upscale. The order matters: binarizing before the median
// pass lets the median kill the lone speckles the threshold produced.
func Preprocess(src image.Image, opt PreprocessOptions) *image.NRGBA {
	img := imaging.Grayscale(src)
	if opt.Contrast != 0 {
		img = imaging.AdjustContrast(img, opt.Contrast)
	}
	if opt.Brightness != 0 {
		img = imaging.AdjustBrightness(img, opt.Brightness)
	}
	if opt.Gamma > 0 && opt.Gamma != 1.0 {
		img = imaging.AdjustGamma(img, opt.Gamma)
	}
	out := binarize(img, opt.WhiteThreshold)
	if opt.Median >= 3 {
		out = medianFilter(out, opt.Median)
	}
	if opt.Blur > 0 {
		out = imaging.Blur(out, opt.Blur)
	}
	if opt.Upscale > 1 {
		w := out.Bounds().Dx() * opt.Upscale
		out = imaging.Resize(out, w, 0, imaging.Lanczos)
	}
	return out
}

// PreprocessFile opens path and runs Preprocess. Unreadable bytes surface as an error for
// this one image only; the caller keeps the session alive.
func PreprocessFile(path string, opt PreprocessOptions) (*image.NRGBA, error) {
	src, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	return Preprocess(src, opt), nil
}

// binarize performs a simple global threshold on a grayscale image. Pixels whose gray value
// is at or above threshold go white, everything else black.
func binarize(img image.Image, threshold uint8) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bb, _ := img.At(x, y).RGBA()
			gray := uint8((r + g + bb) / 3 >> 8)
			var v uint8
			if gray >= threshold {
				v = 255
			}
			out.Set(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return out
}

// medianFilter replaces each pixel by the median gray value of its window x window
// neighborhood. Window is forced odd and at least 3.
func medianFilter(img *image.NRGBA, window int) *image.NRGBA {
	if window < 3 {
		window = 3
	}
	if window%2 == 0 {
		window++
	}
	half := window / 2
	b := img.Bounds()
	w := b.Dx()
	h := b.Dy()
	out := image.NewNRGBA(b)
	vals := make([]uint8, 0, window*window)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			vals = vals[:0]
			for dy := -half; dy <= half; dy++ {
				for dx := -half; dx <= half; dx++ {
					x2 := x + dx
					y2 := y + dy
					if x2 < 0 || y2 < 0 || x2 >= w || y2 >= h {
						continue
					}
					vals = append(vals, img.NRGBAAt(b.Min.X+x2, b.Min.Y+y2).R)
				}
			}
			sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
			m := vals[len(vals)/2]
			out.SetNRGBA(b.Min.X+x, b.Min.Y+y, color.NRGBA{R: m, G: m, B: m, A: 255})
		}
	}
	return out
}
