package challenge

import (
	"image"
	"math"

	"formpilot/internal/domain/entity"
)

const (
	edgeMagnitudeMin = 128.0
	cornerResponse   = 1e6
	harrisK          = 0.04
)

// ExtractFeatures does not attempt an answer: it summarizes an unsolvable
// image challenge for later manual triage.
func ExtractFeatures(img image.Image) entity.ImageFeatures {
	gray := toGray(img)
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()

	feats := entity.ImageFeatures{Width: w, Height: h}
	if w == 0 || h == 0 {
		return feats
	}

	var sum, sumSq float64
	for _, v := range gray.Pix {
		f := float64(v)
		sum += f
		sumSq += f * f
	}
	n := float64(len(gray.Pix))
	feats.MeanLuma = sum / n
	feats.StdDevLuma = math.Sqrt(sumSq/n - feats.MeanLuma*feats.MeanLuma)

	feats.EdgeDensity = edgeDensity(gray)
	feats.CornerCount = cornerCount(gray)
	return feats
}

// edgeDensity is the fraction of pixels whose Sobel gradient magnitude
// clears the edge threshold.
func edgeDensity(gray *image.Gray) float64 {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	edges := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx, gy := sobelAt(gray, x, y)
			if math.Hypot(gx, gy) >= edgeMagnitudeMin {
				edges++
			}
		}
	}
	return float64(edges) / float64(w*h)
}

// cornerCount counts pixels with a positive Harris response that are also
// the local maximum of their 3×3 neighborhood.
func cornerCount(gray *image.Gray) int {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 5 || h < 5 {
		return 0
	}

	response := make([][]float64, h)
	for y := range response {
		response[y] = make([]float64, w)
	}

	for y := 2; y < h-2; y++ {
		for x := 2; x < w-2; x++ {
			var sxx, syy, sxy float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					gx, gy := sobelAt(gray, x+dx, y+dy)
					sxx += gx * gx
					syy += gy * gy
					sxy += gx * gy
				}
			}
			det := sxx*syy - sxy*sxy
			trace := sxx + syy
			response[y][x] = det - harrisK*trace*trace
		}
	}

	count := 0
	for y := 2; y < h-2; y++ {
		for x := 2; x < w-2; x++ {
			r := response[y][x]
			if r < cornerResponse {
				continue
			}
			localMax := true
			for dy := -1; dy <= 1 && localMax; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					if response[y+dy][x+dx] > r {
						localMax = false
						break
					}
				}
			}
			if localMax {
				count++
			}
		}
	}
	return count
}

func sobelAt(gray *image.Gray, x, y int) (gx, gy float64) {
	p := func(dx, dy int) float64 {
		return float64(gray.GrayAt(x+dx, y+dy).Y)
	}
	gx = p(1, -1) + 2*p(1, 0) + p(1, 1) - p(-1, -1) - 2*p(-1, 0) - p(-1, 1)
	gy = p(-1, 1) + 2*p(0, 1) + p(1, 1) - p(-1, -1) - 2*p(0, -1) - p(1, -1)
	return gx, gy
}
