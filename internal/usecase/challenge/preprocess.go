package challenge

import (
	"image"
	"image/color"
	"sort"

	"github.com/disintegration/imaging"
)

// preprocessor is one independent image-cleanup pipeline. The solver runs
// every variant and keeps the best-scoring recognition.
type preprocessor struct {
	name string
	fn   func(image.Image) image.Image
}

func preprocessors() []preprocessor {
	return []preprocessor{
		{"grayscale", func(img image.Image) image.Image {
			return imaging.Grayscale(img)
		}},
		{"otsu", func(img image.Image) image.Image {
			return otsuThreshold(toGray(img))
		}},
		{"adaptive", func(img image.Image) image.Image {
			return adaptiveThreshold(toGray(img), 11, 2)
		}},
		{"close", func(img image.Image) image.Image {
			return morphClose(toGray(img))
		}},
		{"denoise", func(img image.Image) image.Image {
			return medianFilter(toGray(img))
		}},
	}
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}

// otsuThreshold binarizes with the threshold that maximizes between-class
// variance of the luminance histogram.
func otsuThreshold(gray *image.Gray) *image.Gray {
	var hist [256]int
	for _, v := range gray.Pix {
		hist[v]++
	}

	total := len(gray.Pix)
	if total == 0 {
		return gray
	}

	var sum float64
	for i, count := range hist {
		sum += float64(i) * float64(count)
	}

	var sumBack, weightBack float64
	var maxVariance float64
	threshold := 0
	for t := 0; t < 256; t++ {
		weightBack += float64(hist[t])
		if weightBack == 0 {
			continue
		}
		weightFore := float64(total) - weightBack
		if weightFore == 0 {
			break
		}
		sumBack += float64(t) * float64(hist[t])

		meanBack := sumBack / weightBack
		meanFore := (sum - sumBack) / weightFore
		variance := weightBack * weightFore * (meanBack - meanFore) * (meanBack - meanFore)
		if variance > maxVariance {
			maxVariance = variance
			threshold = t
		}
	}

	return binarize(gray, uint8(threshold))
}

func binarize(gray *image.Gray, threshold uint8) *image.Gray {
	out := image.NewGray(gray.Bounds())
	for i, v := range gray.Pix {
		if v > threshold {
			out.Pix[i] = 255
		}
	}
	return out
}

// adaptiveThreshold compares each pixel against the mean of its block×block
// neighborhood minus bias, which holds up better than a global threshold on
// unevenly lit puzzle images.
func adaptiveThreshold(gray *image.Gray, block, bias int) *image.Gray {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(b)
	half := block / 2

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum, count int
			for dy := -half; dy <= half; dy++ {
				for dx := -half; dx <= half; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					sum += int(gray.GrayAt(nx, ny).Y)
					count++
				}
			}
			mean := sum / count
			if int(gray.GrayAt(x, y).Y) > mean-bias {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// morphClose is dilation followed by erosion with a 3×3 kernel; it fills
// small gaps left by distortion strokes.
func morphClose(gray *image.Gray) *image.Gray {
	return erode(dilate(gray))
}

func dilate(gray *image.Gray) *image.Gray {
	return neighborhoodOp(gray, func(vals []uint8) uint8 {
		max := vals[0]
		for _, v := range vals[1:] {
			if v > max {
				max = v
			}
		}
		return max
	})
}

func erode(gray *image.Gray) *image.Gray {
	return neighborhoodOp(gray, func(vals []uint8) uint8 {
		min := vals[0]
		for _, v := range vals[1:] {
			if v < min {
				min = v
			}
		}
		return min
	})
}

// medianFilter removes salt-and-pepper noise with a 3×3 median pass.
func medianFilter(gray *image.Gray) *image.Gray {
	return neighborhoodOp(gray, func(vals []uint8) uint8 {
		sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
		return vals[len(vals)/2]
	})
}

func neighborhoodOp(gray *image.Gray, combine func([]uint8) uint8) *image.Gray {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(b)
	vals := make([]uint8, 0, 9)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			vals = vals[:0]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					vals = append(vals, gray.GrayAt(nx, ny).Y)
				}
			}
			out.SetGray(x, y, color.Gray{Y: combine(vals)})
		}
	}
	return out
}
