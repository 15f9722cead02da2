package challenge

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func TestExtractFeatures_UniformImage(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 20, 10))
	for i := range gray.Pix {
		gray.Pix[i] = 128
	}

	feats := ExtractFeatures(gray)
	if feats.Width != 20 || feats.Height != 10 {
		t.Errorf("Expected 20x10, got %dx%d", feats.Width, feats.Height)
	}
	if feats.MeanLuma != 128 {
		t.Errorf("Expected mean 128, got %f", feats.MeanLuma)
	}
	if feats.StdDevLuma > 1e-6 {
		t.Errorf("Expected zero stddev, got %f", feats.StdDevLuma)
	}
	if feats.EdgeDensity != 0 {
		t.Errorf("Uniform image has no edges, got %f", feats.EdgeDensity)
	}
	if feats.CornerCount != 0 {
		t.Errorf("Uniform image has no corners, got %d", feats.CornerCount)
	}
}

func TestExtractFeatures_HighContrastEdge(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			v := uint8(0)
			if x >= 10 {
				v = 255
			}
			gray.SetGray(x, y, color.Gray{Y: v})
		}
	}

	feats := ExtractFeatures(gray)
	if feats.EdgeDensity <= 0 {
		t.Error("Expected nonzero edge density across the step")
	}
	wantMean := 127.5
	if math.Abs(feats.MeanLuma-wantMean) > 0.5 {
		t.Errorf("Expected mean near %f, got %f", wantMean, feats.MeanLuma)
	}
}

func TestExtractFeatures_EmptyImage(t *testing.T) {
	feats := ExtractFeatures(image.NewGray(image.Rect(0, 0, 0, 0)))
	if feats.Width != 0 || feats.Height != 0 {
		t.Errorf("Expected zero dimensions, got %dx%d", feats.Width, feats.Height)
	}
}
