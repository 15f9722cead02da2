package output

import (
	"context"
	"image"
)

// OCRPort runs a single-word/line recognition pass over one image variant.
type OCRPort interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
	Close() error
}
