package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"formpilot/internal/application/port/output"
)

var _ output.OCRPort = (*OCRAdapter)(nil)

// OCRAdapter wraps a tesseract client configured for single-word reads,
// which is how short distorted-text puzzles render. The client is not
// safe for concurrent use, so calls are serialized.
type OCRAdapter struct {
	mu     sync.Mutex
	client *gosseract.Client
}

func NewOCRAdapter() (*OCRAdapter, error) {
	client := gosseract.NewClient()
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_WORD); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to configure recognition mode: %w", err)
	}

	return &OCRAdapter{client: client}, nil
}

func (o *OCRAdapter) Recognize(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("png encode failed: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to load image: %w", err)
	}

	text, err := o.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognition failed: %w", err)
	}
	return text, nil
}

func (o *OCRAdapter) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.client.Close()
}
