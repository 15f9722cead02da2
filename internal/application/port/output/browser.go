package output

import (
	"context"
	"image"
	"time"

	"formpilot/internal/domain/entity"
)

// BrowserPort is the narrow surface of the browser driver the workflow
// engine is allowed to touch. One BrowserPort value is one live session.
type BrowserPort interface {
	Navigate(ctx context.Context, url string) error
	WaitReady(ctx context.Context, timeout time.Duration) error

	Fill(ctx context.Context, loc entity.Locator, text string) error
	Click(ctx context.Context, loc entity.Locator) error
	SelectOption(ctx context.Context, loc entity.Locator, value string) error
	SetChecked(ctx context.Context, loc entity.Locator, checked bool) error

	PageContent(ctx context.Context) (*entity.PageContent, error)
	ElementText(ctx context.Context, loc entity.Locator) (string, error)
	ElementImage(ctx context.Context, loc entity.Locator) (image.Image, error)
	Screenshot(ctx context.Context) (*entity.Screenshot, error)

	CurrentURL() string
	Title() string
	Close()
}

// BrowserFactory launches a fresh session. The orchestrator owns the
// returned port exclusively and releases it on every exit path.
type BrowserFactory func(ctx context.Context) (BrowserPort, error)
