package rod

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os/exec"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"formpilot/internal/application/port/output"
	"formpilot/internal/domain/entity"
)

var _ output.BrowserPort = (*BrowserAdapter)(nil)

// BrowserAdapter is one live driver session. It is exclusively owned by
// the orchestrator that launched it.
type BrowserAdapter struct {
	browser     *rod.Browser
	launcher    *launcher.Launcher
	page        *rod.Page
	elementWait time.Duration
}

type BrowserConfig struct {
	Browser     string
	Headless    bool
	SlowMotion  time.Duration
	ElementWait time.Duration
	NoSandbox   bool
}

func DefaultConfig() BrowserConfig {
	return BrowserConfig{
		Browser:     "chrome",
		Headless:    false,
		SlowMotion:  500 * time.Millisecond,
		ElementWait: 10 * time.Second,
		NoSandbox:   true,
	}
}

// binCandidates maps a browser family to executables probed on PATH. All
// of them speak the Chromium protocol; when none is installed the launcher
// falls back to its managed download.
var binCandidates = map[string][]string{
	"chrome":   {"google-chrome", "google-chrome-stable", "chrome"},
	"chromium": {"chromium", "chromium-browser"},
	"edge":     {"microsoft-edge", "microsoft-edge-stable", "msedge"},
}

func NewBrowserAdapter(ctx context.Context, cfg BrowserConfig) (*BrowserAdapter, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox).
		Set("disable-dev-shm-usage").
		Set("window-size", "1920,1080")

	if bin := findBin(cfg.Browser); bin != "" {
		l = l.Bin(bin)
	}

	url, err := l.Context(ctx).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().
		Context(ctx).
		ControlURL(url).
		SlowMotion(cfg.SlowMotion)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	return &BrowserAdapter{
		browser:     browser,
		launcher:    l,
		page:        page,
		elementWait: cfg.ElementWait,
	}, nil
}

func findBin(family string) string {
	for _, name := range binCandidates[family] {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

func (b *BrowserAdapter) Navigate(ctx context.Context, url string) error {
	if err := b.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (b *BrowserAdapter) WaitReady(ctx context.Context, timeout time.Duration) error {
	page := b.page.Context(ctx).Timeout(timeout)
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("page load timed out: %w", err)
	}
	page.WaitIdle(5 * time.Second)
	return nil
}

func (b *BrowserAdapter) Fill(ctx context.Context, loc entity.Locator, text string) error {
	el, err := b.element(ctx, loc)
	if err != nil {
		return err
	}

	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("input failed: %w", err)
	}
	return nil
}

func (b *BrowserAdapter) Click(ctx context.Context, loc entity.Locator) error {
	el, err := b.element(ctx, loc)
	if err != nil {
		return err
	}

	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	b.page.WaitIdle(2 * time.Second)
	return nil
}

func (b *BrowserAdapter) SelectOption(ctx context.Context, loc entity.Locator, value string) error {
	el, err := b.element(ctx, loc)
	if err != nil {
		return err
	}

	if err := el.Select([]string{value}, true, rod.SelectorTypeText); err != nil {
		return fmt.Errorf("option %q not selectable: %w", value, err)
	}
	return nil
}

func (b *BrowserAdapter) SetChecked(ctx context.Context, loc entity.Locator, checked bool) error {
	el, err := b.element(ctx, loc)
	if err != nil {
		return err
	}

	prop, err := el.Property("checked")
	if err != nil {
		return fmt.Errorf("checked state unreadable: %w", err)
	}
	if prop.Bool() == checked {
		return nil
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("toggle failed: %w", err)
	}
	return nil
}

func (b *BrowserAdapter) PageContent(ctx context.Context) (*entity.PageContent, error) {
	info, err := b.page.Context(ctx).Info()
	if err != nil {
		return nil, fmt.Errorf("page info unavailable: %w", err)
	}

	html, err := b.page.Context(ctx).HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to get HTML: %w", err)
	}

	return &entity.PageContent{
		URL:   info.URL,
		Title: info.Title,
		HTML:  html,
	}, nil
}

func (b *BrowserAdapter) ElementText(ctx context.Context, loc entity.Locator) (string, error) {
	el, err := b.element(ctx, loc)
	if err != nil {
		return "", err
	}

	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("element text unreadable: %w", err)
	}
	return text, nil
}

func (b *BrowserAdapter) ElementImage(ctx context.Context, loc entity.Locator) (image.Image, error) {
	el, err := b.element(ctx, loc)
	if err != nil {
		return nil, err
	}

	data, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, fmt.Errorf("element capture failed: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}
	return img, nil
}

func (b *BrowserAdapter) Screenshot(ctx context.Context) (*entity.Screenshot, error) {
	data, err := b.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: gson.Int(80),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}

	if img.Bounds().Dx() > 1920 {
		img = imaging.Resize(img, 1920, 0, imaging.Lanczos)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}

	return &entity.Screenshot{
		Data:   buf.Bytes(),
		Format: "jpeg",
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}

func (b *BrowserAdapter) CurrentURL() string {
	info, err := b.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (b *BrowserAdapter) Title() string {
	info, err := b.page.Info()
	if err != nil {
		return ""
	}
	return info.Title
}

func (b *BrowserAdapter) Close() {
	if b.browser != nil {
		_ = b.browser.Close()
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
	}
}

func (b *BrowserAdapter) element(ctx context.Context, loc entity.Locator) (*rod.Element, error) {
	page := b.page.Context(ctx).Timeout(b.elementWait)

	selector, isXPath := cssFor(loc)
	var el *rod.Element
	var err error
	if isXPath {
		el, err = page.ElementX(selector)
	} else {
		el, err = page.Element(selector)
	}
	if err != nil {
		return nil, fmt.Errorf("element not found: %s=%s: %w", loc.Strategy, loc.Value, err)
	}
	return el, nil
}

// cssFor translates a declarative locator into a selector rod understands.
func cssFor(loc entity.Locator) (selector string, isXPath bool) {
	switch loc.Strategy {
	case entity.LocateByXPath:
		return loc.Value, true
	case entity.LocateByID:
		return "#" + loc.Value, false
	case entity.LocateByName:
		return fmt.Sprintf("[name=%q]", loc.Value), false
	case entity.LocateByClass:
		return "." + loc.Value, false
	default:
		return loc.Value, false
	}
}
