package di

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"formpilot/internal/application/port/input"
	"formpilot/internal/application/port/output"
	"formpilot/internal/infrastructure/browser/rod"
	"formpilot/internal/infrastructure/logger"
	"formpilot/internal/infrastructure/ocr/tesseract"
	"formpilot/internal/infrastructure/storage/sqlite"
	"formpilot/internal/usecase/challenge"
	"formpilot/internal/usecase/orchestrator"
	"formpilot/internal/usecase/verifier"
)

type Config struct {
	RunName         string
	DataDir         string
	Browser         string
	Headless        bool
	ElementWait     time.Duration
	PageLoadTimeout time.Duration
	PaceMin         time.Duration
	PaceMax         time.Duration
}

func DefaultConfig() Config {
	orch := orchestrator.DefaultConfig()
	return Config{
		RunName:         "formpilot",
		DataDir:         "data",
		Browser:         orch.Browser,
		Headless:        orch.Headless,
		ElementWait:     orch.ElementWait,
		PageLoadTimeout: orch.PageLoadTimeout,
		PaceMin:         orch.PaceMin,
		PaceMax:         orch.PaceMax,
	}
}

type Container struct {
	Logger  output.LoggerPort
	Storage output.StoragePort
	OCR     output.OCRPort
	Runner  input.WorkflowRunner
}

func NewContainer(cfg Config) (*Container, error) {
	log, err := logger.NewZapAdapter(cfg.RunName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	store, err := sqlite.NewStore(
		filepath.Join(cfg.DataDir, "formpilot.db"),
		filepath.Join(cfg.DataDir, "encryption.key"),
		log,
	)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	ocr, err := tesseract.NewOCRAdapter()
	if err != nil {
		store.Close()
		log.Close()
		return nil, fmt.Errorf("failed to init recognition: %w", err)
	}

	browserCfg := rod.DefaultConfig()
	browserCfg.Browser = cfg.Browser
	browserCfg.Headless = cfg.Headless
	browserCfg.ElementWait = cfg.ElementWait

	factory := func(ctx context.Context) (output.BrowserPort, error) {
		return rod.NewBrowserAdapter(ctx, browserCfg)
	}

	runner := orchestrator.New(
		factory,
		store,
		challenge.NewClassifier(),
		challenge.NewSolver(ocr, log),
		verifier.New(),
		log,
		orchestrator.Config{
			Browser:         cfg.Browser,
			Headless:        cfg.Headless,
			ElementWait:     cfg.ElementWait,
			PageLoadTimeout: cfg.PageLoadTimeout,
			PaceMin:         cfg.PaceMin,
			PaceMax:         cfg.PaceMax,
		},
	)

	return &Container{
		Logger:  log,
		Storage: store,
		OCR:     ocr,
		Runner:  runner,
	}, nil
}

func (c *Container) Close() {
	if c.Runner != nil {
		c.Runner.Stop()
	}
	if c.OCR != nil {
		_ = c.OCR.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Logger != nil {
		_ = c.Logger.Close()
	}
}
