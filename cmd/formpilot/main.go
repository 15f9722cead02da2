package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"formpilot/internal/di"
	"formpilot/internal/domain/entity"
	"formpilot/internal/infrastructure/env"
	"formpilot/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	envService := env.NewEnvService()
	cfg := configFromEnv(envService)

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(cfg, os.Args[2:])
	case "batch":
		err = cmdBatch(cfg, os.Args[2:])
	case "serve":
		err = cmdServe(cfg, os.Args[2:])
	case "logs":
		err = cmdLogs(cfg, os.Args[2:])
	case "credential":
		err = cmdCredential(cfg, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: formpilot <command> [flags]

Commands:
  run        execute one workflow from a YAML request file
  batch      execute a list of workflows sequentially
  serve      start the HTTP control surface
  logs       print recent audit log entries
  credential store an encrypted site credential`)
}

func configFromEnv(e *env.EnvService) di.Config {
	cfg := di.DefaultConfig()
	cfg.DataDir = e.Get("FORMPILOT_DATA_DIR", cfg.DataDir)
	cfg.Browser = e.Get("FORMPILOT_BROWSER", cfg.Browser)
	cfg.Headless = e.GetBool("FORMPILOT_HEADLESS", cfg.Headless)
	cfg.ElementWait = e.GetDuration("FORMPILOT_ELEMENT_WAIT", cfg.ElementWait)
	cfg.PageLoadTimeout = e.GetDuration("FORMPILOT_PAGE_TIMEOUT", cfg.PageLoadTimeout)
	cfg.PaceMin = e.GetDuration("FORMPILOT_PACE_MIN", cfg.PaceMin)
	cfg.PaceMax = e.GetDuration("FORMPILOT_PACE_MAX", cfg.PaceMax)
	return cfg
}

func cmdRun(cfg di.Config, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	file := fs.String("file", "", "YAML workflow request file")
	headless := fs.Bool("headless", cfg.Headless, "run the browser headless")
	fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("run: -file is required")
	}

	var req entity.WorkflowRequest
	if err := readYAML(*file, &req); err != nil {
		return err
	}

	cfg.Headless = *headless
	cfg.RunName = string(req.Kind) + "_" + req.Site
	container, err := di.NewContainer(cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	outcome := container.Runner.Run(signalContext(), req)
	printOutcome(outcome)
	if !outcome.Success {
		os.Exit(1)
	}
	return nil
}

func cmdBatch(cfg di.Config, args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	file := fs.String("file", "", "YAML file with a list of workflow requests")
	headless := fs.Bool("headless", cfg.Headless, "run the browser headless")
	fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("batch: -file is required")
	}

	var reqs []entity.WorkflowRequest
	if err := readYAML(*file, &reqs); err != nil {
		return err
	}
	if len(reqs) == 0 {
		return fmt.Errorf("batch: %s contains no requests", *file)
	}

	cfg.Headless = *headless
	cfg.RunName = "batch"
	container, err := di.NewContainer(cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	outcomes := container.Runner.RunBatch(signalContext(), reqs)

	succeeded := 0
	for _, outcome := range outcomes {
		printOutcome(outcome)
		if outcome.Success {
			succeeded++
		}
	}
	fmt.Printf("\n%d/%d workflows succeeded\n", succeeded, len(outcomes))
	return nil
}

func cmdServe(cfg di.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":8080", "listen address")
	fs.Parse(args)

	cfg.RunName = "serve"
	container, err := di.NewContainer(cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	srv := server.New(container.Runner, container.Storage, container.Logger)
	httpServer := &http.Server{Addr: *addr, Handler: srv.Router()}

	ctx := signalContext()
	go func() {
		<-ctx.Done()
		_ = httpServer.Shutdown(context.Background())
	}()

	log.Printf("Listening on %s", *addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func cmdLogs(cfg di.Config, args []string) error {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	limit := fs.Int("limit", 50, "number of entries to print")
	fs.Parse(args)

	cfg.RunName = "logs"
	container, err := di.NewContainer(cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	entries, err := container.Storage.AuditEntries(context.Background(), *limit)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		fmt.Printf("%s  %-20s %-16s %-8s %s\n",
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.Site, entry.Action, entry.Status, entry.Detail)
	}
	return nil
}

func cmdCredential(cfg di.Config, args []string) error {
	fs := flag.NewFlagSet("credential", flag.ExitOnError)
	site := fs.String("site", "", "site identifier")
	user := fs.String("user", "", "username")
	notes := fs.String("notes", "", "optional notes")
	fs.Parse(args)

	if *site == "" || *user == "" {
		return fmt.Errorf("credential: -site and -user are required")
	}

	secret := os.Getenv("FORMPILOT_SECRET")
	if secret == "" {
		fmt.Fprint(os.Stderr, "Secret: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read secret: %w", err)
		}
		secret = strings.TrimSpace(line)
	}
	if secret == "" {
		return fmt.Errorf("credential: empty secret")
	}

	cfg.RunName = "credential"
	container, err := di.NewContainer(cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	if err := container.Storage.AddCredential(context.Background(), *site, *user, secret, *notes); err != nil {
		return err
	}
	fmt.Printf("Stored credential for %s/%s\n", *site, *user)
	return nil
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func printOutcome(outcome entity.WorkflowOutcome) {
	status := "OK"
	if !outcome.Success {
		status = "FAILED"
	}
	fmt.Printf("[%s] %s %s", status, outcome.Kind, outcome.Site)
	if outcome.Reason != "" {
		fmt.Printf(" (%s)", outcome.Reason)
	}
	fmt.Printf("  %s\n", outcome.Duration.Round(10*time.Millisecond))
}

func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()
	return ctx
}
