package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"github.com/basket/go-governor/internal/approval"
	"github.com/basket/go-governor/internal/audit"
	"github.com/basket/go-governor/internal/bus"
	"github.com/basket/go-governor/internal/compactor"
	"github.com/basket/go-governor/internal/config"
	"github.com/basket/go-governor/internal/cron"
	"github.com/basket/go-governor/internal/engine"
	"github.com/basket/go-governor/internal/ledger"
	"github.com/basket/go-governor/internal/llm"
	otelPkg "github.com/basket/go-governor/internal/otel"
	"github.com/basket/go-governor/internal/persistence"
	"github.com/basket/go-governor/internal/scheduler"
	"github.com/basket/go-governor/internal/telemetry"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

INTERACTIVE MODE (default):
  %s                          Start the interactive session

DAEMON MODE:
  %s -daemon                  Run without a REPL (heartbeat and logs only)

REPL COMMANDS:
  /status                     Scheduler, budget and threshold snapshot
  /budget <usd>               Replace the session budget limit
  /install <tool>             Install a tool (gated behind approval)
  /approvals clear            Forget all remembered approval decisions
  /new                        Start a fresh session
  /exit                       Quit

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  GOVERNOR_HOME           Data directory (default: ~/.governor)
  GEMINI_API_KEY          API key for the google provider
  ANTHROPIC_API_KEY       API key for the anthropic provider
  OPENAI_API_KEY          API key for the openai provider
`)
}

func main() {
	loadDotEnv(".env")

	daemon := flag.Bool("daemon", false, "run in daemon mode (no REPL)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Println("governor", Version)
		return
	}

	interactive := isatty.IsTerminal(os.Stdin.Fd()) && !*daemon
	quietLogs := interactive

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.DefaultHomeDir())
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	trail, err := audit.Open(cfg.HomeDir)
	if err != nil {
		fatalStartup(nil, "E_AUDIT_INIT", err)
	}
	defer trail.Close()

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, quietLogs)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "version", Version)

	eventBus := bus.New()

	otelProvider, err := otelPkg.Init(ctx, cfg.OTel)
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer otelProvider.Shutdown(context.Background())
	metrics, err := otelPkg.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger, "E_OTEL_METRICS", err)
	}

	store, err := persistence.Open(filepath.Join(cfg.HomeDir, "governor.db"))
	if err != nil {
		fatalStartup(logger, "E_STORE_OPEN", err)
	}
	defer store.Close()
	logger.Info("startup phase", "phase", "schema_migrated")

	brain := llm.NewGenkitBrain(ctx, llm.Config{
		Provider:           cfg.LLM.Provider,
		Model:              cfg.LLM.Model,
		APIKey:             cfg.LLM.APIKey,
		CompatibleProvider: cfg.LLM.CompatibleProvider,
		CompatibleBaseURL:  cfg.LLM.CompatibleBaseURL,
	})
	if !brain.Available() {
		logger.Warn("no provider API key configured; summaries fall back to truncation and turns are disabled")
	}

	sched := scheduler.New(scheduler.Config{
		InteractiveWorkers: cfg.Scheduler.InteractiveWorkers,
		BackgroundWorkers:  cfg.Scheduler.BackgroundWorkers,
		StealQueueCapacity: cfg.Scheduler.StealQueueCapacity,
		Bus:                eventBus,
		Metrics:            metrics,
		Logger:             logger,
	})
	defer sched.Shutdown()

	comp := compactor.New(store, brain, compactor.Config{
		ThresholdTokens: cfg.Compactor.ThresholdTokens,
		ThresholdRatio:  cfg.Compactor.ThresholdRatio,
		MinThreshold:    cfg.Compactor.MinThreshold,
		MaxThreshold:    cfg.Compactor.MaxThreshold,
		KeepRecent:      cfg.Compactor.KeepRecent,
		MaxCheckpoints:  cfg.Compactor.MaxCheckpoints,
	}, metrics, logger)

	// Without a terminal nobody can answer a prompt; an exhausted reader
	// makes the gate deny anything not already remembered.
	var gateInput io.Reader = os.Stdin
	if !interactive {
		gateInput = strings.NewReader("")
	}
	gate := approval.New(store, trail, eventBus, gateInput, os.Stdout, logger)
	led := ledger.New(cfg.Budget.SessionLimitUSD, eventBus, metrics, logger)

	var interrupt scheduler.Interrupt
	eng := engine.New(sched, comp, gate, led, brain, store, &interrupt, logger)

	sessionID := uuid.NewString()
	if err := store.EnsureSession(ctx, sessionID); err != nil {
		fatalStartup(logger, "E_SESSION_INIT", err)
	}
	led.StartSession(sessionID)
	logger.Info("startup phase", "phase", "session_started", "session_id", sessionID)

	if cfg.Heartbeat != "" {
		hb := cron.New(cron.Config{
			Expr:   cfg.Heartbeat,
			Logger: logger,
			Tick: func(tickCtx context.Context) {
				st := eng.Status()
				eventBus.Publish("heartbeat.tick", st)
				logger.Info("heartbeat",
					"completed", st.Scheduler.TotalCompleted(),
					"stolen", st.Scheduler.TasksStolen,
					"session_usd", st.SessionCost,
					"total_usd", st.TotalCost)
			},
		})
		hb.Start(ctx)
		defer hb.Stop()
	}

	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		go func() {
			for range watcher.Events() {
				reloaded, err := config.Load(cfg.HomeDir)
				if err != nil {
					logger.Warn("config reload failed", "error", err)
					continue
				}
				led.SetBudget(reloaded.Budget.SessionLimitUSD)
				comp.SetDefaultThreshold(reloaded.Compactor.ThresholdTokens)
				logger.Info("config reloaded",
					"budget_usd", reloaded.Budget.SessionLimitUSD,
					"compaction_threshold", reloaded.Compactor.ThresholdTokens)
			}
		}()
	}

	if !interactive {
		logger.Info("daemon mode, waiting for signal")
		<-ctx.Done()
		interrupt.Set()
		return
	}

	runREPL(ctx, eng, led, store, &interrupt, sessionID)
}

func runREPL(ctx context.Context, eng *engine.Engine, led *ledger.Ledger,
	store *persistence.Store, interrupt *scheduler.Interrupt, sessionID string) {
	fmt.Printf("governor %s  (/help for commands)\n", Version)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		fmt.Print("> ")
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Println("\nshutting down")
			interrupt.Set()
			return
		case line, ok = <-lines:
			if !ok {
				return
			}
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			if quit := runCommand(ctx, eng, led, store, &sessionID, input); quit {
				return
			}
			continue
		}

		interrupt.Clear()
		reply, err := eng.RunTurn(ctx, sessionID, input)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		fmt.Println(reply)
	}
}

// runCommand handles slash commands; true means exit.
func runCommand(ctx context.Context, eng *engine.Engine, led *ledger.Ledger,
	store *persistence.Store, sessionID *string, input string) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/exit", "/quit":
		return true
	case "/help":
		flag.Usage()
	case "/status":
		st := eng.Status()
		fmt.Printf("interactive:  %d done, %d pending\n", st.Scheduler.Interactive.Completed, st.Scheduler.Interactive.Pending)
		fmt.Printf("background:   %d done, %d pending (%d stolen)\n", st.Scheduler.Background.Completed, st.Scheduler.Background.Pending, st.Scheduler.TasksStolen)
		fmt.Printf("accelerators: batch %d done, inference %d done\n", st.Scheduler.AcceleratorBatch.Completed, st.Scheduler.AcceleratorInference.Completed)
		fmt.Printf("budget:       $%.4f spent this session, $%.4f remaining, $%.4f lifetime\n", st.SessionCost, st.Remaining, st.TotalCost)
		fmt.Printf("compaction:   threshold %d tokens\n", st.Threshold)
		if st.OverBudget {
			fmt.Println("WARNING: session is over budget; turns are disabled")
		}
	case "/budget":
		if len(fields) != 2 {
			fmt.Println("usage: /budget <usd>")
			return false
		}
		limit, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || limit < 0 {
			fmt.Println("usage: /budget <usd>")
			return false
		}
		led.SetBudget(limit)
		fmt.Printf("session budget set to $%.2f\n", limit)
	case "/install":
		if len(fields) != 2 {
			fmt.Println("usage: /install <tool>")
			return false
		}
		if err := eng.Install(ctx, fields[1]); err != nil {
			fmt.Println("error:", err)
		} else {
			fmt.Println("installed", fields[1])
		}
	case "/approvals":
		if len(fields) == 2 && fields[1] == "clear" {
			if err := eng.ClearApprovals(ctx); err != nil {
				fmt.Println("error:", err)
			} else {
				fmt.Println("approvals cleared")
			}
			return false
		}
		fmt.Println("usage: /approvals clear")
	case "/new":
		id := uuid.NewString()
		if err := store.EnsureSession(ctx, id); err != nil {
			fmt.Println("error:", err)
			return false
		}
		*sessionID = id
		led.StartSession(id)
		fmt.Println("started session", id)
	default:
		fmt.Println("unknown command; /help for commands")
	}
	return false
}

func fatalStartup(logger *slog.Logger, code string, err error) {
	if logger != nil {
		logger.Error("startup failed", "code", code, "error", err)
	}
	fmt.Fprintf(os.Stderr, "governor: %s: %v\n", code, err)
	os.Exit(1)
}

// loadDotEnv loads KEY=VALUE lines into the environment without overriding
// variables already set. Missing file is fine.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		os.Setenv(key, value)
	}
}
