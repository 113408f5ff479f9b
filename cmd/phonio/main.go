// Command phonio is the phone voice agent server: it answers and places
// carrier calls, bridges their audio to a realtime speech model, and
// dispatches spoken commands to a local executor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/phonio-ai/phonio/internal/brain"
	"github.com/phonio-ai/phonio/internal/callstore"
	"github.com/phonio-ai/phonio/internal/carrier"
	"github.com/phonio-ai/phonio/internal/config"
	"github.com/phonio-ai/phonio/internal/executor"
	"github.com/phonio-ai/phonio/internal/health"
	"github.com/phonio-ai/phonio/internal/notify"
	"github.com/phonio-ai/phonio/internal/observe"
	"github.com/phonio-ai/phonio/internal/server"
	"github.com/phonio-ai/phonio/internal/session"
	"github.com/phonio-ai/phonio/pkg/provider/llm"
	"github.com/phonio-ai/phonio/pkg/provider/llm/anyllm"
	oaillm "github.com/phonio-ai/phonio/pkg/provider/llm/openai"
	"github.com/phonio-ai/phonio/pkg/provider/s2s"
	geminilive "github.com/phonio-ai/phonio/pkg/provider/s2s/gemini"
	oais2s "github.com/phonio-ai/phonio/pkg/provider/s2s/openai"
	"github.com/phonio-ai/phonio/pkg/provider/stt"
	"github.com/phonio-ai/phonio/pkg/provider/stt/whisper"
)

const version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "phonio: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "phonio: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Logging.Level))
	slog.Info("phonio starting",
		"config", *configPath,
		"listen_addr", listenAddr(cfg),
		"log_level", cfg.Logging.Level,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "phonio",
		ServiceVersion: version,
		Environment:    os.Getenv("PHONIO_ENV"),
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Dependencies ──────────────────────────────────────────────────────────
	deps, err := buildDependencies(ctx, cfg)
	if err != nil {
		slog.Error("failed to build dependencies", "err", err)
		return 1
	}
	defer deps.close()

	manager, err := session.NewManager(deps.managerConfig(cfg))
	if err != nil {
		slog.Error("failed to create session manager", "err", err)
		return 1
	}

	srv, err := server.New(server.AppContext{
		Manager: manager,
		Health:  health.New(deps.checkers()...),
		Server:  cfg.Server,
	})
	if err != nil {
		slog.Error("failed to build http server", "err", err)
		return 1
	}

	httpSrv := &http.Server{
		Addr:              listenAddr(cfg),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printStartupSummary(cfg)

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpSrv.ListenAndServe() }()
	slog.Info("server ready — press Ctrl+C to shut down", "addr", httpSrv.Addr)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Dependency wiring ─────────────────────────────────────────────────────────

// dependencies holds everything the session manager needs, plus the closers
// to run on shutdown in reverse order of construction.
type dependencies struct {
	model        s2s.Provider
	voice        string
	instructions string
	classifier   *brain.Classifier
	exec         executor.Executor
	execTimeout  time.Duration
	transcriber  stt.Transcriber
	notifier     notify.Notifier
	store        *callstore.Postgres
	dialer       *carrier.RESTClient

	closers []func() error
}

// buildDependencies instantiates every configured component. Optional
// sections that are disabled or unconfigured stay nil.
func buildDependencies(ctx context.Context, cfg *config.Config) (*dependencies, error) {
	d := &dependencies{
		instructions: cfg.ModelA.Instruction,
		execTimeout:  time.Duration(cfg.Executor.TimeoutS) * time.Second,
		notifier:     notify.Log{},
	}

	// ── Realtime model ────────────────────────────────────────────────────────
	if cfg.ModelB.Enabled {
		var opts []geminilive.Option
		if cfg.ModelB.Model != "" {
			opts = append(opts, geminilive.WithModel(cfg.ModelB.Model))
		}
		d.model = geminilive.New(cfg.ModelB.APIKey, opts...)
		d.voice = cfg.ModelB.Voice
		slog.Info("realtime model", "provider", "gemini-live", "model", cfg.ModelB.Model)
	} else {
		var opts []oais2s.Option
		if cfg.ModelA.Model != "" {
			opts = append(opts, oais2s.WithModel(cfg.ModelA.Model))
		}
		d.model = oais2s.New(cfg.ModelA.APIKey, opts...)
		d.voice = cfg.ModelA.Voice
		slog.Info("realtime model", "provider", "openai-realtime", "model", cfg.ModelA.Model)
	}

	// ── Classifier ────────────────────────────────────────────────────────────
	// OpenAI goes through the native client; every other provider goes
	// through the any-llm gateway.
	var clsLLM llm.Provider
	switch cfg.Classifier.Provider {
	case "":
	case "openai":
		var opts []oaillm.Option
		if cfg.Classifier.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(cfg.Classifier.BaseURL))
		}
		key := cfg.Classifier.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		p, err := oaillm.New(key, cfg.Classifier.Model, opts...)
		if err != nil {
			return nil, fmt.Errorf("create classifier llm %q: %w", cfg.Classifier.Provider, err)
		}
		clsLLM = p
		slog.Info("classifier llm", "provider", cfg.Classifier.Provider, "model", cfg.Classifier.Model)
	default:
		var opts []anyllmlib.Option
		if cfg.Classifier.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(cfg.Classifier.APIKey))
		}
		if cfg.Classifier.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(cfg.Classifier.BaseURL))
		}
		p, err := anyllm.New(cfg.Classifier.Provider, cfg.Classifier.Model, opts...)
		if err != nil {
			return nil, fmt.Errorf("create classifier llm %q: %w", cfg.Classifier.Provider, err)
		}
		clsLLM = p
		slog.Info("classifier llm", "provider", cfg.Classifier.Provider, "model", cfg.Classifier.Model)
	}
	d.classifier = brain.NewClassifier(cfg.Classifier.Verbs, cfg.Classifier.Trivial, clsLLM, cfg.Classifier.Model)

	// ── Executor ──────────────────────────────────────────────────────────────
	if cfg.Executor.Command != "" {
		if cfg.Executor.UseMCP {
			m, err := executor.NewMCP(ctx, cfg.Executor.Command, cfg.Executor.ChatID, cfg.Executor.Env)
			if err != nil {
				return nil, fmt.Errorf("create mcp executor: %w", err)
			}
			d.exec = m
			d.closers = append(d.closers, m.Close)
			slog.Info("executor", "mode", "mcp", "command", cfg.Executor.Command)
		} else {
			s, err := executor.NewSubprocess(cfg.Executor.Command, cfg.Executor.ChatID, cfg.Executor.Env)
			if err != nil {
				return nil, fmt.Errorf("create subprocess executor: %w", err)
			}
			d.exec = s
			slog.Info("executor", "mode", "subprocess", "command", cfg.Executor.Command)
		}
	}

	// ── External STT ──────────────────────────────────────────────────────────
	if cfg.ExternalSTT.Enabled {
		var opts []whisper.Option
		if cfg.ExternalSTT.Language != "" {
			opts = append(opts, whisper.WithLanguage(cfg.ExternalSTT.Language))
		}
		if cfg.ExternalSTT.APIKey != "" {
			opts = append(opts, whisper.WithAPIKey(cfg.ExternalSTT.APIKey))
		}
		t, err := whisper.New(cfg.ExternalSTT.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("create external stt: %w", err)
		}
		d.transcriber = t
		slog.Info("external stt enabled", "url", cfg.ExternalSTT.URL)
	}

	// ── Notifier ──────────────────────────────────────────────────────────────
	if cfg.Notifier.DiscordToken != "" && cfg.Notifier.ChannelID != "" {
		n, err := notify.NewDiscord(cfg.Notifier.DiscordToken, cfg.Notifier.ChannelID)
		if err != nil {
			return nil, fmt.Errorf("create discord notifier: %w", err)
		}
		d.notifier = n
		slog.Info("notifier", "kind", "discord", "channel_id", cfg.Notifier.ChannelID)
	}

	// ── Call store ────────────────────────────────────────────────────────────
	if cfg.Storage.DSN != "" {
		store, err := callstore.NewPostgres(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("open call store: %w", err)
		}
		d.store = store
		d.closers = append(d.closers, store.Close)
		slog.Info("call store enabled")
	}

	// ── Carrier REST client ───────────────────────────────────────────────────
	if cfg.Carrier.SID != "" && cfg.Carrier.Token != "" {
		var opts []carrier.RESTOption
		if cfg.Carrier.BaseURL != "" {
			opts = append(opts, carrier.WithRESTBaseURL(cfg.Carrier.BaseURL))
		}
		c, err := carrier.NewRESTClient(cfg.Carrier.SID, cfg.Carrier.Token, opts...)
		if err != nil {
			return nil, fmt.Errorf("create carrier client: %w", err)
		}
		d.dialer = c
		slog.Info("carrier client ready", "from_number", cfg.Carrier.FromNumber)
	}

	return d, nil
}

// managerConfig assembles the session manager configuration from the built
// dependencies and the public callback URLs.
func (d *dependencies) managerConfig(cfg *config.Config) session.ManagerConfig {
	mc := session.ManagerConfig{
		Model:           d.model,
		Voice:           d.voice,
		Instructions:    d.instructions,
		Classifier:      d.classifier,
		Executor:        d.exec,
		ExecutorTimeout: d.execTimeout,
		Transcriber:     d.transcriber,
		ExternalSTT:     cfg.ExternalSTT,
		Bridge:          cfg.Bridge,
		FromNumber:      cfg.Carrier.FromNumber,
		Notifier:        d.notifier,
	}
	if d.dialer != nil {
		mc.Dialer = d.dialer
	}
	if d.store != nil {
		mc.Store = d.store
	}
	if cfg.Server.PublicHost != "" {
		mc.VoiceWebhookURL = "https://" + cfg.Server.PublicHost + cfg.Server.WebhookPath
		mc.StatusWebhookURL = "https://" + cfg.Server.PublicHost + "/carrier/status"
	}
	return mc
}

// checkers builds the readiness checks for the configured dependencies.
func (d *dependencies) checkers() []health.Checker {
	var checks []health.Checker
	if d.store != nil {
		checks = append(checks, health.Checker{Name: "database", Check: d.store.Ping})
	}
	return checks
}

// close runs the registered closers in reverse order.
func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			slog.Warn("close error", "err", err)
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Phonio — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	if cfg.ModelB.Enabled {
		printRow("Model", "gemini-live", cfg.ModelB.Model)
	} else {
		printRow("Model", "openai-realtime", cfg.ModelA.Model)
	}
	if cfg.ExternalSTT.Enabled {
		printRow("External STT", "whisper", cfg.ExternalSTT.Language)
	} else {
		printRow("External STT", "", "")
	}
	if cfg.Executor.UseMCP {
		printRow("Executor", executorName(cfg), "mcp")
	} else {
		printRow("Executor", executorName(cfg), "")
	}
	printRow("Classifier", cfg.Classifier.Provider, cfg.Classifier.Model)
	if cfg.Notifier.DiscordToken != "" {
		printRow("Notifier", "discord", "")
	} else {
		printRow("Notifier", "log", "")
	}
	if cfg.Storage.DSN != "" {
		printRow("Call store", "postgres", "")
	} else {
		printRow("Call store", "", "")
	}
	if cfg.Server.PublicHost != "" {
		printRow("Public host", cfg.Server.PublicHost, "")
	}
	fmt.Printf("║  Listen addr  : %-22s ║\n", listenAddr(cfg))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(kind, name, detail string) {
	value := name
	if value == "" {
		value = "(disabled)"
	} else if detail != "" {
		value = name + " / " + detail
	}
	if len(value) > 22 {
		value = value[:19] + "…"
	}
	fmt.Printf("║  %-12s : %-22s ║\n", kind, value)
}

func executorName(cfg *config.Config) string {
	if cfg.Executor.Command == "" {
		return ""
	}
	return cfg.Executor.Command
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func listenAddr(cfg *config.Config) string {
	return fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
