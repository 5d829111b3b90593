package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/helix/core/pkg/api"
	"github.com/Mindburn-Labs/helix/core/pkg/archive"
	"github.com/Mindburn-Labs/helix/core/pkg/config"
	"github.com/Mindburn-Labs/helix/core/pkg/knowledge"
	"github.com/Mindburn-Labs/helix/core/pkg/limiter"
	"github.com/Mindburn-Labs/helix/core/pkg/observability"
	"github.com/Mindburn-Labs/helix/core/pkg/pipeline"
	"github.com/Mindburn-Labs/helix/core/pkg/policy"
	"github.com/Mindburn-Labs/helix/core/pkg/promotion"
	"github.com/Mindburn-Labs/helix/core/pkg/store"
	"github.com/Mindburn-Labs/helix/core/pkg/store/queue"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable to allow mocking in tests
var startServer = runServer

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		// Default to server
		startServer()
		return 0
	}

	switch args[1] {
	case "decide":
		return runDecideCmd(args[2:], stdout, stderr)
	case "verify", "replay":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "server", "serve":
		startServer()
		return 0
	case "version":
		fmt.Fprintf(stdout, "helix %s\n", policy.EngineVersion)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1][0] == '-' {
			startServer()
			return 0
		}
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI Colors
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorGreen = "\033[32m"
	ColorBlue  = "\033[34m"
	ColorCyan  = "\033[36m"
	ColorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sHELIX Decision Core %sv%s%s\n", ColorBold+ColorBlue, ColorBold, policy.EngineVersion, ColorReset)
	fmt.Fprintf(w, "%sEvery answer carries its evidence.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  helix <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "CORE")
	printCommand(w, "server", "Run the decision server (default)")
	printCommand(w, "decide", "Arbitrate one request from a JSON file (--input, --registry)")

	printSection(w, "VERIFICATION")
	printCommand(w, "verify", "Recompute a stored decision's trace hash (--id, --db)")

	printSection(w, "UTILITIES")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-12s%s %s\n", ColorGreen, name, ColorReset, desc)
}

// openPostgresRegistry opens the registry and confirms the database is
// actually reachable before committing to it.
func openPostgresRegistry(ctx context.Context, dsn string) (*knowledge.PostgresRegistry, error) {
	pg, err := knowledge.OpenPostgresRegistry(dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := pg.Rows(pingCtx); err != nil {
		_ = pg.Close()
		return nil, err
	}
	return pg, nil
}

func loadRegistry(path string) (knowledge.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	return knowledge.LoadRegistry(data)
}

// loadProfile returns the named profile, or engine defaults with no
// high-stakes rules when the profiles directory does not exist.
func loadProfile(cfg *config.Config) (*policy.Profile, error) {
	if _, err := os.Stat(cfg.ProfilesDir); os.IsNotExist(err) {
		return &policy.Profile{
			Name:     "builtin-defaults",
			Pipeline: pipeline.DefaultPolicies(),
		}, nil
	}
	profiles, err := policy.LoadAll(cfg.ProfilesDir)
	if err != nil {
		return nil, err
	}
	p, ok := profiles[cfg.ProfileName]
	if !ok {
		return nil, fmt.Errorf("policy profile %q not found in %s", cfg.ProfileName, cfg.ProfilesDir)
	}
	return p, nil
}

func runServer() {
	fmt.Fprintf(os.Stdout, "%sHELIX Decision Core starting...%s\n", ColorBold+ColorBlue, ColorReset)
	ctx := context.Background()
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	profile, err := loadProfile(cfg)
	if err != nil {
		log.Fatalf("Failed to load policy profile: %v", err)
	}
	logger.Info("policy profile loaded", "profile", profile.Name, "version", profile.Version)

	if err := os.MkdirAll(filepath.Dir(cfg.ReceiptDB), 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// Knowledge registry: Postgres when DATABASE_URL is reachable,
	// otherwise the JSON file registry. The deep-work queue follows the
	// same split so multi-node deployments share one queue.
	var registry knowledge.Registry
	var deepWork queue.Queue
	if pg, err := openPostgresRegistry(ctx, cfg.DatabaseURL); err == nil {
		logger.Info("knowledge registry: postgres")
		registry = pg
		defer func() { _ = pg.Close() }()

		pq, err := queue.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open deep-work queue: %v", err)
		}
		deepWork = pq
	} else {
		logger.Info("knowledge registry: file", "path", cfg.RegistryPath, "postgres_error", err)
		registry, err = loadRegistry(cfg.RegistryPath)
		if err != nil {
			log.Fatalf("Failed to load knowledge registry: %v", err)
		}

		sq, err := queue.OpenSQLite(filepath.Join(filepath.Dir(cfg.ReceiptDB), "deepwork.db"))
		if err != nil {
			log.Fatalf("Failed to open deep-work queue: %v", err)
		}
		defer func() { _ = sq.Close() }()
		deepWork = sq
	}

	engine := pipeline.NewEngine(profile.Pipeline, registry)

	var highStakes *policy.HighStakesEvaluator
	if len(profile.HighStakesRules) > 0 {
		highStakes, err = policy.NewHighStakesEvaluator(profile.HighStakesRules)
		if err != nil {
			log.Fatalf("Failed to compile high-stakes rules: %v", err)
		}
	}

	receipts, err := store.Open(cfg.ReceiptDB)
	if err != nil {
		log.Fatalf("Failed to open receipt store: %v", err)
	}
	defer func() { _ = receipts.Close() }()

	blobStore, err := archive.NewStoreFromEnv(ctx)
	if err != nil {
		log.Fatalf("Failed to init archive store: %v", err)
	}

	var escStore limiter.Store
	if cfg.RedisAddr != "" {
		logger.Info("escalation windows: redis", "addr", cfg.RedisAddr)
		escStore = limiter.NewRedisStore(cfg.RedisAddr, os.Getenv("REDIS_PASSWORD"), 0)
	} else {
		escStore = limiter.NewMemoryStore()
	}
	escalation := limiter.New(escStore, limiter.DefaultEscalationPolicy())

	var attestor *promotion.Attestor
	if cfg.AttestSecret != "" {
		attestor = promotion.NewAttestor([]byte(cfg.AttestSecret), "helix-core")
	} else {
		logger.Warn("ATTESTATION_SECRET not set, promotions will not be attested")
	}

	obs, err := observability.New(ctx, observability.DefaultConfig())
	if err != nil {
		logger.Warn("telemetry disabled", "error", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = obs.Shutdown(shutdownCtx)
		}()
	}

	srv, err := api.NewServer(api.ServerConfig{
		Engine:     engine,
		Receipts:   receipts,
		Bundles:    archive.New(blobStore),
		Escalation: escalation,
		Attestor:   attestor,
		HighStakes: highStakes,
		DeepWork:   deepWork,
		Timeline:   observability.NewDecisionTimeline(),
		SLO:        observability.NewSLOTracker(),
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("Failed to build server: %v", err)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(api.NewGlobalRateLimiter(100, 200)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func writeResult(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
