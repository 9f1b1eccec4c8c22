// Evidenced answers natural-language health questions from open-access
// biomedical literature.
//
// The daemon exposes an HTTP API: POST /v1/answer runs the full pipeline
// (moderation, query expansion, Europe PMC retrieval, evidence assembly,
// summarization) and GET /v1/drug-events/{drug} reports openFDA FAERS
// adverse-event counts.
//
// Configuration comes from an optional YAML file plus EVIDENCED_-prefixed
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start with defaults (requires EVIDENCED_LLM_API_KEY)
//	evidenced
//
//	# Start with a config file
//	evidenced -config /etc/evidenced/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/evidenced/internal/anonymize"
	"github.com/fyrsmithlabs/evidenced/internal/assemble"
	"github.com/fyrsmithlabs/evidenced/internal/config"
	"github.com/fyrsmithlabs/evidenced/internal/drugevents"
	"github.com/fyrsmithlabs/evidenced/internal/embeddings"
	"github.com/fyrsmithlabs/evidenced/internal/expand"
	"github.com/fyrsmithlabs/evidenced/internal/literature"
	"github.com/fyrsmithlabs/evidenced/internal/logging"
	"github.com/fyrsmithlabs/evidenced/internal/memory"
	"github.com/fyrsmithlabs/evidenced/internal/memstore"
	"github.com/fyrsmithlabs/evidenced/internal/moderation"
	"github.com/fyrsmithlabs/evidenced/internal/pipeline"
	"github.com/fyrsmithlabs/evidenced/internal/summarize"
	"github.com/fyrsmithlabs/evidenced/pkg/server"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  evidenced           Start the evidenced daemon\n")
			fmt.Fprintf(os.Stderr, "  evidenced version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("evidenced\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("starting evidenced",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("llm_provider", cfg.LLM.Provider),
		logging.Secret("llm_api_key", cfg.LLM.APIKey),
	)

	orchestrator, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}

	events := drugevents.NewClient(cfg.DrugEvents.BaseURL, cfg.DrugEvents.Timeout, logger)

	srv, err := server.New(orchestrator, events, logger, server.Config{
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	return srv.Start(ctx)
}

// buildPipeline constructs the answer pipeline from configuration.
func buildPipeline(cfg *config.Config, logger *zap.Logger) (*pipeline.Orchestrator, error) {
	completer, err := summarize.NewCompleter(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	summarizer, err := summarize.New(completer, logger)
	if err != nil {
		return nil, fmt.Errorf("creating summarizer: %w", err)
	}

	// One limiter for all sessions: the Europe PMC budget is process-wide.
	limiter := rate.NewLimiter(rate.Limit(cfg.Literature.RateLimit), cfg.Literature.Burst)
	client, err := literature.NewClient(literature.ClientConfig{
		BaseURL: cfg.Literature.BaseURL,
		Timeout: cfg.Literature.Timeout,
	}, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("creating literature client: %w", err)
	}

	retriever := literature.NewRetriever(client, literature.RetrieverConfig{
		MaxPerQuery:    cfg.Literature.MaxPerQuery,
		MaxTotal:       cfg.Literature.MaxTotal,
		PageSize:       cfg.Literature.PageSize,
		OpenAccessOnly: cfg.Literature.OpenAccessOnly,
		MaxRetries:     cfg.Literature.MaxRetries,
	}, logger)

	scrubber := anonymize.New()
	assembler := assemble.New(scrubber, assemble.Config{
		TokenBudget:   cfg.Context.TokenBudget,
		MaxSpanTokens: cfg.Context.MaxSpanTokens,
	}, logger)

	deps := pipeline.Deps{
		Gate:       moderation.New(cfg.Moderation.Enabled, logger),
		Expander:   expand.NewLLM(completer, logger),
		Scrubber:   scrubber,
		Retriever:  retriever,
		Assembler:  assembler,
		Summarizer: summarizer,
	}

	if cfg.Memory.HistoryDir != "" {
		store, err := memory.NewFileStore(cfg.Memory.HistoryDir, logger)
		if err != nil {
			return nil, fmt.Errorf("creating history store: %w", err)
		}
		deps.Store = store
	}

	if cfg.Cache.Enabled {
		cache, err := buildCache(cfg.Cache, logger)
		if err != nil {
			return nil, fmt.Errorf("creating article cache: %w", err)
		}
		deps.Cache = cache
	}

	return pipeline.New(deps, pipeline.Config{
		MaxTurns:    cfg.Memory.MaxTurns,
		RecentTurns: cfg.Memory.RecentTurns,
	}, logger)
}

func buildCache(cfg config.CacheConfig, logger *zap.Logger) (*memstore.Store, error) {
	embeddingSvc, err := embeddings.New(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	return memstore.New(memstore.Config{
		Path:       cfg.Path,
		Collection: cfg.Collection,
		TopK:       cfg.TopK,
		Threshold:  float32(cfg.Threshold),
	}, embeddingSvc.Embedder(), logger)
}
