// Voyaged is the multi-traveler trip negotiation daemon.
//
// It hosts negotiation sessions in which one agent per traveler deliberates
// over a shared trip, synthesizes candidate plans, collects approvals, and
// books the approved plan for every traveler concurrently.
//
// Usage:
//
//	# Start with defaults and a profiles file
//	voyaged --profiles ./profiles.yaml
//
//	# Point at a config file
//	voyaged --config ./config.yaml --profiles ./profiles.yaml
//
// Configuration is loaded from the YAML file and VOYAGED_* environment
// variables. See internal/config for the full mapping.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voyaged/internal/agent"
	"github.com/fyrsmithlabs/voyaged/internal/booking"
	"github.com/fyrsmithlabs/voyaged/internal/config"
	"github.com/fyrsmithlabs/voyaged/internal/execution"
	httpapi "github.com/fyrsmithlabs/voyaged/internal/http"
	"github.com/fyrsmithlabs/voyaged/internal/logging"
	"github.com/fyrsmithlabs/voyaged/internal/memory"
	"github.com/fyrsmithlabs/voyaged/internal/negotiation"
	"github.com/fyrsmithlabs/voyaged/internal/store"
	"github.com/fyrsmithlabs/voyaged/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config YAML")
	profilesPath := flag.String("profiles", "", "path to participant profiles YAML")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("voyaged %s (%s)\n", version, gitCommit)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	if err := run(ctx, *configPath, *profilesPath); err != nil {
		log.Fatalf("voyaged: %v", err)
	}
}

func run(ctx context.Context, configPath, profilesPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logging.Sync(logger) }()

	logger.Info("starting voyaged",
		zap.String("version", version),
		zap.String("commit", gitCommit),
	)

	tel, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	agentCfg := cfg.Agent
	if agentCfg.BaseURL == "" || agentCfg.Model == "" {
		fallback := agent.ConfigFromEnv()
		if agentCfg.BaseURL == "" {
			agentCfg.BaseURL = fallback.BaseURL
		}
		if agentCfg.Model == "" {
			agentCfg.Model = fallback.Model
		}
		if agentCfg.APIKey == "" {
			agentCfg.APIKey = fallback.APIKey
		}
		if agentCfg.Temperature == 0 {
			agentCfg.Temperature = fallback.Temperature
		}
	}

	memStore, err := memory.NewStore(cfg.Memory,
		chromem.NewEmbeddingFuncOpenAI(agentCfg.APIKey, chromem.EmbeddingModelOpenAI3Small),
		logger)
	if err != nil {
		return fmt.Errorf("creating memory store: %w", err)
	}

	var profiles []store.Profile
	if profilesPath != "" {
		profiles, err = store.LoadProfiles(profilesPath)
		if err != nil {
			return fmt.Errorf("loading profiles: %w", err)
		}
		for _, p := range profiles {
			if err := memStore.Seed(ctx, p.Participant, p.Memories); err != nil {
				// Memory is an enrichment; a seeding failure degrades
				// lookups, it does not stop the daemon.
				logger.Warn("seeding participant memories failed",
					zap.String("participant_id", p.ID),
					zap.Error(err),
				)
			}
		}
		logger.Info("participant profiles loaded",
			zap.Int("participants", len(profiles)),
		)
	}

	var searcher agent.WebSearcher
	if cfg.Search.Endpoint != "" {
		searcher = agent.NewSearchClient(cfg.Search, logger)
		logger.Info("web search enabled", zap.String("endpoint", cfg.Search.Endpoint))
	}

	client, err := agent.NewClient(agentCfg, memStore, searcher, logger)
	if err != nil {
		return fmt.Errorf("creating agent client: %w", err)
	}

	scheduler := negotiation.NewScheduler(client, cfg.Scheduler, logger)
	engine := negotiation.NewEngine(client, cfg.Synthesis, logger)
	booker := booking.New(cfg.Booking, logger)
	coordinator := execution.NewCoordinator(booker, cfg.Execution, logger)

	sessionStore, err := store.NewSessionStore(cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}

	service := httpapi.NewService(scheduler, engine, coordinator, sessionStore,
		store.Participants(profiles), cfg.Session, logger)
	metrics := httpapi.NewMetrics(logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server, err := httpapi.NewServer(service, metrics, logger, addr)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
