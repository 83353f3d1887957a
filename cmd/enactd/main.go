// Package main provides the entry point for enactd, the governance engine
// server: it composes the registry, safety primitives, oversight, and
// audit fan-out from configuration, then exposes them over the HTTP
// surface in internal/api.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/adriacb/enact/internal/api"
	"github.com/adriacb/enact/internal/audit"
	"github.com/adriacb/enact/internal/breaker"
	"github.com/adriacb/enact/internal/config"
	"github.com/adriacb/enact/internal/engine"
	"github.com/adriacb/enact/internal/oversight"
	"github.com/adriacb/enact/internal/policyconfig"
	"github.com/adriacb/enact/internal/quota"
	"github.com/adriacb/enact/internal/ratelimit"
	"github.com/adriacb/enact/internal/registry"
	pgregistry "github.com/adriacb/enact/internal/registry/postgres"
	"github.com/adriacb/enact/internal/telemetry"
	"github.com/adriacb/enact/internal/validate"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "enactd",
		Short: "Governance middleware for autonomous AI agent tool calls",
		Long: `enactd intercepts every tool call an autonomous agent attempts, runs it
through intent validation, policy evaluation, rate/quota/circuit-breaker
safeguards, and oversight gates, and audits every decision.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the enactd governance API server",
		RunE:  runServer,
	}
	serveCmd.Flags().StringP("config", "c", "", "Path to configuration file")
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().Bool("debug", false, "Enable debug logging")

	validateCmd := &cobra.Command{
		Use:   "validate [policy-file]",
		Short: "Validate a policy file's rules and regex patterns",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runValidate,
	}

	rootCmd.AddCommand(serveCmd, validateCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	debug, _ := cmd.Flags().GetBool("debug")
	configureLogging(debug)

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	port, _ := cmd.Flags().GetString("port")
	if port != "" {
		cfg.Server.Port = port
	}

	log.Info().Str("version", version).Str("port", cfg.Server.Port).Msg("starting enactd")

	ctx := context.Background()

	reg := registry.New()
	if cfg.Policy.FilePath != "" {
		pol, err := policyconfig.Load(cfg.Policy.FilePath)
		if err != nil {
			return fmt.Errorf("loading policy file: %w", err)
		}
		if err := reg.CreateGroup("default", pol); err != nil {
			return fmt.Errorf("seeding default group policy: %w", err)
		}
		log.Info().Str("file", cfg.Policy.FilePath).Msg("loaded default policy from file")
	}

	var pgDB *pgregistry.DB
	if cfg.Database.Enabled {
		dbCfg := pgregistry.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
		}
		db, err := pgregistry.New(ctx, dbCfg)
		if err != nil {
			log.Warn().Err(err).Msg("database connection failed, continuing with in-memory registry only")
		} else {
			defer db.Close()
			if err := db.Migrate(ctx); err != nil {
				log.Warn().Err(err).Msg("schema migration failed")
			}
			if err := pgregistry.LoadRegistry(ctx, db, reg); err != nil {
				log.Warn().Err(err).Msg("loading tool registry from database failed")
			}
			pgDB = db
		}
	}

	sinks, closeSinks, err := buildAuditSinks(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building audit sinks: %w", err)
	}
	defer closeSinks()

	if cfg.Audit.Postgres && pgDB != nil {
		sinks = append(sinks, audit.NewPostgresSink(pgDB.Pool))
	}

	var telemetryProvider *telemetry.Provider
	if cfg.OTEL.Enabled {
		telemetryProvider, err = telemetry.NewProvider(telemetry.Config{
			ServiceName:    cfg.OTEL.ServiceName,
			ServiceVersion: cfg.OTEL.ServiceVersion,
			OTLPEndpoint:   cfg.OTEL.Endpoint,
		})
		if err != nil {
			log.Warn().Err(err).Msg("telemetry provider setup failed, continuing without metrics/tracing")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetryProvider.Shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("telemetry shutdown error")
				}
			}()
			sinks = append(sinks, &telemetry.DecisionSink{Provider: telemetryProvider})
		}
	}

	fanOut := audit.NewFanOut(func(sinkName string, err error) {
		log.Error().Err(err).Str("sink", sinkName).Msg("audit sink failed")
	}, sinks...)

	rl := ratelimit.New(ratelimit.Config{
		MaxPerMinute: float64(cfg.RateLimit.MaxPerMinute),
		BurstSize:    float64(cfg.RateLimit.BurstSize),
	})

	qm := quota.New(quota.Config{
		MaxActions:  cfg.Quota.MaxRequests,
		WindowHours: cfg.Quota.Window.Hours(),
	})

	br := breaker.New(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		Timeout:          cfg.Breaker.Timeout,
	})

	validators := validate.NewPipeline(
		validate.Justification{
			MinLength:        cfg.Validation.MinJustificationLength,
			RequiredKeywords: cfg.Validation.RequiredKeywords,
		},
	)

	killSwitch := oversight.NewKillSwitch(func(active bool, reason string) {
		log.Warn().Bool("active", active).Str("reason", reason).Msg("kill-switch state changed")
	})

	approval := oversight.NewApprovalWorkflow(
		cfg.Oversight.HighRiskTools,
		compileHighRiskFunctions(cfg.Oversight.HighRiskFunctions),
		func(t *oversight.Ticket) {
			log.Info().Str("ticket_id", t.ID).Str("agent", t.AgentID).Str("tool", t.Tool).
				Msg("approval ticket created")
		},
	)

	confidence := oversight.NewConfidenceEscalation(
		oversight.ConfidenceThresholds{
			High:   cfg.Oversight.Confidence.High,
			Medium: cfg.Oversight.Confidence.Medium,
			Low:    cfg.Oversight.Confidence.Low,
		},
		nil,
	)

	eng := engine.New(engine.Config{
		Registry:    reg,
		Validators:  validators,
		RateLimiter: rl,
		Quota:       qm,
		Breaker:     br,
		KillSwitch:  killSwitch,
		Approval:    approval,
		Confidence:  confidence,
		Audit:       fanOut,
	})

	handlers := &api.Handlers{
		Engine:     eng,
		Registry:   reg,
		RateLimit:  rl,
		Quota:      qm,
		Breaker:    br,
		KillSwitch: killSwitch,
		Approval:   approval,
		DB:         pgDB,
	}

	deps := &api.RouterDeps{Handlers: handlers}
	if telemetryProvider != nil {
		httpMetrics, err := telemetry.NewHTTPMetrics(telemetryProvider.Meter())
		if err != nil {
			return fmt.Errorf("init http metrics: %w", err)
		}
		deps.HTTPMetrics = httpMetrics
		deps.Tracer = telemetryProvider.Tracer()
	}
	router := api.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutting down server...")
		if deps.StopRateLimiter != nil {
			deps.StopRateLimiter()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	configureLogging(false)

	for _, path := range args {
		log.Info().Str("file", path).Msg("validating policy file")
		if _, err := policyconfig.Load(path); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		log.Info().Str("file", path).Msg("policy file valid")
	}
	return nil
}

func configureLogging(debug bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
