package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/pagewarden/warden/internal/agent"
	"github.com/pagewarden/warden/internal/agent/providers"
	"github.com/pagewarden/warden/internal/agent/scriptqueue"
	"github.com/pagewarden/warden/internal/agent/tools"
	"github.com/pagewarden/warden/internal/auth"
	"github.com/pagewarden/warden/internal/config"
	"github.com/pagewarden/warden/internal/doctor"
	"github.com/pagewarden/warden/internal/networkcache"
	"github.com/pagewarden/warden/internal/transport"
)

const defaultConfigPath = "warden.yaml"

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "warden",
		Short: "Warden conversation orchestrator",
		Long: `Warden drives a browser-resident security-analysis agent: a streaming
model loop, a sequential tool-execution engine, and a deferred-execution
queue for running JavaScript in a remote page.`,
		Version:      versionString(),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd(), buildDoctorCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestrator's HTTP/WS server",
		Long: `Start the conversation orchestrator server.

The server will:
1. Load configuration from the specified file (or warden.yaml)
2. Construct the Model Client, Tool Executor, and Script Execution Queue
3. Start the conversation janitor
4. Serve the consumer API (start/get_updates/abort/cleanup) over HTTP and WS

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func buildDoctorCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and tool wiring without serving traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}

func runDoctor(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	toolRegistry, err := buildToolRegistry(networkcache.New(), scriptqueue.New(nil))
	if err != nil {
		return err
	}
	report := doctor.Run(cfg, toolRegistry)
	out := cmd.OutOrStdout()
	for _, c := range report.Checks {
		status := "ok"
		if !c.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(out, "[%s] %s: %s\n", status, c.Name, c.Detail)
	}
	if !report.Healthy() {
		return fmt.Errorf("doctor: one or more checks failed")
	}
	return nil
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting warden", "version", version, "commit", commit, "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	apiKey, err := cfg.APIKey()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics := agent.NewMetrics(registry)

	cache := networkcache.New()
	var queue *scriptqueue.Queue
	queue = scriptqueue.New(func() {
		logger.Debug("script execution expired")
		metrics.ScriptQueueDepth.Set(float64(queue.Depth()))
	})
	toolRegistry, err := buildToolRegistry(cache, queue)
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}

	client, err := providers.NewAnthropicClient(providers.AnthropicConfig{
		APIKey: apiKey, BaseURL: cfg.Model.BaseURL, Model: cfg.Model.Model, Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build model client: %w", err)
	}

	executor := agent.NewExecutor(toolRegistry, cfg.Executor.ToolTimeout, logger, metrics)
	convRegistry := agent.NewRegistry()

	orchestrator := agent.NewOrchestrator(agent.Config{
		Registry: convRegistry, Client: client, Executor: executor, Tools: toolRegistry,
		System:    systemPrompt,
		Model:     cfg.Model.Model,
		MaxTokens: cfg.Model.MaxTokens,

		MaxHistoryMessages: cfg.Loop.MaxHistoryMessages,
		MaxTurns:           cfg.Loop.MaxTurns,

		Logger:  logger,
		Metrics: metrics,
	})

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var janitor *agent.Janitor
	if cfg.Janitor.Enabled {
		janitor = agent.NewJanitor(convRegistry, cfg.Janitor.Interval, cfg.Janitor.TTL, logger)
		janitor.Start(ctx)
	}

	var authSvc *auth.Service
	if cfg.Auth.Enabled {
		authSvc = auth.NewService(cfg.Auth.JWTSecret, 24*time.Hour)
	}

	srv := transport.New(transport.Config{Orchestrator: orchestrator, Auth: authSvc, Logger: logger, Registry: registry})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(addr) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		if janitor != nil {
			janitor.Stop()
		}
		return srv.Shutdown()
	case err := <-errCh:
		return err
	}
}

// buildToolRegistry registers the eight tools spec §4.4 names.
func buildToolRegistry(cache *networkcache.Cache, queue *scriptqueue.Queue) (*agent.ToolRegistry, error) {
	reg := agent.NewToolRegistry()
	all := []agent.Tool{
		&tools.GetNetworkRequests{Cache: cache},
		&tools.GetRequestDetails{Cache: cache},
		&tools.GetRequestBodyChunk{Cache: cache},
		&tools.SearchRequests{Cache: cache},
		&tools.SearchRequestContent{Cache: cache},
		&tools.GetCacheStatistics{Cache: cache},
		&tools.ExposeRequestData{Cache: cache, Queue: queue},
		&tools.ExecuteJavaScript{Queue: queue},
	}
	for _, t := range all {
		if err := reg.Register(t); err != nil {
			return nil, fmt.Errorf("registering tool %q: %w", t.Name(), err)
		}
	}
	return reg, nil
}

const systemPrompt = `You are a security analysis assistant embedded in a browser extension.
You can inspect network traffic captured for the current page, expose
selected request/response data into the page for manual review, and execute
JavaScript in the page to gather additional context. Use tools precisely;
prefer the narrowest query that answers the question asked.`
