// Command toolsvc runs the Tool Run Supervisor HTTP surface: the adapter
// registry, synchronous /tooler/run, and the async tool-run lifecycle with
// artifact capture.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"orchestrator-core/internal/config"
	"orchestrator-core/internal/httpapi"
	"orchestrator-core/internal/httpclient"
	"orchestrator-core/internal/httpserver"
	"orchestrator-core/internal/logging"
	"orchestrator-core/internal/metrics"
	"orchestrator-core/internal/telemetry"
	"orchestrator-core/internal/toolsupervisor"
	"orchestrator-core/internal/toolsupervisor/adapters"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "toolsvc",
		Short: "serves the orchestration core's Tool Run Supervisor API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to orchestrator.yaml")
	cmd.PersistentFlags().String("http-addr", "", "listen address, e.g. :8081")
	cmd.PersistentFlags().String("log-level", "", "debug|info|warn|error")
	cmd.PersistentFlags().String("otlp-endpoint", "", "OTLP/HTTP trace exporter endpoint")
	_ = viper.BindPFlag("http_addr", cmd.PersistentFlags().Lookup("http-addr"))
	_ = viper.BindPFlag("log_level", cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("otlp_endpoint", cmd.PersistentFlags().Lookup("otlp-endpoint"))
	return cmd
}

func loadConfig(configPath string) (config.Config, error) {
	overrides := config.Overrides{}
	if v := viper.GetString("http_addr"); v != "" {
		overrides.HTTPAddr = &v
	}
	if v := viper.GetString("log_level"); v != "" {
		overrides.LogLevel = &v
	}
	if v := viper.GetString("otlp_endpoint"); v != "" {
		overrides.OTLPEndpoint = &v
	}

	opts := []config.Option{config.WithOverrides(overrides)}
	if configPath != "" {
		opts = append(opts, config.WithConfigPath(configPath))
	}
	cfg, _, err := config.Load(opts...)
	return cfg, err
}

func buildRegistry(cfg config.Config) *toolsupervisor.Registry {
	codexCfg := adapters.CodexConfig{HomeDir: cfg.CodexHomeDir, Mock: cfg.CodexMock}
	return toolsupervisor.NewRegistry(
		adapters.Dummy{},
		adapters.NewCodex(codexCfg),
		adapters.NewGitAutocommit(cfg.GitAutoPush),
	)
}

func run(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.NewComponentLogger(logging.New(logging.Config{Level: parseLevel(cfg.LogLevel)}), "toolsvc")

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: cfg.ServiceName + "-toolsvc", Endpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer shutdownTelemetry(context.Background())

	m := metrics.New()

	var privilege *toolsupervisor.PrivilegeDrop
	if cfg.PrivilegeUser != "" {
		privilege = &toolsupervisor.PrivilegeDrop{Username: cfg.PrivilegeUser}
	}
	sup := toolsupervisor.New(buildRegistry(cfg), toolsupervisor.Config{
		ArtifactsRoot: cfg.ArtifactsRoot,
		TailLines:     cfg.ToolRunTailLines,
		Privilege:     privilege,
		CallbackHTTP:  httpclient.New(cfg.UpstreamTimeout),
	}, log)

	server := &httpapi.ToolSupervisorServer{Supervisor: sup, TailLines: cfg.ToolRunTailLines}
	handler := httpapi.Middleware(server.Router(), log, m)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	log.Info("toolsvc starting", logging.Fields{"addr": cfg.HTTPAddr, "artifacts_root": cfg.ArtifactsRoot})
	return httpserver.Serve(ctx, httpServer, log)
}

func parseLevel(value string) logging.Level {
	switch value {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
