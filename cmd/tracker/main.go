// Command tracker runs the Task Tracker HTTP surface together with the
// Pipeline Dispatcher: project and task CRUD, task status transitions, the
// task status history audit log, and the background worker that walks each
// created task through the refine/tool/summarize/deliver pipeline.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"orchestrator-core/internal/async"
	"orchestrator-core/internal/collaborators"
	"orchestrator-core/internal/config"
	"orchestrator-core/internal/dispatcher"
	"orchestrator-core/internal/httpapi"
	"orchestrator-core/internal/httpclient"
	"orchestrator-core/internal/httpserver"
	"orchestrator-core/internal/logging"
	"orchestrator-core/internal/metrics"
	"orchestrator-core/internal/store/sqlite"
	"orchestrator-core/internal/telemetry"
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
		Use:   "tracker",
		Short: "serves the orchestration core's Task Tracker API and pipeline worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to orchestrator.yaml")
	cmd.PersistentFlags().String("http-addr", "", "listen address, e.g. :8080")
	cmd.PersistentFlags().String("database-path", "", "sqlite database file path")
	cmd.PersistentFlags().String("log-level", "", "debug|info|warn|error")
	cmd.PersistentFlags().String("otlp-endpoint", "", "OTLP/HTTP trace exporter endpoint")
	_ = viper.BindPFlag("http_addr", cmd.PersistentFlags().Lookup("http-addr"))
	_ = viper.BindPFlag("database_path", cmd.PersistentFlags().Lookup("database-path"))
	_ = viper.BindPFlag("log_level", cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("otlp_endpoint", cmd.PersistentFlags().Lookup("otlp-endpoint"))
	return cmd
}

func loadConfig(configPath string) (config.Config, error) {
	overrides := config.Overrides{}
	if v := viper.GetString("http_addr"); v != "" {
		overrides.HTTPAddr = &v
	}
	if v := viper.GetString("database_path"); v != "" {
		overrides.DatabasePath = &v
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

func run(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.NewComponentLogger(logging.New(logging.Config{Level: parseLevel(cfg.LogLevel)}), "tracker")

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: cfg.ServiceName + "-tracker", Endpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer shutdownTelemetry(context.Background())

	st, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	m := metrics.New()
	collabClient := collaborators.NewClient(httpclient.New(cfg.UpstreamTimeout))
	collab := dispatcher.Collaborators{
		ASR:        &collaborators.ASR{BaseURL: cfg.ASRBaseURL, Client: collabClient},
		Refine:     &collaborators.Refine{BaseURL: cfg.RefineBaseURL, Client: collabClient},
		Summarizer: &collaborators.Summarizer{BaseURL: cfg.SummarizerBaseURL, Client: collabClient},
		TTS:        &collaborators.TTS{BaseURL: cfg.TTSBaseURL, Client: collabClient},
		Tooler:     &collaborators.Tooler{BaseURL: cfg.ToolerBaseURL, Client: collabClient},
	}
	callback := &collaborators.BotCallback{BaseURL: cfg.BotCallbackURL, Client: collabClient}

	pipeline := dispatcher.New(st, collab, callback, dispatcher.Config{
		ChunkSeconds: float64(cfg.ChunkSeconds), StageTimeout: cfg.StageTimeout,
	}, m, log, 0)
	async.Go(log, "dispatcher.run", func() { pipeline.Run(ctx) })

	server := &httpapi.TrackerServer{Store: st, Dispatcher: pipeline}
	handler := httpapi.Middleware(server.Router(), log, m)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Info("tracker starting", logging.Fields{"addr": cfg.HTTPAddr, "database": cfg.DatabasePath})
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
