package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load constructs Config by merging defaults, an optional YAML file,
// environment variables, and caller overrides, in that precedence order.
func Load(opts ...Option) (Config, Metadata, error) {
	options := loadOptions{
		envLookup: DefaultEnvLookupWithAliases(),
		readFile:  os.ReadFile,
	}
	for _, opt := range opts {
		opt(&options)
	}

	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: time.Now()}
	cfg := Config{
		Environment:      "development",
		LogLevel:         "info",
		HTTPAddr:         DefaultHTTPAddr,
		ToolSvcAddr:      DefaultToolSvcAddr,
		DatabasePath:     DefaultDatabasePath,
		UpstreamTimeout:  DefaultUpstreamTimeout,
		StageTimeout:     DefaultStageTimeout,
		ChunkSeconds:     DefaultChunkSeconds,
		ArtifactsRoot:    DefaultArtifactsRoot,
		ToolRunTailLines: DefaultToolRunTailLines,
		ServiceName:      DefaultServiceName,
	}

	if err := applyFile(&cfg, &meta, options); err != nil {
		return Config{}, Metadata{}, err
	}
	if err := applyEnv(&cfg, &meta, options); err != nil {
		return Config{}, Metadata{}, err
	}
	applyOverrides(&cfg, &meta, options.overrides)

	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.LogLevel = strings.TrimSpace(cfg.LogLevel)
	if cfg.ChunkSeconds < 0 {
		cfg.ChunkSeconds = 0
	}
	if cfg.ToolRunTailLines <= 0 {
		cfg.ToolRunTailLines = DefaultToolRunTailLines
	}

	return cfg, meta, nil
}

func applyFile(cfg *Config, meta *Metadata, opts loadOptions) error {
	path := opts.configPath
	if path == "" {
		path = "orchestrator.yaml"
	}
	data, err := opts.readFile(path)
	if err != nil {
		if os.IsNotExist(err) || opts.configPath == "" {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	mergeFile(cfg, meta, fc)
	return nil
}

func applyEnv(cfg *Config, meta *Metadata, opts loadOptions) error {
	lookup := opts.envLookup
	setStr := func(field string, dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
			meta.sources[field] = SourceEnv
		}
	}
	setBool := func(field string, dst *bool, key string) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %s=%q as bool: %w", key, v, err)
		}
		*dst = b
		meta.sources[field] = SourceEnv
		return nil
	}
	setInt := func(field string, dst *int, key string) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s=%q as int: %w", key, v, err)
		}
		*dst = n
		meta.sources[field] = SourceEnv
		return nil
	}
	setSeconds := func(field string, dst *time.Duration, key string) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s=%q as seconds: %w", key, v, err)
		}
		*dst = time.Duration(n) * time.Second
		meta.sources[field] = SourceEnv
		return nil
	}

	setStr("environment", &cfg.Environment, "ORC_ENVIRONMENT")
	setStr("log_level", &cfg.LogLevel, "ORC_LOG_LEVEL")
	setStr("http_addr", &cfg.HTTPAddr, "ORC_HTTP_ADDR")
	setStr("toolsvc_addr", &cfg.ToolSvcAddr, "ORC_TOOLSVC_ADDR")
	setStr("database_path", &cfg.DatabasePath, "ORC_DATABASE_PATH")
	setStr("asr_base_url", &cfg.ASRBaseURL, "ORC_ASR_BASE_URL")
	setStr("refine_base_url", &cfg.RefineBaseURL, "ORC_REFINE_BASE_URL")
	setStr("summarizer_base_url", &cfg.SummarizerBaseURL, "ORC_SUMMARIZER_BASE_URL")
	setStr("tts_base_url", &cfg.TTSBaseURL, "ORC_TTS_BASE_URL")
	setStr("tooler_base_url", &cfg.ToolerBaseURL, "ORC_TOOLER_BASE_URL")
	setStr("bot_callback_url", &cfg.BotCallbackURL, "ORC_BOT_CALLBACK_URL")
	setStr("artifacts_root", &cfg.ArtifactsRoot, "ORC_ARTIFACTS_ROOT")
	setStr("privilege_user", &cfg.PrivilegeUser, "ORC_PRIVILEGE_USER")
	setStr("codex_home_dir", &cfg.CodexHomeDir, "ORC_CODEX_HOME_DIR")
	setStr("otlp_endpoint", &cfg.OTLPEndpoint, "ORC_OTLP_ENDPOINT")
	setStr("service_name", &cfg.ServiceName, "ORC_SERVICE_NAME")

	if err := setInt("chunk_seconds", &cfg.ChunkSeconds, "ORC_CHUNK_SECONDS"); err != nil {
		return err
	}
	if err := setInt("tool_run_tail_lines", &cfg.ToolRunTailLines, "ORC_TOOL_RUN_TAIL_LINES"); err != nil {
		return err
	}
	if err := setSeconds("upstream_timeout", &cfg.UpstreamTimeout, "ORC_UPSTREAM_TIMEOUT"); err != nil {
		return err
	}
	if err := setSeconds("stage_timeout", &cfg.StageTimeout, "ORC_STAGE_TIMEOUT"); err != nil {
		return err
	}
	if err := setBool("codex_mock", &cfg.CodexMock, "ORC_CODEX_MOCK"); err != nil {
		return err
	}
	if err := setBool("git_auto_push", &cfg.GitAutoPush, "ORC_GIT_AUTO_PUSH"); err != nil {
		return err
	}
	return nil
}

func applyOverrides(cfg *Config, meta *Metadata, overrides Overrides) {
	if overrides.HTTPAddr != nil {
		cfg.HTTPAddr = *overrides.HTTPAddr
		meta.sources["http_addr"] = SourceOverride
	}
	if overrides.DatabasePath != nil {
		cfg.DatabasePath = *overrides.DatabasePath
		meta.sources["database_path"] = SourceOverride
	}
	if overrides.LogLevel != nil {
		cfg.LogLevel = *overrides.LogLevel
		meta.sources["log_level"] = SourceOverride
	}
	if overrides.OTLPEndpoint != nil {
		cfg.OTLPEndpoint = *overrides.OTLPEndpoint
		meta.sources["otlp_endpoint"] = SourceOverride
	}
}
