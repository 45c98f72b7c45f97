package config

import "time"

// FileConfig mirrors Config for YAML decoding. Pointer fields distinguish
// "absent from file" from "explicitly zero", so the loader can tell whether
// a lower-precedence source should still apply.
type FileConfig struct {
	Environment *string `yaml:"environment"`
	LogLevel    *string `yaml:"log_level"`

	HTTPAddr     *string `yaml:"http_addr"`
	ToolSvcAddr  *string `yaml:"toolsvc_addr"`
	DatabasePath *string `yaml:"database_path"`

	UpstreamTimeoutSeconds *int `yaml:"upstream_timeout_seconds"`
	StageTimeoutSeconds    *int `yaml:"stage_timeout_seconds"`
	ChunkSeconds           *int `yaml:"chunk_seconds"`

	ASRBaseURL        *string `yaml:"asr_base_url"`
	RefineBaseURL     *string `yaml:"refine_base_url"`
	SummarizerBaseURL *string `yaml:"summarizer_base_url"`
	TTSBaseURL        *string `yaml:"tts_base_url"`
	ToolerBaseURL     *string `yaml:"tooler_base_url"`
	BotCallbackURL    *string `yaml:"bot_callback_url"`

	ArtifactsRoot    *string `yaml:"artifacts_root"`
	ToolRunTailLines *int    `yaml:"tool_run_tail_lines"`
	PrivilegeUser    *string `yaml:"privilege_user"`

	CodexHomeDir *string `yaml:"codex_home_dir"`
	CodexMock    *bool   `yaml:"codex_mock"`
	GitAutoPush  *bool   `yaml:"git_auto_push"`

	OTLPEndpoint *string `yaml:"otlp_endpoint"`
	ServiceName  *string `yaml:"service_name"`
}

func applyFileField(cfg *Config, meta *Metadata, field string, apply func()) {
	apply()
	meta.sources[field] = SourceFile
}

func mergeFile(cfg *Config, meta *Metadata, fc FileConfig) {
	if fc.Environment != nil {
		applyFileField(cfg, meta, "environment", func() { cfg.Environment = *fc.Environment })
	}
	if fc.LogLevel != nil {
		applyFileField(cfg, meta, "log_level", func() { cfg.LogLevel = *fc.LogLevel })
	}
	if fc.HTTPAddr != nil {
		applyFileField(cfg, meta, "http_addr", func() { cfg.HTTPAddr = *fc.HTTPAddr })
	}
	if fc.ToolSvcAddr != nil {
		applyFileField(cfg, meta, "toolsvc_addr", func() { cfg.ToolSvcAddr = *fc.ToolSvcAddr })
	}
	if fc.DatabasePath != nil {
		applyFileField(cfg, meta, "database_path", func() { cfg.DatabasePath = *fc.DatabasePath })
	}
	if fc.UpstreamTimeoutSeconds != nil {
		applyFileField(cfg, meta, "upstream_timeout", func() {
			cfg.UpstreamTimeout = time.Duration(*fc.UpstreamTimeoutSeconds) * time.Second
		})
	}
	if fc.StageTimeoutSeconds != nil {
		applyFileField(cfg, meta, "stage_timeout", func() {
			cfg.StageTimeout = time.Duration(*fc.StageTimeoutSeconds) * time.Second
		})
	}
	if fc.ChunkSeconds != nil {
		applyFileField(cfg, meta, "chunk_seconds", func() { cfg.ChunkSeconds = *fc.ChunkSeconds })
	}
	if fc.ASRBaseURL != nil {
		applyFileField(cfg, meta, "asr_base_url", func() { cfg.ASRBaseURL = *fc.ASRBaseURL })
	}
	if fc.RefineBaseURL != nil {
		applyFileField(cfg, meta, "refine_base_url", func() { cfg.RefineBaseURL = *fc.RefineBaseURL })
	}
	if fc.SummarizerBaseURL != nil {
		applyFileField(cfg, meta, "summarizer_base_url", func() { cfg.SummarizerBaseURL = *fc.SummarizerBaseURL })
	}
	if fc.TTSBaseURL != nil {
		applyFileField(cfg, meta, "tts_base_url", func() { cfg.TTSBaseURL = *fc.TTSBaseURL })
	}
	if fc.ToolerBaseURL != nil {
		applyFileField(cfg, meta, "tooler_base_url", func() { cfg.ToolerBaseURL = *fc.ToolerBaseURL })
	}
	if fc.BotCallbackURL != nil {
		applyFileField(cfg, meta, "bot_callback_url", func() { cfg.BotCallbackURL = *fc.BotCallbackURL })
	}
	if fc.ArtifactsRoot != nil {
		applyFileField(cfg, meta, "artifacts_root", func() { cfg.ArtifactsRoot = *fc.ArtifactsRoot })
	}
	if fc.ToolRunTailLines != nil {
		applyFileField(cfg, meta, "tool_run_tail_lines", func() { cfg.ToolRunTailLines = *fc.ToolRunTailLines })
	}
	if fc.PrivilegeUser != nil {
		applyFileField(cfg, meta, "privilege_user", func() { cfg.PrivilegeUser = *fc.PrivilegeUser })
	}
	if fc.CodexHomeDir != nil {
		applyFileField(cfg, meta, "codex_home_dir", func() { cfg.CodexHomeDir = *fc.CodexHomeDir })
	}
	if fc.CodexMock != nil {
		applyFileField(cfg, meta, "codex_mock", func() { cfg.CodexMock = *fc.CodexMock })
	}
	if fc.GitAutoPush != nil {
		applyFileField(cfg, meta, "git_auto_push", func() { cfg.GitAutoPush = *fc.GitAutoPush })
	}
	if fc.OTLPEndpoint != nil {
		applyFileField(cfg, meta, "otlp_endpoint", func() { cfg.OTLPEndpoint = *fc.OTLPEndpoint })
	}
	if fc.ServiceName != nil {
		applyFileField(cfg, meta, "service_name", func() { cfg.ServiceName = *fc.ServiceName })
	}
}
