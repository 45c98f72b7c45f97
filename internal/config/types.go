package config

import "time"

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceFile     ValueSource = "file"
	SourceEnv      ValueSource = "environment"
	SourceOverride ValueSource = "override"
)

const (
	DefaultUpstreamTimeout  = 20 * time.Second
	DefaultStageTimeout     = 20 * time.Second
	DefaultChunkSeconds     = 15
	DefaultToolRunTailLines = 200
	DefaultArtifactsRoot    = "./data/tool-runs"
	DefaultDatabasePath     = "./data/orchestrator.db"
	DefaultHTTPAddr         = ":8080"
	DefaultToolSvcAddr      = ":8081"
	DefaultServiceName      = "orchestrator-core"
)

// Config captures the settings shared by the tracker, tool supervisor, and
// combined orchestrator binaries.
type Config struct {
	Environment string `json:"environment" yaml:"environment"`
	LogLevel    string `json:"log_level" yaml:"log_level"`

	HTTPAddr       string `json:"http_addr" yaml:"http_addr"`
	ToolSvcAddr    string `json:"toolsvc_addr" yaml:"toolsvc_addr"`
	DatabasePath   string `json:"database_path" yaml:"database_path"`

	UpstreamTimeout time.Duration `json:"upstream_timeout" yaml:"upstream_timeout"`
	StageTimeout    time.Duration `json:"stage_timeout" yaml:"stage_timeout"`
	ChunkSeconds    int           `json:"chunk_seconds" yaml:"chunk_seconds"`

	ASRBaseURL        string `json:"asr_base_url" yaml:"asr_base_url"`
	RefineBaseURL     string `json:"refine_base_url" yaml:"refine_base_url"`
	SummarizerBaseURL string `json:"summarizer_base_url" yaml:"summarizer_base_url"`
	TTSBaseURL        string `json:"tts_base_url" yaml:"tts_base_url"`
	ToolerBaseURL     string `json:"tooler_base_url" yaml:"tooler_base_url"`
	BotCallbackURL    string `json:"bot_callback_url" yaml:"bot_callback_url"`

	ArtifactsRoot    string `json:"artifacts_root" yaml:"artifacts_root"`
	ToolRunTailLines int    `json:"tool_run_tail_lines" yaml:"tool_run_tail_lines"`
	PrivilegeUser    string `json:"privilege_user" yaml:"privilege_user"`

	CodexHomeDir string `json:"codex_home_dir" yaml:"codex_home_dir"`
	CodexMock    bool   `json:"codex_mock" yaml:"codex_mock"`
	GitAutoPush  bool   `json:"git_auto_push" yaml:"git_auto_push"`

	OTLPEndpoint string `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName  string `json:"service_name" yaml:"service_name"`
}

// Metadata records provenance per resolved field and is returned by Load;
// no HTTP route exposes it.
type Metadata struct {
	sources  map[string]ValueSource
	loadedAt time.Time
}

// Sources returns a copy of the provenance map.
func (m Metadata) Sources() map[string]ValueSource {
	if m.sources == nil {
		return map[string]ValueSource{}
	}
	out := make(map[string]ValueSource, len(m.sources))
	for k, v := range m.sources {
		out[k] = v
	}
	return out
}

// Source returns the origin for the given field name.
func (m Metadata) Source(field string) ValueSource {
	if src, ok := m.sources[field]; ok {
		return src
	}
	return SourceDefault
}

// LoadedAt returns when this configuration snapshot was built.
func (m Metadata) LoadedAt() time.Time { return m.loadedAt }

// Overrides conveys CLI-flag-derived values that take the highest precedence.
type Overrides struct {
	HTTPAddr     *string
	DatabasePath *string
	LogLevel     *string
	OTLPEndpoint *string
}

// EnvLookup resolves the value for an environment variable.
type EnvLookup func(string) (string, bool)
