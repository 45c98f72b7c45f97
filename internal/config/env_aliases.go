package config

// DefaultEnvAliases returns the canonical alias map used to resolve legacy
// or shortened environment variable names to the canonical ORC_ prefix.
func DefaultEnvAliases() map[string][]string {
	aliases := map[string][]string{
		"ORC_ENVIRONMENT":          {"ENVIRONMENT", "NODE_ENV"},
		"ORC_LOG_LEVEL":            {"LOG_LEVEL"},
		"ORC_HTTP_ADDR":            {"HTTP_ADDR", "PORT"},
		"ORC_TOOLSVC_ADDR":         {"TOOLSVC_ADDR", "TOOLSVC_PORT"},
		"ORC_DATABASE_PATH":        {"DATABASE_PATH", "DB_PATH"},
		"ORC_UPSTREAM_TIMEOUT":     {"UPSTREAM_TIMEOUT_SECONDS"},
		"ORC_STAGE_TIMEOUT":        {"STAGE_TIMEOUT_SECONDS"},
		"ORC_CHUNK_SECONDS":        {"CHUNK_SECONDS"},
		"ORC_ASR_BASE_URL":         {"ASR_BASE_URL"},
		"ORC_REFINE_BASE_URL":      {"REFINE_BASE_URL"},
		"ORC_SUMMARIZER_BASE_URL":  {"SUMMARIZER_BASE_URL"},
		"ORC_TTS_BASE_URL":         {"TTS_BASE_URL"},
		"ORC_TOOLER_BASE_URL":      {"TOOLER_BASE_URL"},
		"ORC_BOT_CALLBACK_URL":     {"BOT_CALLBACK_URL"},
		"ORC_ARTIFACTS_ROOT":       {"ARTIFACTS_ROOT"},
		"ORC_TOOL_RUN_TAIL_LINES":  {"TOOL_RUN_TAIL_LINES"},
		"ORC_PRIVILEGE_USER":       {"PRIVILEGE_USER", "TOOL_RUN_USER"},
		"ORC_CODEX_HOME_DIR":       {"CODEX_HOME_DIR", "CODEX_HOME"},
		"ORC_CODEX_MOCK":           {"CODEX_MOCK"},
		"ORC_GIT_AUTO_PUSH":        {"GIT_AUTO_PUSH"},
		"ORC_OTLP_ENDPOINT":        {"OTEL_EXPORTER_OTLP_ENDPOINT", "OTLP_ENDPOINT"},
		"ORC_SERVICE_NAME":         {"OTEL_SERVICE_NAME", "SERVICE_NAME"},
	}

	out := make(map[string][]string, len(aliases))
	for key, list := range aliases {
		out[key] = append([]string(nil), list...)
	}
	return out
}

// AliasEnvLookup wraps lookup, trying canonical then each alias in order.
func AliasEnvLookup(lookup EnvLookup, aliases map[string][]string) EnvLookup {
	return func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		for _, alias := range aliases[key] {
			if v, ok := lookup(alias); ok {
				return v, true
			}
		}
		return "", false
	}
}

// DefaultEnvLookupWithAliases composes DefaultEnvLookup with DefaultEnvAliases.
func DefaultEnvLookupWithAliases() EnvLookup {
	return AliasEnvLookup(DefaultEnvLookup, DefaultEnvAliases())
}
