package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, meta, err := Load(WithEnv(func(string) (string, bool) { return "", false }))
	require.NoError(t, err)
	require.Equal(t, DefaultHTTPAddr, cfg.HTTPAddr)
	require.Equal(t, DefaultUpstreamTimeout, cfg.UpstreamTimeout)
	require.Equal(t, SourceDefault, meta.Source("http_addr"))
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	env := map[string]string{
		"ORC_HTTP_ADDR":     ":9090",
		"ORC_CHUNK_SECONDS": "30",
		"ORC_CODEX_MOCK":    "true",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	cfg, meta, err := Load(WithEnv(lookup))
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr)
	require.Equal(t, 30, cfg.ChunkSeconds)
	require.True(t, cfg.CodexMock)
	require.Equal(t, SourceEnv, meta.Source("http_addr"))
}

func TestLoadFileBeatsDefaultsAndEnvBeatsFile(t *testing.T) {
	yamlBody := []byte("http_addr: \":7070\"\nchunk_seconds: 10\n")
	readFile := func(path string) ([]byte, error) {
		if path == "orchestrator.yaml" {
			return yamlBody, nil
		}
		return nil, os.ErrNotExist
	}
	env := map[string]string{"ORC_CHUNK_SECONDS": "45"}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg, meta, err := Load(WithFileReader(readFile), WithEnv(lookup))
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.HTTPAddr)
	require.Equal(t, SourceFile, meta.Source("http_addr"))
	require.Equal(t, 45, cfg.ChunkSeconds)
	require.Equal(t, SourceEnv, meta.Source("chunk_seconds"))
}

func TestLoadOverridesWinOverEverything(t *testing.T) {
	addr := ":6060"
	env := map[string]string{"ORC_HTTP_ADDR": ":9090"}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	cfg, meta, err := Load(WithEnv(lookup), WithOverrides(Overrides{HTTPAddr: &addr}))
	require.NoError(t, err)
	require.Equal(t, ":6060", cfg.HTTPAddr)
	require.Equal(t, SourceOverride, meta.Source("http_addr"))
}

func TestLoadInvalidEnvIntReturnsError(t *testing.T) {
	env := map[string]string{"ORC_CHUNK_SECONDS": "not-a-number"}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	_, _, err := Load(WithEnv(lookup))
	require.Error(t, err)
}

func TestLoadInvalidConfigPathPropagatesError(t *testing.T) {
	readFile := func(path string) ([]byte, error) { return nil, os.ErrPermission }
	_, _, err := Load(WithConfigPath("/etc/orchestrator.yaml"), WithFileReader(readFile))
	require.Error(t, err)
}
