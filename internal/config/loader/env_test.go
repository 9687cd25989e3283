package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envLoader(vars ...string) *EnvLoader {
	l := NewEnvLoader("CLANGCOMPLETE_")
	l.environ = func() []string { return vars }
	return l
}

func TestEnvLoader_Load(t *testing.T) {
	l := envLoader(
		"CLANGCOMPLETE_ENGINE_COMMAND=clangd-17",
		"CLANGCOMPLETE_ENGINE_REQUEST_TIMEOUT=5s",
		"CLANGCOMPLETE_COMPLETER_MAX_DIAGNOSTICS_TO_DISPLAY=5",
		"CLANGCOMPLETE_FLAGS_WATCH=false",
		`CLANGCOMPLETE_COMPLETER_FILETYPES=["c","cpp"]`,
		"HOME=/root",
		"BROKEN",
	)

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"engine": map[string]any{
			"command":        "clangd-17",
			"requestTimeout": "5s",
		},
		"completer": map[string]any{
			"maxDiagnosticsToDisplay": int64(5),
			"filetypes":               []any{"c", "cpp"},
		},
		"flags": map[string]any{"watch": false},
	}, cfg)
}

func TestEnvLoader_Mapping(t *testing.T) {
	l := envLoader("CLANGCOMPLETE_LOG_LEVEL=debug")
	l.AddMapping("CLANGCOMPLETE_LOG_LEVEL", "logging.level")

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg["logging"].(map[string]any)["level"])
}

func TestEnvLoader_RealEnvironment(t *testing.T) {
	t.Setenv("CLANGCOMPLETE_FLAGS_SCRIPT", "/tmp/x.lua")

	cfg, err := NewEnvLoader("CLANGCOMPLETE_").Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.lua", cfg["flags"].(map[string]any)["script"])
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"", ""},
		{"yes", true},
		{"OFF", false},
		{"42", int64(42)},
		{"1.5", 1.5},
		{"2s", "2s"},
		{`{"c":["-Wall"]}`, map[string]any{"c": []any{"-Wall"}}},
		{"[oops", "[oops"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseValue(tt.in))
		})
	}
}
