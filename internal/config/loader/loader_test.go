package loader

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFS() FileSystem {
	return MapFS{FS: fstest.MapFS{
		"config.toml": {Data: []byte(`
[engine]
command = "clangd-17"
args = ["--background-index"]

[completer]
maxDiagnosticsToDisplay = 10
`)},
		"config.yaml": {Data: []byte(`
engine:
  command: clangd-17
  args: [--background-index]
completer:
  maxDiagnosticsToDisplay: 10
`)},
		"bad.toml":  {Data: []byte("[engine\ncommand = 1\n")},
		"bad.yaml":  {Data: []byte("engine: [unclosed\n")},
		"empty.yml": {Data: []byte("")},
	}}
}

func TestForPath(t *testing.T) {
	fsys := testFS()

	l, err := ForPath(fsys, "config.toml")
	require.NoError(t, err)
	assert.IsType(t, &TOMLLoader{}, l)

	l, err = ForPath(fsys, "CONFIG.YML")
	require.NoError(t, err)
	assert.IsType(t, &YAMLLoader{}, l)

	_, err = ForPath(fsys, "config.json")
	assert.ErrorContains(t, err, "unsupported")
}

func TestTOMLLoader_Load(t *testing.T) {
	cfg, err := NewTOMLLoaderWithFS(testFS(), "config.toml").Load()
	require.NoError(t, err)

	engine := cfg["engine"].(map[string]any)
	assert.Equal(t, "clangd-17", engine["command"])
	assert.Equal(t, []any{"--background-index"}, engine["args"])
	assert.EqualValues(t, 10, cfg["completer"].(map[string]any)["maxDiagnosticsToDisplay"])
}

func TestTOMLLoader_Missing(t *testing.T) {
	cfg, err := NewTOMLLoaderWithFS(testFS(), "nope.toml").Load()
	assert.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestTOMLLoader_ParseError(t *testing.T) {
	_, err := NewTOMLLoaderWithFS(testFS(), "bad.toml").Load()
	require.Error(t, err)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "bad.toml", perr.Path)
	assert.Equal(t, 1, perr.Line)
}

func TestTOMLLoader_LoadFromReader(t *testing.T) {
	cfg, err := NewTOMLLoader("").LoadFromReader(strings.NewReader(`[logging]
level = "debug"
`))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg["logging"].(map[string]any)["level"])
}

func TestYAMLLoader_Load(t *testing.T) {
	cfg, err := NewYAMLLoaderWithFS(testFS(), "config.yaml").Load()
	require.NoError(t, err)

	engine := cfg["engine"].(map[string]any)
	assert.Equal(t, "clangd-17", engine["command"])
	assert.Equal(t, []any{"--background-index"}, engine["args"])
	assert.Equal(t, 10, cfg["completer"].(map[string]any)["maxDiagnosticsToDisplay"])
}

func TestYAMLLoader_EmptyAndErrors(t *testing.T) {
	cfg, err := NewYAMLLoaderWithFS(testFS(), "empty.yml").Load()
	require.NoError(t, err)
	assert.Empty(t, cfg)
	assert.NotNil(t, cfg)

	_, err = NewYAMLLoaderWithFS(testFS(), "bad.yaml").Load()
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "bad.yaml", perr.Path)

	cfg, err = NewYAMLLoaderWithFS(testFS(), "missing.yaml").Load()
	assert.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestParseError_Error(t *testing.T) {
	assert.Equal(t, "parse error in a.toml at line 2, column 3: bad",
		(&ParseError{Path: "a.toml", Line: 2, Column: 3, Message: "bad"}).Error())
	assert.Equal(t, "parse error in a.toml at line 2: bad",
		(&ParseError{Path: "a.toml", Line: 2, Message: "bad"}).Error())
	assert.Equal(t, "parse error in a.toml: bad",
		(&ParseError{Path: "a.toml", Message: "bad"}).Error())
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]any{
		"engine":  map[string]any{"command": "clangd", "args": []any{"-j=4"}},
		"logging": map[string]any{"level": "info"},
	}
	src := map[string]any{
		"engine":  map[string]any{"command": "clangd-17"},
		"logging": "off",
		"flags":   map[string]any{"watch": true},
	}

	got := DeepMerge(dst, src)
	assert.Equal(t, map[string]any{
		"engine":  map[string]any{"command": "clangd-17", "args": []any{"-j=4"}},
		"logging": "off",
		"flags":   map[string]any{"watch": true},
	}, got)

	assert.Equal(t, map[string]any{"a": 1}, DeepMerge(nil, map[string]any{"a": 1}))
	assert.Equal(t, map[string]any{"a": 1}, DeepMerge(map[string]any{"a": 1}, nil))
}
