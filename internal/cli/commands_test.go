package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kham/internal/dictionary"
	"github.com/hyperjump/kham/internal/query"
	"github.com/hyperjump/kham/internal/search"
	"github.com/hyperjump/kham/internal/segment"
)

// writeConfig writes a config that keeps its custom dictionary in dir.
func writeConfig(t *testing.T, dir string, customWords []string) string {
	t.Helper()
	custom := filepath.Join(dir, "custom.json")
	if customWords != nil {
		require.NoError(t, dictionary.SaveCustom(custom, customWords))
	}
	path := filepath.Join(dir, "config.yaml")
	content := "backend: bleve\ntokenizer:\n  custom_dictionary_path: custom.json\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTokenizeCommand_JSON(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), []string{"วากาเมะ"})

	out, err := execute(t, "", "tokenize", "--config", cfg, "--json", "สาหร่ายวากาเมะ")
	require.NoError(t, err)

	var res segment.TokenizationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, []string{"สาหร่าย", "วากาเมะ"}, res.Tokens)
	assert.Equal(t, []int{0, 7}, res.WordBoundaries)
	assert.Nil(t, res.ConfidenceScores)
}

func TestTokenizeCommand_CompoundText(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), nil)

	out, err := execute(t, "", "tokenize", "--config", cfg, "--compound", "--confidence", "การใช้งาน")
	require.NoError(t, err)
	assert.Contains(t, out, "การ | ใช้ | งาน")
	assert.Contains(t, out, "1.00")
}

func TestTokenizeCommand_Stdin(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), nil)

	out, err := execute(t, "ภาษาไทย\n", "tokenize", "--config", cfg, "-o", "json")
	require.NoError(t, err)

	var res segment.TokenizationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, "ภาษาไทย", res.OriginalText)
	assert.Equal(t, []string{"ภาษาไทย"}, res.Tokens)
}

func TestTokenizeCommand_UnknownFormat(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), nil)
	_, err := execute(t, "", "tokenize", "--config", cfg, "-o", "xml", "ภาษา")
	assert.Error(t, err)
}

func TestQueryCommand_JSON(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), nil)

	out, err := execute(t, "", "query", "--config", cfg, "--json", "API", "การใช้งาน")
	require.NoError(t, err)

	var res query.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, "API การใช้งาน", res.OriginalQuery)
	assert.NotEmpty(t, res.SearchVariants)
	require.Len(t, res.QueryTokens, 2)
	assert.Equal(t, query.TypeMixedScript, res.QueryTokens[0].QueryType)
}

func TestQueryCommand_RequiresQuery(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), nil)
	_, err := execute(t, "", "query", "--config", cfg)
	assert.Error(t, err)
}

func TestDictCommands(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, nil)
	custom := filepath.Join(dir, "custom.json")

	out, err := execute(t, "", "dict", "add", "--config", cfg, "วากาเมะ", "สลัด")
	require.NoError(t, err)
	assert.Contains(t, out, "2 word(s) changed")

	words, err := dictionary.LoadCustom(custom)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"วากาเมะ", "สลัด"}, words)

	out, err = execute(t, "", "dict", "add", "--config", cfg, "วากาเมะ")
	require.NoError(t, err)
	assert.Contains(t, out, "0 word(s) changed")

	out, err = execute(t, "", "dict", "remove", "--config", cfg, "สลัด")
	require.NoError(t, err)
	assert.Contains(t, out, "1 word(s) changed")

	out, err = execute(t, "", "dict", "list", "--config", cfg, "-o", "json")
	require.NoError(t, err)
	var info search.DictionaryInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info), out)
	assert.Equal(t, []string{"วากาเมะ"}, info.CustomWords)
	assert.Equal(t, 1, info.CustomCount)
}

func TestDictAdd_NoCustomDictionary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: bleve\n"), 0600))

	_, err := execute(t, "", "dict", "add", "--config", path, "คำ")
	assert.True(t, errors.Is(err, errNoCustomDictionary), "got %v", err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "kham version "+Version)
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"วากาเมะ"}, "วากาเมะ"},
		{[]string{"API", "การใช้งาน"}, "API การใช้งาน"},
		{[]string{"  padded ", ""}, "padded"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := buildQuery(tt.args); got != tt.want {
			t.Errorf("buildQuery(%q) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestInputText(t *testing.T) {
	got, err := inputText(strings.NewReader("ignored"), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "a b", got)

	got, err = inputText(strings.NewReader("ภาษาไทย\r\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, "ภาษาไทย", got)
}
