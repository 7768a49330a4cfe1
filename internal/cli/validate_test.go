package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var schemasDir = filepath.Join("..", "..", "schemas")

func writeCUE(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0644))
	}
	return dir
}

func runValidateCmd(t *testing.T, format string, verbose bool, dir string) (string, string, error) {
	t.Helper()
	buf, errBuf := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format, Verbose: verbose})
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{dir})
	err := cmd.Execute()
	return buf.String(), errBuf.String(), err
}

func TestValidateRealmSchemas(t *testing.T) {
	out, _, err := runValidateCmd(t, "text", false, schemasDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 8 component(s), 3 queries valid")
}

func TestValidateRealmSchemasJSON(t *testing.T) {
	out, _, err := runValidateCmd(t, "json", false, schemasDir)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Contains(t, resp.Data.Components, "TradeStatus")
	assert.ElementsMatch(t, []string{"OpenTrades", "FundedTrades", "Settled"}, resp.Data.Queries)
}

func TestValidateVerboseOutput(t *testing.T) {
	_, errOut, err := runValidateCmd(t, "text", true, schemasDir)
	require.NoError(t, err)
	assert.Contains(t, errOut, "CUE file(s)")
	assert.Contains(t, errOut, "component Balance")
}

func TestValidateNonExistentDirectory(t *testing.T) {
	out, _, err := runValidateCmd(t, "text", false, "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, out, "not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateEmptyDirectory(t *testing.T) {
	out, _, err := runValidateCmd(t, "text", false, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
	assert.Contains(t, out, "no CUE files found")
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "float field",
			src:  "package x\ncomponent: Price: fields: value: float\n",
			want: []string{ErrCodeInvalidType, "float types are forbidden"},
		},
		{
			name: "key not a field",
			src:  "package x\ncomponent: Balance: {keys: [\"owner\"], fields: amount: int}\n",
			want: []string{"E103"},
		},
		{
			name: "unknown component in query",
			src:  "package x\ncomponent: Owner: fields: address: string\nquery: Q: [{has: \"Nope\"}]\n",
			want: []string{"E111", "Nope"},
		},
		{
			name: "query starts with not",
			src:  "package x\ncomponent: Owner: fields: address: string\nquery: Q: [{not: \"Owner\"}]\n",
			want: []string{"E110"},
		},
		{
			name: "value does not fit schema",
			src:  "package x\ncomponent: Owner: fields: address: string\nquery: Q: [{has_value: {component: \"Owner\", value: {address: 1}}}]\n",
			want: []string{"E113"},
		},
		{
			name: "no components",
			src:  "package x\nquery: Q: [{has: \"Owner\"}]\n",
			want: []string{"E111"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeCUE(t, map[string]string{"schema.cue": tt.src})
			out, _, err := runValidateCmd(t, "text", false, dir)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, out, "✗ Validation failed")
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	dir := writeCUE(t, map[string]string{
		"a.cue": "package x\ncomponent: Price: fields: value: float\n",
		"b.cue": "package x\ncomponent: Owner: fields: address: string\nquery: Q: [{has: \"Nope\"}]\n",
	})

	out, _, err := runValidateCmd(t, "json", false, dir)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	assert.Len(t, resp.Data.Errors, 2)
}

func TestLoadSchemas_Query(t *testing.T) {
	res, errs := LoadSchemas(schemasDir, LoadModeFailFast)
	require.Empty(t, errs)

	q, ok := res.Query("FundedTrades")
	require.True(t, ok)
	assert.Len(t, q.Chain, 3)

	_, ok = res.Query("Missing")
	assert.False(t, ok)
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := []struct {
		field    string
		expected string
	}{
		{"fields", "E102"},
		{"keys", "E102"},
		{"type", "E107"},
		{"query", "E110"},
		{"unknown", "E001"},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapFieldToErrorCode(tt.field))
		})
	}
}
