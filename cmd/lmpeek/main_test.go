package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanvirparhar/lmpeek/pkg/export"
	"github.com/amanvirparhar/lmpeek/pkg/onnx"
)

func TestParseTokens(t *testing.T) {
	got, err := parseTokens(defaultTokens)
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{6601, 32704, 795, 30132, 2985, 284}}, got)

	got, err = parseTokens("1, 2; 3,4")
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{1, 2}, {3, 4}}, got)

	for _, bad := range []string{"", "1,x", "1,2;3", ";"} {
		_, err := parseTokens(bad)
		assert.Error(t, err, bad)
	}
}

func TestResolveModel(t *testing.T) {
	ctx := context.Background()

	m, err := (&modelFlags{model: "tiny"}).resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Layers)

	p := filepath.Join(t.TempDir(), "small.yaml")
	require.NoError(t, os.WriteFile(p, []byte("n_layer: 1\nn_head: 2\nn_embd: 8\nvocab_size: 16\nn_positions: 8\n"), 0o644))
	m, err = (&modelFlags{model: p}).resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "small", m.Name)
	assert.Equal(t, 2, m.Heads)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/configs/small.json" {
			fmt.Fprint(w, `{"n_layer": 3, "n_head": 1, "n_embd": 4, "vocab_size": 8, "n_positions": 4}`)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	m, err = (&modelFlags{model: "blob:configs/small.json", blobserver: srv.URL}).resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Layers)
	assert.Equal(t, "configs/small.json", m.Name)

	_, err = (&modelFlags{model: "blob:missing.json", blobserver: srv.URL}).resolve(ctx)
	assert.Error(t, err)
}

func TestExportCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "tiny.onnx")
	err := run(context.Background(), []string{"export", "--model", "tiny", "--tokens", "1,2,3", "--output", out, "--float16"})
	require.NoError(t, err)

	summary, err := onnx.ReadFile(out)
	require.NoError(t, err)
	assert.Len(t, summary.Outputs, 51)
	assert.Equal(t, "tiny", summary.Metadata["model"])
	assert.Equal(t, "2", summary.Metadata["layers"])
	assert.Equal(t, onnx.Float16, summary.Outputs[0].ElemType)

	var buf bytes.Buffer
	printSummary(&buf, summary)
	assert.Contains(t, buf.String(), "block_1_res_2")
	assert.Contains(t, buf.String(), "[batch, sequence, vocab]")
}

func TestExportCommandInvalidConfiguration(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"n_layer": -1, "n_head": 2, "n_embd": 8, "vocab_size": 16, "n_positions": 8}`), 0o644))
	out := filepath.Join(dir, "bad.onnx")

	err := run(context.Background(), []string{"export", "--model", p, "--output", out})
	require.Error(t, err)
	assert.Equal(t, "InvalidConfiguration", export.KindOf(err))

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPrintNames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printNames(&buf, 2, 2))

	out := buf.String()
	assert.Contains(t, out, "51 names (layers=2 heads=2)")
	lines := strings.Split(out, "\n")
	require.Greater(t, len(lines), 5)
	assert.Contains(t, lines[1], "tok_emb")
	assert.Contains(t, lines[4], "block_0_ln_1_output")
	assert.Contains(t, out, "2-dynamic-plus-feature")

	err := printNames(&buf, -1, 0)
	assert.Equal(t, "InvalidConfiguration", export.KindOf(err))
}

func TestValidateCommand(t *testing.T) {
	var buf bytes.Buffer
	err := runValidate(context.Background(), &buf, &validateOptions{modelFlags: modelFlags{model: "tiny"}, tokens: "1,2,3,4"})
	require.NoError(t, err)
	assert.Equal(t, "ok: 51 values and 51 names align for layers=2 heads=2\n", buf.String())
}
