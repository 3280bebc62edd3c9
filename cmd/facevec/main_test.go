package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestCommandsEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "facevec.yaml")
	dbPath := filepath.Join(dir, "features.db")
	encodings := filepath.Join(dir, "batch.jsonl")
	require.NoError(t, os.WriteFile(encodings, []byte(`{"identity":"child1","label":"child1_a.jpg","vector":[1,1]}
{"identity":"child1","label":"child1_b.jpg","vector":[1,3]}
{"identity":"child1","label":"child1_c.jpg","vector":[5,5]}
{"identity":"child2","label":"child2_a.jpg","vector":[10,10]}
{"identity":"child2","label":"child2_b.jpg","error":"no face detected"}
`), 0o644))
	common := []string{"--config", cfgPath, "--db", dbPath, "--log-level", "error"}
	cmd := func(args ...string) []string { return append(args, common...) }

	out := run(t, cmd("init")...)
	assert.Contains(t, out, dbPath)
	assert.FileExists(t, cfgPath)

	out = run(t, cmd("ingest", encodings)...)
	assert.Contains(t, out, "child1: 3 photos, 3 stored, 0 failed, aggregated")
	assert.Contains(t, out, "child2: 2 photos, 1 stored, 1 failed, aggregated")
	assert.Contains(t, out, "2 identities, 5 photos, 4 stored, 1 failed, 2 aggregated")

	out = run(t, cmd("identities")...)
	assert.Equal(t, "child1\nchild2\n", out)

	out = run(t, cmd("outliers", "child1", "--threshold", "2")...)
	assert.Contains(t, out, "from mean: 2")
	assert.Contains(t, out, "from median: 1")
	assert.Contains(t, out, "child1_c.jpg")

	out = run(t, cmd("report", "--threshold", "2", "--json")...)
	assert.Contains(t, out, `"total": 4`)
	assert.Contains(t, out, `"from_mean": 2`)

	out = run(t, cmd("match", "--vector", "1,3", "--reference", "median", "--max-distance", "0.5", "--index", "cover")...)
	assert.Contains(t, out, "child1")
	assert.NotContains(t, out, "child2")

	out = run(t, cmd("query", "SELECT identity_id, feature_dim(vector) FROM feature_records WHERE kind = 'Mean' ORDER BY id")...)
	assert.Regexp(t, `child1\s+2\n`, out)

	archivePath := filepath.Join(dir, "export.jsonl.zst")
	out = run(t, cmd("export", archivePath)...)
	assert.Contains(t, out, "exported 8 records")

	other := filepath.Join(dir, "copy.db")
	out = run(t, "import", archivePath, "--config", cfgPath, "--db", other, "--log-level", "error")
	assert.Contains(t, out, "imported 8 records")

	out = run(t, cmd("version")...)
	assert.Contains(t, out, "facevec "+version)
}

func TestIngestMergesIdentityAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.jsonl")
	second := filepath.Join(dir, "b.jsonl")
	require.NoError(t, os.WriteFile(first, []byte(`{"identity":"child1","label":"child1_a.jpg","vector":[1,1]}
{"identity":"child1","label":"child1_b.jpg","vector":[1,3]}
`), 0o644))
	require.NoError(t, os.WriteFile(second, []byte(`{"identity":"child1","label":"child1_c.jpg","vector":[5,5]}
`), 0o644))
	common := []string{"--config", filepath.Join(dir, "facevec.yaml"), "--db", filepath.Join(dir, "features.db"), "--log-level", "error"}
	cmd := func(args ...string) []string { return append(args, common...) }

	out := run(t, cmd("ingest", first, second)...)
	assert.Contains(t, out, "child1: 3 photos, 3 stored, 0 failed, aggregated")

	out = run(t, cmd("query", "SELECT kind, COUNT(*) FROM feature_records GROUP BY kind ORDER BY kind")...)
	assert.Regexp(t, `Mean\s+1\n`, out)
	assert.Regexp(t, `Median\s+1\n`, out)

	// Median [1,3] only leaves [5,5] beyond 2.
	out = run(t, cmd("outliers", "child1", "--threshold", "2")...)
	assert.Contains(t, out, "from mean: 2")
	assert.Contains(t, out, "from median: 1")

	run(t, cmd("query", "CREATE VIRTUAL TABLE IF NOT EXISTS fo USING feature_outliers(identity_id)")...)
	out = run(t, cmd("query", "SELECT source_label, reference FROM fo WHERE identity_id MATCH 'child1' AND threshold = 2")...)
	assert.Regexp(t, `child1_a\.jpg\s+mean\n`, out)
	assert.Regexp(t, `child1_c\.jpg\s+median\n`, out)
}

func TestParseVector(t *testing.T) {
	v, err := parseVector(" 1, 2.5 ,-3 ")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2.5, -3}, v)

	_, err = parseVector("1,x")
	assert.Error(t, err)
	_, err = parseVector(" , ")
	assert.Error(t, err)
}
