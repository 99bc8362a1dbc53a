package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/shopper/am"
	"github.com/teranos/shopper/catalog"
	"github.com/teranos/shopper/tune"
)

func testConfig() *am.Config {
	return &am.Config{
		Pipeline: am.PipelineConfig{BatchSize: 20, Seed: 42, Limit: 100, FailFast: false},
		Paths:    am.PathsConfig{DataDir: "data"},
	}
}

func TestReadStageFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want stageFlags
	}{
		{
			name: "falls back to configuration",
			args: nil,
			want: stageFlags{output: filepath.Join("data", "out.jsonl"), limit: 100, batchSize: 20, seed: 42},
		},
		{
			name: "flags override configuration",
			args: []string{"-o", "x.jsonl", "--limit", "7", "--batch-size", "5", "--seed", "1", "--fail-fast", "--model", "m"},
			want: stageFlags{output: "x.jsonl", limit: 7, batchSize: 5, seed: 1, failFast: true, model: "m"},
		},
		{
			name: "explicit zero seed is kept",
			args: []string{"--seed", "0"},
			want: stageFlags{output: filepath.Join("data", "out.jsonl"), limit: 100, batchSize: 20, seed: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "stage"}
			addStageFlags(cmd, 0)
			require.NoError(t, cmd.ParseFlags(tt.args))

			got := readStageFlags(cmd, testConfig(), "out.jsonl")
			if got != tt.want {
				t.Errorf("readStageFlags() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInputArg(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, filepath.Join("data", productsCSV), inputArg(nil, cfg, productsCSV))
	assert.Equal(t, filepath.Join("data", productsCSV), inputArg([]string{""}, cfg, productsCSV))
	assert.Equal(t, "other.csv", inputArg([]string{"other.csv"}, cfg, productsCSV))
}

func TestTuneBuildRaw(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "shopper.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("[paths]\ndata_dir = \""+filepath.ToSlash(dir)+"\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, productsCSV), []byte(
		"product_id,product_name\n1,Whole Milk\n2,Sourdough Bread\n"), 0o644))

	am.Reset()
	am.SetConfigFile(configPath)
	t.Cleanup(am.Reset)

	TuneCmd.SetArgs([]string{"build", "raw", "--limit", "2"})
	require.NoError(t, TuneCmd.ExecuteContext(context.Background()))

	examples, err := catalog.ReadJSONL[tune.Example](filepath.Join(dir, "tune-raw.jsonl"))
	require.NoError(t, err)
	require.Len(t, examples, 2)
	assert.Equal(t, "", examples[0].Input)
	assert.True(t, strings.HasPrefix(examples[0].Output, "product_id"), examples[0].Output)
	assert.Equal(t, "1,Whole Milk", examples[1].Output)
}

func TestTuneBuild_UnknownKind(t *testing.T) {
	am.Reset()
	t.Cleanup(am.Reset)

	TuneCmd.SetArgs([]string{"build", "poems"})
	err := TuneCmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dataset kind")
}

func TestOpenSession_UsesLoadedConfig(t *testing.T) {
	// A config file on disk that disagrees with cfg must not be read again
	dir := t.TempDir()
	configPath := filepath.Join(dir, "shopper.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("[pipeline]\nsentences = 2\n"), 0o644))
	am.Reset()
	am.SetConfigFile(configPath)
	t.Cleanup(am.Reset)

	cfg := testConfig()
	cfg.Pipeline.Sentences = 4
	cfg.Pipeline.Concurrency = 2

	cmd := &cobra.Command{Use: "stage"}
	s, err := openSession(context.Background(), cmd, cfg, stageFlags{provider: "openrouter", batchSize: 5})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	assert.Same(t, cfg, s.cfg)
	assert.Equal(t, 4, s.gen.Sentences)
	assert.Equal(t, 5, s.gen.BatchSize)
	assert.Nil(t, s.db, "usage tracking is off in this configuration")

	_, err = openSession(context.Background(), cmd, nil, stageFlags{})
	assert.Error(t, err)
}
