package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedsa/pedsa/config"
	"github.com/pedsa/pedsa/pkg/corpus"
	"github.com/pedsa/pedsa/pkg/engine"
	"github.com/pedsa/pedsa/pkg/logger"
	"github.com/pedsa/pedsa/pkg/memory"
	memstore "github.com/pedsa/pedsa/pkg/storage/memory"
	"github.com/pedsa/pedsa/pkg/version"
)

const testCorpus = `entries:
  - id: 1
    content: 在上海开会
    location: 上海
    type: event
    keywords: [上海, 会议]
  - id: 2
    content: 北京的天气很好
    location: 北京
    emotions: [开心]
    keywords: [北京]
relations:
  - source: 上海
    target: 沪
    weight: 1
    equality: true
links:
  - source: 1
    target: 2
    weight: 0.2
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// run executes the root command and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "pedsa "+version.Version))

	out, err = run(t, "version", "--json")
	require.NoError(t, err)
	var build version.Build
	require.NoError(t, json.Unmarshal([]byte(out), &build))
	assert.Equal(t, version.Version, build.Version)
	assert.NotEmpty(t, build.GoVersion)
}

func TestQueryCmd(t *testing.T) {
	path := writeFile(t, "corpus.yaml", testCorpus)

	out, err := run(t, "query", "--corpus", path, "--top-k", "2", "沪")
	require.NoError(t, err)

	var res queryOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, engine.StatusOK, res.Status)
	require.NotEmpty(t, res.Hits)
	assert.LessOrEqual(t, len(res.Hits), 2)
	assert.Equal(t, int64(1), res.Hits[0].ID)
	assert.Equal(t, "上海", res.Hits[0].Location)
	assert.Contains(t, out, "在上海开会", "output keeps non-ASCII text unescaped")
}

func TestQueryCmd_Enhanced(t *testing.T) {
	corpusPath := writeFile(t, "corpus.yaml", testCorpus)
	queryPath := writeFile(t, "query.json",
		`{"original_query":"北京天气","terms":[{"term":"北京","weight":0.9}],"dimension_weights":{"emotional":0.5}}`)

	out, err := run(t, "query", "--corpus", corpusPath, "--enhanced", queryPath)
	require.NoError(t, err)

	var res queryOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, int64(2), res.Hits[0].ID)
	assert.Equal(t, []string{"joy"}, res.Hits[0].Emotions)
}

func TestQueryCmd_Errors(t *testing.T) {
	corpusPath := writeFile(t, "corpus.yaml", testCorpus)

	tests := []struct {
		name string
		args []string
	}{
		{"missing corpus flag", []string{"query", "上海"}},
		{"missing query text", []string{"query", "--corpus", corpusPath}},
		{"text with enhanced", []string{"query", "--corpus", corpusPath, "--enhanced", "q.json", "上海"}},
		{"negative top-k", []string{"query", "--corpus", corpusPath, "--top-k", "-1", "上海"}},
		{"corpus not found", []string{"query", "--corpus", filepath.Join(t.TempDir(), "nope.yaml"), "上海"}},
		{"bad enhanced file", []string{"query", "--corpus", corpusPath, "--enhanced", writeFile(t, "bad.json", "{")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestImportExport(t *testing.T) {
	corpusPath := writeFile(t, "corpus.yaml", testCorpus)
	db := filepath.Join(t.TempDir(), "db")
	outPath := filepath.Join(t.TempDir(), "export.json")

	out, err := run(t, "import", "--corpus", corpusPath, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 entries, 1 relations, 1 links")

	_, err = run(t, "export", "--db", db, "--out", outPath)
	require.NoError(t, err)

	f, err := corpus.Load(outPath)
	require.NoError(t, err)
	require.Len(t, f.Entries, 2)
	assert.Equal(t, int64(1), f.Entries[0].ID)
	assert.Equal(t, []string{"上海", "会议"}, f.Entries[0].Keywords)
	require.Len(t, f.Relations, 1)
	assert.True(t, f.Relations[0].Equality)
	require.Len(t, f.Links, 1)
	assert.Equal(t, 0.2, f.Links[0].Weight)
}

func TestExport_EmptyStore(t *testing.T) {
	_, err := run(t, "export", "--db", filepath.Join(t.TempDir(), "empty"))
	assert.ErrorContains(t, err, "no entries")
}

func TestOverrides(t *testing.T) {
	g := &globalFlags{logLevel: "debug", debug: true}
	f := &serveFlags{port: 9999, corpus: "seed.yaml"}

	got := g.overrides(f.overrides())
	assert.Equal(t, map[string]interface{}{
		"log.level":   "debug",
		"app.debug":   true,
		"server.port": 9999,
		"corpus.file": "seed.yaml",
	}, got)

	assert.Empty(t, (&globalFlags{}).overrides(nil))
}

func TestApplyHotReload(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryStorage()
	hubCfg := memory.DefaultHubConfig()
	hubCfg.AutoCompile = false
	hub := memory.NewHub(hubCfg, store, memory.WithLogger(logger.Nop()))
	require.NoError(t, hub.Start(ctx))
	t.Cleanup(func() {
		hub.Stop(ctx) //nolint:errcheck
		store.Close() //nolint:errcheck
	})

	log := logger.New(&logger.Config{Level: logger.InfoLevel, Format: "json", Writer: &bytes.Buffer{}})
	initial := config.DefaultConfig()
	apply := applyHotReload(initial, log, hub)

	next := config.DefaultConfig()
	next.Log.Level = "debug"
	next.Engine.Params.SeedCap = 7
	apply(next)

	assert.Equal(t, logger.DebugLevel, log.GetLevel())
	assert.Equal(t, 7, hub.Params().SeedCap)

	// Unchanged params are not pushed again.
	hub.UpdateParams(engine.DefaultParams())
	next2 := config.DefaultConfig()
	next2.Log.Level = "warn"
	next2.Engine.Params.SeedCap = 7
	apply(next2)
	assert.Equal(t, logger.WarnLevel, log.GetLevel())
	assert.Equal(t, engine.DefaultParams().SeedCap, hub.Params().SeedCap)
}
