package corpus

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedsa/pedsa/pkg/engine"
	"github.com/pedsa/pedsa/pkg/storage"
)

const shanghaiYAML = `
entries:
  - id: 1
    content: 2024年1月1日在上海开会
    timestamp: 1704067200
    location: 上海
    type: event
    keywords: [上海, 会议]
  - id: 2
    content: 北京的天气很好
    location: 北京
    emotions: [joy]
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

func TestDecode_YAML(t *testing.T) {
	f, err := Decode(strings.NewReader(shanghaiYAML), FormatYAML)
	require.NoError(t, err)
	require.NoError(t, f.Validate())

	require.Len(t, f.Entries, 2)
	assert.Equal(t, []string{"上海", "会议"}, f.Entries[0].Keywords)
	assert.Equal(t, int64(1704067200), f.Entries[0].Timestamp)
	assert.Equal(t, []string{"joy"}, f.Entries[1].Emotions)
	assert.Equal(t, storage.Relation{Source: "上海", Target: "沪", Weight: 1, Equality: true}, f.Relations[0])
	assert.Equal(t, storage.Link{Source: 1, Target: 2, Weight: 0.2}, f.Links[0])
}

func TestDecode_EmptyYAML(t *testing.T) {
	f, err := Decode(strings.NewReader(""), FormatYAML)
	require.NoError(t, err)
	assert.Empty(t, f.Entries)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(strings.NewReader("{"), FormatJSON)
	var se *storage.SerializationError
	require.ErrorAs(t, err, &se)

	_, err = Decode(strings.NewReader("entries: [1, 2"), FormatYAML)
	require.ErrorAs(t, err, &se)

	_, err = Decode(strings.NewReader(""), Format("toml"))
	require.Error(t, err)
}

func TestWrite_RoundTripsBothFormats(t *testing.T) {
	src, err := Decode(strings.NewReader(shanghaiYAML), FormatYAML)
	require.NoError(t, err)

	for _, format := range []Format{FormatYAML, FormatJSON} {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, format, src))

		got, err := Decode(&buf, format)
		require.NoError(t, err)
		if diff := cmp.Diff(src, got); diff != "" {
			t.Errorf("%s round trip mismatch (-want +got):\n%s", format, diff)
		}
	}
}

func TestValidate(t *testing.T) {
	f := &File{
		Entries: []storage.Entry{
			{ID: 1, Content: "ok"},
			{ID: 1, Content: "dup"},
			{ID: 0, Content: "zero"},
			{ID: 3, Content: "   "},
		},
		Relations: []storage.Relation{
			{Source: "a", Target: "", Weight: 0.5},
			{Source: "a", Target: "b", Weight: 1.5},
		},
		Links: []storage.Link{{Source: 1, Target: 3, Weight: -0.1}},
	}

	err := f.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "entry already exists: 1")
	assert.Contains(t, msg, "entries[2]: id must be positive")
	assert.Contains(t, msg, "entries[3]: content is empty")
	assert.Contains(t, msg, "relations[0]: source and target are required")
	assert.Contains(t, msg, "relations[1]: weight 1.5 outside [0,1]")
	assert.Contains(t, msg, "links[0]: weight -0.1 outside [0,1]")

	var dup *storage.DuplicateKeyError
	assert.ErrorAs(t, err, &dup)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "corpus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(shanghaiYAML), 0o644))
	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Entries, 2)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"entries":[{"id":-1,"content":"x"}]}`), 0o644))
	_, err = Load(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.json")

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFromPath("a/b.JSON"))
	assert.Equal(t, FormatYAML, FormatFromPath("a/b.yml"))
	assert.Equal(t, FormatYAML, FormatFromPath("corpus"))
}

func TestBuild(t *testing.T) {
	f, err := Decode(strings.NewReader(shanghaiYAML), FormatYAML)
	require.NoError(t, err)

	eng := engine.New()
	Build(eng, f, 1)
	require.True(t, eng.Compiled())

	stats := eng.Stats()
	assert.Equal(t, 2, stats.Events)
	assert.Equal(t, 4, stats.Features)
	assert.Equal(t, 1, stats.Timeline)

	res := eng.Retrieve("沪", 3)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, engine.NodeID(1), res.Hits[0].NodeID)

	entry, ok := res.Hits[0].Ref.(*storage.Entry)
	require.True(t, ok)
	assert.Equal(t, "上海", entry.Location)
}

func TestDecode_MissingWeightDefaults(t *testing.T) {
	const doc = `
entries:
  - id: 1
    content: 在上海开会
    keywords: [上海]
  - id: 2
    content: 会后吃饭
relations:
  - source: 上海
    target: 沪
    equality: true
  - source: 上海
    target: 申
    weight: 0
links:
  - source: 1
    target: 2
`
	tests := []struct {
		name   string
		format Format
		doc    string
	}{
		{"yaml", FormatYAML, doc},
		{"json", FormatJSON, `{
			"entries": [{"id": 1, "content": "在上海开会", "keywords": ["上海"]}, {"id": 2, "content": "会后吃饭"}],
			"relations": [{"source": "上海", "target": "沪", "equality": true}, {"source": "上海", "target": "申", "weight": 0}],
			"links": [{"source": 1, "target": 2}]
		}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Decode(strings.NewReader(tt.doc), tt.format)
			require.NoError(t, err)
			require.NoError(t, f.Validate())

			require.Len(t, f.Relations, 2)
			assert.Equal(t, storage.DefaultWeight, f.Relations[0].Weight)
			assert.Equal(t, 0.0, f.Relations[1].Weight, "an explicit zero is kept")
			require.Len(t, f.Links, 1)
			assert.Equal(t, storage.DefaultWeight, f.Links[0].Weight)

			eng := engine.New()
			Build(eng, f, 1)

			res := eng.Retrieve("沪", 5)
			ids := make([]engine.NodeID, 0, len(res.Hits))
			for _, h := range res.Hits {
				ids = append(ids, h.NodeID)
			}
			assert.ElementsMatch(t, []engine.NodeID{1, 2}, ids, "energy flows over both defaulted edges")
		})
	}
}
