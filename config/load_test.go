package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagewatch/pagewatch/errors"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalWatch = `{
	"name": "example",
	"url": "https://example.com",
	"extractors": [
		{"name": "title", "type": "text", "selector": "h1"}
	]
}`

func TestLoadFileJSON(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "example.json", minimalWatch)

	w, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "example", w.Name)
	assert.Equal(t, path, w.SourceFile)
	assert.NotEmpty(t, w.ContentHash)
	assert.Equal(t, FetchModeBrowser, w.EffectiveFetchMode())
	assert.True(t, w.IsEnabled())
}

func TestLoadFileYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "example.yaml", `
name: example
url: https://example.com
fetchMode: http
extractors:
  - name: price
    type: json
    path: items[0].price
`)

	w, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, FetchModeHTTP, w.EffectiveFetchMode())
	require.Len(t, w.Extractors, 1)
	assert.Equal(t, "items[0].price", w.Extractors[0].Path)
}

func TestWatchIDDerivedFromURL(t *testing.T) {
	w := &Watch{URL: "https://example.com"}
	id := w.WatchID()
	assert.Len(t, id, 8)
	assert.Equal(t, DeriveWatchID("https://example.com"), id)

	// Stable across calls and distinct per URL.
	assert.Equal(t, id, w.WatchID())
	assert.NotEqual(t, id, DeriveWatchID("https://example.org"))

	// Explicit id wins.
	w.ID = "my-watch"
	assert.Equal(t, "my-watch", w.WatchID())
}

func TestContentHashIgnoresBookkeeping(t *testing.T) {
	a := &Watch{Name: "x", URL: "https://example.com"}
	b := &Watch{Name: "x", URL: "https://example.com", SourceFile: "/tmp/a.json", ContentHash: "zzz"}

	ha, err := a.ComputeContentHash()
	require.NoError(t, err)
	hb, err := b.ComputeContentHash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	b.Name = "y"
	hc, err := b.ComputeContentHash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}

func TestValidateRejections(t *testing.T) {
	extractor := Extractor{Name: "t", Type: ExtractText, Selector: "h1"}

	tests := []struct {
		name  string
		watch Watch
	}{
		{"missing url", Watch{Name: "w", Extractors: []Extractor{extractor}}},
		{"no extractors", Watch{Name: "w", URL: "https://x"}},
		{"interval and schedule", Watch{Name: "w", URL: "https://x", IntervalMs: 60000, Schedule: "* * * * *", Extractors: []Extractor{extractor}}},
		{"bad fetch mode", Watch{Name: "w", URL: "https://x", FetchMode: "carrier-pigeon", Extractors: []Extractor{extractor}}},
		{"extractor missing name", Watch{Name: "w", URL: "https://x", Extractors: []Extractor{{Type: ExtractText, Selector: "h1"}}}},
		{"extractor missing type", Watch{Name: "w", URL: "https://x", Extractors: []Extractor{{Name: "t", Selector: "h1"}}}},
		{"extractor missing selector", Watch{Name: "w", URL: "https://x", Extractors: []Extractor{{Name: "t", Type: ExtractText}}}},
		{"attribute without attribute", Watch{Name: "w", URL: "https://x", Extractors: []Extractor{{Name: "t", Type: ExtractAttribute, Selector: "a"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.watch)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
		})
	}
}

func TestValidateSelectorlessTypes(t *testing.T) {
	w := Watch{
		Name: "w",
		URL:  "https://x",
		Extractors: []Extractor{
			{Name: "u", Type: ExtractURL},
			{Name: "t", Type: ExtractTitle},
			{Name: "j", Type: ExtractJSON, Path: "a.b"},
		},
	}
	assert.NoError(t, Validate(&w))
}

func TestLoadDirSkipsInvalid(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "good.json", minimalWatch)
	writeConfig(t, dir, "broken.json", `{"name": "broken"}`)
	writeConfig(t, dir, "notes.txt", "ignored entirely")

	watches, invalid, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, watches, 1)
	assert.Equal(t, "example", watches[0].Name)
	require.Len(t, invalid, 1)
	assert.Contains(t, invalid, "broken.json")
}

func TestLoadDirDeterministicOrder(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "b.json", `{"name":"b","url":"https://b","extractors":[{"name":"t","type":"text","selector":"h1"}]}`)
	writeConfig(t, dir, "a.json", `{"name":"a","url":"https://a","extractors":[{"name":"t","type":"text","selector":"h1"}]}`)

	watches, _, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, watches, 2)
	assert.Equal(t, "a", watches[0].Name)
	assert.Equal(t, "b", watches[1].Name)
}

func TestTransformSpecStringAndObjectForms(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "w.json", `{
		"name": "w",
		"url": "https://example.com",
		"extractors": [{
			"name": "items",
			"type": "text",
			"selector": "li",
			"transforms": [
				"trim",
				{"type": "slice", "start": 0, "end": 5}
			]
		}]
	}`)

	w, err := LoadFile(path)
	require.NoError(t, err)

	chain := w.Extractors[0].TransformChain()
	require.Len(t, chain, 2)
	assert.Equal(t, "trim", chain[0].Type)
	assert.Nil(t, chain[0].Options)
	assert.Equal(t, "slice", chain[1].Type)
	assert.Equal(t, float64(0), chain[1].Options["start"])
	assert.Equal(t, float64(5), chain[1].Options["end"])
}

func TestLegacySingleTransformForm(t *testing.T) {
	e := Extractor{
		Name:      "n",
		Type:      ExtractText,
		Selector:  "p",
		Transform: "parseNumber",
		Filter:    map[string]any{"ignored": true},
	}
	chain := e.TransformChain()
	require.Len(t, chain, 1)
	assert.Equal(t, "parseNumber", chain[0].Type)
	assert.Equal(t, e.Filter, chain[0].Options)
}

func TestIntervalAndTimeoutDefaults(t *testing.T) {
	w := &Watch{}
	assert.Equal(t, 60*time.Second, w.Timeout())
	assert.Equal(t, 5*time.Minute, w.Interval(5*time.Minute))

	w.TimeoutMs = 1500
	assert.Equal(t, 1500*time.Millisecond, w.Timeout())
	w.IntervalMs = 60000
	assert.Equal(t, time.Minute, w.Interval(0))
}
