package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestResolvePath(t *testing.T) {
	doc := decode(t, `{
		"items": [
			{"price": 9.99, "tags": ["a", "b"]},
			{"price": 19.99}
		],
		"meta": {"total": 2}
	}`)

	tests := []struct {
		path string
		want any
	}{
		{"items[0].price", 9.99},
		{"$.items[1].price", 19.99},
		{"meta.total", float64(2)},
		{"items[0].tags[1]", "b"},
		{"", doc},
		{"$", doc},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolvePath(doc, tt.path), "path %q", tt.path)
	}
}

func TestResolvePathMisses(t *testing.T) {
	doc := decode(t, `{"a": [1, 2]}`)

	assert.Nil(t, ResolvePath(doc, "missing"))
	assert.Nil(t, ResolvePath(doc, "a[5]"))
	assert.Nil(t, ResolvePath(doc, "a[-1]"))
	assert.Nil(t, ResolvePath(doc, "a.b"))
	assert.Nil(t, ResolvePath(nil, "a"))
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "42", Stringify(float64(42)))
	assert.Equal(t, "3.14", Stringify(3.14))
	assert.Equal(t, "hello", Stringify("hello"))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, `["a","b"]`, Stringify([]any{"a", "b"}))
	assert.Equal(t, "", Stringify(nil))
}

func TestParseFloat(t *testing.T) {
	f, ok := ParseFloat("42.5")
	require.True(t, ok)
	assert.Equal(t, 42.5, f)

	f, ok = ParseFloat("17 in stock")
	require.True(t, ok)
	assert.Equal(t, 17.0, f)

	_, ok = ParseFloat("no digits here")
	assert.False(t, ok)

	f, ok = ParseFloat(float64(3))
	require.True(t, ok)
	assert.Equal(t, 3.0, f)
}
