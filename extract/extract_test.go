package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagewatch/pagewatch/browser"
	"github.com/pagewatch/pagewatch/config"
	"github.com/pagewatch/pagewatch/errors"
)

type pageNode struct {
	text  string
	html  string
	attrs map[string]string
}

func (n pageNode) TextContent() (string, error) { return n.text, nil }
func (n pageNode) InnerText() (string, error)   { return n.text, nil }
func (n pageNode) GetAttribute(name string) (string, error) {
	return n.attrs[name], nil
}
func (n pageNode) InnerHTML() (string, error)  { return n.html, nil }
func (n pageNode) OuterHTML() (string, error)  { return "<x>" + n.html + "</x>", nil }
func (n pageNode) InputValue() (string, error) { return n.attrs["value"], nil }

type scriptedPage struct {
	nodes      map[string][]pageNode
	frames     []*scriptedFrame
	url        string
	title      string
	evalResult any
	evalErr    error
	shots      []string
}

func (p *scriptedPage) Goto(url string, opts browser.GotoOptions) error              { return nil }
func (p *scriptedPage) WaitForSelector(selector string, timeout time.Duration) error { return nil }
func (p *scriptedPage) WaitForNavigation(timeout time.Duration) error                { return nil }
func (p *scriptedPage) WaitForTimeout(d time.Duration)                               {}

func (p *scriptedPage) QueryAll(selector string) ([]browser.Element, error) {
	nodes := p.nodes[selector]
	out := make([]browser.Element, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}
	return out, nil
}

func (p *scriptedPage) Evaluate(script string) (any, error) { return p.evalResult, p.evalErr }

func (p *scriptedPage) Frames() []browser.Frame {
	out := make([]browser.Frame, len(p.frames))
	for i, f := range p.frames {
		out[i] = f
	}
	return out
}

func (p *scriptedPage) URL() string            { return p.url }
func (p *scriptedPage) Title() (string, error) { return p.title, nil }

func (p *scriptedPage) Screenshot(path string, full bool) error {
	p.shots = append(p.shots, path)
	return nil
}

func (p *scriptedPage) BlockResources(types []string) error               { return nil }
func (p *scriptedPage) Click(selector string) error                       { return nil }
func (p *scriptedPage) Fill(selector, value string) error                 { return nil }
func (p *scriptedPage) TypeText(selector, t string, d time.Duration) error { return nil }
func (p *scriptedPage) Press(key string) error                            { return nil }
func (p *scriptedPage) SelectOption(selector, value string) error         { return nil }
func (p *scriptedPage) Hover(selector string) error                       { return nil }
func (p *scriptedPage) ScrollIntoView(selector string) error              { return nil }
func (p *scriptedPage) ScrollBy(x, y int) error                           { return nil }
func (p *scriptedPage) Close() error                                      { return nil }

type scriptedFrame struct {
	nodes map[string][]pageNode
}

func (f *scriptedFrame) QueryAll(selector string) ([]browser.Element, error) {
	nodes := f.nodes[selector]
	out := make([]browser.Element, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}
	return out, nil
}

func (f *scriptedFrame) Click(selector string) error { return nil }

func testEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(t.TempDir(), zap.NewNop().Sugar())
}

func TestTextExtractionTrims(t *testing.T) {
	p := &scriptedPage{nodes: map[string][]pageNode{
		"h1": {{text: "  Hello World \n"}},
	}}

	snap := testEngine(t).Run(p, "deadbeef", []config.Extractor{
		{Name: "title", Type: config.ExtractText, Selector: "h1"},
	})
	assert.Equal(t, []any{"Hello World"}, snap["title"])
}

func TestMultipleMatches(t *testing.T) {
	p := &scriptedPage{nodes: map[string][]pageNode{
		"li": {{text: "one"}, {text: "two"}, {text: "three"}},
	}}

	snap := testEngine(t).Run(p, "deadbeef", []config.Extractor{
		{Name: "items", Type: config.ExtractText, Selector: "li"},
	})
	assert.Equal(t, []any{"one", "two", "three"}, snap["items"])
}

func TestAttributeExtraction(t *testing.T) {
	p := &scriptedPage{nodes: map[string][]pageNode{
		"a.download": {{attrs: map[string]string{"href": "/file.zip"}}},
	}}

	snap := testEngine(t).Run(p, "deadbeef", []config.Extractor{
		{Name: "link", Type: config.ExtractAttribute, Selector: "a.download", Attribute: "href"},
	})
	assert.Equal(t, []any{"/file.zip"}, snap["link"])
}

func TestCountAndExists(t *testing.T) {
	p := &scriptedPage{nodes: map[string][]pageNode{
		".item": {{text: "a"}, {text: "b"}},
	}}

	snap := testEngine(t).Run(p, "deadbeef", []config.Extractor{
		{Name: "n", Type: config.ExtractCount, Selector: ".item"},
		{Name: "has", Type: config.ExtractExists, Selector: ".item"},
		{Name: "missing", Type: config.ExtractExists, Selector: ".absent"},
	})
	assert.Equal(t, float64(2), snap["n"])
	assert.Equal(t, true, snap["has"])
	assert.Equal(t, false, snap["missing"])
}

func TestURLAndTitle(t *testing.T) {
	p := &scriptedPage{url: "https://example.com/page", title: "Example Page"}

	snap := testEngine(t).Run(p, "deadbeef", []config.Extractor{
		{Name: "where", Type: config.ExtractURL},
		{Name: "what", Type: config.ExtractTitle},
	})
	assert.Equal(t, "https://example.com/page", snap["where"])
	assert.Equal(t, "Example Page", snap["what"])
}

func TestXPathSelectorNormalized(t *testing.T) {
	p := &scriptedPage{nodes: map[string][]pageNode{
		`xpath=//span[@class="price"]`: {{text: "$9.99"}},
	}}

	snap := testEngine(t).Run(p, "deadbeef", []config.Extractor{
		{Name: "price", Type: config.ExtractXPath, Selector: `//span[@class="price"]`},
	})
	assert.Equal(t, []any{"$9.99"}, snap["price"])
}

func TestFrameFallback(t *testing.T) {
	frame := &scriptedFrame{nodes: map[string][]pageNode{
		".inner": {{text: "framed content"}},
	}}
	p := &scriptedPage{nodes: map[string][]pageNode{}, frames: []*scriptedFrame{frame}}

	snap := testEngine(t).Run(p, "deadbeef", []config.Extractor{
		{Name: "inner", Type: config.ExtractText, Selector: ".inner", CheckFrames: true},
	})
	assert.Equal(t, []any{"framed content"}, snap["inner"])

	// Without checkFrames the child frame is never probed.
	snap = testEngine(t).Run(p, "deadbeef", []config.Extractor{
		{Name: "inner", Type: config.ExtractText, Selector: ".inner"},
	})
	assert.Nil(t, snap["inner"])
}

func TestDefaultOnMissing(t *testing.T) {
	p := &scriptedPage{nodes: map[string][]pageNode{}}

	snap := testEngine(t).Run(p, "deadbeef", []config.Extractor{
		{Name: "stock", Type: config.ExtractText, Selector: ".stock", Default: "unknown"},
	})
	assert.Equal(t, "unknown", snap["stock"])
}

func TestFailedExtractorUsesDefault(t *testing.T) {
	p := &scriptedPage{evalErr: errors.New("script blew up")}

	snap := testEngine(t).Run(p, "deadbeef", []config.Extractor{
		{Name: "calc", Type: config.ExtractEvaluate, Script: "boom()", Default: float64(0)},
	})
	assert.Equal(t, float64(0), snap["calc"])
}

func TestOptionsExtraction(t *testing.T) {
	p := &scriptedPage{nodes: map[string][]pageNode{
		"select#size option": {
			{text: "Choose...", attrs: map[string]string{"value": ""}},
			{text: " Small ", attrs: map[string]string{"value": "s"}},
			{text: "Large", attrs: map[string]string{"value": "l"}},
		},
	}}

	snap := testEngine(t).Run(p, "deadbeef", []config.Extractor{
		{Name: "sizes", Type: config.ExtractOptions, Selector: "select#size"},
	})
	// The empty-value placeholder is dropped, texts are trimmed.
	assert.Equal(t, []any{
		map[string]any{"value": "s", "text": "Small"},
		map[string]any{"value": "l", "text": "Large"},
	}, snap["sizes"])
}

func TestBodyJSONWithPath(t *testing.T) {
	p := &scriptedPage{nodes: map[string][]pageNode{
		"body": {{text: `{"items": [{"price": 9.99}], "total": 1}`}},
	}}

	snap := testEngine(t).Run(p, "deadbeef", []config.Extractor{
		{Name: "price", Type: config.ExtractJSON, Path: "items[0].price"},
		{Name: "all", Type: config.ExtractJSON},
	})
	assert.Equal(t, 9.99, snap["price"])
	assert.Equal(t, map[string]any{
		"items": []any{map[string]any{"price": 9.99}},
		"total": float64(1),
	}, snap["all"])
}

func TestJSONFromScriptDefaultSelector(t *testing.T) {
	p := &scriptedPage{nodes: map[string][]pageNode{
		jsonScriptSelector: {{html: `{"@type": "Product", "offers": {"price": "19.99"}}`}},
	}}

	snap := testEngine(t).Run(p, "deadbeef", []config.Extractor{
		{Name: "price", Type: config.ExtractJSONFromScript, Path: "offers.price"},
	})
	assert.Equal(t, "19.99", snap["price"])
}

func TestEvaluateExtraction(t *testing.T) {
	p := &scriptedPage{evalResult: float64(7)}

	snap := testEngine(t).Run(p, "deadbeef", []config.Extractor{
		{Name: "n", Type: config.ExtractEvaluate, Script: "document.querySelectorAll('li').length"},
	})
	assert.Equal(t, float64(7), snap["n"])
}

func TestScreenshotExtraction(t *testing.T) {
	p := &scriptedPage{}

	snap := testEngine(t).Run(p, "deadbeef", []config.Extractor{
		{Name: "shot", Type: config.ExtractScreenshot},
	})
	require.Len(t, p.shots, 1)
	assert.Equal(t, p.shots[0], snap["shot"])
	assert.Contains(t, snap["shot"], "deadbeef-shot-")
}

func TestTransformsAppliedPerField(t *testing.T) {
	p := &scriptedPage{nodes: map[string][]pageNode{
		".price": {{text: "$1,299.00"}},
	}}

	snap := testEngine(t).Run(p, "deadbeef", []config.Extractor{{
		Name:     "price",
		Type:     config.ExtractText,
		Selector: ".price",
		Transforms: []config.TransformSpec{
			{Type: "first"},
			{Type: "parseNumber"},
		},
	}})
	assert.Equal(t, 1299.0, snap["price"])
}
