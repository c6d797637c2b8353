// Package extract runs declared extractors against a loaded page and
// produces the named snapshot values.
package extract

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pagewatch/pagewatch/browser"
	"github.com/pagewatch/pagewatch/config"
	"github.com/pagewatch/pagewatch/errors"
	"github.com/pagewatch/pagewatch/transform"
)

// jsonScriptSelector matches JSON-typed script tags for jsonFromScript.
const jsonScriptSelector = `script[type="application/json"], script[type="application/ld+json"]`

// Engine evaluates extractor declarations. Per-extractor failures never
// abort a run: the failed field falls back to its declared default or null.
type Engine struct {
	screenshotDir string
	logger        *zap.SugaredLogger
}

// NewEngine creates an extractor engine writing screenshots under dir.
func NewEngine(screenshotDir string, logger *zap.SugaredLogger) *Engine {
	return &Engine{screenshotDir: screenshotDir, logger: logger}
}

// Run executes every extractor in declaration order and returns the snapshot
// map. Transforms are applied per field before insertion.
func (e *Engine) Run(page browser.Page, watchID string, extractors []config.Extractor) map[string]any {
	snapshot := make(map[string]any, len(extractors))

	for i := range extractors {
		ext := &extractors[i]
		value, err := e.extractOne(page, watchID, ext)
		if err != nil {
			e.logger.Warnw("Extractor failed, using default",
				"extractor", ext.Name,
				"type", ext.Type,
				"error", err)
			value = ext.Default
		}
		if value == nil && ext.Default != nil {
			value = ext.Default
		}

		value = transform.Apply(value, ext.TransformChain())
		snapshot[ext.Name] = value
	}

	return snapshot
}

func (e *Engine) extractOne(page browser.Page, watchID string, ext *config.Extractor) (any, error) {
	selector := browser.NormalizeSelector(ext.Selector, ext.XPath || ext.Type == config.ExtractXPath)

	switch ext.Type {
	case config.ExtractText, config.ExtractXPath:
		return e.elementStrings(page, selector, ext.CheckFrames, func(el browser.Element) (string, error) {
			s, err := el.TextContent()
			return strings.TrimSpace(s), err
		})
	case config.ExtractInnerText:
		return e.elementStrings(page, selector, ext.CheckFrames, func(el browser.Element) (string, error) {
			s, err := el.InnerText()
			return strings.TrimSpace(s), err
		})
	case config.ExtractAttribute:
		return e.elementStrings(page, selector, ext.CheckFrames, func(el browser.Element) (string, error) {
			return el.GetAttribute(ext.Attribute)
		})
	case config.ExtractValue:
		return e.elementStrings(page, selector, ext.CheckFrames, func(el browser.Element) (string, error) {
			return el.InputValue()
		})
	case config.ExtractHTML:
		return e.elementStrings(page, selector, ext.CheckFrames, func(el browser.Element) (string, error) {
			return el.InnerHTML()
		})
	case config.ExtractOuterHTML:
		return e.elementStrings(page, selector, ext.CheckFrames, func(el browser.Element) (string, error) {
			return el.OuterHTML()
		})
	case config.ExtractOptions:
		return e.extractOptions(page, selector, ext.CheckFrames)
	case config.ExtractCount:
		elements, err := e.query(page, selector, ext.CheckFrames)
		if err != nil {
			return nil, err
		}
		return float64(len(elements)), nil
	case config.ExtractExists:
		elements, err := e.query(page, selector, ext.CheckFrames)
		if err != nil {
			return false, nil
		}
		return len(elements) > 0, nil
	case config.ExtractURL:
		return page.URL(), nil
	case config.ExtractTitle:
		return page.Title()
	case config.ExtractEvaluate:
		return page.Evaluate(ext.Script)
	case config.ExtractJSON:
		return e.extractBodyJSON(page, ext.Path)
	case config.ExtractJSONFromScript:
		return e.extractScriptJSON(page, selector, ext.Path)
	case config.ExtractScreenshot:
		return e.extractScreenshot(page, watchID, ext.Name)
	default:
		return nil, errors.Newf("unknown extractor type %q", ext.Type)
	}
}

// query evaluates the selector against the main frame; when checkFrames is
// set and the main frame has no matches, child frames are probed in document
// order and the first non-empty match wins.
func (e *Engine) query(page browser.Page, selector string, checkFrames bool) ([]browser.Element, error) {
	elements, err := page.QueryAll(selector)
	if err != nil {
		return nil, err
	}
	if len(elements) > 0 || !checkFrames {
		return elements, nil
	}

	for _, frame := range page.Frames() {
		frameElements, err := frame.QueryAll(selector)
		if err != nil {
			continue
		}
		if len(frameElements) > 0 {
			return frameElements, nil
		}
	}
	return elements, nil
}

func (e *Engine) elementStrings(page browser.Page, selector string, checkFrames bool, read func(browser.Element) (string, error)) (any, error) {
	elements, err := e.query(page, selector, checkFrames)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, nil
	}
	out := make([]any, 0, len(elements))
	for _, el := range elements {
		s, err := read(el)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// extractOptions collects {value, text} records for each non-empty-value
// option under the matched selects.
func (e *Engine) extractOptions(page browser.Page, selector string, checkFrames bool) (any, error) {
	optionSelector := selector + " option"
	if browser.IsXPath(selector) {
		optionSelector = selector + "//option"
	}

	elements, err := e.query(page, optionSelector, checkFrames)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(elements))
	for _, el := range elements {
		value, err := el.GetAttribute("value")
		if err != nil || value == "" {
			continue
		}
		text, _ := el.TextContent()
		out = append(out, map[string]any{
			"value": value,
			"text":  strings.TrimSpace(text),
		})
	}
	return out, nil
}

// extractBodyJSON parses the page body's visible text as JSON.
func (e *Engine) extractBodyJSON(page browser.Page, path string) (any, error) {
	elements, err := page.QueryAll("body")
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, errors.New("page has no body")
	}
	text, err := elements[0].TextContent()
	if err != nil {
		return nil, err
	}

	var parsed any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &parsed); err != nil {
		return nil, errors.Wrap(err, "body is not valid JSON")
	}
	if path != "" {
		return transform.ResolvePath(parsed, path), nil
	}
	return parsed, nil
}

// extractScriptJSON parses an embedded JSON script tag, defaulting to the
// first JSON-typed one.
func (e *Engine) extractScriptJSON(page browser.Page, selector, path string) (any, error) {
	if selector == "" {
		selector = jsonScriptSelector
	}
	elements, err := page.QueryAll(selector)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, errors.Wrapf(errors.ErrSelectorNotFound, "%s", selector)
	}
	text, err := elements[0].InnerHTML()
	if err != nil {
		return nil, err
	}

	var parsed any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &parsed); err != nil {
		return nil, errors.Wrap(err, "script body is not valid JSON")
	}
	if path != "" {
		return transform.ResolvePath(parsed, path), nil
	}
	return parsed, nil
}

func (e *Engine) extractScreenshot(page browser.Page, watchID, name string) (any, error) {
	path := filepath.Join(e.screenshotDir,
		fmt.Sprintf("%s-%s-%d.png", watchID, name, time.Now().UnixMilli()))
	if err := page.Screenshot(path, true); err != nil {
		return nil, err
	}
	return path, nil
}
