// Package compare computes change verdicts between the current extracted
// snapshot and the prior persisted one.
package compare

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/pagewatch/pagewatch/config"
	"github.com/pagewatch/pagewatch/transform"
)

// DefaultComparator applies when neither the extractor nor the watch names
// one.
const DefaultComparator = "hash"

// Change is one comparator verdict for a named field.
type Change struct {
	Name       string         `json:"name"`
	Previous   any            `json:"previous"`
	Current    any            `json:"current"`
	Details    map[string]any `json:"details,omitempty"`
	Comparator string         `json:"comparator"`
}

// Evaluator runs a script in the page, used by the custom comparator. A live
// browser page satisfies it; http-mode watches have none.
type Evaluator interface {
	Evaluate(script string) (any, error)
}

// Engine resolves per-field comparators and produces change records.
type Engine struct {
	logger *zap.SugaredLogger
}

// NewEngine creates a comparator engine.
func NewEngine(logger *zap.SugaredLogger) *Engine {
	return &Engine{logger: logger}
}

// Changes compares the current snapshot against the prior one, field by
// field in extractor-declaration order. A nil prior snapshot yields changes
// for every field; callers suppress first-run notifications themselves.
func (e *Engine) Changes(w *config.Watch, current, prior map[string]any, eval Evaluator) []Change {
	var changes []Change

	for i := range w.Extractors {
		ext := &w.Extractors[i]
		cur, ok := current[ext.Name]
		if !ok {
			continue
		}
		prev := prior[ext.Name]

		name := ext.Comparator
		if name == "" {
			name = w.Comparator
		}
		if name == "" {
			name = DefaultComparator
		}

		threshold := w.Threshold
		if ext.Threshold != nil {
			threshold = *ext.Threshold
		}

		changed, details := e.verdict(w, name, cur, prev, threshold, eval)
		if changed {
			changes = append(changes, Change{
				Name:       ext.Name,
				Previous:   prev,
				Current:    cur,
				Details:    details,
				Comparator: name,
			})
		}
	}

	return changes
}

func (e *Engine) verdict(w *config.Watch, name string, cur, prev any, threshold float64, eval Evaluator) (bool, map[string]any) {
	switch name {
	case "hash":
		return hashDigest(cur) != hashDigest(prev), nil
	case "exact":
		return canonicalJSON(cur) != canonicalJSON(prev), nil
	case "length":
		return lengthVerdict(cur, prev)
	case "added":
		added := setDiff(cur, prev)
		if len(added) == 0 {
			return false, nil
		}
		return true, map[string]any{"added": added}
	case "removed":
		removed := setDiff(prev, cur)
		if len(removed) == 0 {
			return false, nil
		}
		return true, map[string]any{"removed": removed}
	case "addedOrRemoved":
		added := setDiff(cur, prev)
		removed := setDiff(prev, cur)
		if len(added) == 0 && len(removed) == 0 {
			return false, nil
		}
		return true, map[string]any{"added": added, "removed": removed}
	case "numeric", "increased", "decreased":
		return numericVerdict(name, cur, prev, threshold)
	case "none":
		return false, nil
	case "custom":
		return e.customVerdict(w, cur, prev, eval)
	default:
		e.logger.Warnw("Unknown comparator, falling back to hash",
			"comparator", name)
		return hashDigest(cur) != hashDigest(prev), nil
	}
}

func canonicalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("!%v", v)
	}
	return string(data)
}

func hashDigest(v any) string {
	sum := md5.Sum([]byte(canonicalJSON(v)))
	return hex.EncodeToString(sum[:])
}

func lengthVerdict(cur, prev any) (bool, map[string]any) {
	curLen := valueLength(cur)
	prevLen := valueLength(prev)
	if curLen == prevLen {
		return false, nil
	}
	return true, map[string]any{
		"previous": prevLen,
		"current":  curLen,
		"diff":     curLen - prevLen,
	}
}

func valueLength(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case []any:
		return len(t)
	case string:
		return len(t)
	default:
		return len(transform.Stringify(t))
	}
}

// setDiff returns the members of a absent from b, comparing structured
// elements by JSON serialization and scalars by string coercion. Non-sequence
// inputs diff as empty.
func setDiff(a, b any) []any {
	aSeq, ok := a.([]any)
	if !ok {
		return nil
	}
	bSet := make(map[string]bool)
	if bSeq, ok := b.([]any); ok {
		for _, el := range bSeq {
			bSet[setKey(el)] = true
		}
	}
	var out []any
	for _, el := range aSeq {
		if !bSet[setKey(el)] {
			out = append(out, el)
		}
	}
	return out
}

func setKey(el any) string {
	switch el.(type) {
	case map[string]any, []any:
		return canonicalJSON(el)
	}
	return transform.Stringify(el)
}

func numericVerdict(name string, cur, prev any, threshold float64) (bool, map[string]any) {
	curF, curOK := transform.ParseFloat(cur)
	prevF, prevOK := transform.ParseFloat(prev)
	if !curOK || !prevOK {
		return false, nil
	}
	diff := curF - prevF

	var changed bool
	switch name {
	case "numeric":
		changed = math.Abs(diff) > threshold
	case "increased":
		changed = curF > prevF+threshold
	case "decreased":
		changed = curF < prevF-threshold
	}
	if !changed {
		return false, nil
	}
	return true, map[string]any{
		"previous": prevF,
		"current":  curF,
		"diff":     diff,
	}
}

// customVerdict forwards the user-supplied comparator body to the page. The
// body sees `current` and `previous` and returns {changed, details}. Any
// failure is logged and treated as "not changed"; without an evaluator the
// verdict degrades to hash.
func (e *Engine) customVerdict(w *config.Watch, cur, prev any, eval Evaluator) (bool, map[string]any) {
	if w.CustomComparator == "" {
		return hashDigest(cur) != hashDigest(prev), nil
	}
	if eval == nil {
		e.logger.Warnw("Custom comparator requires a live page, falling back to hash",
			"watch", w.Name)
		return hashDigest(cur) != hashDigest(prev), nil
	}

	script := fmt.Sprintf("((current, previous) => {\n%s\n})(%s, %s)",
		w.CustomComparator, canonicalJSON(cur), canonicalJSON(prev))

	result, err := eval.Evaluate(script)
	if err != nil {
		e.logger.Errorw("Custom comparator failed",
			"watch", w.Name,
			"error", err)
		return false, nil
	}

	obj, ok := result.(map[string]any)
	if !ok {
		e.logger.Warnw("Custom comparator returned non-object verdict",
			"watch", w.Name,
			"result", result)
		return false, nil
	}

	changed, _ := obj["changed"].(bool)
	details, _ := obj["details"].(map[string]any)
	return changed, details
}
