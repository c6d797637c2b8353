// Package transform implements the pure data reshapers applied to extractor
// output. Every transform tolerates nil by returning it unchanged, no-ops
// gracefully on a type mismatch, and unknown names are identity.
package transform

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/pagewatch/pagewatch/config"
	"github.com/pagewatch/pagewatch/logger"
)

// Apply runs an ordered transform chain over a value.
func Apply(value any, chain []config.TransformSpec) any {
	for _, spec := range chain {
		value = applyOne(value, spec.Type, spec.Options)
	}
	return value
}

func applyOne(value any, name string, opts map[string]any) any {
	if value == nil && name != "parseNumber" {
		return nil
	}

	switch name {
	case "flatten":
		return flatten(value, optInt(opts, "depth", 1))
	case "unique":
		return unique(value)
	case "sort":
		return sortSeq(value, optString(opts, "key", ""), optBool(opts, "desc"))
	case "reverse":
		return reverse(value)
	case "join":
		return join(value, optString(opts, "separator", ", "))
	case "split":
		return split(value, optString(opts, "separator", ","))
	case "first":
		return first(value)
	case "last":
		return last(value)
	case "slice":
		return sliceSeq(value, opts)
	case "filter":
		return filterSeq(value, optString(opts, "include", ""), optString(opts, "exclude", ""))
	case "map", "pluck":
		return pluck(value, optString(opts, "key", ""))
	case "trim":
		return mapStrings(value, strings.TrimSpace)
	case "lowercase":
		return mapStrings(value, strings.ToLower)
	case "uppercase":
		return mapStrings(value, strings.ToUpper)
	case "regex":
		return regexMatch(value, optString(opts, "pattern", ""), optString(opts, "flags", "g"))
	case "replace":
		return regexReplace(value,
			optString(opts, "pattern", ""),
			optString(opts, "replacement", ""),
			optString(opts, "flags", "g"))
	case "parseNumber":
		return parseNumber(value)
	case "parseJson":
		return parseJSON(value)
	case "jsonPath":
		return ResolvePath(value, optString(opts, "path", ""))
	case "compact":
		return compact(value)
	default:
		logger.Debugw("Unknown transform, passing value through", "transform", name)
		return value
	}
}

func flatten(v any, depth int) any {
	seq, ok := asSequence(v)
	if !ok {
		return v
	}
	if depth < 1 {
		depth = 1
	}
	out := seq
	for d := 0; d < depth; d++ {
		flattened := make([]any, 0, len(out))
		nested := false
		for _, el := range out {
			if inner, ok := el.([]any); ok {
				flattened = append(flattened, inner...)
				nested = true
			} else {
				flattened = append(flattened, el)
			}
		}
		out = flattened
		if !nested {
			break
		}
	}
	return out
}

// unique keeps the first occurrence of each element; structured elements
// compare by their JSON serialization.
func unique(v any) any {
	seq, ok := asSequence(v)
	if !ok {
		return v
	}
	seen := make(map[string]bool, len(seq))
	out := make([]any, 0, len(seq))
	for _, el := range seq {
		key := structuralKey(el)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, el)
	}
	return out
}

func structuralKey(el any) string {
	switch el.(type) {
	case map[string]any, []any:
		data, err := json.Marshal(el)
		if err == nil {
			return "j:" + string(data)
		}
	}
	return "s:" + Stringify(el)
}

func sortSeq(v any, key string, desc bool) any {
	seq, ok := asSequence(v)
	if !ok {
		return v
	}
	out := make([]any, len(seq))
	copy(out, seq)

	extract := func(el any) any {
		if key == "" {
			return el
		}
		if m, ok := el.(map[string]any); ok {
			return m[key]
		}
		return el
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := extract(out[i]), extract(out[j])
		less := lessValues(a, b)
		if desc {
			return lessValues(b, a)
		}
		return less
	})
	return out
}

func lessValues(a, b any) bool {
	af, aok := ParseFloat(a)
	bf, bok := ParseFloat(b)
	if aok && bok {
		return af < bf
	}
	return Stringify(a) < Stringify(b)
}

func reverse(v any) any {
	seq, ok := asSequence(v)
	if !ok {
		return v
	}
	out := make([]any, len(seq))
	for i, el := range seq {
		out[len(seq)-1-i] = el
	}
	return out
}

func join(v any, sep string) any {
	seq, ok := asSequence(v)
	if !ok {
		return v
	}
	parts := make([]string, len(seq))
	for i, el := range seq {
		parts[i] = Stringify(el)
	}
	return strings.Join(parts, sep)
}

func split(v any, sep string) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	pieces := strings.Split(s, sep)
	out := make([]any, len(pieces))
	for i, p := range pieces {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

func first(v any) any {
	seq, ok := asSequence(v)
	if !ok {
		return v
	}
	if len(seq) == 0 {
		return nil
	}
	return seq[0]
}

func last(v any) any {
	seq, ok := asSequence(v)
	if !ok {
		return v
	}
	if len(seq) == 0 {
		return nil
	}
	return seq[len(seq)-1]
}

func sliceSeq(v any, opts map[string]any) any {
	seq, ok := asSequence(v)
	if !ok {
		return v
	}
	start := optInt(opts, "start", 0)
	end := optInt(opts, "end", len(seq))
	if start < 0 {
		start = len(seq) + start
	}
	if end < 0 {
		end = len(seq) + end
	}
	if start < 0 {
		start = 0
	}
	if end > len(seq) {
		end = len(seq)
	}
	if start >= end {
		return []any{}
	}
	out := make([]any, end-start)
	copy(out, seq[start:end])
	return out
}

// filterSeq keeps elements whose rendering contains include (when set) and
// does not contain exclude (when set). Record elements match on their value
// or text field.
func filterSeq(v any, include, exclude string) any {
	seq, ok := asSequence(v)
	if !ok {
		return v
	}
	out := make([]any, 0, len(seq))
	for _, el := range seq {
		candidates := []string{Stringify(el)}
		if m, ok := el.(map[string]any); ok {
			candidates = candidates[:0]
			if val, ok := m["value"]; ok {
				candidates = append(candidates, Stringify(val))
			}
			if txt, ok := m["text"]; ok {
				candidates = append(candidates, Stringify(txt))
			}
		}
		if include != "" && !anyContains(candidates, include) {
			continue
		}
		if exclude != "" && anyContains(candidates, exclude) {
			continue
		}
		out = append(out, el)
	}
	return out
}

func anyContains(candidates []string, needle string) bool {
	for _, c := range candidates {
		if strings.Contains(c, needle) {
			return true
		}
	}
	return false
}

func pluck(v any, key string) any {
	if key == "" {
		return v
	}
	seq, ok := asSequence(v)
	if !ok {
		if m, ok := v.(map[string]any); ok {
			return m[key]
		}
		return v
	}
	out := make([]any, len(seq))
	for i, el := range seq {
		if m, ok := el.(map[string]any); ok {
			out[i] = m[key]
		} else {
			out[i] = el
		}
	}
	return out
}

// mapStrings applies a string operation, mapping over sequences and leaving
// non-strings untouched.
func mapStrings(v any, fn func(string) string) any {
	switch t := v.(type) {
	case string:
		return fn(t)
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			if s, ok := el.(string); ok {
				out[i] = fn(s)
			} else {
				out[i] = el
			}
		}
		return out
	default:
		return v
	}
}

func compileFlags(pattern, flags string) (*regexp.Regexp, bool) {
	if strings.ContainsRune(flags, 'i') {
		pattern = "(?i)" + pattern
	}
	if strings.ContainsRune(flags, 's') {
		pattern = "(?s)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		logger.Warnw("Invalid regex in transform", "pattern", pattern, "error", err)
		return nil, false
	}
	return re, true
}

func regexMatch(v any, pattern, flags string) any {
	s, ok := v.(string)
	if !ok || pattern == "" {
		return v
	}
	re, ok := compileFlags(pattern, flags)
	if !ok {
		return v
	}
	if strings.ContainsRune(flags, 'g') {
		matches := re.FindAllStringSubmatch(s, -1)
		if matches == nil {
			return nil
		}
		out := make([]any, len(matches))
		for i, m := range matches {
			out[i] = submatchValue(m)
		}
		return out
	}
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	return submatchValue(m)
}

// submatchValue prefers the first capture group; patterns without groups
// yield the whole match.
func submatchValue(m []string) string {
	if len(m) > 1 {
		return m[1]
	}
	return m[0]
}

func regexReplace(v any, pattern, replacement, flags string) any {
	apply := func(s string) string {
		re, ok := compileFlags(pattern, flags)
		if !ok {
			return s
		}
		if strings.ContainsRune(flags, 'g') {
			return re.ReplaceAllString(s, replacement)
		}
		// Replace first occurrence only.
		loc := re.FindStringIndex(s)
		if loc == nil {
			return s
		}
		return s[:loc[0]] + re.ReplaceAllString(s[loc[0]:loc[1]], replacement) + s[loc[1]:]
	}
	if pattern == "" {
		return v
	}
	return mapStrings(v, apply)
}

// parseNumber strips everything but digits, sign and decimal point, then
// parses. Null-safe: nil becomes 0.
func parseNumber(v any) any {
	switch t := v.(type) {
	case nil:
		return float64(0)
	case float64, int, int64:
		f, _ := ParseFloat(t)
		return f
	case string:
		return parseNumberString(t)
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = parseNumber(el)
		}
		return out
	default:
		return v
	}
}

func parseNumberString(s string) any {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	f, ok := parseFloatPrefix(b.String())
	if !ok {
		return float64(0)
	}
	return f
}

// parseJSON decodes a JSON string; on failure the input passes through.
func parseJSON(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return v
	}
	return out
}

// compact drops nil and empty-string elements.
func compact(v any) any {
	seq, ok := asSequence(v)
	if !ok {
		return v
	}
	out := make([]any, 0, len(seq))
	for _, el := range seq {
		if el == nil {
			continue
		}
		if s, ok := el.(string); ok && s == "" {
			continue
		}
		out = append(out, el)
	}
	return out
}

func optString(opts map[string]any, key, fallback string) string {
	if opts == nil {
		return fallback
	}
	if v, ok := opts[key].(string); ok {
		return v
	}
	return fallback
}

func optInt(opts map[string]any, key string, fallback int) int {
	if opts == nil {
		return fallback
	}
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

func optBool(opts map[string]any, key string) bool {
	if opts == nil {
		return false
	}
	v, _ := opts[key].(bool)
	return v
}
