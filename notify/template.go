package notify

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pagewatch/pagewatch/compare"
	"github.com/pagewatch/pagewatch/config"
	"github.com/pagewatch/pagewatch/transform"
)

var (
	placeholderRe = regexp.MustCompile(`\{\{(\w+(?:\.\w+)?)\}\}`)
	htmlTagRe     = regexp.MustCompile(`<[^>]*>`)
)

// renderItem shows a snapshot element for humans: records render their text
// or value field, other structured values render as JSON.
func renderItem(v any) string {
	if m, ok := v.(map[string]any); ok {
		if text, ok := m["text"].(string); ok && text != "" {
			return text
		}
		if value, ok := m["value"]; ok {
			return transform.Stringify(value)
		}
		data, err := json.Marshal(m)
		if err == nil {
			return string(data)
		}
	}
	if seq, ok := v.([]any); ok {
		parts := make([]string, len(seq))
		for i, el := range seq {
			parts[i] = renderItem(el)
		}
		return strings.Join(parts, ", ")
	}
	return transform.Stringify(v)
}

// signedDiff renders a numeric delta with an explicit sign: +3, -1.5.
func signedDiff(v any) string {
	f, ok := transform.ParseFloat(v)
	if !ok {
		return transform.Stringify(v)
	}
	if f >= 0 {
		return "+" + transform.Stringify(f)
	}
	return transform.Stringify(f)
}

// renderDefault builds the fallback change message: one line per change,
// added/removed listings for set-diff comparators, and a trailing link.
func renderDefault(w *config.Watch, changes []compare.Change) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b> changed\n\n", w.Name)

	for _, c := range changes {
		switch c.Comparator {
		case "added", "removed", "addedOrRemoved":
			fmt.Fprintf(&b, "%s:\n", c.Name)
			for _, item := range detailSeq(c.Details, "added") {
				fmt.Fprintf(&b, "  + %s\n", renderItem(item))
			}
			for _, item := range detailSeq(c.Details, "removed") {
				fmt.Fprintf(&b, "  - %s\n", renderItem(item))
			}
		default:
			fmt.Fprintf(&b, "%s: %s → %s", c.Name, renderItem(c.Previous), renderItem(c.Current))
			if c.Details != nil {
				if diff, ok := c.Details["diff"]; ok {
					fmt.Fprintf(&b, " (%s)", signedDiff(diff))
				}
			}
			b.WriteByte('\n')
		}
	}

	fmt.Fprintf(&b, "\n%s", w.URL)
	return b.String()
}

// renderTemplate substitutes {{placeholder}} tokens in a user template.
// Unknown placeholders render empty.
func renderTemplate(tmpl string, w *config.Watch, changes []compare.Change, current, prior map[string]any) string {
	added, removed := collectSetDiffs(changes)
	changeByName := make(map[string]compare.Change, len(changes))
	for _, c := range changes {
		changeByName[c.Name] = c
	}

	return placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		token := strings.Trim(match, "{}")

		if field, ok := strings.CutPrefix(token, "current."); ok {
			return renderItem(current[field])
		}
		if field, ok := strings.CutPrefix(token, "previous."); ok {
			return renderItem(prior[field])
		}
		if field, ok := strings.CutPrefix(token, "diff."); ok {
			c, changed := changeByName[field]
			if !changed {
				return renderItem(current[field])
			}
			return renderFieldDiff(c, prior, field)
		}

		switch token {
		case "name":
			return w.Name
		case "url":
			return w.URL
		case "timestamp":
			return time.Now().UTC().Format(time.RFC3339)
		case "changes":
			return jsonString(changes)
		case "data":
			return jsonString(current)
		case "added":
			return joinItems(added, ", ")
		case "removed":
			return joinItems(removed, ", ")
		case "addedList":
			return bulletList(added)
		case "removedList":
			return bulletList(removed)
		case "addedCount":
			return fmt.Sprintf("%d", len(added))
		case "removedCount":
			return fmt.Sprintf("%d", len(removed))
		}
		return ""
	})
}

// renderFieldDiff renders "prev → curr (+diff)" when a prior value exists,
// otherwise just the current value.
func renderFieldDiff(c compare.Change, prior map[string]any, field string) string {
	cur := renderItem(c.Current)
	if _, hadPrior := prior[field]; !hadPrior || c.Previous == nil {
		return cur
	}
	out := fmt.Sprintf("%s → %s", renderItem(c.Previous), cur)
	if c.Details != nil {
		if diff, ok := c.Details["diff"]; ok {
			out += fmt.Sprintf(" (%s)", signedDiff(diff))
		}
	}
	return out
}

// renderError is the fixed template for persistent-failure notifications.
func renderError(w *config.Watch, failures int, errMsg string) string {
	return fmt.Sprintf("⚠️ <b>%s</b> is failing\n\n%d consecutive failures\nLast error: %s\n\n%s",
		w.Name, failures, errMsg, w.URL)
}

func collectSetDiffs(changes []compare.Change) (added, removed []any) {
	for _, c := range changes {
		added = append(added, detailSeq(c.Details, "added")...)
		removed = append(removed, detailSeq(c.Details, "removed")...)
	}
	return added, removed
}

func detailSeq(details map[string]any, key string) []any {
	if details == nil {
		return nil
	}
	seq, _ := details[key].([]any)
	return seq
}

func joinItems(items []any, sep string) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = renderItem(item)
	}
	return strings.Join(parts, sep)
}

func bulletList(items []any) string {
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "• %s\n", renderItem(item))
	}
	return strings.TrimRight(b.String(), "\n")
}

func jsonString(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// stripHTML removes markup for plain-text transports.
func stripHTML(s string) string {
	return htmlTagRe.ReplaceAllString(s, "")
}
