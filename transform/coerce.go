package transform

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Stringify coerces any extracted value to its string rendering: strings
// pass through, numbers drop trailing zeros, structured values render as
// compact JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// ParseFloat mirrors JavaScript parseFloat: it consumes the longest numeric
// prefix of the trimmed string. Numbers pass through; anything else yields
// false.
func ParseFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		return parseFloatPrefix(strings.TrimSpace(t))
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func parseFloatPrefix(s string) (float64, bool) {
	end := 0
	seenDigit := false
	seenDot := false
	seenExp := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
		case (c == '+' || c == '-') && (i == 0 || (s[i-1] == 'e' || s[i-1] == 'E')):
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
		case (c == 'e' || c == 'E') && seenDigit && !seenExp:
			seenExp = true
		default:
			goto done
		}
		end = i + 1
	}
done:
	if !seenDigit {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimRight(s[:end], "eE+-."), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// asSequence returns the value as a []any when it is one.
func asSequence(v any) ([]any, bool) {
	seq, ok := v.([]any)
	return seq, ok
}
