package headlessmocha

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tomyan/headlessmocha/internal/chrome"
)

// formatConsole renders console arguments the way a terminal console does:
// printf-style directives in a leading string are substituted, then the
// remaining arguments are appended separated by spaces.
func formatConsole(args []interface{}) string {
	if len(args) == 0 {
		return ""
	}

	var b strings.Builder
	rest := args[1:]
	format, ok := args[0].(string)
	if !ok {
		b.WriteString(inspectArg(args[0]))
	} else {
		for i := 0; i < len(format); i++ {
			c := format[i]
			if c != '%' || i+1 == len(format) {
				b.WriteByte(c)
				continue
			}
			verb := format[i+1]
			switch verb {
			case '%':
				b.WriteByte('%')
				i++
			case 's', 'd', 'i', 'f', 'j', 'o', 'O', 'c':
				i++
				if len(rest) == 0 {
					b.WriteByte('%')
					b.WriteByte(verb)
					continue
				}
				if verb != 'c' {
					b.WriteString(formatVerb(verb, rest[0]))
				}
				rest = rest[1:]
			default:
				b.WriteByte(c)
			}
		}
	}

	for _, arg := range rest {
		b.WriteByte(' ')
		b.WriteString(inspectArg(arg))
	}
	return b.String()
}

func formatVerb(verb byte, v interface{}) string {
	switch verb {
	case 's':
		return inspectArg(v)
	case 'd', 'i', 'f':
		n, ok := toNumber(v)
		if !ok {
			return "NaN"
		}
		if verb == 'i' {
			n = math.Trunc(n)
		}
		return formatNumber(n)
	case 'j':
		data, err := json.Marshal(v)
		if err != nil {
			return "undefined"
		}
		return string(data)
	default:
		return inspect(v)
	}
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// inspectArg formats a top-level argument: strings are printed as is.
func inspectArg(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return inspect(v)
}

func inspect(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case chrome.Undefined:
		return "undefined"
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return formatNumber(val)
	case string:
		return "'" + strings.ReplaceAll(val, "'", `\'`) + "'"
	case []interface{}:
		if len(val) == 0 {
			return "[]"
		}
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = inspect(e)
		}
		return "[ " + strings.Join(parts, ", ") + " ]"
	case map[string]interface{}:
		if len(val) == 0 {
			return "{}"
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + inspect(val[k])
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return "?"
		}
		return string(data)
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
