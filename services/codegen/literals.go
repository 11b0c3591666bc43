package codegen

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"logicflow/services/flow"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// maxLiteralDepth bounds nesting of list and dict values in PARAMS.
const maxLiteralDepth = 4

// maxCommentLen bounds node labels rendered as comments.
const maxCommentLen = 120

// pyIdentifier returns s if it is a safe Python identifier.
func pyIdentifier(s string) (string, error) {
	if !identifierPattern.MatchString(s) {
		return "", fmt.Errorf("%q is not a valid identifier", s)
	}
	return s, nil
}

// pyString renders s as a double-quoted Python string literal. Go escape
// sequences produced by strconv.Quote are all valid in Python.
func pyString(s string) string {
	return strconv.Quote(s)
}

// pyNumber renders a finite number in plain decimal notation.
func pyNumber(v any) (string, error) {
	f, ok := flow.ToFloat64(v)
	if !ok {
		return "", fmt.Errorf("expected a number, got %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("number %v is not finite", f)
	}
	return decimal.NewFromFloat(f).String(), nil
}

// pyInt renders an integral number without a fractional part.
func pyInt(v any) (string, error) {
	f, ok := flow.ToFloat64(v)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("expected an integer, got %v", v)
	}
	return strconv.FormatInt(int64(f), 10), nil
}

// pyPercent renders a percentage as a fraction, e.g. 5 -> 0.05.
func pyPercent(v any) (string, error) {
	f, ok := flow.ToFloat64(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("expected a percentage, got %v", v)
	}
	return decimal.NewFromFloat(f).Div(decimal.NewFromInt(100)).String(), nil
}

func pyBool(v any) (string, error) {
	b, ok := v.(bool)
	if !ok {
		return "", fmt.Errorf("expected a bool, got %T", v)
	}
	if b {
		return "True", nil
	}
	return "False", nil
}

// pyValue renders a JSON-like value as a Python literal.
func pyValue(v any, depth int) (string, error) {
	if depth > maxLiteralDepth {
		return "", fmt.Errorf("value nested deeper than %d levels", maxLiteralDepth)
	}
	switch x := v.(type) {
	case nil:
		return "None", nil
	case bool:
		return pyBool(x)
	case string:
		return pyString(x), nil
	case []any:
		items := make([]string, len(x))
		for i, item := range x {
			s, err := pyValue(item, depth+1)
			if err != nil {
				return "", err
			}
			items[i] = s
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]string, len(keys))
		for i, k := range keys {
			s, err := pyValue(x[k], depth+1)
			if err != nil {
				return "", err
			}
			items[i] = pyString(k) + ": " + s
		}
		return "{" + strings.Join(items, ", ") + "}", nil
	default:
		return pyNumber(v)
	}
}

// priceVars maps raw data columns to the local variable holding them.
// "open" is renamed so the builtin of the same name is never shadowed.
var priceVars = map[string]string{
	"open":   "open_",
	"high":   "high",
	"low":    "low",
	"close":  "close",
	"volume": "volume",
}

func priceVar(field any) (string, error) {
	s, _ := field.(string)
	v, ok := priceVars[s]
	if !ok {
		return "", fmt.Errorf("unknown price field %v", field)
	}
	return v, nil
}

// varName derives an identifier-safe variable name from a node id.
// used tracks names already handed out so collisions get a numeric suffix.
func varName(prefix, id string, used map[string]bool) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(id) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	base := strings.Trim(b.String(), "_")
	if base == "" {
		base = "node"
	}
	name := prefix + "_" + base
	for i := 2; used[name]; i++ {
		name = fmt.Sprintf("%s_%s_%d", prefix, base, i)
	}
	used[name] = true
	return name
}

// commentText flattens a label into a single printable comment line.
func commentText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case unicode.IsPrint(r):
			b.WriteRune(r)
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	if len([]rune(out)) > maxCommentLen {
		out = string([]rune(out)[:maxCommentLen])
	}
	return out
}
