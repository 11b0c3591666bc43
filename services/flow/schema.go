package flow

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Check validates a parameter map against the schema.
// Missing required values, wrong types, out-of-range numbers and unknown
// enum values are errors; keys the schema does not declare are warnings.
func (s ParameterSchema) Check(nodeID string, params map[string]any) []Violation {
	var out []Violation
	loc := Location{NodeID: nodeID}

	for _, spec := range s.Parameters {
		raw, ok := params[spec.Name]
		if !ok || raw == nil {
			if spec.Required {
				out = append(out, Violation{
					Stage: StageParameter, Severity: SeverityError, Location: loc,
					Message: fmt.Sprintf("missing required parameter %q", spec.Name),
				})
			}
			continue
		}
		if msg := spec.check(raw); msg != "" {
			out = append(out, Violation{
				Stage: StageParameter, Severity: SeverityError, Location: loc,
				Message: fmt.Sprintf("parameter %q %s", spec.Name, msg),
			})
		}
	}

	extra := make([]string, 0)
	for name := range params {
		if _, ok := s.Lookup(name); !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		out = append(out, Violation{
			Stage: StageParameter, Severity: SeverityWarning, Location: loc,
			Message: fmt.Sprintf("unknown parameter %q is ignored", name),
		})
	}
	return out
}

// check returns a description of what is wrong with v, or "" if it conforms.
func (p ParameterSpec) check(v any) string {
	switch p.Kind {
	case KindInt, KindNumber:
		f, ok := ToFloat64(v)
		if !ok {
			return fmt.Sprintf("must be a %s, got %T", p.Kind, v)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "must be finite"
		}
		if p.Kind == KindInt && f != math.Trunc(f) {
			return fmt.Sprintf("must be an integer, got %v", f)
		}
		if p.Min != nil {
			if p.ExclusiveMin && f <= *p.Min {
				return fmt.Sprintf("must be greater than %v, got %v", *p.Min, f)
			}
			if !p.ExclusiveMin && f < *p.Min {
				return fmt.Sprintf("must be at least %v, got %v", *p.Min, f)
			}
		}
		if p.Max != nil && f > *p.Max {
			return fmt.Sprintf("must be at most %v, got %v", *p.Max, f)
		}
	case KindBool:
		if _, ok := v.(bool); !ok {
			return fmt.Sprintf("must be a bool, got %T", v)
		}
	case KindString, KindEnum:
		s, ok := v.(string)
		if !ok {
			return fmt.Sprintf("must be a string, got %T", v)
		}
		if p.Kind == KindEnum && !contains(p.Values, s) {
			return fmt.Sprintf("must be one of %v, got %q", p.Values, s)
		}
		if p.pattern != nil && !p.pattern.MatchString(s) {
			return fmt.Sprintf("must match %s", p.Pattern)
		}
	default:
		return fmt.Sprintf("has undeclared kind %q", p.Kind)
	}
	return ""
}

// Resolve returns the declared parameters of params with defaults filled in.
// Undeclared keys are dropped.
func (s ParameterSchema) Resolve(params map[string]any) map[string]any {
	out := make(map[string]any, len(s.Parameters))
	for _, spec := range s.Parameters {
		if v, ok := params[spec.Name]; ok && v != nil {
			out[spec.Name] = v
			continue
		}
		if spec.Default != nil {
			out[spec.Name] = spec.Default
		}
	}
	return out
}

// ToFloat64 converts an any value to float64, handling json.Number and numeric types.
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
