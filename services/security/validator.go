// Package security statically checks generated strategy code before it is
// stored or executed. Code is parsed with tree-sitter's Python grammar and the
// syntax tree is walked against an import allow-list, a call deny-list and a
// complexity ceiling.
package security

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"logicflow/services/flow"
)

// Result is the outcome of analysing one piece of code.
type Result struct {
	IsSafe     bool             `json:"is_safe"`
	Violations []flow.Violation `json:"violations"`
	Complexity int              `json:"complexity"`
}

// Validator applies a Policy to Python source. It keeps no per-call state
// and may be used from multiple goroutines.
type Validator struct {
	policy        Policy
	allowed       map[string]bool
	deniedCalls   map[string]bool
	deniedModules map[string]bool
}

// NewValidator creates a Validator for the given policy.
func NewValidator(policy Policy) *Validator {
	if policy.MaxComplexity <= 0 {
		policy.MaxComplexity = DefaultMaxComplexity
	}
	return &Validator{
		policy:        policy,
		allowed:       toSet(policy.AllowedImports),
		deniedCalls:   toSet(policy.DeniedCalls),
		deniedModules: toSet(policy.DeniedModules),
	}
}

// branch and loop constructs that count toward the complexity score
var complexityNodes = map[string]bool{
	"if_statement":             true,
	"elif_clause":              true,
	"conditional_expression":   true,
	"match_statement":          true,
	"case_clause":              true,
	"try_statement":            true,
	"except_clause":            true,
	"for_statement":            true,
	"while_statement":          true,
	"list_comprehension":       true,
	"set_comprehension":        true,
	"dictionary_comprehension": true,
	"generator_expression":     true,
}

// Validate parses code and reports every policy violation found.
// A parse failure is a single critical violation.
func (v *Validator) Validate(ctx context.Context, code string) Result {
	src := []byte(code)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return unsafe(flow.Violation{
			Stage: flow.StageSecurity, Severity: flow.SeverityCritical,
			Message: fmt.Sprintf("code could not be parsed: %v", err),
		})
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		line, col := 0, 0
		if bad := firstError(root); bad != nil {
			line, col = position(bad)
		}
		return unsafe(flow.Violation{
			Stage: flow.StageSecurity, Severity: flow.SeverityCritical,
			Location: flow.Location{Line: line, Column: col},
			Message:  "code is not valid Python",
		})
	}

	w := &walker{v: v, src: src}
	w.walk(root, 0)

	if w.score > v.policy.MaxComplexity {
		w.report(root, flow.SeverityHigh,
			fmt.Sprintf("complexity score %d exceeds ceiling %d", w.score, v.policy.MaxComplexity))
	}

	result := Result{IsSafe: true, Violations: w.violations, Complexity: w.score}
	if result.Violations == nil {
		result.Violations = []flow.Violation{}
	}
	for _, viol := range result.Violations {
		if viol.Severity == flow.SeverityCritical || viol.Severity == flow.SeverityHigh {
			result.IsSafe = false
		}
	}
	return result
}

type walker struct {
	v          *Validator
	src        []byte
	score      int
	violations []flow.Violation
}

func (w *walker) text(n *sitter.Node) string {
	return n.Content(w.src)
}

func (w *walker) report(n *sitter.Node, sev flow.Severity, msg string) {
	line, col := position(n)
	w.violations = append(w.violations, flow.Violation{
		Stage: flow.StageSecurity, Severity: sev,
		Location: flow.Location{Line: line, Column: col},
		Message:  msg,
	})
}

func (w *walker) walk(n *sitter.Node, depth int) {
	switch n.Type() {
	case "import_statement":
		w.checkImport(n)
		return
	case "import_from_statement":
		w.checkFromImport(n)
		return
	case "future_import_statement":
		w.report(n, flow.SeverityCritical, "import of module \"__future__\" is not allowed")
		return
	case "call":
		w.checkCall(n, depth)
		return
	case "attribute":
		if attr := n.ChildByFieldName("attribute"); attr != nil {
			switch name := w.text(attr); {
			case isDunder(name):
				w.report(attr, flow.SeverityCritical, fmt.Sprintf("access to dunder attribute %q is not allowed", name))
			case w.v.deniedCalls[name]:
				w.report(attr, flow.SeverityCritical, fmt.Sprintf("reference to forbidden name %q", name))
			}
		}
		// only the object is a reference; the attribute name was checked above
		if obj := n.ChildByFieldName("object"); obj != nil {
			w.walk(obj, depth)
		}
		return
	case "identifier":
		if name := w.text(n); w.v.deniedCalls[name] || name == "__builtins__" {
			w.report(n, flow.SeverityCritical, fmt.Sprintf("reference to forbidden name %q", name))
		}
		return
	case "keyword_argument":
		// the keyword itself is not a reference
		if value := n.ChildByFieldName("value"); value != nil {
			w.walk(value, depth)
		}
		return
	}

	if complexityNodes[n.Type()] {
		w.score += 1 + depth
		depth++
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i), depth)
	}
}

func (w *walker) checkImport(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		name := child
		if child.Type() == "aliased_import" {
			name = child.ChildByFieldName("name")
		}
		if name == nil {
			continue
		}
		w.checkModule(child, w.text(name))
	}
}

func (w *walker) checkFromImport(n *sitter.Node) {
	module := n.ChildByFieldName("module_name")
	if module == nil {
		return
	}
	if module.Type() == "relative_import" {
		w.report(module, flow.SeverityCritical, "relative imports are not allowed")
		return
	}
	w.checkModule(module, w.text(module))
}

func (w *walker) checkModule(n *sitter.Node, module string) {
	module = strings.Join(strings.Fields(module), "")
	root, _, _ := strings.Cut(module, ".")
	if !w.v.allowed[root] {
		w.report(n, flow.SeverityCritical, fmt.Sprintf("import of module %q is not allowed", module))
	}
}

func (w *walker) checkCall(n *sitter.Node, depth int) {
	fn := n.ChildByFieldName("function")
	if fn != nil {
		switch fn.Type() {
		case "identifier":
			if name := w.text(fn); w.v.deniedCalls[name] {
				w.report(fn, flow.SeverityCritical, fmt.Sprintf("call to forbidden function %q", name))
			}
		case "attribute":
			w.checkAttributeCall(fn)
			if obj := fn.ChildByFieldName("object"); obj != nil {
				w.walk(obj, depth)
			}
		default:
			w.walk(fn, depth)
		}
	}
	if args := n.ChildByFieldName("arguments"); args != nil {
		w.walk(args, depth)
	}
}

func (w *walker) checkAttributeCall(fn *sitter.Node) {
	dotted := strings.Join(strings.Fields(w.text(fn)), "")
	segments := strings.Split(dotted, ".")
	leaf := segments[len(segments)-1]

	if w.v.deniedCalls[leaf] {
		w.report(fn, flow.SeverityCritical, fmt.Sprintf("call to forbidden function %q", dotted))
		return
	}
	if isDunder(leaf) {
		w.report(fn, flow.SeverityCritical, fmt.Sprintf("call to dunder method %q is not allowed", dotted))
		return
	}
	for _, seg := range segments[:len(segments)-1] {
		if w.v.deniedModules[seg] {
			w.report(fn, flow.SeverityCritical, fmt.Sprintf("call into forbidden module %q via %q", seg, dotted))
			return
		}
	}
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstError(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

func position(n *sitter.Node) (line, col int) {
	p := n.StartPoint()
	return int(p.Row) + 1, int(p.Column) + 1
}

func isDunder(name string) bool {
	return len(name) > 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}

func unsafe(v flow.Violation) Result {
	return Result{IsSafe: false, Violations: []flow.Violation{v}}
}

func toSet(values []string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}
