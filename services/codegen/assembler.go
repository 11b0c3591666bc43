package codegen

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"logicflow/services/flow"
)

// EntrySymbol is the class every generated program defines.
const EntrySymbol = "GeneratedStrategy"

const programText = `{{if .Comments}}"""Strategy compiled from a logic flow. Do not edit by hand."""
{{end}}{{range .Imports}}{{.}}
{{end}}

PARAMS = {{.Params}}


class {{.Entry}}(StrategyBase):
    params = PARAMS

    def compute(self, data):
{{- range .Prices}}
        {{.Var}} = data[{{.Field}}]
{{- end}}
        signals = []
        positions = []
        exits = []
{{range .Sections}}
{{- if $.Comments}}
        # {{.Title}}
{{- end}}
{{- range .Fragments}}
{{- if $.Comments}}
        # {{.Comment}}
{{- end}}
{{indent .Code}}
{{- end}}
{{end}}
        result = {"signals": signals, "positions": positions, "exits": exits}
        return result
`

var programTemplate = template.Must(template.New("program").
	Funcs(template.FuncMap{"indent": indentBody}).
	Parse(programText))

const bodyIndent = "        "

func indentBody(code string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = bodyIndent + line
		}
	}
	return strings.Join(lines, "\n")
}

type section struct {
	Title     string
	Fragments []Fragment
}

type priceBinding struct {
	Var   string
	Field string
}

// Assembler combines ordered fragments into one formatted program.
type Assembler struct {
	catalog *flow.Catalog
}

// NewAssembler creates an Assembler that takes section titles and base imports from catalog.
func NewAssembler(catalog *flow.Catalog) *Assembler {
	return &Assembler{catalog: catalog}
}

// Program is an assembled, formatted program and the imports it declares.
type Program struct {
	Code    string
	Imports []string
}

// Assemble renders the whole program. Fragments keep their given order and
// a new section starts whenever the node type changes.
func (a *Assembler) Assemble(fragments []Fragment, params map[string]any, includeComments bool) (Program, error) {
	imports := a.catalog.BaseImports()
	for _, f := range fragments {
		imports = append(imports, f.Imports...)
	}
	imports, err := mergeImports(imports)
	if err != nil {
		return Program{}, err
	}

	paramsBlock, err := pyParams(params)
	if err != nil {
		return Program{}, fmt.Errorf("parameters: %w", err)
	}

	var sections []section
	for _, f := range fragments {
		if n := len(sections); n > 0 && sections[n-1].Fragments[0].Type == f.Type {
			sections[n-1].Fragments = append(sections[n-1].Fragments, f)
			continue
		}
		title := string(f.Type)
		if spec, ok := a.catalog.Node(f.Type); ok && spec.Section != "" {
			title = spec.Section
		}
		sections = append(sections, section{Title: title, Fragments: []Fragment{f}})
	}

	var prices []priceBinding
	for _, field := range a.catalog.PriceFields() {
		v, err := priceVar(field)
		if err != nil {
			return Program{}, err
		}
		prices = append(prices, priceBinding{Var: v, Field: pyString(field)})
	}

	var b strings.Builder
	err = programTemplate.Execute(&b, map[string]any{
		"Comments": includeComments,
		"Imports":  imports,
		"Params":   paramsBlock,
		"Entry":    EntrySymbol,
		"Prices":   prices,
		"Sections": sections,
	})
	if err != nil {
		return Program{}, fmt.Errorf("render program: %w", err)
	}
	return Program{Code: Format(b.String()), Imports: imports}, nil
}

// pyParams renders the PARAMS dict one key per line, keys sorted.
func pyParams(params map[string]any) (string, error) {
	if len(params) == 0 {
		return "{}", nil
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{\n")
	for _, k := range keys {
		v, err := pyValue(params[k], 1)
		if err != nil {
			return "", fmt.Errorf("%s: %w", k, err)
		}
		fmt.Fprintf(&b, "    %s: %s,\n", pyString(k), v)
	}
	b.WriteString("}")
	return b.String(), nil
}

// mergeImports deduplicates import statements. Plain imports come first,
// sorted, followed by from-imports grouped per module with sorted names.
func mergeImports(stmts []string) ([]string, error) {
	plain := make(map[string]bool)
	from := make(map[string]map[string]bool)

	for _, stmt := range stmts {
		fields := strings.Fields(stmt)
		switch {
		case len(fields) >= 2 && fields[0] == "import":
			plain[strings.Join(fields, " ")] = true
		case len(fields) >= 4 && fields[0] == "from" && fields[2] == "import":
			names := from[fields[1]]
			if names == nil {
				names = make(map[string]bool)
				from[fields[1]] = names
			}
			for _, name := range strings.Split(strings.Join(fields[3:], " "), ",") {
				if name = strings.TrimSpace(name); name != "" {
					names[name] = true
				}
			}
		default:
			return nil, fmt.Errorf("malformed import statement %q", stmt)
		}
	}

	out := make([]string, 0, len(plain)+len(from))
	for stmt := range plain {
		out = append(out, stmt)
	}
	sort.Strings(out)

	modules := make([]string, 0, len(from))
	for m := range from {
		modules = append(modules, m)
	}
	sort.Strings(modules)
	for _, m := range modules {
		names := make([]string, 0, len(from[m]))
		for n := range from[m] {
			names = append(names, n)
		}
		sort.Strings(names)
		out = append(out, fmt.Sprintf("from %s import %s", m, strings.Join(names, ", ")))
	}
	return out, nil
}
