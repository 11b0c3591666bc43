package flow

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// PortType is the data type flowing through a port.
type PortType string

const (
	PortNumber        PortType = "number"
	PortNumericSeries PortType = "numeric_series"
	PortBooleanSeries PortType = "boolean_series"
	PortSignal        PortType = "signal"
	PortOrder         PortType = "order"
)

// widening lists the output types each input type accepts besides itself.
var widening = map[PortType][]PortType{
	PortNumericSeries: {PortNumber},
}

// Compatible reports whether an output of type from may feed an input of type to.
func Compatible(from, to PortType) bool {
	if from == to {
		return true
	}
	for _, w := range widening[to] {
		if w == from {
			return true
		}
	}
	return false
}

// PortSpec declares one input or output port of a node type.
type PortSpec struct {
	Name     string   `yaml:"name" json:"name"`
	Type     PortType `yaml:"type" json:"type"`
	Multiple bool     `yaml:"multiple" json:"multiple,omitempty"`
	Required bool     `yaml:"required" json:"required,omitempty"`
}

// ParameterKind is the declared value type of a node parameter.
type ParameterKind string

const (
	KindInt    ParameterKind = "int"
	KindNumber ParameterKind = "number"
	KindString ParameterKind = "string"
	KindBool   ParameterKind = "bool"
	KindEnum   ParameterKind = "enum"
)

// ParameterSpec declares one parameter of a node type.
type ParameterSpec struct {
	Name         string        `yaml:"name" json:"name"`
	Kind         ParameterKind `yaml:"kind" json:"kind"`
	Required     bool          `yaml:"required" json:"required,omitempty"`
	Default      any           `yaml:"default" json:"default,omitempty"`
	Min          *float64      `yaml:"min" json:"min,omitempty"`
	Max          *float64      `yaml:"max" json:"max,omitempty"`
	ExclusiveMin bool          `yaml:"exclusive_min" json:"exclusive_min,omitempty"`
	Values       []string      `yaml:"values" json:"values,omitempty"`
	ValuesFrom   string        `yaml:"values_from" json:"-"`
	Pattern      string        `yaml:"pattern" json:"pattern,omitempty"`

	pattern *regexp.Regexp
}

// ParameterSchema is the full parameter declaration of a node type.
type ParameterSchema struct {
	NodeType   NodeType        `json:"node_type"`
	Parameters []ParameterSpec `json:"parameters"`
}

// Lookup returns the spec for a parameter name.
func (s ParameterSchema) Lookup(name string) (ParameterSpec, bool) {
	for _, p := range s.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

// NodeSpec is everything the compiler knows about one node type.
type NodeSpec struct {
	Type     NodeType
	Section  string
	Prefix   string
	Inputs   []PortSpec
	Outputs  []PortSpec
	Schema   ParameterSchema
	Template *template.Template
}

// Input returns the named input port; an empty name selects the first port.
func (n *NodeSpec) Input(name string) (PortSpec, bool) {
	return findPort(n.Inputs, name)
}

// Output returns the named output port; an empty name selects the first port.
func (n *NodeSpec) Output(name string) (PortSpec, bool) {
	return findPort(n.Outputs, name)
}

func findPort(ports []PortSpec, name string) (PortSpec, bool) {
	if len(ports) == 0 {
		return PortSpec{}, false
	}
	if name == "" {
		return ports[0], true
	}
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return PortSpec{}, false
}

// FactorDescriptor describes one indicator the Indicator node can compute.
type FactorDescriptor struct {
	Name        string             `json:"name"`
	Category    string             `json:"category"`
	Description string             `json:"description"`
	Imports     []string           `json:"imports"`
	Expression  *template.Template `json:"-"`
}

// OperatorSpec renders a Condition comparison.
type OperatorSpec struct {
	Name       string
	Imports    []string
	Expression *template.Template
}

// Catalog is the immutable node, parameter, operator and factor catalog.
// Build it once with LoadCatalog or NewCatalog and share it freely.
type Catalog struct {
	baseImports []string
	priceFields []string
	nodes       map[NodeType]*NodeSpec
	operators   map[string]*OperatorSpec
	factors     map[string]*FactorDescriptor
}

type catalogFile struct {
	BaseImports []string                 `yaml:"base_imports"`
	PriceFields []string                 `yaml:"price_fields"`
	Nodes       map[string]nodeEntry     `yaml:"nodes"`
	Operators   map[string]operatorEntry `yaml:"operators"`
	Factors     []factorEntry            `yaml:"factors"`
}

type nodeEntry struct {
	Section    string          `yaml:"section"`
	Prefix     string          `yaml:"prefix"`
	Inputs     []PortSpec      `yaml:"inputs"`
	Outputs    []PortSpec      `yaml:"outputs"`
	Parameters []ParameterSpec `yaml:"parameters"`
	Template   string          `yaml:"template"`
}

type operatorEntry struct {
	Expression string   `yaml:"expression"`
	Imports    []string `yaml:"imports"`
}

type factorEntry struct {
	Name        string   `yaml:"name"`
	Category    string   `yaml:"category"`
	Description string   `yaml:"description"`
	Expression  string   `yaml:"expression"`
	Imports     []string `yaml:"imports"`
}

// LoadCatalog builds the catalog shipped with the compiler.
func LoadCatalog() (*Catalog, error) {
	return NewCatalog(defaultCatalog)
}

// NewCatalog decodes a YAML catalog document.
// Every node type must be declared exactly once and every template must parse.
func NewCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrCatalog, err)
	}

	c := &Catalog{
		baseImports: file.BaseImports,
		priceFields: file.PriceFields,
		nodes:       make(map[NodeType]*NodeSpec, len(file.Nodes)),
		operators:   make(map[string]*OperatorSpec, len(file.Operators)),
		factors:     make(map[string]*FactorDescriptor, len(file.Factors)),
	}

	for name, op := range file.Operators {
		tmpl, err := parseTemplate("operator/"+name, op.Expression)
		if err != nil {
			return nil, err
		}
		c.operators[name] = &OperatorSpec{Name: name, Imports: op.Imports, Expression: tmpl}
	}

	for _, f := range file.Factors {
		if _, dup := c.factors[f.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate factor %q", ErrCatalog, f.Name)
		}
		tmpl, err := parseTemplate("factor/"+f.Name, f.Expression)
		if err != nil {
			return nil, err
		}
		c.factors[f.Name] = &FactorDescriptor{
			Name:        f.Name,
			Category:    f.Category,
			Description: f.Description,
			Imports:     f.Imports,
			Expression:  tmpl,
		}
	}

	for name, entry := range file.Nodes {
		nt := NodeType(name)
		if !nt.Valid() {
			return nil, fmt.Errorf("%w: unknown node type %q", ErrCatalog, name)
		}
		tmpl, err := parseTemplate("node/"+name, entry.Template)
		if err != nil {
			return nil, err
		}
		params := make([]ParameterSpec, len(entry.Parameters))
		for i, p := range entry.Parameters {
			resolved, err := c.resolveParameter(nt, p)
			if err != nil {
				return nil, err
			}
			params[i] = resolved
		}
		c.nodes[nt] = &NodeSpec{
			Type:     nt,
			Section:  entry.Section,
			Prefix:   entry.Prefix,
			Inputs:   entry.Inputs,
			Outputs:  entry.Outputs,
			Schema:   ParameterSchema{NodeType: nt, Parameters: params},
			Template: tmpl,
		}
	}

	for _, nt := range nodeTypes {
		if _, ok := c.nodes[nt]; !ok {
			return nil, fmt.Errorf("%w: node type %q missing from catalog", ErrCatalog, nt)
		}
	}
	return c, nil
}

func (c *Catalog) resolveParameter(nt NodeType, p ParameterSpec) (ParameterSpec, error) {
	switch p.ValuesFrom {
	case "":
	case "factors":
		p.Values = c.FactorNames()
	case "operators":
		p.Values = c.OperatorNames()
	case "price_fields":
		p.Values = append([]string(nil), c.priceFields...)
	default:
		return p, fmt.Errorf("%w: %s.%s: unknown values_from %q", ErrCatalog, nt, p.Name, p.ValuesFrom)
	}
	if p.Kind == KindEnum && len(p.Values) == 0 {
		return p, fmt.Errorf("%w: %s.%s: enum without values", ErrCatalog, nt, p.Name)
	}
	if p.Pattern != "" {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return p, fmt.Errorf("%w: %s.%s: bad pattern: %v", ErrCatalog, nt, p.Name, err)
		}
		p.pattern = re
	}
	return p, nil
}

func parseTemplate(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: template %s: %v", ErrCatalog, name, err)
	}
	return tmpl, nil
}

// Node returns the spec for a node type.
func (c *Catalog) Node(t NodeType) (*NodeSpec, bool) {
	n, ok := c.nodes[t]
	return n, ok
}

// GetNodeSchema returns the parameter schema registered for a node type.
func (c *Catalog) GetNodeSchema(t NodeType) (ParameterSchema, error) {
	n, ok := c.nodes[t]
	if !ok {
		return ParameterSchema{}, fmt.Errorf("%w: no schema for node type %q", ErrCatalog, t)
	}
	return n.Schema, nil
}

// GetFactorCatalog returns factor descriptors sorted by name.
// An empty category returns every factor.
func (c *Catalog) GetFactorCatalog(category string) []FactorDescriptor {
	out := make([]FactorDescriptor, 0, len(c.factors))
	for _, f := range c.factors {
		if category != "" && f.Category != category {
			continue
		}
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Factor returns a factor descriptor by name.
func (c *Catalog) Factor(name string) (*FactorDescriptor, bool) {
	f, ok := c.factors[name]
	return f, ok
}

// FactorNames returns every factor name, sorted.
func (c *Catalog) FactorNames() []string {
	return sortedKeys(c.factors)
}

// Operator returns a condition operator by name.
func (c *Catalog) Operator(name string) (*OperatorSpec, bool) {
	op, ok := c.operators[name]
	return op, ok
}

// OperatorNames returns every operator name, sorted.
func (c *Catalog) OperatorNames() []string {
	return sortedKeys(c.operators)
}

// BaseImports returns the import statements every program starts with.
func (c *Catalog) BaseImports() []string {
	return append([]string(nil), c.baseImports...)
}

// PriceFields returns the raw market data columns a program may read.
func (c *Catalog) PriceFields() []string {
	return append([]string(nil), c.priceFields...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
