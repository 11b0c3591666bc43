// Package flow holds the logic-flow graph model and everything that can be
// decided about a graph without generating code for it.
//
// A LogicFlow is a set of typed nodes joined by port-to-port edges. The
// package provides:
//
//   - Catalog: the immutable node/parameter/factor catalog, loaded from YAML
//   - Validator: schema, structure, cycle, port-type and semantic checks
//   - DetectCircularDependency: standalone cycle search for live feedback
//   - Sort: deterministic topological ordering (Kahn)
//
// Validation failures are reported as Violations collected in a
// ValidationResult; ValidationError and GraphError wrap ErrValidation and
// ErrGraph for errors.Is() checks.
package flow
