package codegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"logicflow/services/flow"
	"logicflow/services/security"
)

// Store persists generated code. FindByHash returns nil, nil when no record matches.
type Store interface {
	FindByHash(ctx context.Context, instanceID, hash string) (*GeneratedCode, error)
	Store(ctx context.Context, code *GeneratedCode) (*GeneratedCode, error)
	History(ctx context.Context, instanceID string) ([]GeneratedCode, error)
}

// Generator compiles logic flows into stored, security-checked programs.
// It keeps no state of its own between calls; persistence goes through Store.
type Generator struct {
	catalog   *flow.Catalog
	validator *flow.Validator
	emitter   *Emitter
	assembler *Assembler
	security  *security.Validator
	store     Store
	now       func() time.Time
}

// NewGenerator wires a Generator from an immutable catalog, a security
// validator and a generated-code store.
func NewGenerator(catalog *flow.Catalog, sec *security.Validator, store Store) *Generator {
	return &Generator{
		catalog:   catalog,
		validator: flow.NewValidator(catalog),
		emitter:   NewEmitter(catalog),
		assembler: NewAssembler(catalog),
		security:  sec,
		store:     store,
		now:       time.Now,
	}
}

// Catalog returns the catalog the generator compiles against.
func (g *Generator) Catalog() *flow.Catalog {
	return g.catalog
}

// Validate runs graph validation without generating code.
func (g *Generator) Validate(f *flow.LogicFlow) flow.ValidationResult {
	return g.validator.Validate(f)
}

// DetectCycle returns a closed cycle path, or nil if the flow is acyclic.
func (g *Generator) DetectCycle(f *flow.LogicFlow) []string {
	if f == nil {
		return nil
	}
	return flow.DetectCircularDependency(f.Nodes, f.Edges)
}

// Generate validates, orders, emits, assembles and hashes the flow. When a
// record with the same hash already exists for the instance it is returned
// unchanged. Otherwise the program is security checked and stored. Nothing
// is stored on any failure.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*GeneratedCode, error) {
	if req.InstanceID == "" {
		return nil, errors.New("instance id is required")
	}

	result := g.validator.Validate(req.Flow)
	if !result.IsValid {
		return nil, &flow.ValidationError{Result: result}
	}

	ordered, err := flow.Sort(req.Flow)
	if err != nil {
		return nil, err
	}

	fragments, err := g.emitter.EmitAll(req.Flow, ordered)
	if err != nil {
		var graphErr *flow.GraphError
		if errors.As(err, &graphErr) {
			return nil, err
		}
		return nil, &CodeGenerationError{Reason: "emit fragments", Err: err}
	}

	program, err := g.assembler.Assemble(fragments, req.Parameters, req.IncludeComments)
	if err != nil {
		return nil, &CodeGenerationError{Reason: "assemble program", Err: err}
	}
	hash := Hash(program.Code)

	existing, err := g.store.FindByHash(ctx, req.InstanceID, hash)
	if err != nil {
		return nil, fmt.Errorf("find generated code by hash: %w", err)
	}
	if existing != nil {
		slog.Debug("Reusing generated code", "instance_id", req.InstanceID, "hash", hash)
		return existing, nil
	}

	check := g.security.Validate(ctx, program.Code)
	if !check.IsSafe {
		slog.Info("Generated code rejected by security validation",
			"instance_id", req.InstanceID, "violations", len(check.Violations))
		return nil, &CodeGenerationError{Reason: "security validation failed", Violations: check.Violations}
	}

	record := &GeneratedCode{
		ID:          uuid.NewString(),
		InstanceID:  req.InstanceID,
		Code:        program.Code,
		Language:    Language,
		FormatTag:   FormatTag,
		Imports:     program.Imports,
		EntrySymbol: EntrySymbol,
		CodeHash:    hash,
		Metadata: map[string]any{
			"node_count":        len(req.Flow.Nodes),
			"edge_count":        len(req.Flow.Edges),
			"warning_count":     len(result.Warnings),
			"complexity":        check.Complexity,
			"generator_version": GeneratorVersion,
		},
		CreatedAt: g.now().UTC(),
	}

	stored, err := g.store.Store(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("store generated code: %w", err)
	}
	slog.Info("Generated code stored", "instance_id", req.InstanceID, "id", stored.ID, "hash", hash)
	return stored, nil
}

// History returns an instance's generated code, newest first.
func (g *Generator) History(ctx context.Context, instanceID string) ([]GeneratedCode, error) {
	records, err := g.store.History(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("generated code history: %w", err)
	}
	if records == nil {
		records = []GeneratedCode{}
	}
	return records, nil
}
