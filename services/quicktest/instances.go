package quicktest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"logicflow/services/flow"
)

// InstanceRepository reads strategy instances from PostgreSQL.
type InstanceRepository struct {
	db *pgxpool.Pool
}

// NewInstanceRepository creates an InstanceRepository backed by the given pool.
func NewInstanceRepository(pool *pgxpool.Pool) *InstanceRepository {
	return &InstanceRepository{db: pool}
}

// InitSchema creates the strategy_instances table if it does not exist.
func (r *InstanceRepository) InitSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS strategy_instances (
			id         UUID PRIMARY KEY,
			user_id    TEXT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			logic_flow JSONB NOT NULL,
			parameters JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("init strategy_instances schema: %w", err)
	}
	return nil
}

// Seed inserts the sample instance if it does not already exist.
func (r *InstanceRepository) Seed(ctx context.Context) error {
	inst := SampleInstance()
	flowJSON, err := json.Marshal(inst.Flow)
	if err != nil {
		return fmt.Errorf("marshal seed flow: %w", err)
	}
	paramsJSON, err := json.Marshal(inst.Parameters)
	if err != nil {
		return fmt.Errorf("marshal seed parameters: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO strategy_instances (id, user_id, name, logic_flow, parameters)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, inst.ID, inst.UserID, inst.Name, flowJSON, paramsJSON)
	if err != nil {
		return fmt.Errorf("seed strategy instance: %w", err)
	}
	return nil
}

// GetInstance retrieves an instance by ID. Returns nil, nil if not found.
func (r *InstanceRepository) GetInstance(ctx context.Context, id string) (*Instance, error) {
	var inst Instance
	var flowJSON, paramsJSON []byte

	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, name, logic_flow, parameters, created_at
		FROM strategy_instances WHERE id = $1
	`, id).Scan(&inst.ID, &inst.UserID, &inst.Name, &flowJSON, &paramsJSON, &inst.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get strategy instance: %w", err)
	}

	if err := json.Unmarshal(flowJSON, &inst.Flow); err != nil {
		return nil, fmt.Errorf("unmarshal logic flow: %w", err)
	}
	if err := json.Unmarshal(paramsJSON, &inst.Parameters); err != nil {
		return nil, fmt.Errorf("unmarshal parameters: %w", err)
	}
	return &inst, nil
}

// InitDB creates the instance and quick test schemas and seeds the sample
// instance. Called from main on startup.
func InitDB(ctx context.Context, pool *pgxpool.Pool) error {
	instances := NewInstanceRepository(pool)
	if err := instances.InitSchema(ctx); err != nil {
		return err
	}
	if err := NewRepository(pool).InitSchema(ctx); err != nil {
		return err
	}
	return instances.Seed(ctx)
}

const (
	SampleInstanceID = "550e8400-e29b-41d4-a716-446655440000"
	SampleUserID     = "demo-user"
)

// SampleInstance is an EMA crossover strategy owned by SampleUserID.
func SampleInstance() Instance {
	return Instance{
		ID:     SampleInstanceID,
		UserID: SampleUserID,
		Name:   "EMA Crossover",
		Flow: flow.LogicFlow{
			Nodes: []flow.Node{
				{ID: "fast", Type: flow.Indicator, Label: "EMA 12", Parameters: map[string]any{"indicator": "EMA", "period": 12.0}},
				{ID: "slow", Type: flow.Indicator, Label: "EMA 26", Parameters: map[string]any{"indicator": "EMA", "period": 26.0}},
				{ID: "golden", Type: flow.Condition, Label: "Fast crosses above slow", Parameters: map[string]any{"operator": "cross_above"}},
				{ID: "death", Type: flow.Condition, Label: "Fast crosses below slow", Parameters: map[string]any{"operator": "cross_below"}},
				{ID: "buy", Type: flow.Signal, Label: "Buy", Parameters: map[string]any{"action": "BUY"}},
				{ID: "sell", Type: flow.Signal, Label: "Sell", Parameters: map[string]any{"action": "SELL"}},
				{ID: "size", Type: flow.Position, Label: "Half of equity", Parameters: map[string]any{"allocation": 50.0}},
				{ID: "stop", Type: flow.StopLoss, Label: "5% trailing stop", Parameters: map[string]any{"percent": 5.0, "trailing": true}},
				{ID: "target", Type: flow.StopProfit, Label: "Take 15%", Parameters: map[string]any{"percent": 15.0}},
			},
			Edges: []flow.Edge{
				{FromNodeID: "fast", ToNodeID: "golden", ToPort: "left"},
				{FromNodeID: "slow", ToNodeID: "golden", ToPort: "right"},
				{FromNodeID: "fast", ToNodeID: "death", ToPort: "left"},
				{FromNodeID: "slow", ToNodeID: "death", ToPort: "right"},
				{FromNodeID: "golden", ToNodeID: "buy"},
				{FromNodeID: "death", ToNodeID: "sell"},
				{FromNodeID: "buy", ToNodeID: "size"},
				{FromNodeID: "size", ToNodeID: "stop"},
				{FromNodeID: "size", ToNodeID: "target"},
			},
		},
		Parameters: map[string]any{"name": "EMA Crossover"},
	}
}
