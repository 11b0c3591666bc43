package quicktest

import (
	"time"

	"github.com/shopspring/decimal"

	"logicflow/services/flow"
)

// Status is the lifecycle state of a quick test.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// QuickTest is a short backtest run against an instance's generated code.
type QuickTest struct {
	ID          string          `json:"id"`
	InstanceID  string          `json:"instance_id"`
	UserID      string          `json:"user_id"`
	CodeID      string          `json:"code_id"`
	CodeHash    string          `json:"code_hash"`
	Config      ExecutionConfig `json:"config_snapshot"`
	Status      Status          `json:"status"`
	Progress    int             `json:"progress"`
	Metrics     map[string]any  `json:"metrics,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// ExecutionConfig is the full backtest configuration handed to the engine.
type ExecutionConfig struct {
	Symbols        []string        `json:"symbols"`
	StartDate      time.Time       `json:"start_date"`
	EndDate        time.Time       `json:"end_date"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	Slippage       decimal.Decimal `json:"slippage"`
	Frequency      string          `json:"frequency"`
	Benchmark      string          `json:"benchmark"`
	Quick          bool            `json:"quick"`
}

// QuickTestRequest is the simplified request a client submits.
// Dates use the YYYY-MM-DD layout; zero values take configured defaults.
type QuickTestRequest struct {
	Symbol         string              `json:"symbol"`
	StartDate      string              `json:"start_date"`
	EndDate        string              `json:"end_date"`
	InitialCapital decimal.NullDecimal `json:"initial_capital"`
	Frequency      string              `json:"frequency"`
}

// Instance is a user's strategy instance: the logic flow a quick test compiles.
type Instance struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Name       string         `json:"name"`
	Flow       flow.LogicFlow `json:"logic_flow"`
	Parameters map[string]any `json:"parameters"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Task is the unit of work handed to the task queue.
type Task struct {
	TestID      string          `json:"test_id"`
	Code        string          `json:"code"`
	CodeHash    string          `json:"code_hash"`
	EntrySymbol string          `json:"entry_symbol"`
	Config      ExecutionConfig `json:"config"`
}

// WorkerEvent is a callback posted by an execution worker.
type WorkerEvent struct {
	Type     string         `json:"type"` // started, progress, completed, failed
	Progress int            `json:"progress"`
	Metrics  map[string]any `json:"metrics"`
	Error    string         `json:"error"`
}
