package quicktest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles quick test persistence in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// InitSchema creates the quick_tests table if it does not exist.
func (r *Repository) InitSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS quick_tests (
			id           UUID PRIMARY KEY,
			instance_id  TEXT NOT NULL,
			user_id      TEXT NOT NULL,
			code_id      TEXT NOT NULL DEFAULT '',
			code_hash    TEXT NOT NULL DEFAULT '',
			config       JSONB NOT NULL,
			status       TEXT NOT NULL,
			progress     INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
			metrics      JSONB,
			error        TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			started_at   TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS quick_tests_running_idx
			ON quick_tests (started_at) WHERE status = 'running';
	`)
	if err != nil {
		return fmt.Errorf("init quick_tests schema: %w", err)
	}
	return nil
}

const quickTestColumns = `id, instance_id, user_id, code_id, code_hash, config, status, progress, metrics, error, created_at, started_at, completed_at`

// Create inserts a new quick test.
func (r *Repository) Create(ctx context.Context, qt *QuickTest) error {
	configJSON, err := json.Marshal(qt.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO quick_tests (id, instance_id, user_id, code_id, code_hash, config, status, progress, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, qt.ID, qt.InstanceID, qt.UserID, qt.CodeID, qt.CodeHash, configJSON, string(qt.Status), qt.Progress, qt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert quick test: %w", err)
	}
	return nil
}

// Get retrieves a quick test by ID. Returns nil, nil if not found.
func (r *Repository) Get(ctx context.Context, id string) (*QuickTest, error) {
	row := r.db.QueryRow(ctx, `SELECT `+quickTestColumns+` FROM quick_tests WHERE id = $1`, id)
	qt, err := scanQuickTest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quick test: %w", err)
	}
	return qt, nil
}

// CompareAndUpdate applies u in a single UPDATE guarded by the expected
// status, so concurrent writers cannot both move the same record.
// Returns nil, nil when the guard does not match.
func (r *Repository) CompareAndUpdate(ctx context.Context, id string, expected Status, u Update) (*QuickTest, error) {
	var metricsJSON []byte
	if u.Metrics != nil {
		var err error
		if metricsJSON, err = json.Marshal(u.Metrics); err != nil {
			return nil, fmt.Errorf("marshal metrics: %w", err)
		}
	}

	row := r.db.QueryRow(ctx, `
		UPDATE quick_tests SET
			status       = $3,
			progress     = COALESCE($4, progress),
			metrics      = COALESCE($5::jsonb, metrics),
			error        = COALESCE($6, error),
			started_at   = COALESCE($7, started_at),
			completed_at = COALESCE($8, completed_at)
		WHERE id = $1 AND status = $2
		RETURNING `+quickTestColumns,
		id, string(expected), string(u.Status), u.Progress, metricsJSON, u.Error, u.StartedAt, u.CompletedAt)
	qt, err := scanQuickTest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update quick test: %w", err)
	}
	return qt, nil
}

// ListRunningOlderThan returns running tests started before cutoff, oldest first.
func (r *Repository) ListRunningOlderThan(ctx context.Context, cutoff time.Time) ([]QuickTest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+quickTestColumns+`
		FROM quick_tests WHERE status = 'running' AND started_at < $1
		ORDER BY started_at
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query running quick tests: %w", err)
	}
	defer rows.Close()

	out := []QuickTest{}
	for rows.Next() {
		qt, err := scanQuickTest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quick test: %w", err)
		}
		out = append(out, *qt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate running quick tests: %w", err)
	}
	return out, nil
}

func scanQuickTest(row pgx.Row) (*QuickTest, error) {
	var qt QuickTest
	var status string
	var configJSON, metricsJSON []byte
	err := row.Scan(&qt.ID, &qt.InstanceID, &qt.UserID, &qt.CodeID, &qt.CodeHash, &configJSON,
		&status, &qt.Progress, &metricsJSON, &qt.Error, &qt.CreatedAt, &qt.StartedAt, &qt.CompletedAt)
	if err != nil {
		return nil, err
	}
	qt.Status = Status(status)
	if err := json.Unmarshal(configJSON, &qt.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if metricsJSON != nil {
		if err := json.Unmarshal(metricsJSON, &qt.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal metrics: %w", err)
		}
	}
	return &qt, nil
}
