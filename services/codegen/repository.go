package codegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles generated code persistence in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// InitSchema creates the generated_codes table if it does not exist.
func (r *Repository) InitSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS generated_codes (
			id           UUID PRIMARY KEY,
			instance_id  TEXT NOT NULL,
			code         TEXT NOT NULL,
			language     TEXT NOT NULL,
			format_tag   TEXT NOT NULL,
			imports      JSONB NOT NULL DEFAULT '[]',
			entry_symbol TEXT NOT NULL,
			code_hash    TEXT NOT NULL,
			metadata     JSONB NOT NULL DEFAULT '{}',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (instance_id, code_hash)
		)
	`)
	if err != nil {
		return fmt.Errorf("init generated_codes schema: %w", err)
	}
	return nil
}

const selectColumns = `id, instance_id, code, language, format_tag, imports, entry_symbol, code_hash, metadata, created_at`

// FindByHash returns the record for an instance and hash. Returns nil, nil if not found.
func (r *Repository) FindByHash(ctx context.Context, instanceID, hash string) (*GeneratedCode, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM generated_codes WHERE instance_id = $1 AND code_hash = $2
	`, instanceID, hash)
	rec, err := scanGeneratedCode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find generated code: %w", err)
	}
	return rec, nil
}

// Store inserts code. If a concurrent call already stored the same instance
// and hash, that record is returned instead.
func (r *Repository) Store(ctx context.Context, code *GeneratedCode) (*GeneratedCode, error) {
	importsJSON, err := json.Marshal(code.Imports)
	if err != nil {
		return nil, fmt.Errorf("marshal imports: %w", err)
	}
	metadataJSON, err := json.Marshal(code.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO generated_codes
			(id, instance_id, code, language, format_tag, imports, entry_symbol, code_hash, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (instance_id, code_hash) DO NOTHING
		RETURNING `+selectColumns,
		code.ID, code.InstanceID, code.Code, code.Language, code.FormatTag,
		importsJSON, code.EntrySymbol, code.CodeHash, metadataJSON, code.CreatedAt)
	rec, err := scanGeneratedCode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, findErr := r.FindByHash(ctx, code.InstanceID, code.CodeHash)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, fmt.Errorf("store generated code: conflicting row for hash %s disappeared", code.CodeHash)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store generated code: %w", err)
	}
	return rec, nil
}

// History returns an instance's generated code, newest first.
func (r *Repository) History(ctx context.Context, instanceID string) ([]GeneratedCode, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+selectColumns+`
		FROM generated_codes WHERE instance_id = $1
		ORDER BY created_at DESC, id
	`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("query generated code history: %w", err)
	}
	defer rows.Close()

	out := []GeneratedCode{}
	for rows.Next() {
		rec, err := scanGeneratedCode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan generated code: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generated code history: %w", err)
	}
	return out, nil
}

func scanGeneratedCode(row pgx.Row) (*GeneratedCode, error) {
	var rec GeneratedCode
	var importsJSON, metadataJSON []byte
	err := row.Scan(&rec.ID, &rec.InstanceID, &rec.Code, &rec.Language, &rec.FormatTag,
		&importsJSON, &rec.EntrySymbol, &rec.CodeHash, &metadataJSON, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(importsJSON, &rec.Imports); err != nil {
		return nil, fmt.Errorf("unmarshal imports: %w", err)
	}
	if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &rec, nil
}
