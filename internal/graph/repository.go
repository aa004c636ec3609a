package graph

import (
	"context"
	"database/sql"
	"fmt"

	"vipspatchbay/internal/database"
)

// Repository reads block catalogue entries and block instances.
// Per spec.md §9 ("do not load the whole project graph into a persistent
// structure"), the Pipeline Evaluator fetches one block row at a time via
// this repository; only the Invalidation Controller's BFS needs the
// project-wide batched fetch (ListProjectBlocks).
type Repository struct {
	db *database.DB
}

// New wraps a database connection as a Block Graph repository.
func New(db *database.DB) *Repository {
	return &Repository{db: db}
}

// GetBlockInstance fetches a single block instance by id.
func (r *Repository) GetBlockInstance(ctx context.Context, id int64) (*BlockInstance, error) {
	var b BlockInstance
	query := `SELECT id, idproject, idblock, connections, output_value, enabled FROM blocks WHERE id = $1`
	err := r.db.GetContext(ctx, &b, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("block instance %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get block instance: %w", err)
	}
	return &b, nil
}

// GetBlockType fetches a catalogue entry by id.
func (r *Repository) GetBlockType(ctx context.Context, id int64) (*BlockType, error) {
	var t BlockType
	query := `SELECT id, name, command, parameter_template, parameter_mappings, gui_fields, outputs FROM blocks_catalogue WHERE id = $1`
	err := r.db.GetContext(ctx, &t, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("block type %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get block type: %w", err)
	}
	return &t, nil
}

// TerminalBlock returns the one block instance in a project whose
// catalogue row has outputs IS NULL, per spec.md §3 and §6.
func (r *Repository) TerminalBlock(ctx context.Context, idProject int64) (*BlockInstance, error) {
	var b BlockInstance
	query := `
		SELECT b.id, b.idproject, b.idblock, b.connections, b.output_value, b.enabled
		FROM blocks b
		JOIN blocks_catalogue c ON c.id = b.idblock
		WHERE b.idproject = $1 AND c.outputs IS NULL
		LIMIT 1`
	err := r.db.GetContext(ctx, &b, query, idProject)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %d: %w", idProject, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get terminal block: %w", err)
	}
	return &b, nil
}

// ListProjectBlocks fetches every block instance in a project in a single
// batched query, feeding the Invalidation Controller's in-memory BFS.
func (r *Repository) ListProjectBlocks(ctx context.Context, idProject int64) ([]BlockInstance, error) {
	var blocks []BlockInstance
	query := `SELECT id, idproject, idblock, connections, output_value, enabled FROM blocks WHERE idproject = $1`
	if err := r.db.SelectContext(ctx, &blocks, query, idProject); err != nil {
		return nil, fmt.Errorf("list project blocks: %w", err)
	}
	return blocks, nil
}

// SetEnabled persists a block instance's enabled flag.
func (r *Repository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE blocks SET enabled = $1 WHERE id = $2`, enabled, id)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}
	return nil
}

// KindOf classifies a block type name into the tagged-variant dispatch
// spec.md §9 describes. Unrecognized names route to KindGeneral.
func KindOf(typeName string) Kind {
	switch typeName {
	case TypeNameInput:
		return KindInput
	case TypeNameLoadImage:
		return KindLoadImage
	case TypeNameImagePreview:
		return KindImagePreview
	default:
		return KindGeneral
	}
}
