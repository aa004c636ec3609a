// Package cache implements the Cache Index (CI): the durable memoization
// table mapping a (block, settings, ordered inputs) key to the output UUID
// produced for it, and the self-healing discipline that reconciles stale
// rows against the Image Store.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"vipspatchbay/internal/database"
)

// Key is the triple spec.md §4.2(b) defines as the cache key: a block
// instance id, a canonical JSON rendering of its settings, and the
// ordered list of resolved input UUIDs that fed it. Two instances of the
// same block type with identical settings do NOT share a row (the key is
// scoped by instance id, not type id; spec.md §9 Open Question, kept as
// specified).
type Key struct {
	BlockID        int64
	ParametersJSON string
	InputUUIDsJSON string
}

// NewKey canonicalizes settings (arbitrary JSON object) and an ordered
// slice of input UUIDs into a Key. Canonicalization round-trips the
// settings through a map so that two JSON encodings of the same object
// (possibly with keys in a different order) produce byte-identical
// parameters_json (this is what makes P5, determinism of keying, hold).
func NewKey(blockID int64, settings json.RawMessage, inputUUIDs []string) (Key, error) {
	paramsJSON, err := canonicalize(settings)
	if err != nil {
		return Key{}, fmt.Errorf("canonicalize settings: %w", err)
	}
	if inputUUIDs == nil {
		inputUUIDs = []string{}
	}
	inputsJSON, err := json.Marshal(inputUUIDs)
	if err != nil {
		return Key{}, fmt.Errorf("marshal input uuids: %w", err)
	}
	return Key{BlockID: blockID, ParametersJSON: paramsJSON, InputUUIDsJSON: string(inputsJSON)}, nil
}

func canonicalize(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", err
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Entry mirrors one row of image_cache.
type Entry struct {
	UUID              uuid.UUID `db:"uuid"`
	IDBlock           int64     `db:"idblock"`
	ParametersJSON    string    `db:"parameters_json"`
	InputUUIDsJSON    string    `db:"input_uuids_json"`
	CreationTimestamp time.Time `db:"creation_timestamp"`
}

// Index implements the four operations spec.md §4.6 assigns to the Cache
// Index: lookup, insert, delete by uuid, and a batched listing by block id
// (used by the Invalidation Controller).
type Index struct {
	db *database.DB
}

// New wraps a database connection as a Cache Index.
func New(db *database.DB) *Index {
	return &Index{db: db}
}

// Lookup finds the output UUID cached for key, or sql.ErrNoRows via ok=false.
func (i *Index) Lookup(ctx context.Context, key Key) (uuid.UUID, bool, error) {
	var id uuid.UUID
	query := `SELECT uuid FROM image_cache WHERE idblock = $1 AND parameters_json = $2 AND input_uuids_json = $3`
	err := i.db.GetContext(ctx, &id, query, key.BlockID, key.ParametersJSON, key.InputUUIDsJSON)
	if err == sql.ErrNoRows {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("cache lookup: %w", err)
	}
	return id, true, nil
}

// Insert records a successful execution's output under key. Cache rows
// are write-once from the Executor's perspective: only successes are
// recorded (spec.md §4.2 edge cases).
func (i *Index) Insert(ctx context.Context, id uuid.UUID, key Key) error {
	query := `
		INSERT INTO image_cache (uuid, idblock, parameters_json, input_uuids_json, creation_timestamp)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (uuid) DO NOTHING`
	_, err := i.db.ExecContext(ctx, query, id, key.BlockID, key.ParametersJSON, key.InputUUIDsJSON, time.Now())
	if err != nil {
		return fmt.Errorf("cache insert: %w", err)
	}
	return nil
}

// DeleteByUUID removes a row by its output uuid. Used both by self-heal
// (orphaned row, file missing) and by the Invalidation Controller.
// Deleting an already-absent row is not an error: double-deletion must be
// idempotent (spec.md §5).
func (i *Index) DeleteByUUID(ctx context.Context, id uuid.UUID) error {
	_, err := i.db.ExecContext(ctx, `DELETE FROM image_cache WHERE uuid = $1`, id)
	if err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// MostRecentForBlock returns the most recently inserted output UUID for a
// block instance, regardless of the settings/input key it was produced
// under. Backs the "most recent CI output for that block" route.
func (i *Index) MostRecentForBlock(ctx context.Context, blockID int64) (uuid.UUID, bool, error) {
	var id uuid.UUID
	query := `SELECT uuid FROM image_cache WHERE idblock = $1 ORDER BY creation_timestamp DESC LIMIT 1`
	err := i.db.GetContext(ctx, &id, query, blockID)
	if err == sql.ErrNoRows {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("most recent for block: %w", err)
	}
	return id, true, nil
}

// ListEntriesForBlock returns every CI row for one block instance, newest
// first. A debugging aid over the plain UUID listing.
func (i *Index) ListEntriesForBlock(ctx context.Context, blockID int64) ([]Entry, error) {
	var entries []Entry
	query := `
		SELECT uuid, idblock, parameters_json, input_uuids_json, creation_timestamp
		FROM image_cache WHERE idblock = $1 ORDER BY creation_timestamp DESC`
	if err := i.db.SelectContext(ctx, &entries, query, blockID); err != nil {
		return nil, fmt.Errorf("list entries for block: %w", err)
	}
	return entries, nil
}

// ListUUIDsForBlocks returns every cached output UUID belonging to any of
// the given block instance ids, for the Invalidation Controller's
// downstream-closure file cleanup.
func (i *Index) ListUUIDsForBlocks(ctx context.Context, blockIDs []int64) ([]uuid.UUID, error) {
	if len(blockIDs) == 0 {
		return nil, nil
	}
	var ids []uuid.UUID
	query, args, err := sqlx.In(`SELECT uuid FROM image_cache WHERE idblock IN (?)`, blockIDs)
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	query = i.db.Rebind(query)
	if err := i.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("list uuids for blocks: %w", err)
	}
	return ids, nil
}
