package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vipspatchbay/internal/database"
)

// InputImage mirrors a row of input_images: the record created when a new
// upload arrives, per spec.md §3. It is never mutated after creation.
type InputImage struct {
	UUID             uuid.UUID `db:"uuid"`
	OriginalFilename string    `db:"original_filename"`
	UploadTimestamp  time.Time `db:"upload_timestamp"`
}

// InputImages is the thin repository the upload collaborator and the
// Pipeline Evaluator's "Load Image" block kind both consult.
type InputImages struct {
	db *database.DB
}

// NewInputImages wraps a database connection.
func NewInputImages(db *database.DB) *InputImages {
	return &InputImages{db: db}
}

// Register records that a new input image with the given UUID and
// original filename has arrived. Per spec.md §3, the file must already
// exist in the store at the time this is called.
func (r *InputImages) Register(ctx context.Context, id uuid.UUID, originalFilename string) error {
	query := `INSERT INTO input_images (uuid, original_filename, upload_timestamp) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, query, id, originalFilename, time.Now())
	if err != nil {
		return fmt.Errorf("register input image: %w", err)
	}
	return nil
}

// LookupByFilename implements the "Load Image" block kind's lookup
// (spec.md §4.2 kind 3): returns the uuid registered under filename, or
// ok=false if no such row exists.
func (r *InputImages) LookupByFilename(ctx context.Context, filename string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	query := `SELECT uuid FROM input_images WHERE original_filename = $1 ORDER BY upload_timestamp DESC LIMIT 1`
	err := r.db.GetContext(ctx, &id, query, filename)
	if err == sql.ErrNoRows {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("lookup input image by filename: %w", err)
	}
	return id, true, nil
}
