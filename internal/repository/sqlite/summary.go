package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/recap/internal/apperror"
	"github.com/sakif/recap/internal/model"
	"github.com/sakif/recap/internal/repository"
)

// compile-time check that *DB implements repository.SummaryRepository
var _ repository.SummaryRepository = (*DB)(nil)

// encodeKeyPoints serializes the key-points slice for the key_points
// column. A JSON array survives any content — dashes, newlines, emoji —
// which is exactly what the old flattened-text encoding could not promise.
func encodeKeyPoints(points []string) (string, error) {
	if points == nil {
		points = []string{}
	}
	raw, err := json.Marshal(points)
	if err != nil {
		return "", fmt.Errorf("encoding key points: %w", err)
	}
	return string(raw), nil
}

func decodeKeyPoints(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var points []string
	if err := json.Unmarshal([]byte(raw), &points); err != nil {
		return nil, fmt.Errorf("decoding key points: %w", err)
	}
	if points == nil {
		points = []string{}
	}
	return points, nil
}

// Create inserts a new summary.
//
// Used by the save endpoint (client-supplied summaries are stored without
// touching the credit ledger). Generation uses CreateWithDebit instead.
func (db *DB) Create(ctx context.Context, summary *model.Summary) error {
	summary.ID = xid.New().String()
	summary.CreatedAt = time.Now()

	keyPoints, err := encodeKeyPoints(summary.KeyPoints)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}

	// PARAMETERIZED QUERIES (the ? placeholders):
	// NEVER build SQL strings with fmt.Sprintf or string concatenation —
	// that creates SQL injection vulnerabilities. The driver escapes the
	// placeholder values safely.
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO summaries (id, user_id, video_ref, content, title, key_points, full_summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.ID,
		summary.UserID,
		summary.VideoRef,
		summary.Content,
		summary.Title,
		keyPoints,
		summary.FullSummary,
		summary.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating summary: %w", err)
	}

	return nil
}

// CreateWithDebit inserts the summary and spends one of its owner's
// credits as a single atomic unit.
//
// WHY ONE TRANSACTION?
// The two failure modes of doing these separately are both real bugs:
//   - debit first, insert fails → the user paid for a summary that was
//     never stored
//   - insert first, debit fails → a free generation
//
// Inside a transaction, either both happen or neither does. The debit uses
// the same conditional UPDATE as DebitCredit, so the no-credits case rolls
// the insert back and surfaces as ErrInsufficientCredits.
func (db *DB) CreateWithDebit(ctx context.Context, summary *model.Summary) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning debit transaction: %w", err)
	}
	// Rollback after a successful Commit is a no-op, so the defer is safe
	// on every path.
	defer tx.Rollback()

	if err := debitCredit(ctx, tx, summary.UserID); err != nil {
		return err
	}

	summary.ID = xid.New().String()
	summary.CreatedAt = time.Now()

	keyPoints, err := encodeKeyPoints(summary.KeyPoints)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO summaries (id, user_id, video_ref, content, title, key_points, full_summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.ID,
		summary.UserID,
		summary.VideoRef,
		summary.Content,
		summary.Title,
		keyPoints,
		summary.FullSummary,
		summary.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating summary in debit transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing debit transaction: %w", err)
	}

	return nil
}

const summaryColumns = `id, user_id, video_ref, content, title, key_points, full_summary, created_at`

// scanSummary reads one summary row from anything with a Scan method
// (*sql.Row or *sql.Rows). Column order must match summaryColumns.
func scanSummary(row interface{ Scan(dest ...any) error }) (*model.Summary, error) {
	var (
		s         model.Summary
		keyPoints string
	)
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.VideoRef,
		&s.Content,
		&s.Title,
		&keyPoints,
		&s.FullSummary,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.KeyPoints, err = decodeKeyPoints(keyPoints)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByID retrieves a single summary, scoped to its owner.
//
// OWNERSHIP IN THE WHERE CLAUSE:
// The query filters on id AND user_id, so a row that exists but belongs to
// someone else produces sql.ErrNoRows — exactly the same NotFound the
// caller gets for an id that never existed. Non-owners learn nothing, not
// even that the row is there.
func (db *DB) GetByID(ctx context.Context, id, ownerID string) (*model.Summary, error) {
	s, err := scanSummary(db.conn.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM summaries WHERE id = ? AND user_id = ?`,
		id, ownerID,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("summary", id)
		}
		return nil, fmt.Errorf("sqlite: getting summary %s: %w", id, err)
	}
	return s, nil
}

// GetByVideoRef is the global cache lookup: the newest summary for the
// given source video, regardless of who generated it.
//
// DELIBERATELY NOT OWNER-SCOPED: once anyone has paid to summarize a
// video, everyone gets the result for free. Returns ErrNotFound on a cache
// miss.
func (db *DB) GetByVideoRef(ctx context.Context, videoRef string) (*model.Summary, error) {
	s, err := scanSummary(db.conn.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM summaries
		 WHERE video_ref = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		videoRef,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("summary", videoRef)
		}
		return nil, fmt.Errorf("sqlite: getting summary by video ref %s: %w", videoRef, err)
	}
	return s, nil
}

// ListByOwner retrieves the caller's summaries, newest first, plus the
// total count for pagination.
//
// LIMIT/OFFSET pagination:
// LIMIT N returns at most N rows, OFFSET M skips the first M.
// Page 3 with 20 per page → LIMIT 20 OFFSET 40. The separate COUNT query
// lets the client render "page 3 of 12".
func (db *DB) ListByOwner(ctx context.Context, ownerID string, opts repository.ListOptions) ([]model.Summary, int, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100 // prevent fetching the entire table
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	var total int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM summaries WHERE user_id = ?`, ownerID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting summaries for user %s: %w", ownerID, err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+summaryColumns+` FROM summaries
		 WHERE user_id = ?
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing summaries for user %s: %w", ownerID, err)
	}
	// CRITICAL: sql.Rows holds a pool connection until closed. A forgotten
	// Close leaks the connection and eventually hangs the whole app.
	defer rows.Close()

	summaries := make([]model.Summary, 0, limit)
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning summary row: %w", err)
		}
		summaries = append(summaries, *s)
	}

	// rows.Err() catches failures that happened DURING iteration, like the
	// connection dropping mid-scan.
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating summaries: %w", err)
	}

	return summaries, total, nil
}

// Delete removes a summary, scoped to its owner.
//
// Same WHERE-clause ownership as GetByID: deleting someone else's summary
// affects zero rows and returns the identical NotFound a nonexistent id
// would.
func (db *DB) Delete(ctx context.Context, id, ownerID string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM summaries WHERE id = ? AND user_id = ?`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting summary %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("summary", id)
	}

	return nil
}
