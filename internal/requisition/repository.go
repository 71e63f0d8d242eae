package requisition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Requisition, error)
	List(ctx context.Context, filters ListFilters, limit, offset int) ([]Requisition, int, error)
}

// TxRepository exposes the transactional operations of the generator and
// lifecycle manager. NewTx allows another module's repository to bind these
// operations to its own transaction, so a catalog-wide sweep can create
// requisitions inside one atomic unit.
type TxRepository interface {
	CountOpen(ctx context.Context, itemID int64, source Source) (int, error)
	NextSequenceForYear(ctx context.Context, year int) (int64, error)
	Insert(ctx context.Context, req Requisition) (int64, error)
	Get(ctx context.Context, id int64) (Requisition, error)
	UpdateStatus(ctx context.Context, id int64, status Status, decidedBy int64, decidedAt time.Time) error
	InsertAudit(ctx context.Context, entry shared.AuditLog) error
}

// ListFilters narrows List results.
type ListFilters struct {
	Status     string
	ItemID     int64
	SourceType string
	SourceID   int64
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps fn in a read-committed transaction. Number allocation locks a
// per-year counter row, which serialises generators at this level; the partial
// unique index over open requisitions backs the dedup check.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// NewTx binds the requisition operations to an externally managed transaction.
func NewTx(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

const requisitionColumns = `id, number, item_id, source_type, source_id, quantity, requested_by, status, urgency, reason,
COALESCE(decided_by, 0), COALESCE(decided_at, 'epoch'::timestamptz), created_at, updated_at`

func scanRequisition(row pgx.Row) (Requisition, error) {
	var req Requisition
	err := row.Scan(
		&req.ID, &req.Number, &req.ItemID, &req.Source.Type, &req.Source.ID,
		&req.Quantity, &req.RequestedBy, &req.Status, &req.Urgency, &req.Reason,
		&req.DecidedBy, &req.DecidedAt, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Requisition{}, ErrNotFound
		}
		return Requisition{}, err
	}
	if req.DecidedAt.Unix() == 0 {
		req.DecidedAt = time.Time{}
	}
	return req, nil
}

// Get fetches a requisition by id outside any transaction.
func (r *Repository) Get(ctx context.Context, id int64) (Requisition, error) {
	query := `SELECT ` + requisitionColumns + ` FROM purchase_requisitions WHERE id = $1`
	return scanRequisition(r.pool.QueryRow(ctx, query, id))
}

// List returns requisitions matching the filters, newest first, plus the
// total match count.
func (r *Repository) List(ctx context.Context, filters ListFilters, limit, offset int) ([]Requisition, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argNum := 1
	if filters.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, argNum)
		args = append(args, filters.Status)
		argNum++
	}
	if filters.ItemID > 0 {
		where += fmt.Sprintf(` AND item_id = $%d`, argNum)
		args = append(args, filters.ItemID)
		argNum++
	}
	if filters.SourceType != "" {
		where += fmt.Sprintf(` AND source_type = $%d`, argNum)
		args = append(args, filters.SourceType)
		argNum++
	}
	if filters.SourceID > 0 {
		where += fmt.Sprintf(` AND source_id = $%d`, argNum)
		args = append(args, filters.SourceID)
		argNum++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_requisitions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + requisitionColumns + ` FROM purchase_requisitions` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, argNum, argNum+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Requisition
	for rows.Next() {
		req, err := scanRequisition(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (tx *txRepo) CountOpen(ctx context.Context, itemID int64, source Source) (int, error) {
	const query = `SELECT COUNT(*) FROM purchase_requisitions
WHERE item_id = $1 AND source_type = $2 AND source_id = $3 AND status IN ('PENDING', 'APPROVED')`
	var count int
	err := tx.tx.QueryRow(ctx, query, itemID, string(source.Type), source.ID).Scan(&count)
	return count, err
}

// NextSequenceForYear advances the per-year counter row and returns the new
// value. The row lock held until commit serialises concurrent generators, and
// the counter only ever moves forward, so rejected and converted requisitions
// never give their number back. Inside a repeatable-read caller (the sweep) a
// lost counter race surfaces as a serialization failure that rolls the whole
// transaction back.
func (tx *txRepo) NextSequenceForYear(ctx context.Context, year int) (int64, error) {
	const query = `INSERT INTO requisition_counters (year, last_seq) VALUES ($1, 1)
ON CONFLICT (year) DO UPDATE SET last_seq = requisition_counters.last_seq + 1
RETURNING last_seq`
	var seq int64
	err := tx.tx.QueryRow(ctx, query, year).Scan(&seq)
	return seq, err
}

func (tx *txRepo) Insert(ctx context.Context, req Requisition) (int64, error) {
	const query = `INSERT INTO purchase_requisitions
(number, item_id, source_type, source_id, quantity, requested_by, status, urgency, reason, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
RETURNING id`
	var id int64
	err := tx.tx.QueryRow(ctx, query,
		req.Number, req.ItemID, string(req.Source.Type), req.Source.ID,
		req.Quantity, req.RequestedBy, string(req.Status), string(req.Urgency), req.Reason,
	).Scan(&id)
	if err != nil {
		return 0, translateInsertError(err)
	}
	return id, nil
}

// openSourceIndex backs the one-open-requisition-per-(item, source) rule.
const openSourceIndex = "uq_requisitions_open_source"

// translateInsertError maps a unique violation on the open-source index to
// errDuplicateOpen: a concurrent generator won the race and its requisition
// covers the gap. Any other conflict (the number column included) is a real
// persistence failure the caller must surface, never a silent no-op.
func translateInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == openSourceIndex {
			return errDuplicateOpen
		}
		return fmt.Errorf("requisition: insert conflict on %s: %w", pgErr.ConstraintName, err)
	}
	return err
}

func (tx *txRepo) Get(ctx context.Context, id int64) (Requisition, error) {
	query := `SELECT ` + requisitionColumns + ` FROM purchase_requisitions WHERE id = $1 FOR UPDATE`
	return scanRequisition(tx.tx.QueryRow(ctx, query, id))
}

func (tx *txRepo) UpdateStatus(ctx context.Context, id int64, status Status, decidedBy int64, decidedAt time.Time) error {
	const query = `UPDATE purchase_requisitions
SET status = $2, decided_by = $3, decided_at = $4, updated_at = NOW()
WHERE id = $1`
	tag, err := tx.tx.Exec(ctx, query, id, string(status), decidedBy, decidedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (tx *txRepo) InsertAudit(ctx context.Context, entry shared.AuditLog) error {
	const query = `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`
	meta, err := marshalMeta(entry.Meta)
	if err != nil {
		return err
	}
	_, err = tx.tx.Exec(ctx, query, entry.ActorID, entry.Action, entry.Entity, entry.EntityID, meta, entry.At)
	return err
}

func marshalMeta(meta map[string]any) ([]byte, error) {
	if meta == nil {
		meta = map[string]any{}
	}
	return json.Marshal(meta)
}
