package planning

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/requisition"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSalesOrder(ctx context.Context, id int64) (SalesOrder, error)
	ListOrderLines(ctx context.Context, salesOrderID int64) ([]SalesOrderLine, error)
	GetRequirement(ctx context.Context, id int64) (StockRequirement, error)
	ListRequirementsByOrder(ctx context.Context, salesOrderID int64) ([]StockRequirement, error)
}

// TxRepository exposes transactional operations. Requisitions binds the
// requisition generator to the same transaction, so sweep and requirement
// writes commit or roll back together with the requisitions they create.
type TxRepository interface {
	UpsertRequirement(ctx context.Context, req StockRequirement) (StockRequirement, error)
	SetRequirementOpenFlag(ctx context.Context, id int64, open bool) error
	Requisitions() requisition.TxRepository
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

// WithTx wraps fn in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetSalesOrder fetches a sales order header.
func (r *Repository) GetSalesOrder(ctx context.Context, id int64) (SalesOrder, error) {
	const query = `SELECT id, number, customer_ref, order_date, install_date FROM sales_orders WHERE id = $1`
	var so SalesOrder
	err := r.pool.QueryRow(ctx, query, id).Scan(&so.ID, &so.Number, &so.CustomerRef, &so.OrderDate, &so.InstallDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SalesOrder{}, ErrNotFound
		}
		return SalesOrder{}, err
	}
	return so, nil
}

// ListOrderLines returns the demand lines of a sales order.
func (r *Repository) ListOrderLines(ctx context.Context, salesOrderID int64) ([]SalesOrderLine, error) {
	const query = `SELECT id, sales_order_id, item_id, quantity FROM sales_order_lines WHERE sales_order_id = $1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, salesOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []SalesOrderLine
	for rows.Next() {
		var line SalesOrderLine
		if err := rows.Scan(&line.ID, &line.SalesOrderID, &line.ItemID, &line.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

const requirementColumns = `id, sales_order_id, item_id, required_qty, available_qty, shortfall_qty, severity, has_open_requisition, computed_at`

func scanRequirement(row pgx.Row) (StockRequirement, error) {
	var req StockRequirement
	err := row.Scan(
		&req.ID, &req.SalesOrderID, &req.ItemID, &req.RequiredQty, &req.AvailableQty,
		&req.ShortfallQty, &req.Severity, &req.HasOpenRequisition, &req.ComputedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockRequirement{}, ErrNotFound
		}
		return StockRequirement{}, err
	}
	return req, nil
}

// GetRequirement fetches a stock requirement by id.
func (r *Repository) GetRequirement(ctx context.Context, id int64) (StockRequirement, error) {
	query := `SELECT ` + requirementColumns + ` FROM stock_requirements WHERE id = $1`
	return scanRequirement(r.pool.QueryRow(ctx, query, id))
}

// ListRequirementsByOrder returns the requirement rows of one sales order.
func (r *Repository) ListRequirementsByOrder(ctx context.Context, salesOrderID int64) ([]StockRequirement, error) {
	query := `SELECT ` + requirementColumns + ` FROM stock_requirements WHERE sales_order_id = $1 ORDER BY item_id`
	rows, err := r.pool.Query(ctx, query, salesOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []StockRequirement
	for rows.Next() {
		req, err := scanRequirement(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reqs, nil
}

// UpsertRequirement supersedes the (sales order, item) row in place.
func (tx *txRepo) UpsertRequirement(ctx context.Context, req StockRequirement) (StockRequirement, error) {
	const query = `INSERT INTO stock_requirements
(sales_order_id, item_id, required_qty, available_qty, shortfall_qty, severity, has_open_requisition, computed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (sales_order_id, item_id) DO UPDATE SET
	required_qty = EXCLUDED.required_qty,
	available_qty = EXCLUDED.available_qty,
	shortfall_qty = EXCLUDED.shortfall_qty,
	severity = EXCLUDED.severity,
	has_open_requisition = EXCLUDED.has_open_requisition,
	computed_at = EXCLUDED.computed_at
RETURNING id`
	if req.ComputedAt.IsZero() {
		req.ComputedAt = time.Now().UTC()
	}
	err := tx.tx.QueryRow(ctx, query,
		req.SalesOrderID, req.ItemID, req.RequiredQty, req.AvailableQty,
		req.ShortfallQty, string(req.Severity), req.HasOpenRequisition, req.ComputedAt,
	).Scan(&req.ID)
	if err != nil {
		return StockRequirement{}, err
	}
	return req, nil
}

// SetRequirementOpenFlag records that an open requisition now covers the
// requirement.
func (tx *txRepo) SetRequirementOpenFlag(ctx context.Context, id int64, open bool) error {
	tag, err := tx.tx.Exec(ctx, `UPDATE stock_requirements SET has_open_requisition = $2 WHERE id = $1`, id, open)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Requisitions binds requisition persistence to this transaction.
func (tx *txRepo) Requisitions() requisition.TxRepository {
	return requisition.NewTx(tx.tx)
}
