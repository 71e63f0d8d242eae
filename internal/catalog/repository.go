package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides read-only PostgreSQL access to items and BOM lines.
type Repository interface {
	GetItem(ctx context.Context, id int64) (Item, error)
	ListAssemblies(ctx context.Context) ([]Item, error)
	GetAssemblyComponents(ctx context.Context, parentID int64) ([]ComponentRequirement, error)
	AdjacencyFrom(ctx context.Context, rootID int64) (map[int64][]int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository backed by the provided pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) GetItem(ctx context.Context, id int64) (Item, error) {
	const query = `SELECT id, sku, name, unit, on_hand, reorder_level, unit_price, is_assembly, is_active, created_at, updated_at
FROM items WHERE id = $1`
	var item Item
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&item.ID, &item.SKU, &item.Name, &item.Unit, &item.OnHand,
		&item.ReorderLevel, &item.UnitPrice, &item.IsAssembly, &item.IsActive,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func (r *repository) ListAssemblies(ctx context.Context) ([]Item, error) {
	const query = `SELECT id, sku, name, unit, on_hand, reorder_level, unit_price, is_assembly, is_active, created_at, updated_at
FROM items WHERE is_assembly AND is_active ORDER BY id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(
			&item.ID, &item.SKU, &item.Name, &item.Unit, &item.OnHand,
			&item.ReorderLevel, &item.UnitPrice, &item.IsAssembly, &item.IsActive,
			&item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// GetAssemblyComponents returns the direct component edges of parentID joined
// with each component's current stock position.
func (r *repository) GetAssemblyComponents(ctx context.Context, parentID int64) ([]ComponentRequirement, error) {
	const query = `SELECT b.component_id, i.sku, i.name, b.qty_per_unit, i.on_hand, i.reorder_level
FROM bom_lines b
JOIN items i ON i.id = b.component_id
WHERE b.parent_id = $1
ORDER BY b.component_id`
	rows, err := r.pool.Query(ctx, query, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var components []ComponentRequirement
	for rows.Next() {
		var c ComponentRequirement
		if err := rows.Scan(&c.ComponentID, &c.SKU, &c.Name, &c.QtyPerUnit, &c.Available, &c.ReorderLevel); err != nil {
			return nil, err
		}
		components = append(components, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return components, nil
}

// AdjacencyFrom loads the BOM edges reachable from rootID. UNION (rather than
// UNION ALL) terminates the recursion even when the stored graph is cyclic;
// cycle detection itself happens in ValidateAcyclic.
func (r *repository) AdjacencyFrom(ctx context.Context, rootID int64) (map[int64][]int64, error) {
	const query = `WITH RECURSIVE reachable(parent_id, component_id) AS (
	SELECT parent_id, component_id FROM bom_lines WHERE parent_id = $1
	UNION
	SELECT b.parent_id, b.component_id
	FROM bom_lines b
	JOIN reachable r ON b.parent_id = r.component_id
)
SELECT parent_id, component_id FROM reachable`
	rows, err := r.pool.Query(ctx, query, rootID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	adjacency := make(map[int64][]int64)
	for rows.Next() {
		var parent, component int64
		if err := rows.Scan(&parent, &component); err != nil {
			return nil, err
		}
		adjacency[parent] = append(adjacency[parent], component)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return adjacency, nil
}
