package catalog

import (
	"errors"
	"time"
)

// Item represents a catalog item. Stock on hand is mutated elsewhere (goods
// receipt/issue); this package only reads it.
type Item struct {
	ID           int64     `json:"id"`
	SKU          string    `json:"sku"`
	Name         string    `json:"name"`
	Unit         string    `json:"unit"`
	OnHand       int64     `json:"on_hand"`
	ReorderLevel int64     `json:"reorder_level"`
	UnitPrice    float64   `json:"unit_price"`
	IsAssembly   bool      `json:"is_assembly"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BOMLine is a directed edge of the bill-of-materials graph: building one unit
// of the parent consumes QtyPerUnit units of the component.
type BOMLine struct {
	ID          int64 `json:"id"`
	ParentID    int64 `json:"parent_id"`
	ComponentID int64 `json:"component_id"`
	QtyPerUnit  int64 `json:"qty_per_unit"`
	VersionID   int64 `json:"version_id"`
}

// ComponentRequirement joins a BOM edge with the component's live stock
// position. Available and ReorderLevel are read fresh on every call, never
// cached.
type ComponentRequirement struct {
	ComponentID  int64  `json:"component_id"`
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	QtyPerUnit   int64  `json:"qty_per_unit"`
	Available    int64  `json:"available"`
	ReorderLevel int64  `json:"reorder_level"`
}

var (
	// ErrNotFound indicates the requested item does not exist.
	ErrNotFound = errors.New("catalog: item not found")
	// ErrCyclicBOM indicates the BOM subgraph reachable from an assembly
	// contains a cycle and cannot be exploded.
	ErrCyclicBOM = errors.New("catalog: cyclic bom")
)
