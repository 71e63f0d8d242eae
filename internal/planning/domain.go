package planning

import (
	"errors"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/requisition"
)

// Severity classifies a required/available pair.
type Severity string

const (
	SeverityCritical   Severity = "CRITICAL"
	SeverityShortage   Severity = "SHORTAGE"
	SeveritySufficient Severity = "SUFFICIENT"
)

// SalesOrder is the read-only demand input to this engine. Orders are owned
// and mutated elsewhere.
type SalesOrder struct {
	ID          int64     `json:"id"`
	Number      string    `json:"number"`
	CustomerRef string    `json:"customer_ref"`
	OrderDate   time.Time `json:"order_date"`
	InstallDate time.Time `json:"install_date"`
}

// SalesOrderLine is one demand line of a sales order.
type SalesOrderLine struct {
	ID           int64 `json:"id"`
	SalesOrderID int64 `json:"sales_order_id"`
	ItemID       int64 `json:"item_id"`
	Quantity     int64 `json:"quantity"`
}

// StockRequirement is the derived coverage row for one (sales order, item)
// pair. Recomputed on demand and superseded in place, never versioned.
type StockRequirement struct {
	ID                 int64     `json:"id"`
	SalesOrderID       int64     `json:"sales_order_id"`
	ItemID             int64     `json:"item_id"`
	RequiredQty        int64     `json:"required_qty"`
	AvailableQty       int64     `json:"available_qty"`
	ShortfallQty       int64     `json:"shortfall_qty"`
	Severity           Severity  `json:"severity"`
	HasOpenRequisition bool      `json:"has_open_requisition"`
	ComputedAt         time.Time `json:"computed_at"`
}

// Bottleneck is a component whose stock constrains an assembly.
type Bottleneck struct {
	ComponentID  int64  `json:"component_id"`
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	QtyPerUnit   int64  `json:"qty_per_unit"`
	Available    int64  `json:"available"`
	ReorderLevel int64  `json:"reorder_level"`
	CanBuild     int64  `json:"can_build"`
}

// BuildAnalysis is the result of exploding one assembly against current
// component stock.
type BuildAnalysis struct {
	MaxBuildable  int64        `json:"max_buildable"`
	Unconstrained bool         `json:"unconstrained"`
	Bottlenecks   []Bottleneck `json:"bottlenecks"`
}

// CreatedRequisition summarises one requisition opened by a sweep or batch.
type CreatedRequisition struct {
	ItemID        int64               `json:"item_id"`
	RequisitionID int64               `json:"requisition_id"`
	Number        string              `json:"number"`
	Quantity      int64               `json:"quantity"`
	Urgency       requisition.Urgency `json:"urgency"`
}

// SweepReport aggregates one full-catalog sweep.
type SweepReport struct {
	AssembliesScanned int                  `json:"assemblies_scanned"`
	ShortagesFound    int                  `json:"shortages_found"`
	Created           []CreatedRequisition `json:"created"`
	SkippedCyclic     []int64              `json:"skipped_cyclic,omitempty"`
}

// BatchFailure records one line the batch path could not process.
type BatchFailure struct {
	RequirementID int64  `json:"requirement_id"`
	ItemID        int64  `json:"item_id"`
	Error         string `json:"error"`
}

// BatchResult partitions a per-order batch generation into successes and
// failures; the batch never aborts on an individual line.
type BatchResult struct {
	Success []CreatedRequisition `json:"success"`
	Failed  []BatchFailure       `json:"failed"`
}

var (
	// ErrNotFound indicates an unknown sales order or requirement.
	ErrNotFound = errors.New("planning: not found")
)
