package requisition

import (
	"errors"
	"fmt"
	"time"
)

// Status is the purchase requisition lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusConverted Status = "CONVERTED"
)

// Terminal reports whether no transition is defined out of the status.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusConverted
}

// Urgency classifies how pressing a requisition is.
type Urgency string

const (
	UrgencyCritical Urgency = "CRITICAL"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyNormal   Urgency = "NORMAL"
)

// SourceType distinguishes what demand produced a requisition.
type SourceType string

const (
	// SourceSalesOrder marks demand-driven requisitions; Source.ID is the
	// sales order id.
	SourceSalesOrder SourceType = "SALES_ORDER"
	// SourceAssembly marks BOM-driven requisitions; Source.ID is the
	// assembly item id.
	SourceAssembly SourceType = "ASSEMBLY"
)

// Source is the structured deduplication context of a requisition. At most
// one open requisition may exist per (item, source) pair.
type Source struct {
	Type SourceType `json:"type"`
	ID   int64      `json:"id"`
}

// Valid reports whether the source names a known type and a referent.
func (s Source) Valid() bool {
	return (s.Type == SourceSalesOrder || s.Type == SourceAssembly) && s.ID > 0
}

// Requisition is an internal request to procure a shortfall quantity of an
// item. Created only by the generator; status changes only via the lifecycle
// methods.
type Requisition struct {
	ID          int64     `json:"id"`
	Number      string    `json:"number"`
	ItemID      int64     `json:"item_id"`
	Source      Source    `json:"source"`
	Quantity    int64     `json:"quantity"`
	RequestedBy int64     `json:"requested_by"`
	Status      Status    `json:"status"`
	Urgency     Urgency   `json:"urgency"`
	Reason      string    `json:"reason"`
	DecidedBy   int64     `json:"decided_by,omitempty"`
	DecidedAt   time.Time `json:"decided_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var (
	// ErrNotFound indicates the requisition does not exist.
	ErrNotFound = errors.New("requisition: not found")
	// ErrValidation indicates invalid generator input.
	ErrValidation = errors.New("requisition: invalid input")
	// ErrInsufficientAuthority indicates the actor lacks the capability for
	// the requested transition.
	ErrInsufficientAuthority = errors.New("requisition: insufficient authority")
	// errDuplicateOpen is returned by repositories when the open-requisition
	// unique constraint rejects an insert; the generator reports it as a
	// no-op, never as a failure.
	errDuplicateOpen = errors.New("requisition: open requisition exists")
)

// InvalidTransitionError reports a lifecycle violation naming both states.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("requisition: invalid transition from %s to %s", e.From, e.To)
}

// FormatNumber renders the year-scoped sequential requisition number.
func FormatNumber(year int, seq int64) string {
	return fmt.Sprintf("PR-%d-%06d", year, seq)
}
