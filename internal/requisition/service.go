package requisition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// CanTransitionFunc decides whether an actor may move a requisition into the
// target status. Injected so authorization policy lives in one place instead
// of per-endpoint role lists.
type CanTransitionFunc func(actor shared.Actor, req Requisition, target Status) bool

// DefaultCanTransition grants approve/reject to requisition.approve holders
// and convert to requisition.convert holders.
func DefaultCanTransition(actor shared.Actor, _ Requisition, target Status) bool {
	switch target {
	case StatusApproved, StatusRejected:
		return actor.Can(shared.PermRequisitionApprove)
	case StatusConverted:
		return actor.Can(shared.PermRequisitionConvert)
	default:
		return false
	}
}

// Service generates purchase requisitions and drives their lifecycle.
type Service struct {
	repo          RepositoryPort
	canTransition CanTransitionFunc
	now           func() time.Time
}

// NewService constructs the requisition service. canTransition falls back to
// DefaultCanTransition when nil.
func NewService(repo RepositoryPort, canTransition CanTransitionFunc) *Service {
	if canTransition == nil {
		canTransition = DefaultCanTransition
	}
	return &Service{repo: repo, canTransition: canTransition, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// GenerateInput describes a requisition to create.
type GenerateInput struct {
	ItemID   int64
	Quantity int64
	Source   Source
	Urgency  Urgency
	Reason   string
	Actor    shared.Actor
}

// GenerateResult reports the outcome of a generation attempt. Created=false
// with a nil error means an open requisition already covers the gap.
type GenerateResult struct {
	Created       bool    `json:"created"`
	RequisitionID int64   `json:"requisition_id,omitempty"`
	Number        string  `json:"number,omitempty"`
	Urgency       Urgency `json:"urgency,omitempty"`
}

// Generate creates a requisition in its own transaction.
func (s *Service) Generate(ctx context.Context, input GenerateInput) (GenerateResult, error) {
	var result GenerateResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.CreateInTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return GenerateResult{}, err
	}
	return result, nil
}

// CreateInTx runs the generation sequence against an existing transaction:
// open-requisition check, year-scoped number allocation, insert, audit entry.
// All four commit or roll back together with the caller's transaction.
func (s *Service) CreateInTx(ctx context.Context, tx TxRepository, input GenerateInput) (GenerateResult, error) {
	if input.ItemID <= 0 || input.Quantity <= 0 {
		return GenerateResult{}, fmt.Errorf("%w: item and positive quantity required", ErrValidation)
	}
	if !input.Source.Valid() {
		return GenerateResult{}, fmt.Errorf("%w: source required", ErrValidation)
	}
	if input.Urgency == "" {
		input.Urgency = UrgencyNormal
	}

	open, err := tx.CountOpen(ctx, input.ItemID, input.Source)
	if err != nil {
		return GenerateResult{}, err
	}
	if open > 0 {
		// Expected on repeated sweeps, not an error.
		return GenerateResult{Created: false}, nil
	}

	year := s.now().Year()
	seq, err := tx.NextSequenceForYear(ctx, year)
	if err != nil {
		return GenerateResult{}, err
	}
	number := FormatNumber(year, seq)

	id, err := tx.Insert(ctx, Requisition{
		Number:      number,
		ItemID:      input.ItemID,
		Source:      input.Source,
		Quantity:    input.Quantity,
		RequestedBy: input.Actor.ID,
		Status:      StatusPending,
		Urgency:     input.Urgency,
		Reason:      input.Reason,
	})
	if err != nil {
		if errors.Is(err, errDuplicateOpen) {
			// A concurrent generator won the unique-index race.
			return GenerateResult{Created: false}, nil
		}
		return GenerateResult{}, err
	}

	if err := tx.InsertAudit(ctx, shared.AuditLog{
		ActorID:  input.Actor.ID,
		Action:   "PR_CREATE",
		Entity:   "purchase_requisition",
		EntityID: fmt.Sprintf("%d", id),
		Meta: map[string]any{
			"number":      number,
			"item_id":     input.ItemID,
			"quantity":    input.Quantity,
			"source_type": string(input.Source.Type),
			"source_id":   input.Source.ID,
			"urgency":     string(input.Urgency),
		},
	}); err != nil {
		return GenerateResult{}, err
	}

	return GenerateResult{Created: true, RequisitionID: id, Number: number, Urgency: input.Urgency}, nil
}

// Get returns a requisition by id.
func (s *Service) Get(ctx context.Context, id int64) (Requisition, error) {
	return s.repo.Get(ctx, id)
}

// List returns requisitions matching the filters.
func (s *Service) List(ctx context.Context, filters ListFilters, limit, offset int) ([]Requisition, int, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.List(ctx, filters, limit, offset)
}

// Approve transitions a pending requisition to approved. It does not create a
// purchase order.
func (s *Service) Approve(ctx context.Context, id int64, actor shared.Actor) (Requisition, error) {
	return s.transition(ctx, id, actor, StatusPending, StatusApproved, "PR_APPROVE", "")
}

// Reject transitions a pending requisition to rejected, recording the reason.
func (s *Service) Reject(ctx context.Context, id int64, actor shared.Actor, reason string) (Requisition, error) {
	return s.transition(ctx, id, actor, StatusPending, StatusRejected, "PR_REJECT", reason)
}

// Convert marks an approved requisition as converted to a purchase order. The
// status is re-verified inside the transaction because approval and
// conversion are separate requests that may race.
func (s *Service) Convert(ctx context.Context, id int64, actor shared.Actor) (Requisition, error) {
	return s.transition(ctx, id, actor, StatusApproved, StatusConverted, "PR_CONVERT", "")
}

func (s *Service) transition(ctx context.Context, id int64, actor shared.Actor, from, to Status, action, note string) (Requisition, error) {
	var updated Requisition
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if !s.canTransition(actor, req, to) {
			return ErrInsufficientAuthority
		}
		if req.Status != from {
			return &InvalidTransitionError{From: req.Status, To: to}
		}
		now := s.now()
		if err := tx.UpdateStatus(ctx, id, to, actor.ID, now); err != nil {
			return err
		}
		meta := map[string]any{"number": req.Number, "from": string(from), "to": string(to)}
		if note != "" {
			meta["reason"] = note
		}
		if err := tx.InsertAudit(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   action,
			Entity:   "purchase_requisition",
			EntityID: fmt.Sprintf("%d", id),
			Meta:     meta,
		}); err != nil {
			return err
		}
		updated = req
		updated.Status = to
		updated.DecidedBy = actor.ID
		updated.DecidedAt = now
		return nil
	})
	if err != nil {
		return Requisition{}, err
	}
	return updated, nil
}
