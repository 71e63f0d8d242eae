package planning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/catalog"
	"github.com/meridian-erp/meridian-erp/internal/requisition"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// CatalogPort exposes the catalog reads this engine needs.
type CatalogPort interface {
	GetItem(ctx context.Context, id int64) (catalog.Item, error)
	ListAssemblies(ctx context.Context) ([]catalog.Item, error)
	AssemblyComponents(ctx context.Context, parentID int64) ([]catalog.ComponentRequirement, error)
}

// RequisitionPort is the slice of the requisition generator used here. The
// in-tx form lets requisitions participate in this engine's transactions.
type RequisitionPort interface {
	CreateInTx(ctx context.Context, tx requisition.TxRepository, input requisition.GenerateInput) (requisition.GenerateResult, error)
}

// AuditPort records best-effort summary entries after commit.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Policy groups the numeric planning knobs.
type Policy struct {
	// MinBatchSize is the smallest assembly build quantity evaluated by the
	// sweep. Zero means DefaultMinBatchSize.
	MinBatchSize int64
}

// Service orchestrates requirement recomputation, the full-catalog sweep and
// per-order batch generation.
type Service struct {
	repo         RepositoryPort
	catalog      CatalogPort
	requisitions RequisitionPort
	audit        AuditPort
	policy       Policy
	now          func() time.Time
}

// NewService constructs the planning service.
func NewService(repo RepositoryPort, cat CatalogPort, reqs RequisitionPort, audit AuditPort, policy Policy) *Service {
	return &Service{
		repo:         repo,
		catalog:      cat,
		requisitions: reqs,
		audit:        audit,
		policy:       policy,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// AnalyzeAssembly explodes one assembly against live component stock without
// side effects.
func (s *Service) AnalyzeAssembly(ctx context.Context, assemblyID int64) (BuildAnalysis, error) {
	item, err := s.catalog.GetItem(ctx, assemblyID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return BuildAnalysis{}, ErrNotFound
		}
		return BuildAnalysis{}, err
	}
	components, err := s.catalog.AssemblyComponents(ctx, item.ID)
	if err != nil {
		return BuildAnalysis{}, err
	}
	return Explode(components), nil
}

// RecalculateStockRequirements recomputes every requirement row of a sales
// order from live stock, superseding the previous rows.
func (s *Service) RecalculateStockRequirements(ctx context.Context, salesOrderID int64) ([]StockRequirement, error) {
	if _, err := s.repo.GetSalesOrder(ctx, salesOrderID); err != nil {
		return nil, err
	}
	lines, err := s.repo.ListOrderLines(ctx, salesOrderID)
	if err != nil {
		return nil, err
	}

	var results []StockRequirement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		results = results[:0]
		for _, line := range lines {
			item, err := s.catalog.GetItem(ctx, line.ItemID)
			if err != nil {
				return fmt.Errorf("requirement for item %d: %w", line.ItemID, err)
			}
			assessment := Classify(line.Quantity, item.OnHand)
			open, err := tx.Requisitions().CountOpen(ctx, line.ItemID, requisition.Source{
				Type: requisition.SourceSalesOrder,
				ID:   salesOrderID,
			})
			if err != nil {
				return err
			}
			row, err := tx.UpsertRequirement(ctx, StockRequirement{
				SalesOrderID:       salesOrderID,
				ItemID:             line.ItemID,
				RequiredQty:        line.Quantity,
				AvailableQty:       item.OnHand,
				ShortfallQty:       assessment.Shortfall,
				Severity:           assessment.Severity,
				HasOpenRequisition: open > 0,
				ComputedAt:         s.now(),
			})
			if err != nil {
				return err
			}
			results = append(results, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GenerateForRequirement creates one requisition covering a requirement's
// shortfall. Stock is re-read before generating; a requirement whose
// shortfall has since cleared yields Created=false.
func (s *Service) GenerateForRequirement(ctx context.Context, requirementID int64, actor shared.Actor) (requisition.GenerateResult, error) {
	req, err := s.repo.GetRequirement(ctx, requirementID)
	if err != nil {
		return requisition.GenerateResult{}, err
	}
	return s.generateForRequirement(ctx, req, actor)
}

func (s *Service) generateForRequirement(ctx context.Context, req StockRequirement, actor shared.Actor) (requisition.GenerateResult, error) {
	item, err := s.catalog.GetItem(ctx, req.ItemID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return requisition.GenerateResult{}, ErrNotFound
		}
		return requisition.GenerateResult{}, err
	}
	assessment := Classify(req.RequiredQty, item.OnHand)
	if assessment.Shortfall == 0 {
		return requisition.GenerateResult{Created: false}, nil
	}

	var result requisition.GenerateResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.requisitions.CreateInTx(ctx, tx.Requisitions(), requisition.GenerateInput{
			ItemID:   req.ItemID,
			Quantity: assessment.Shortfall,
			Source:   requisition.Source{Type: requisition.SourceSalesOrder, ID: req.SalesOrderID},
			Urgency:  urgencyForSeverity(assessment.Severity),
			Reason:   fmt.Sprintf("Stock shortfall of %d x %s for sales order %d", assessment.Shortfall, item.SKU, req.SalesOrderID),
			Actor:    actor,
		})
		if err != nil {
			return err
		}
		return tx.SetRequirementOpenFlag(ctx, req.ID, true)
	})
	if err != nil {
		return requisition.GenerateResult{}, err
	}
	return result, nil
}

// BatchGenerateRequisitions generates requisitions for every shortfall line
// of a sales order. Each line runs in its own transaction: one failing line
// is recorded and skipped, the rest stay committed.
func (s *Service) BatchGenerateRequisitions(ctx context.Context, salesOrderID int64, actor shared.Actor) (BatchResult, error) {
	if _, err := s.repo.GetSalesOrder(ctx, salesOrderID); err != nil {
		return BatchResult{}, err
	}
	requirements, err := s.repo.ListRequirementsByOrder(ctx, salesOrderID)
	if err != nil {
		return BatchResult{}, err
	}

	var result BatchResult
	for _, req := range requirements {
		if req.ShortfallQty == 0 {
			continue
		}
		res, err := s.generateForRequirement(ctx, req, actor)
		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{
				RequirementID: req.ID,
				ItemID:        req.ItemID,
				Error:         err.Error(),
			})
			continue
		}
		if res.Created {
			result.Success = append(result.Success, CreatedRequisition{
				ItemID:        req.ItemID,
				RequisitionID: res.RequisitionID,
				Number:        res.Number,
				Quantity:      req.ShortfallQty,
				Urgency:       res.Urgency,
			})
		}
	}
	return result, nil
}

// RunFullSweep scans every active assembly, explodes its BOM, classifies
// bottleneck components against a batch build target and opens requisitions
// for remaining shortfalls. The entire sweep is one transaction: any
// persistence failure rolls back everything created during the run.
// Assemblies with cyclic BOM data are skipped and reported, not fatal.
func (s *Service) RunFullSweep(ctx context.Context, actor shared.Actor) (SweepReport, error) {
	assemblies, err := s.catalog.ListAssemblies(ctx)
	if err != nil {
		return SweepReport{}, err
	}

	var report SweepReport
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, assembly := range assemblies {
			components, err := s.catalog.AssemblyComponents(ctx, assembly.ID)
			if err != nil {
				if errors.Is(err, catalog.ErrCyclicBOM) {
					report.SkippedCyclic = append(report.SkippedCyclic, assembly.ID)
					continue
				}
				return err
			}
			report.AssembliesScanned++

			analysis := Explode(components)
			target := TargetBuildQuantity(assembly.ReorderLevel, s.policy.MinBatchSize)
			for _, b := range analysis.Bottlenecks {
				assessment := ClassifyComponent(b.QtyPerUnit*target, b.Available, b.ReorderLevel)
				if assessment.Shortfall == 0 {
					continue
				}
				report.ShortagesFound++

				urgency := requisition.UrgencyHigh
				if b.Available == 0 {
					urgency = requisition.UrgencyCritical
				}
				res, err := s.requisitions.CreateInTx(ctx, tx.Requisitions(), requisition.GenerateInput{
					ItemID:   b.ComponentID,
					Quantity: assessment.Shortfall,
					Source:   requisition.Source{Type: requisition.SourceAssembly, ID: assembly.ID},
					Urgency:  urgency,
					Reason:   fmt.Sprintf("Component %s short for assembly %s (target build %d)", b.SKU, assembly.Name, target),
					Actor:    actor,
				})
				if err != nil {
					return err
				}
				if res.Created {
					report.Created = append(report.Created, CreatedRequisition{
						ItemID:        b.ComponentID,
						RequisitionID: res.RequisitionID,
						Number:        res.Number,
						Quantity:      assessment.Shortfall,
						Urgency:       res.Urgency,
					})
				}
			}
		}
		return nil
	})
	if err != nil {
		return SweepReport{}, err
	}

	s.recordSweepAudit(ctx, actor, report)
	return report, nil
}

func (s *Service) recordSweepAudit(ctx context.Context, actor shared.Actor, report SweepReport) {
	if s.audit == nil {
		return
	}
	runID := uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("sweep:%d", s.now().UnixNano())))
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   "PLANNING_SWEEP",
		Entity:   "planning_sweep",
		EntityID: runID.String(),
		Meta: map[string]any{
			"assemblies_scanned": report.AssembliesScanned,
			"shortages_found":    report.ShortagesFound,
			"created":            len(report.Created),
			"skipped_cyclic":     len(report.SkippedCyclic),
		},
	})
}

func urgencyForSeverity(severity Severity) requisition.Urgency {
	switch severity {
	case SeverityCritical:
		return requisition.UrgencyCritical
	case SeverityShortage:
		return requisition.UrgencyHigh
	default:
		return requisition.UrgencyNormal
	}
}
