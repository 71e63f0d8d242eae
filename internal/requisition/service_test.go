package requisition

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryReqRepo struct {
	reqs      map[int64]Requisition
	audits    []shared.AuditLog
	counters  map[int]int64
	nextID    int64
	clock     func() time.Time
	insertErr error
}

type memoryReqTx struct {
	repo *memoryReqRepo
}

func newMemoryReqRepo(clock func() time.Time) *memoryReqRepo {
	if clock == nil {
		clock = time.Now
	}
	return &memoryReqRepo{reqs: make(map[int64]Requisition), counters: make(map[int]int64), clock: clock}
}

// WithTx emulates transactional semantics: state is snapshotted before fn and
// restored when fn fails.
func (r *memoryReqRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[int64]Requisition, len(r.reqs))
	for id, req := range r.reqs {
		snapshot[id] = req
	}
	counters := make(map[int]int64, len(r.counters))
	for year, seq := range r.counters {
		counters[year] = seq
	}
	auditLen := len(r.audits)
	nextID := r.nextID

	if err := fn(ctx, &memoryReqTx{repo: r}); err != nil {
		r.reqs = snapshot
		r.counters = counters
		r.audits = r.audits[:auditLen]
		r.nextID = nextID
		return err
	}
	return nil
}

func (r *memoryReqRepo) Get(ctx context.Context, id int64) (Requisition, error) {
	req, ok := r.reqs[id]
	if !ok {
		return Requisition{}, ErrNotFound
	}
	return req, nil
}

func (r *memoryReqRepo) List(ctx context.Context, filters ListFilters, limit, offset int) ([]Requisition, int, error) {
	var out []Requisition
	for _, req := range r.reqs {
		if filters.Status != "" && string(req.Status) != filters.Status {
			continue
		}
		if filters.ItemID != 0 && req.ItemID != filters.ItemID {
			continue
		}
		out = append(out, req)
	}
	return out, len(out), nil
}

func (tx *memoryReqTx) CountOpen(ctx context.Context, itemID int64, source Source) (int, error) {
	count := 0
	for _, req := range tx.repo.reqs {
		if req.ItemID == itemID && req.Source == source && !req.Status.Terminal() {
			count++
		}
	}
	return count, nil
}

func (tx *memoryReqTx) NextSequenceForYear(ctx context.Context, year int) (int64, error) {
	tx.repo.counters[year]++
	return tx.repo.counters[year], nil
}

func (tx *memoryReqTx) Insert(ctx context.Context, req Requisition) (int64, error) {
	if tx.repo.insertErr != nil {
		return 0, tx.repo.insertErr
	}
	for _, existing := range tx.repo.reqs {
		if existing.ItemID == req.ItemID && existing.Source == req.Source && !existing.Status.Terminal() {
			return 0, errDuplicateOpen
		}
	}
	tx.repo.nextID++
	req.ID = tx.repo.nextID
	req.CreatedAt = tx.repo.clock()
	req.UpdatedAt = req.CreatedAt
	tx.repo.reqs[req.ID] = req
	return req.ID, nil
}

func (tx *memoryReqTx) Get(ctx context.Context, id int64) (Requisition, error) {
	return tx.repo.Get(ctx, id)
}

func (tx *memoryReqTx) UpdateStatus(ctx context.Context, id int64, status Status, decidedBy int64, decidedAt time.Time) error {
	req, ok := tx.repo.reqs[id]
	if !ok {
		return ErrNotFound
	}
	req.Status = status
	req.DecidedBy = decidedBy
	req.DecidedAt = decidedAt
	req.UpdatedAt = decidedAt
	tx.repo.reqs[id] = req
	return nil
}

func (tx *memoryReqTx) InsertAudit(ctx context.Context, entry shared.AuditLog) error {
	tx.repo.audits = append(tx.repo.audits, entry)
	return nil
}

func fixedClock() time.Time {
	return time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC)
}

func planner() shared.Actor {
	return shared.Actor{ID: 7, Name: "dana", Permissions: []string{
		shared.PermRequisitionCreate,
		shared.PermRequisitionApprove,
		shared.PermRequisitionConvert,
	}}
}

func newTestService(repo *memoryReqRepo) *Service {
	svc := NewService(repo, nil)
	svc.WithNow(fixedClock)
	return svc
}

func TestGenerateAllocatesYearScopedNumbers(t *testing.T) {
	repo := newMemoryReqRepo(fixedClock)
	svc := newTestService(repo)
	ctx := context.Background()

	first, err := svc.Generate(ctx, GenerateInput{
		ItemID:   101,
		Quantity: 20,
		Source:   Source{Type: SourceAssembly, ID: 1},
		Urgency:  UrgencyHigh,
		Actor:    planner(),
	})
	require.NoError(t, err)
	require.True(t, first.Created)
	require.Equal(t, "PR-2026-000001", first.Number)

	second, err := svc.Generate(ctx, GenerateInput{
		ItemID:   102,
		Quantity: 5,
		Source:   Source{Type: SourceAssembly, ID: 1},
		Actor:    planner(),
	})
	require.NoError(t, err)
	require.True(t, second.Created)
	require.Equal(t, "PR-2026-000002", second.Number)
	require.Equal(t, UrgencyNormal, second.Urgency)

	require.Len(t, repo.audits, 2)
	require.Equal(t, "PR_CREATE", repo.audits[0].Action)
}

func TestGenerateSkipsWhenOpenRequisitionCoversSource(t *testing.T) {
	repo := newMemoryReqRepo(fixedClock)
	svc := newTestService(repo)
	ctx := context.Background()

	input := GenerateInput{
		ItemID:   101,
		Quantity: 20,
		Source:   Source{Type: SourceSalesOrder, ID: 42},
		Actor:    planner(),
	}

	first, err := svc.Generate(ctx, input)
	require.NoError(t, err)
	require.True(t, first.Created)

	again, err := svc.Generate(ctx, input)
	require.NoError(t, err)
	require.False(t, again.Created)
	require.Empty(t, again.Number)

	require.Len(t, repo.reqs, 1)
	require.Len(t, repo.audits, 1)
}

func TestGenerateSurfacesNumberConflict(t *testing.T) {
	repo := newMemoryReqRepo(fixedClock)
	svc := newTestService(repo)
	ctx := context.Background()

	// A unique violation outside the open-source index must propagate as a
	// failure, not report "already covered".
	repo.insertErr = translateInsertError(&pgconn.PgError{
		Code:           "23505",
		ConstraintName: "purchase_requisitions_number_key",
	})

	res, err := svc.Generate(ctx, GenerateInput{
		ItemID:   101,
		Quantity: 20,
		Source:   Source{Type: SourceAssembly, ID: 1},
		Actor:    planner(),
	})
	require.Error(t, err)
	require.False(t, res.Created)

	require.Empty(t, repo.reqs)
	require.Empty(t, repo.audits)
	require.Zero(t, repo.counters[2026])

	repo.insertErr = nil
	created, err := svc.Generate(ctx, GenerateInput{
		ItemID:   101,
		Quantity: 20,
		Source:   Source{Type: SourceAssembly, ID: 1},
		Actor:    planner(),
	})
	require.NoError(t, err)
	require.True(t, created.Created)
	require.Equal(t, "PR-2026-000001", created.Number)
}

func TestGenerateSameItemDifferentSourcesCreatesBoth(t *testing.T) {
	repo := newMemoryReqRepo(fixedClock)
	svc := newTestService(repo)
	ctx := context.Background()

	first, err := svc.Generate(ctx, GenerateInput{
		ItemID:   101,
		Quantity: 20,
		Source:   Source{Type: SourceSalesOrder, ID: 42},
		Actor:    planner(),
	})
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := svc.Generate(ctx, GenerateInput{
		ItemID:   101,
		Quantity: 8,
		Source:   Source{Type: SourceAssembly, ID: 101},
		Actor:    planner(),
	})
	require.NoError(t, err)
	require.True(t, second.Created)
	require.Len(t, repo.reqs, 2)
}

func TestGenerateValidatesInput(t *testing.T) {
	repo := newMemoryReqRepo(fixedClock)
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Generate(ctx, GenerateInput{ItemID: 101, Quantity: 0, Source: Source{Type: SourceAssembly, ID: 1}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Generate(ctx, GenerateInput{ItemID: 101, Quantity: 5, Source: Source{Type: "PURCHASE_ORDER", ID: 1}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestRejectionFreesSourceAndKeepsNumbering(t *testing.T) {
	repo := newMemoryReqRepo(fixedClock)
	svc := newTestService(repo)
	ctx := context.Background()

	input := GenerateInput{
		ItemID:   101,
		Quantity: 20,
		Source:   Source{Type: SourceAssembly, ID: 9},
		Actor:    planner(),
	}

	first, err := svc.Generate(ctx, input)
	require.NoError(t, err)

	_, err = svc.Reject(ctx, first.RequisitionID, planner(), "wrong supplier")
	require.NoError(t, err)

	// A rejected requisition no longer blocks the source, but its number is
	// still consumed.
	second, err := svc.Generate(ctx, input)
	require.NoError(t, err)
	require.True(t, second.Created)
	require.Equal(t, "PR-2026-000002", second.Number)
}

func TestApproveRejectedRequisitionFails(t *testing.T) {
	repo := newMemoryReqRepo(fixedClock)
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Generate(ctx, GenerateInput{
		ItemID:   101,
		Quantity: 20,
		Source:   Source{Type: SourceAssembly, ID: 1},
		Actor:    planner(),
	})
	require.NoError(t, err)

	_, err = svc.Reject(ctx, created.RequisitionID, planner(), "duplicate")
	require.NoError(t, err)
	auditCount := len(repo.audits)

	_, err = svc.Approve(ctx, created.RequisitionID, planner())
	var transition *InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	require.Equal(t, StatusRejected, transition.From)
	require.Equal(t, StatusApproved, transition.To)

	// The failed transition rolled back: status and audit trail unchanged.
	stored, err := svc.Get(ctx, created.RequisitionID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, stored.Status)
	require.Len(t, repo.audits, auditCount)
}

func TestTransitionRequiresAuthority(t *testing.T) {
	repo := newMemoryReqRepo(fixedClock)
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Generate(ctx, GenerateInput{
		ItemID:   101,
		Quantity: 20,
		Source:   Source{Type: SourceAssembly, ID: 1},
		Actor:    planner(),
	})
	require.NoError(t, err)

	viewer := shared.Actor{ID: 3, Name: "lee"}
	_, err = svc.Approve(ctx, created.RequisitionID, viewer)
	require.ErrorIs(t, err, ErrInsufficientAuthority)

	stored, err := svc.Get(ctx, created.RequisitionID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
}

func TestConvertRequiresApprovedStatus(t *testing.T) {
	repo := newMemoryReqRepo(fixedClock)
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Generate(ctx, GenerateInput{
		ItemID:   101,
		Quantity: 20,
		Source:   Source{Type: SourceAssembly, ID: 1},
		Actor:    planner(),
	})
	require.NoError(t, err)

	_, err = svc.Convert(ctx, created.RequisitionID, planner())
	var transition *InvalidTransitionError
	require.ErrorAs(t, err, &transition)

	approved, err := svc.Approve(ctx, created.RequisitionID, planner())
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, planner().ID, approved.DecidedBy)

	converted, err := svc.Convert(ctx, created.RequisitionID, planner())
	require.NoError(t, err)
	require.Equal(t, StatusConverted, converted.Status)
}

func TestCustomTransitionPolicy(t *testing.T) {
	repo := newMemoryReqRepo(fixedClock)
	denyAll := func(shared.Actor, Requisition, Status) bool { return false }
	svc := NewService(repo, denyAll)
	svc.WithNow(fixedClock)
	ctx := context.Background()

	created, err := svc.Generate(ctx, GenerateInput{
		ItemID:   101,
		Quantity: 20,
		Source:   Source{Type: SourceAssembly, ID: 1},
		Actor:    planner(),
	})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, created.RequisitionID, planner())
	require.ErrorIs(t, err, ErrInsufficientAuthority)
}
