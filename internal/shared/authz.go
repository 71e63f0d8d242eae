package shared

// Permission names granted by the upstream identity layer.
const (
	// PermPlanningRun allows triggering recalculations and sweeps.
	PermPlanningRun = "planning.run"
	// PermRequisitionCreate allows generating purchase requisitions.
	PermRequisitionCreate = "requisition.create"
	// PermRequisitionApprove allows approving or rejecting requisitions.
	PermRequisitionApprove = "requisition.approve"
	// PermRequisitionConvert allows converting approved requisitions to POs.
	PermRequisitionConvert = "requisition.convert"
)

// Actor identifies the authenticated principal performing an operation.
// Authentication itself happens upstream; this core only consumes the result.
type Actor struct {
	ID          int64
	Name        string
	Permissions []string
}

// System returns the actor used by scheduled jobs.
func System() Actor {
	return Actor{ID: 0, Name: "system", Permissions: []string{
		PermPlanningRun,
		PermRequisitionCreate,
	}}
}

// Can reports whether the actor holds the named permission.
func (a Actor) Can(permission string) bool {
	for _, p := range a.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}
