package planning

import "github.com/meridian-erp/meridian-erp/internal/catalog"

// Explode computes how many units of an assembly can be built from current
// component stock and which components constrain it. Side-effect free.
//
// A component with qty_per_unit <= 0 never constrains and is skipped. A
// component is a bottleneck when it limits the buildable quantity, when it
// cannot supply even one additional unit, or when its stock has fallen to its
// reorder level.
func Explode(components []catalog.ComponentRequirement) BuildAnalysis {
	analysis := BuildAnalysis{MaxBuildable: -1}
	for _, c := range components {
		if c.QtyPerUnit <= 0 {
			continue
		}
		canBuild := c.Available / c.QtyPerUnit
		if analysis.MaxBuildable < 0 || canBuild < analysis.MaxBuildable {
			analysis.MaxBuildable = canBuild
		}
	}
	if analysis.MaxBuildable < 0 {
		// No constraining components: buildable quantity is undefined.
		analysis.MaxBuildable = 0
		analysis.Unconstrained = true
		return analysis
	}
	for _, c := range components {
		if c.QtyPerUnit <= 0 {
			continue
		}
		canBuild := c.Available / c.QtyPerUnit
		if canBuild == analysis.MaxBuildable || c.Available < c.QtyPerUnit || c.Available <= c.ReorderLevel {
			analysis.Bottlenecks = append(analysis.Bottlenecks, Bottleneck{
				ComponentID:  c.ComponentID,
				SKU:          c.SKU,
				Name:         c.Name,
				QtyPerUnit:   c.QtyPerUnit,
				Available:    c.Available,
				ReorderLevel: c.ReorderLevel,
				CanBuild:     canBuild,
			})
		}
	}
	return analysis
}
