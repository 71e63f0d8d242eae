package planning

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/catalog"
)

func TestExplodeFindsLimitingComponent(t *testing.T) {
	components := []catalog.ComponentRequirement{
		{ComponentID: 1, SKU: "CMP-A", QtyPerUnit: 2, Available: 10, ReorderLevel: 0},
		{ComponentID: 2, SKU: "CMP-B", QtyPerUnit: 1, Available: 3, ReorderLevel: 0},
	}

	analysis := Explode(components)

	require.Equal(t, int64(3), analysis.MaxBuildable)
	require.False(t, analysis.Unconstrained)

	// B limits the build even though its stock is above reorder.
	require.Len(t, analysis.Bottlenecks, 1)
	require.Equal(t, int64(2), analysis.Bottlenecks[0].ComponentID)
	require.Equal(t, int64(3), analysis.Bottlenecks[0].CanBuild)
}

func TestExplodeMarksBottlenecks(t *testing.T) {
	components := []catalog.ComponentRequirement{
		// Cannot supply one more unit.
		{ComponentID: 1, SKU: "CMP-A", QtyPerUnit: 4, Available: 3, ReorderLevel: 0},
		// At its reorder level.
		{ComponentID: 2, SKU: "CMP-B", QtyPerUnit: 1, Available: 8, ReorderLevel: 8},
		// Healthy.
		{ComponentID: 3, SKU: "CMP-C", QtyPerUnit: 1, Available: 50, ReorderLevel: 10},
	}

	analysis := Explode(components)

	require.Equal(t, int64(0), analysis.MaxBuildable)
	require.Len(t, analysis.Bottlenecks, 2)
	require.Equal(t, int64(1), analysis.Bottlenecks[0].ComponentID)
	require.Equal(t, int64(0), analysis.Bottlenecks[0].CanBuild)
	require.Equal(t, int64(2), analysis.Bottlenecks[1].ComponentID)
	require.Equal(t, int64(8), analysis.Bottlenecks[1].CanBuild)
}

func TestExplodeZeroStockComponent(t *testing.T) {
	components := []catalog.ComponentRequirement{
		{ComponentID: 1, SKU: "CMP-A", QtyPerUnit: 1, Available: 20, ReorderLevel: 5},
		{ComponentID: 2, SKU: "CMP-B", QtyPerUnit: 2, Available: 0, ReorderLevel: 6},
	}

	analysis := Explode(components)

	require.Equal(t, int64(0), analysis.MaxBuildable)
	require.Len(t, analysis.Bottlenecks, 1)
	require.Equal(t, int64(2), analysis.Bottlenecks[0].ComponentID)
}

func TestExplodeSkipsNonConstrainingLines(t *testing.T) {
	components := []catalog.ComponentRequirement{
		{ComponentID: 1, SKU: "CMP-FREE", QtyPerUnit: 0, Available: 0, ReorderLevel: 0},
		{ComponentID: 2, SKU: "CMP-A", QtyPerUnit: 1, Available: 9, ReorderLevel: 2},
	}

	analysis := Explode(components)

	require.Equal(t, int64(9), analysis.MaxBuildable)
	require.Len(t, analysis.Bottlenecks, 1)
	require.Equal(t, int64(2), analysis.Bottlenecks[0].ComponentID)
}

func TestExplodeWithoutComponents(t *testing.T) {
	analysis := Explode(nil)

	require.True(t, analysis.Unconstrained)
	require.Equal(t, int64(0), analysis.MaxBuildable)
	require.Empty(t, analysis.Bottlenecks)
}
