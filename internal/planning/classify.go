package planning

// DefaultMinBatchSize is the smallest build quantity an assembly-level check
// targets, so fast-moving assemblies do not trigger one-unit requisitions.
const DefaultMinBatchSize = 5

// Assessment is the classifier output for one required/available pair.
type Assessment struct {
	Shortfall int64    `json:"shortfall"`
	Severity  Severity `json:"severity"`
}

// Classify grades a demand-driven requirement: critical when nothing is on
// hand, shortage when stock covers only part of the demand.
func Classify(required, available int64) Assessment {
	return classify(required, available, -1)
}

// ClassifyComponent grades a BOM-driven requirement, additionally treating
// stock at or below the component's reorder level as a shortage.
func ClassifyComponent(required, available, reorderLevel int64) Assessment {
	return classify(required, available, reorderLevel)
}

func classify(required, available, reorderLevel int64) Assessment {
	shortfall := required - available
	if shortfall < 0 {
		shortfall = 0
	}
	assessment := Assessment{Shortfall: shortfall, Severity: SeveritySufficient}
	switch {
	case available == 0:
		assessment.Severity = SeverityCritical
	case available < required:
		assessment.Severity = SeverityShortage
	case reorderLevel >= 0 && available <= reorderLevel:
		assessment.Severity = SeverityShortage
	}
	return assessment
}

// TargetBuildQuantity is the assembly build quantity bottleneck components
// are evaluated against.
func TargetBuildQuantity(reorderLevel, minBatchSize int64) int64 {
	if minBatchSize <= 0 {
		minBatchSize = DefaultMinBatchSize
	}
	if reorderLevel > minBatchSize {
		return reorderLevel
	}
	return minBatchSize
}
