package catalog

import "fmt"

// maxBOMDepth bounds traversal; production BOMs are a handful of levels deep
// and anything beyond this indicates corrupt data.
const maxBOMDepth = 32

// ValidateAcyclic walks the BOM adjacency reachable from root and returns
// ErrCyclicBOM (wrapped with the offending path) when a component transitively
// references its own parent. Adjacency maps parent id to component ids.
func ValidateAcyclic(root int64, adjacency map[int64][]int64) error {
	onPath := make(map[int64]bool)
	done := make(map[int64]bool)
	var path []int64

	var visit func(node int64, depth int) error
	visit = func(node int64, depth int) error {
		if depth > maxBOMDepth {
			return fmt.Errorf("%w: depth limit exceeded at item %d", ErrCyclicBOM, node)
		}
		if done[node] {
			return nil
		}
		if onPath[node] {
			return fmt.Errorf("%w: path %v closes at item %d", ErrCyclicBOM, path, node)
		}
		onPath[node] = true
		path = append(path, node)
		for _, child := range adjacency[node] {
			if err := visit(child, depth+1); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		onPath[node] = false
		done[node] = true
		return nil
	}

	return visit(root, 0)
}
