package catalog

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Service exposes catalog reads with cycle validation in front of BOM
// explosion. Adjacency lookups are cached and deduplicated; stock reads always
// hit the store.
type Service struct {
	repo  Repository
	cache *StructureCache
	group singleflight.Group
}

// NewService constructs the catalog service. cache may be nil.
func NewService(repo Repository, cache *StructureCache) *Service {
	return &Service{repo: repo, cache: cache}
}

// GetItem returns the item by id.
func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	return s.repo.GetItem(ctx, id)
}

// ListAssemblies returns all active assembly items.
func (s *Service) ListAssemblies(ctx context.Context) ([]Item, error) {
	return s.repo.ListAssemblies(ctx)
}

// AssemblyComponents returns the direct components of parentID with live
// stock, after validating that the subgraph reachable from parentID is
// acyclic. Returns ErrCyclicBOM for corrupt BOM data.
func (s *Service) AssemblyComponents(ctx context.Context, parentID int64) ([]ComponentRequirement, error) {
	adjacency, err := s.adjacency(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if err := ValidateAcyclic(parentID, adjacency); err != nil {
		return nil, err
	}
	return s.repo.GetAssemblyComponents(ctx, parentID)
}

func (s *Service) adjacency(ctx context.Context, rootID int64) (map[int64][]int64, error) {
	if adjacency, ok := s.cache.Get(ctx, rootID); ok {
		return adjacency, nil
	}
	key := fmt.Sprintf("bom-adjacency:%d", rootID)
	result, err, _ := s.group.Do(key, func() (any, error) {
		adjacency, err := s.repo.AdjacencyFrom(ctx, rootID)
		if err != nil {
			return nil, err
		}
		s.cache.Set(ctx, rootID, adjacency)
		return adjacency, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(map[int64][]int64), nil
}
