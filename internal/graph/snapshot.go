package graph

import (
	"time"

	"github.com/maypok86/otter"

	"github.com/cascadia-sim/cascadia/internal/model"
)

// EdgeLister supplies the active dependency edges, usually backed by the
// inventory repo.
type EdgeLister interface {
	ListActiveDependencies() ([]model.Dependency, error)
}

// EdgeSnapshot is an immutable view of the active-edge set with adjacency
// indexes in both directions. A single traversal works against one snapshot,
// so it observes a consistent graph even while imports run concurrently.
type EdgeSnapshot struct {
	Edges      []model.Dependency
	byProvider map[string][]int
	byConsumer map[string][]int
}

func newEdgeSnapshot(edges []model.Dependency) *EdgeSnapshot {
	s := &EdgeSnapshot{
		Edges:      edges,
		byProvider: make(map[string][]int),
		byConsumer: make(map[string][]int),
	}
	for i, e := range edges {
		s.byProvider[e.ProviderAssetID] = append(s.byProvider[e.ProviderAssetID], i)
		s.byConsumer[e.ConsumerAssetID] = append(s.byConsumer[e.ConsumerAssetID], i)
	}
	return s
}

// Outgoing returns the active edges where the asset is the provider,
// in stable (edge id) order.
func (s *EdgeSnapshot) Outgoing(assetID string) []model.Dependency {
	return s.edgesAt(s.byProvider[assetID])
}

// Incoming returns the active edges where the asset is the consumer,
// in stable (edge id) order.
func (s *EdgeSnapshot) Incoming(assetID string) []model.Dependency {
	return s.edgesAt(s.byConsumer[assetID])
}

func (s *EdgeSnapshot) edgesAt(idx []int) []model.Dependency {
	if len(idx) == 0 {
		return nil
	}
	out := make([]model.Dependency, len(idx))
	for i, j := range idx {
		out[i] = s.Edges[j]
	}
	return out
}

const activeSnapshotKey = "active"

// SnapshotCache keeps the most recent EdgeSnapshot behind a short TTL so
// chain lookups during a simulation replay do not reload the edge table per
// request. Inventory writers call Invalidate to force a fresh load.
type SnapshotCache struct {
	edges EdgeLister
	cache otter.Cache[string, *EdgeSnapshot]
}

// NewSnapshotCache creates a cache around the given edge source. ttl bounds
// staleness after writes that bypass Invalidate (e.g. manual DB edits).
func NewSnapshotCache(edges EdgeLister, ttl time.Duration) *SnapshotCache {
	cache, err := otter.MustBuilder[string, *EdgeSnapshot](8).
		Cost(func(_ string, _ *EdgeSnapshot) uint32 { return 1 }).
		WithTTL(ttl).
		Build()
	if err != nil {
		panic("graph: failed to create snapshot cache: " + err.Error())
	}
	return &SnapshotCache{edges: edges, cache: cache}
}

// Active returns the current snapshot, loading it from the edge source when
// the cached one expired or was invalidated.
func (c *SnapshotCache) Active() (*EdgeSnapshot, error) {
	if snap, ok := c.cache.Get(activeSnapshotKey); ok {
		return snap, nil
	}
	edges, err := c.edges.ListActiveDependencies()
	if err != nil {
		return nil, err
	}
	snap := newEdgeSnapshot(edges)
	c.cache.Set(activeSnapshotKey, snap)
	return snap, nil
}

// Invalidate drops the cached snapshot. The next Active reloads.
func (c *SnapshotCache) Invalidate() {
	c.cache.Delete(activeSnapshotKey)
}

// Close releases resources held by the underlying cache.
func (c *SnapshotCache) Close() {
	c.cache.Close()
}
