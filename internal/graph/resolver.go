// Package graph walks the asset dependency graph: bounded BFS chains from a
// root asset and whole-city structural views.
package graph

import (
	"errors"

	"github.com/cascadia-sim/cascadia/internal/model"
)

// Direction selects which way a chain traversal follows provider→consumer
// edges. Downstream follows them as stored; upstream reverses them, walking
// from a consumer toward what it depends on.
type Direction string

const (
	DirectionUpstream   Direction = "upstream"
	DirectionDownstream Direction = "downstream"
)

// ParseDirection validates a raw direction string.
func ParseDirection(s string) (Direction, bool) {
	switch Direction(s) {
	case DirectionUpstream, DirectionDownstream:
		return Direction(s), true
	}
	return "", false
}

var (
	ErrRootNotFound     = errors.New("root asset not found")
	ErrInvalidDirection = errors.New("invalid traversal direction")
)

// InventoryReader is the slice of the inventory repo the resolver consumes.
type InventoryReader interface {
	GetAssets(ids []string) ([]model.Asset, error)
	ListAssetsByCity(city string) ([]model.Asset, error)
	ListDependenciesByCity(city string) ([]model.Dependency, error)
}

// ChainEdge is a traversed dependency annotated with the BFS level at which
// it was discovered (1 = adjacent to the root).
type ChainEdge struct {
	FromAssetID    string `json:"from_asset_id"`
	ToAssetID      string `json:"to_asset_id"`
	DependencyType string `json:"dependency_type"`
	Priority       int    `json:"priority"`
	Level          int    `json:"level"`
}

// Chain is the reachable subgraph from one root asset.
type Chain struct {
	RootAssetID string        `json:"root_asset_id"`
	Direction   Direction     `json:"direction"`
	MaxDepth    int           `json:"max_depth"`
	Nodes       []model.Asset `json:"nodes"`
	Edges       []ChainEdge   `json:"edges"`
}

// Link is one dependency edge in a city view, active or not.
type Link struct {
	ProviderAssetID string `json:"provider_asset_id"`
	ConsumerAssetID string `json:"consumer_asset_id"`
	DependencyType  string `json:"dependency_type"`
	Priority        int    `json:"priority"`
	IsActive        bool   `json:"is_active"`
}

// View is the full structural graph of one city.
type View struct {
	City  string        `json:"city"`
	Nodes []model.Asset `json:"nodes"`
	Links []Link        `json:"links"`
}

// Resolver answers chain and city-view queries over the inventory.
type Resolver struct {
	inventory InventoryReader
	snapshots *SnapshotCache
}

func NewResolver(inventory InventoryReader, snapshots *SnapshotCache) *Resolver {
	return &Resolver{inventory: inventory, snapshots: snapshots}
}

type edgeKey struct {
	from, to, typ string
	priority      int
}

// Chain runs a bounded BFS from rootID. maxDepth is clamped into
// [MinChainDepth, MaxChainDepth]; callers are expected to validate first,
// the clamp is a backstop. Nodes come back in discovery order, root first.
func (r *Resolver) Chain(rootID string, dir Direction, maxDepth int) (*Chain, error) {
	if dir != DirectionUpstream && dir != DirectionDownstream {
		return nil, ErrInvalidDirection
	}
	maxDepth = model.ClampInt(maxDepth, model.MinChainDepth, model.MaxChainDepth)

	snap, err := r.snapshots.Active()
	if err != nil {
		return nil, err
	}

	type queued struct {
		id    string
		depth int
	}

	seen := map[string]bool{rootID: true}
	order := []string{rootID}
	queue := []queued{{rootID, 0}}
	seenEdges := make(map[edgeKey]bool)
	var edges []ChainEdge

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}

		var adjacent []model.Dependency
		if dir == DirectionDownstream {
			adjacent = snap.Outgoing(cur.id)
		} else {
			adjacent = snap.Incoming(cur.id)
		}

		for _, e := range adjacent {
			far := e.ConsumerAssetID
			if dir == DirectionUpstream {
				far = e.ProviderAssetID
			}

			key := edgeKey{from: cur.id, to: far, typ: e.DependencyType, priority: e.Priority}
			if seenEdges[key] {
				continue
			}
			seenEdges[key] = true
			edges = append(edges, ChainEdge{
				FromAssetID:    cur.id,
				ToAssetID:      far,
				DependencyType: e.DependencyType,
				Priority:       e.Priority,
				Level:          cur.depth + 1,
			})

			if !seen[far] {
				seen[far] = true
				order = append(order, far)
				queue = append(queue, queued{far, cur.depth + 1})
			}
		}
	}

	resolved, err := r.inventory.GetAssets(order)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Asset, len(resolved))
	for _, a := range resolved {
		byID[a.ID] = a
	}
	if _, ok := byID[rootID]; !ok {
		return nil, ErrRootNotFound
	}

	nodes := make([]model.Asset, 0, len(order))
	for _, id := range order {
		if a, ok := byID[id]; ok {
			nodes = append(nodes, a)
		}
	}

	return &Chain{
		RootAssetID: rootID,
		Direction:   dir,
		MaxDepth:    maxDepth,
		Nodes:       nodes,
		Edges:       edges,
	}, nil
}

// CityView loads the full structural graph of a city: every asset plus every
// edge whose endpoints are both in the city, active or not.
func (r *Resolver) CityView(city string) (*View, error) {
	assets, err := r.inventory.ListAssetsByCity(city)
	if err != nil {
		return nil, err
	}
	deps, err := r.inventory.ListDependenciesByCity(city)
	if err != nil {
		return nil, err
	}

	links := make([]Link, len(deps))
	for i, d := range deps {
		links[i] = Link{
			ProviderAssetID: d.ProviderAssetID,
			ConsumerAssetID: d.ConsumerAssetID,
			DependencyType:  d.DependencyType,
			Priority:        d.Priority,
			IsActive:        d.IsActive,
		}
	}

	return &View{City: city, Nodes: assets, Links: links}, nil
}
