package engine

import (
	"errors"
	"strings"

	"github.com/cascadia-sim/cascadia/internal/graph"
)

// Chain resolves the bounded dependency chain of one asset. maxDepth == 0
// selects the configured default; other values are clamped by the resolver.
func (e *Engine) Chain(assetID, direction string, maxDepth int) (*graph.Chain, error) {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return nil, badInput("asset_id is required")
	}
	dir, ok := graph.ParseDirection(direction)
	if !ok {
		return nil, badInput("direction must be upstream or downstream")
	}
	if maxDepth == 0 {
		maxDepth = e.defaultMaxDepth
	}

	chain, err := e.resolver.Chain(assetID, dir, maxDepth)
	if err != nil {
		switch {
		case errors.Is(err, graph.ErrRootNotFound):
			return nil, notFound("asset " + assetID + " not found")
		case errors.Is(err, graph.ErrInvalidDirection):
			return nil, badInput("direction must be upstream or downstream")
		default:
			return nil, internal("resolve chain", err)
		}
	}
	return chain, nil
}

// Graph returns the full structural {nodes, links} view of one city.
func (e *Engine) Graph(city string) (*graph.View, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, badInput("city is required")
	}
	view, err := e.resolver.CityView(city)
	if err != nil {
		return nil, internal("load city graph", err)
	}
	return view, nil
}
