// Package engine provides the scenario engine façade. Handlers call its
// methods; business logic and the ServiceError taxonomy live here, not in
// the HTTP layer.
package engine

import (
	"github.com/cascadia-sim/cascadia/internal/graph"
	"github.com/cascadia-sim/cascadia/internal/metrics"
	"github.com/cascadia-sim/cascadia/internal/model"
	"github.com/cascadia-sim/cascadia/internal/scenario"
	"github.com/cascadia-sim/cascadia/internal/sim"
	"github.com/cascadia-sim/cascadia/internal/store"
)

// Engine bundles the store, the materializer, the runner, and the
// dependency resolver behind one operation surface.
type Engine struct {
	store    *store.Store
	mat      *scenario.Materializer
	runner   *sim.Runner
	resolver *graph.Resolver
	metrics  *metrics.Set

	defaultMaxDepth int
}

// New wires the façade. defaultMaxDepth is used when a chain query does not
// name a depth; values outside [1,12] fall back to 5.
func New(st *store.Store, mat *scenario.Materializer, runner *sim.Runner, resolver *graph.Resolver, m *metrics.Set, defaultMaxDepth int) *Engine {
	if defaultMaxDepth < model.MinChainDepth || defaultMaxDepth > model.MaxChainDepth {
		defaultMaxDepth = 5
	}
	return &Engine{
		store:           st,
		mat:             mat,
		runner:          runner,
		resolver:        resolver,
		metrics:         m,
		defaultMaxDepth: defaultMaxDepth,
	}
}
