package api

import (
	"fmt"
	"net/http"

	"github.com/cascadia-sim/cascadia/internal/engine"
	"github.com/cascadia-sim/cascadia/internal/graph"
	"github.com/cascadia-sim/cascadia/internal/model"
)

// HandleDependencyChain returns a handler for GET /api/dependencies/chain.
// direction defaults to downstream; max_depth defaults to the server-wide
// configured depth when absent.
func HandleDependencyChain(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assetID, ok := requireQueryOrWriteInvalid(w, r, "asset_id")
		if !ok {
			return
		}
		direction := r.URL.Query().Get("direction")
		if direction == "" {
			direction = string(graph.DirectionDownstream)
		}
		maxDepth, ok := parseIntQueryOrWriteInvalid(w, r, "max_depth", 0)
		if !ok {
			return
		}
		if maxDepth != 0 && (maxDepth < model.MinChainDepth || maxDepth > model.MaxChainDepth) {
			writeBadInput(w, fmt.Sprintf("max_depth: must be between %d and %d", model.MinChainDepth, model.MaxChainDepth))
			return
		}
		chain, err := eng.Chain(assetID, direction, maxDepth)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, chain)
	}
}

// HandleDependencyGraph returns a handler for GET /api/dependencies/graph.
func HandleDependencyGraph(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		city, ok := requireQueryOrWriteInvalid(w, r, "city")
		if !ok {
			return
		}
		view, err := eng.Graph(city)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}
