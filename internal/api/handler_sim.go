package api

import (
	"net/http"
	"strings"

	"github.com/cascadia-sim/cascadia/internal/engine"
)

type simStartRequest struct {
	ScenarioInstanceID string `json:"scenario_instance_id"`
}

// HandleSimStart returns a handler for POST /api/sim/start.
func HandleSimStart(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req simStartRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		state, err := eng.StartRun(req.ScenarioInstanceID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, state)
	}
}

// executeRequest is the action envelope accepted by POST /api/execute.
type executeRequest struct {
	Action             string `json:"action"`
	ScenarioInstanceID string `json:"scenario_instance_id"`
}

// HandleExecute returns a handler for POST /api/execute. SIM_RUN is the only
// supported action and behaves exactly like POST /api/sim/start.
func HandleExecute(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req executeRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		action := strings.ToUpper(strings.TrimSpace(req.Action))
		if action != "SIM_RUN" {
			writeBadInput(w, "action: must be SIM_RUN")
			return
		}
		state, err := eng.StartRun(req.ScenarioInstanceID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, state)
	}
}

// HandleSimState returns a handler for GET /api/sim/state.
func HandleSimState(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID, ok := requireQueryOrWriteInvalid(w, r, "sim_run_id")
		if !ok {
			return
		}
		state, err := eng.RunState(runID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, state)
	}
}

// HandleSimTick returns a handler for GET /api/sim/tick. A tick_index past
// the precompute frontier is not an error: the response carries pending=true
// and the caller polls again.
func HandleSimTick(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID, ok := requireQueryOrWriteInvalid(w, r, "sim_run_id")
		if !ok {
			return
		}
		tickIndex, ok := parseIntQueryOrWriteInvalid(w, r, "tick_index", 0)
		if !ok {
			return
		}
		result, err := eng.RunTick(runID, tickIndex)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}
