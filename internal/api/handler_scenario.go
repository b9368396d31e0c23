package api

import (
	"net/http"

	"github.com/cascadia-sim/cascadia/internal/engine"
	"github.com/cascadia-sim/cascadia/internal/scenario"
)

type prepareScenarioRequest struct {
	City          string                 `json:"city"`
	Scenario      string                 `json:"scenario"`
	DurationHours int                    `json:"duration_hours"`
	TickMinutes   int                    `json:"tick_minutes"`
	RepairCrews   int                    `json:"repair_crews"`
	Anchors       []scenario.AnchorInput `json:"anchors"`
	Seed          *int64                 `json:"seed"`
}

// HandlePrepareScenario returns a handler for POST /api/scenario/prepare.
func HandlePrepareScenario(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req prepareScenarioRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		result, err := eng.Prepare(scenario.PrepareInput{
			City:          req.City,
			Scenario:      req.Scenario,
			DurationHours: req.DurationHours,
			TickMinutes:   req.TickMinutes,
			RepairCrews:   req.RepairCrews,
			Anchors:       req.Anchors,
			Seed:          req.Seed,
		})
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, result)
	}
}

// HandleListPrepared returns a handler for GET /api/scenario/prepared.
func HandleListPrepared(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := parseIntQueryOrWriteInvalid(w, r, "limit", 0)
		if !ok {
			return
		}
		items, err := eng.ListPrepared(limit)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteList(w, http.StatusOK, items)
	}
}

// HandleGetPrepared returns a handler for GET /api/scenario/prepared/{id}.
func HandleGetPrepared(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireUUIDPathParam(w, r, "id", "scenario_instance_id")
		if !ok {
			return
		}
		detail, err := eng.DescribePrepared(id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, detail)
	}
}

// HandleScenarioTimeline returns a handler for
// GET /api/scenario/prepared/{id}/timeline.
func HandleScenarioTimeline(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireUUIDPathParam(w, r, "id", "scenario_instance_id")
		if !ok {
			return
		}
		bucketTicks, ok := parseIntQueryOrWriteInvalid(w, r, "bucket_ticks", 0)
		if !ok {
			return
		}
		tl, err := eng.Timeline(id, bucketTicks)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, tl)
	}
}
