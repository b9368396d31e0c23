package engine

import (
	"errors"
	"log"
	"strings"

	"github.com/cascadia-sim/cascadia/internal/model"
	"github.com/cascadia-sim/cascadia/internal/sim"
)

// RunTickResult answers one tick poll: either a published payload or a
// pending marker carrying the precompute high-water tick.
type RunTickResult struct {
	SimRunID        string           `json:"sim_run_id"`
	TickIndex       int              `json:"tick_index"`
	Pending         bool             `json:"pending"`
	ComputedMaxTick int              `json:"computed_max_tick"`
	Payload         *sim.TickPayload `json:"payload,omitempty"`
}

// StartRun launches a simulation run for a prepared instance and marks the
// instance RUNNING. The status write is best effort: the run is already
// live, so a failure only logs.
func (e *Engine) StartRun(instanceID string) (sim.RunState, error) {
	instanceID = strings.TrimSpace(instanceID)
	if instanceID == "" {
		return sim.RunState{}, badInput("scenario_instance_id is required")
	}
	state, err := e.runner.Start(instanceID)
	if err != nil {
		if errors.Is(err, sim.ErrInstanceNotFound) {
			return sim.RunState{}, notFound("scenario instance " + instanceID + " not found")
		}
		return sim.RunState{}, internal("start run", err)
	}
	if err := e.store.Scenario.UpdateInstanceStatus(instanceID, model.InstanceStatusRunning); err != nil {
		log.Printf("[engine] run %s: mark instance %s running: %v", state.SimRunID, instanceID, err)
	}
	return state, nil
}

// RunState reports the live progress of one run.
func (e *Engine) RunState(runID string) (sim.RunState, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return sim.RunState{}, badInput("sim_run_id is required")
	}
	state, err := e.runner.State(runID)
	if err != nil {
		if errors.Is(err, sim.ErrRunNotFound) {
			return sim.RunState{}, notFound("run " + runID + " not found")
		}
		return sim.RunState{}, internal("load run state", err)
	}
	return state, nil
}

// RunTick reads one precomputed tick. Out-of-range indexes clamp to the run's
// tick range; a tick not yet published returns Pending=true with no payload.
func (e *Engine) RunTick(runID string, tickIndex int) (*RunTickResult, error) {
	state, err := e.RunState(runID)
	if err != nil {
		return nil, err
	}
	payload, pending, err := e.runner.Tick(runID, tickIndex)
	if err != nil {
		if errors.Is(err, sim.ErrRunNotFound) {
			return nil, notFound("run " + runID + " not found")
		}
		return nil, internal("read tick", err)
	}

	res := &RunTickResult{
		SimRunID:        state.SimRunID,
		TickIndex:       model.ClampInt(tickIndex, 0, state.TotalTicks-1),
		Pending:         pending,
		ComputedMaxTick: state.ComputedMaxTick,
	}
	if !pending {
		res.TickIndex = payload.TickIndex
		res.Payload = payload
	}
	return res, nil
}
