// Package sim replays prepared scenario instances as in-memory runs. A run
// precomputes one payload per tick in the background while pollers read
// already-published ticks; nothing about a run survives a process restart.
package sim

import (
	"sort"
	"sync/atomic"

	"github.com/cascadia-sim/cascadia/internal/model"
)

// AssetChange is one asset whose discrete status flipped at a tick.
type AssetChange struct {
	AssetID string `json:"asset_id"`
	Status  string `json:"status"`
}

// TickPayload is the immutable result of one precomputed tick. Published
// payloads are never mutated; readers may hold them indefinitely.
type TickPayload struct {
	SimRunID        string         `json:"sim_run_id"`
	TickIndex       int            `json:"tick_index"`
	TotalTicks      int            `json:"total_ticks"`
	Sectors         map[string]int `json:"sectors"`
	AssetsChanged   []AssetChange  `json:"assets_changed"`
	Recommendations []string       `json:"recommendations"`
}

// RunState is the poll-visible metadata of a run.
type RunState struct {
	SimRunID           string `json:"sim_run_id"`
	ScenarioInstanceID string `json:"scenario_instance_id"`
	City               string `json:"city"`
	TotalTicks         int    `json:"total_ticks"`
	ComputedMaxTick    int    `json:"computed_max_tick"`
	Done               bool   `json:"done"`
}

// Run is the in-memory replay state of one started instance. The background
// precompute goroutine is the only writer; slots are write-once and become
// visible to readers before computedMaxTick moves past them.
type Run struct {
	ID          string
	InstanceID  string
	City        string
	TickMinutes int
	TotalTicks  int

	assets       []model.Asset
	eventsByTick [][]model.Event

	slots           []atomic.Pointer[TickPayload]
	computedMaxTick atomic.Int64
	done            atomic.Bool
	doneAtNs        atomic.Int64
}

func newRun(id string, inst *model.Instance, totalTicks int, assets []model.Asset, events []model.Event) *Run {
	// Payloads list changes in asset id order.
	assets = append([]model.Asset(nil), assets...)
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })

	r := &Run{
		ID:           id,
		InstanceID:   inst.ID,
		City:         inst.City,
		TickMinutes:  inst.TickMinutes,
		TotalTicks:   totalTicks,
		assets:       assets,
		eventsByTick: make([][]model.Event, totalTicks),
		slots:        make([]atomic.Pointer[TickPayload], totalTicks),
	}
	r.computedMaxTick.Store(-1)

	for _, e := range events {
		if e.TickIndex < 0 || e.TickIndex >= totalTicks {
			continue
		}
		r.eventsByTick[e.TickIndex] = append(r.eventsByTick[e.TickIndex], e)
	}
	return r
}

// State snapshots the run's poll-visible metadata.
func (r *Run) State() RunState {
	return RunState{
		SimRunID:           r.ID,
		ScenarioInstanceID: r.InstanceID,
		City:               r.City,
		TotalTicks:         r.TotalTicks,
		ComputedMaxTick:    int(r.computedMaxTick.Load()),
		Done:               r.done.Load(),
	}
}

// Payload returns the published payload at tickIndex (clamped into range),
// or ok=false while it is still pending.
func (r *Run) Payload(tickIndex int) (*TickPayload, bool) {
	tickIndex = model.ClampInt(tickIndex, 0, r.TotalTicks-1)
	p := r.slots[tickIndex].Load()
	if p == nil {
		return nil, false
	}
	return p, true
}

// publish stores the payload slot first, then advances computedMaxTick, so a
// reader that observes tick t as computed always finds the payload in place.
func (r *Run) publish(tickIndex int, p *TickPayload) {
	r.slots[tickIndex].Store(p)
	r.computedMaxTick.Store(int64(tickIndex))
}

func (r *Run) markDone(nowNs int64) {
	if r.done.CompareAndSwap(false, true) {
		r.doneAtNs.Store(nowNs)
	}
}
