package sim

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/cascadia-sim/cascadia/internal/metrics"
	"github.com/cascadia-sim/cascadia/internal/model"
)

var (
	ErrRunNotFound      = errors.New("run not found")
	ErrInstanceNotFound = errors.New("instance not found")
)

// InstanceReader loads a prepared instance and its event table.
type InstanceReader interface {
	GetInstance(id string) (*model.Instance, error)
	ListEvents(instanceID string) ([]model.Event, error)
}

// AssetLister supplies the city inventory a run replays against.
type AssetLister interface {
	ListAssetsByCity(city string) ([]model.Asset, error)
}

// StateWriter receives best-effort operational state updates as assets
// transition during precompute.
type StateWriter interface {
	UpsertOperationalState(assetID, status string, updatedAtNs int64) error
}

// Runner owns the run registry and the per-run precompute goroutines.
type Runner struct {
	instances InstanceReader
	assets    AssetLister
	states    StateWriter
	metrics   *metrics.Set

	runs   *xsync.Map[string, *Run]
	pacing time.Duration
}

// NewRunner builds a runner. pacing is the delay between published ticks so
// pollers can observe progressive availability; zero disables pacing (tests).
func NewRunner(instances InstanceReader, assets AssetLister, states StateWriter, m *metrics.Set, pacing time.Duration) *Runner {
	return &Runner{
		instances: instances,
		assets:    assets,
		states:    states,
		metrics:   m,
		runs:      xsync.NewMap[string, *Run](),
		pacing:    pacing,
	}
}

// Start loads the instance, mints a run id, and spawns the background
// precompute. The returned state usually still reports computed_max_tick -1.
func (r *Runner) Start(instanceID string) (RunState, error) {
	inst, err := r.instances.GetInstance(instanceID)
	if err != nil {
		return RunState{}, fmt.Errorf("load instance %s: %w", instanceID, err)
	}
	if inst == nil {
		return RunState{}, ErrInstanceNotFound
	}

	events, err := r.instances.ListEvents(instanceID)
	if err != nil {
		return RunState{}, fmt.Errorf("load events for %s: %w", instanceID, err)
	}
	assets, err := r.assets.ListAssetsByCity(inst.City)
	if err != nil {
		return RunState{}, fmt.Errorf("load inventory for %s: %w", inst.City, err)
	}

	totalTicks := model.TotalTicks(inst.DurationHours, inst.TickMinutes)
	run := newRun(uuid.NewString(), inst, totalTicks, assets, events)
	r.runs.Store(run.ID, run)
	r.metrics.RunStarted()

	log.Printf("[sim] run %s started for instance %s (%s, %d ticks, %d events)",
		run.ID, inst.ID, inst.City, totalTicks, len(events))

	go r.precompute(run)

	return run.State(), nil
}

// State returns the poll-visible metadata of a run.
func (r *Runner) State(runID string) (RunState, error) {
	run, ok := r.runs.Load(runID)
	if !ok {
		return RunState{}, ErrRunNotFound
	}
	return run.State(), nil
}

// Tick returns the payload at tickIndex, or pending=true while the
// background task has not published it yet.
func (r *Runner) Tick(runID string, tickIndex int) (payload *TickPayload, pending bool, err error) {
	run, ok := r.runs.Load(runID)
	if !ok {
		return nil, false, ErrRunNotFound
	}
	p, ok := run.Payload(tickIndex)
	if !ok {
		return nil, true, nil
	}
	return p, false, nil
}

// ActiveRuns reports the registry size.
func (r *Runner) ActiveRuns() int {
	return r.runs.Size()
}

// precompute walks every tick in order, applying events and publishing
// payloads. A panic marks the run done and keeps already-published ticks
// readable.
func (r *Runner) precompute(run *Run) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[sim] run %s: precompute panic: %v", run.ID, rec)
		}
		run.markDone(time.Now().UnixNano())
	}()

	perf := make(map[string]float64, len(run.assets))
	lastStatus := make(map[string]string, len(run.assets))
	for _, a := range run.assets {
		perf[a.ID] = 100
		lastStatus[a.ID] = model.StatusForPerformance(100)
	}
	lastSector := make(map[string]int)

	for t := 0; t < run.TotalTicks; t++ {
		started := time.Now()
		payload := r.computeTick(run, t, perf, lastStatus, lastSector)
		run.publish(t, payload)
		r.metrics.TickComputed(time.Since(started))

		if r.pacing > 0 && t < run.TotalTicks-1 {
			time.Sleep(r.pacing)
		}
	}
	log.Printf("[sim] run %s finished (%d ticks)", run.ID, run.TotalTicks)
}

func (r *Runner) computeTick(run *Run, t int, perf map[string]float64, lastStatus map[string]string, lastSector map[string]int) *TickPayload {
	// Events apply in stored order; later events at the same tick overwrite
	// earlier ones (set-to semantics).
	for _, e := range run.eventsByTick[t] {
		if _, known := perf[e.AssetID]; !known {
			continue
		}
		perf[e.AssetID] = e.PerformancePct
	}

	changes := make([]AssetChange, 0)
	nowNs := time.Now().UnixNano()
	for _, a := range run.assets {
		status := model.StatusForPerformance(perf[a.ID])
		if status == lastStatus[a.ID] {
			continue
		}
		lastStatus[a.ID] = status
		changes = append(changes, AssetChange{AssetID: a.ID, Status: status})

		if r.states != nil {
			opStatus := model.OpStatusForPerformance(perf[a.ID])
			if err := r.states.UpsertOperationalState(a.ID, opStatus, nowNs); err != nil {
				log.Printf("[sim] run %s: operational state for %s: %v", run.ID, a.ID, err)
			}
		}
	}

	sectors := sectorHealth(run.assets, perf)

	recommendations := make([]string, 0, 1)
	if len(changes) > 0 {
		recommendations = append(recommendations,
			fmt.Sprintf("tick %d: %d asset(s) changed operational status", t, len(changes)))
	}
	// One line per sector crossing below 50, not one per tick it stays there.
	for _, sector := range sortedSectors(sectors) {
		health := sectors[sector]
		prev, seen := lastSector[sector]
		if !seen {
			prev = 100
		}
		lastSector[sector] = health
		if health < 50 && prev >= 50 {
			recommendations = append(recommendations,
				fmt.Sprintf("%s sector health down to %d%%, prioritize repair crews", sector, health))
		}
	}

	return &TickPayload{
		SimRunID:        run.ID,
		TickIndex:       t,
		TotalTicks:      run.TotalTicks,
		Sectors:         sectors,
		AssetsChanged:   changes,
		Recommendations: recommendations,
	}
}

func sortedSectors(sectors map[string]int) []string {
	names := make([]string, 0, len(sectors))
	for s := range sectors {
		names = append(names, s)
	}
	sort.Strings(names)
	return names
}

// sectorHealth computes the criticality-weighted mean performance per sector
// present in the city, rounded to integer percent.
func sectorHealth(assets []model.Asset, perf map[string]float64) map[string]int {
	weighted := make(map[string]float64)
	weights := make(map[string]float64)
	for _, a := range assets {
		w := float64(a.Criticality)
		weighted[a.Sector] += perf[a.ID] * w
		weights[a.Sector] += w
	}

	sectors := make(map[string]int, len(weighted))
	for sector, sum := range weighted {
		if weights[sector] <= 0 {
			continue
		}
		sectors[sector] = int(math.Round(sum / weights[sector]))
	}
	return sectors
}
