package sim

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cascadia-sim/cascadia/internal/model"
)

// fakeStore backs a runner with in-memory instances, events, and assets,
// and records operational state writes behind a mutex (the precompute
// goroutine writes while tests read).
type fakeStore struct {
	instances map[string]*model.Instance
	events    map[string][]model.Event
	assets    map[string][]model.Asset

	mu     sync.Mutex
	states map[string]string
}

func (f *fakeStore) GetInstance(id string) (*model.Instance, error) {
	return f.instances[id], nil
}

func (f *fakeStore) ListEvents(instanceID string) ([]model.Event, error) {
	return f.events[instanceID], nil
}

func (f *fakeStore) ListAssetsByCity(city string) ([]model.Asset, error) {
	return f.assets[city], nil
}

func (f *fakeStore) UpsertOperationalState(assetID, status string, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.states == nil {
		f.states = make(map[string]string)
	}
	f.states[assetID] = status
	return nil
}

func (f *fakeStore) state(assetID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[assetID]
}

func cityAsset(id, sector string, criticality int) model.Asset {
	return model.Asset{ID: id, Name: id, Sector: sector, Subtype: "substation", City: "Jerusalem", Criticality: criticality}
}

// earthquakeFixture mirrors a prepared 24-tick earthquake: three of five
// substations fail at tick 12; a water pump stays untouched.
func earthquakeFixture() *fakeStore {
	inst := &model.Instance{
		ID: "inst-eq", City: "Jerusalem", Scenario: "earthquake", HazardType: "EARTHQUAKE",
		TemplateID: "EQ_030", DurationHours: 24, TickMinutes: 60, Seed: 1, Status: model.InstanceStatusPrepared,
	}
	events := []model.Event{
		{InstanceID: inst.ID, TickIndex: 12, EventKind: model.EventImpact, AssetID: "elec-sub-a", PerformancePct: 0, SourceRuleID: "EQ_030_R1"},
		{InstanceID: inst.ID, TickIndex: 12, EventKind: model.EventImpact, AssetID: "elec-sub-b", PerformancePct: 0, SourceRuleID: "EQ_030_R1"},
		{InstanceID: inst.ID, TickIndex: 12, EventKind: model.EventImpact, AssetID: "elec-sub-c", PerformancePct: 0, SourceRuleID: "EQ_030_R1"},
	}
	assets := []model.Asset{
		cityAsset("elec-sub-a", model.SectorElectricity, 4),
		cityAsset("elec-sub-b", model.SectorElectricity, 3),
		cityAsset("elec-sub-c", model.SectorElectricity, 3),
		cityAsset("elec-sub-d", model.SectorElectricity, 3),
		cityAsset("elec-sub-e", model.SectorElectricity, 3),
		cityAsset("water-pump-a", model.SectorWater, 3),
	}
	return &fakeStore{
		instances: map[string]*model.Instance{inst.ID: inst},
		events:    map[string][]model.Event{inst.ID: events},
		assets:    map[string][]model.Asset{"Jerusalem": assets},
	}
}

func newTestRunner(fs *fakeStore, pacing time.Duration) *Runner {
	return NewRunner(fs, fs, fs, nil, pacing)
}

func waitDone(t *testing.T, r *Runner, runID string) RunState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := r.State(runID)
		if err != nil {
			t.Fatal(err)
		}
		if st.Done {
			return st
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("run did not finish in time")
	return RunState{}
}

func TestRunner_EarthquakeReplay(t *testing.T) {
	fs := earthquakeFixture()
	r := newTestRunner(fs, 0)

	state, err := r.Start("inst-eq")
	if err != nil {
		t.Fatal(err)
	}
	if state.TotalTicks != 24 || state.City != "Jerusalem" || state.ScenarioInstanceID != "inst-eq" {
		t.Fatalf("unexpected start state: %+v", state)
	}

	final := waitDone(t, r, state.SimRunID)
	if final.ComputedMaxTick != 23 {
		t.Fatalf("expected all 24 ticks computed, got %d", final.ComputedMaxTick)
	}

	// Tick 12: the three hit substations flip to FAILED, electricity drops.
	p12, pending, err := r.Tick(state.SimRunID, 12)
	if err != nil || pending {
		t.Fatalf("tick 12 unavailable: pending=%v err=%v", pending, err)
	}
	if len(p12.AssetsChanged) != 3 {
		t.Fatalf("expected 3 changed assets at tick 12, got %+v", p12.AssetsChanged)
	}
	for _, c := range p12.AssetsChanged {
		if c.Status != model.StatusFailed {
			t.Fatalf("expected FAILED, got %+v", c)
		}
	}
	if p12.Sectors[model.SectorElectricity] >= 100 {
		t.Fatalf("electricity must degrade at tick 12: %+v", p12.Sectors)
	}
	// round((0·4 + 0·3 + 0·3 + 100·3 + 100·3) / 16) = 38.
	if p12.Sectors[model.SectorElectricity] != 38 {
		t.Fatalf("expected weighted electricity health 38, got %d", p12.Sectors[model.SectorElectricity])
	}
	if p12.Sectors[model.SectorWater] != 100 {
		t.Fatalf("water must stay at 100: %+v", p12.Sectors)
	}
	if len(p12.Recommendations) != 2 {
		t.Fatalf("expected change and sector lines, got %v", p12.Recommendations)
	}
	if !strings.Contains(p12.Recommendations[1], model.SectorElectricity) {
		t.Fatalf("second line must flag electricity: %v", p12.Recommendations)
	}

	// Tick 13: still below 50, but the sector line fires only on the crossing.
	p13, pending, err := r.Tick(state.SimRunID, 13)
	if err != nil || pending {
		t.Fatalf("tick 13 unavailable: pending=%v err=%v", pending, err)
	}
	if len(p13.Recommendations) != 0 {
		t.Fatalf("expected no repeated lines at tick 13, got %v", p13.Recommendations)
	}

	// Tick 11: nothing has happened yet.
	p11, pending, err := r.Tick(state.SimRunID, 11)
	if err != nil || pending {
		t.Fatalf("tick 11 unavailable: pending=%v err=%v", pending, err)
	}
	if len(p11.AssetsChanged) != 0 {
		t.Fatalf("expected no changes at tick 11, got %+v", p11.AssetsChanged)
	}
	if p11.Sectors[model.SectorElectricity] != 100 {
		t.Fatalf("electricity must be 100 at tick 11, got %d", p11.Sectors[model.SectorElectricity])
	}
	if len(p11.Recommendations) != 0 {
		t.Fatalf("expected no recommendations at tick 11, got %v", p11.Recommendations)
	}

	// Operational state mirrors the last transition.
	if got := fs.state("elec-sub-a"); got != model.OpStatusInactive {
		t.Fatalf("expected inactive state recorded, got %q", got)
	}
}

func TestRunner_TickIdempotentAndClamped(t *testing.T) {
	fs := earthquakeFixture()
	r := newTestRunner(fs, 0)

	state, err := r.Start("inst-eq")
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, r, state.SimRunID)

	a, _, err := r.Tick(state.SimRunID, 12)
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := r.Tick(state.SimRunID, 12)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("repeated reads must return the same published payload")
	}

	over, _, err := r.Tick(state.SimRunID, 9999)
	if err != nil {
		t.Fatal(err)
	}
	if over.TickIndex != 23 {
		t.Fatalf("out-of-range tick must clamp to the last tick, got %d", over.TickIndex)
	}
	under, _, err := r.Tick(state.SimRunID, -8)
	if err != nil {
		t.Fatal(err)
	}
	if under.TickIndex != 0 {
		t.Fatalf("negative tick must clamp to 0, got %d", under.TickIndex)
	}
}

func TestRunner_RecoveryArc(t *testing.T) {
	inst := &model.Instance{
		ID: "inst-arc", City: "Jerusalem", Scenario: "cyber_attack", HazardType: "CYBER",
		TemplateID: "CY_020", DurationHours: 10, TickMinutes: 60, Seed: 2, Status: model.InstanceStatusPrepared,
	}
	events := []model.Event{
		{InstanceID: inst.ID, TickIndex: 2, EventKind: model.EventImpact, AssetID: "solo", PerformancePct: 0},
		{InstanceID: inst.ID, TickIndex: 5, EventKind: model.EventRepairPartial, AssetID: "solo", PerformancePct: 60},
		{InstanceID: inst.ID, TickIndex: 8, EventKind: model.EventRepairFull, AssetID: "solo", PerformancePct: 100},
	}
	fs := &fakeStore{
		instances: map[string]*model.Instance{inst.ID: inst},
		events:    map[string][]model.Event{inst.ID: events},
		assets:    map[string][]model.Asset{"Jerusalem": {cityAsset("solo", model.SectorCommunication, 3)}},
	}
	r := newTestRunner(fs, 0)

	state, err := r.Start("inst-arc")
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, r, state.SimRunID)

	expect := map[int]string{
		2: model.StatusFailed,
		5: model.StatusDegraded,
		8: model.StatusRecovered,
	}
	for tick, want := range expect {
		p, pending, err := r.Tick(state.SimRunID, tick)
		if err != nil || pending {
			t.Fatalf("tick %d unavailable: pending=%v err=%v", tick, pending, err)
		}
		if len(p.AssetsChanged) != 1 || p.AssetsChanged[0].Status != want {
			t.Fatalf("tick %d: expected one change to %s, got %+v", tick, want, p.AssetsChanged)
		}
	}

	// Between transitions nothing is reported.
	p, _, err := r.Tick(state.SimRunID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.AssetsChanged) != 0 {
		t.Fatalf("tick 3 must be quiet, got %+v", p.AssetsChanged)
	}
	if p.Sectors[model.SectorCommunication] != 0 {
		t.Fatalf("communication must be 0 while failed, got %d", p.Sectors[model.SectorCommunication])
	}

	if got := fs.state("solo"); got != model.OpStatusActive {
		t.Fatalf("final operational state must be active, got %q", got)
	}
}

func TestRunner_SetToOverwriteWithinTick(t *testing.T) {
	inst := &model.Instance{
		ID: "inst-ovw", City: "Jerusalem", Scenario: "cyber_attack", HazardType: "CYBER",
		TemplateID: "CY_020", DurationHours: 4, TickMinutes: 60, Seed: 3, Status: model.InstanceStatusPrepared,
	}
	events := []model.Event{
		{InstanceID: inst.ID, TickIndex: 1, EventKind: model.EventImpact, AssetID: "solo", PerformancePct: 80},
		{InstanceID: inst.ID, TickIndex: 1, EventKind: model.EventImpact, AssetID: "solo", PerformancePct: 20},
	}
	fs := &fakeStore{
		instances: map[string]*model.Instance{inst.ID: inst},
		events:    map[string][]model.Event{inst.ID: events},
		assets:    map[string][]model.Asset{"Jerusalem": {cityAsset("solo", model.SectorGas, 3)}},
	}
	r := newTestRunner(fs, 0)

	state, err := r.Start("inst-ovw")
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, r, state.SimRunID)

	p, _, err := r.Tick(state.SimRunID, 1)
	if err != nil {
		t.Fatal(err)
	}
	// The later event wins: 20% is FAILED, not DEGRADED.
	if len(p.AssetsChanged) != 1 || p.AssetsChanged[0].Status != model.StatusFailed {
		t.Fatalf("expected set-to overwrite to FAILED, got %+v", p.AssetsChanged)
	}
	if p.Sectors[model.SectorGas] != 20 {
		t.Fatalf("expected gas health 20, got %d", p.Sectors[model.SectorGas])
	}
}

func TestRunner_UnknownAssetEventsSkipped(t *testing.T) {
	inst := &model.Instance{
		ID: "inst-ghost", City: "Jerusalem", Scenario: "cyber_attack", HazardType: "CYBER",
		TemplateID: "CY_020", DurationHours: 2, TickMinutes: 60, Seed: 4, Status: model.InstanceStatusPrepared,
	}
	events := []model.Event{
		{InstanceID: inst.ID, TickIndex: 0, EventKind: model.EventImpact, AssetID: "deleted-since-prepare", PerformancePct: 0},
	}
	fs := &fakeStore{
		instances: map[string]*model.Instance{inst.ID: inst},
		events:    map[string][]model.Event{inst.ID: events},
		assets:    map[string][]model.Asset{"Jerusalem": {cityAsset("solo", model.SectorWater, 3)}},
	}
	r := newTestRunner(fs, 0)

	state, err := r.Start("inst-ghost")
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, r, state.SimRunID)

	p, _, err := r.Tick(state.SimRunID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.AssetsChanged) != 0 || p.Sectors[model.SectorWater] != 100 {
		t.Fatalf("ghost event leaked into payload: %+v", p)
	}
}

func TestRunner_PendingBeforePrecompute(t *testing.T) {
	fs := earthquakeFixture()
	r := newTestRunner(fs, 0)

	// Build a run shell without spawning precompute.
	inst := fs.instances["inst-eq"]
	run := newRun("run-manual", inst, 24, fs.assets["Jerusalem"], fs.events["inst-eq"])
	r.runs.Store(run.ID, run)

	if _, ok := run.Payload(5); ok {
		t.Fatal("unpublished tick must be pending")
	}
	_, pending, err := r.Tick("run-manual", 5)
	if err != nil {
		t.Fatal(err)
	}
	if !pending {
		t.Fatal("expected pending sentinel before precompute")
	}
	st, err := r.State("run-manual")
	if err != nil {
		t.Fatal(err)
	}
	if st.ComputedMaxTick != -1 || st.Done {
		t.Fatalf("fresh run must report -1/not-done, got %+v", st)
	}
}

func TestRunner_NotFoundErrors(t *testing.T) {
	r := newTestRunner(earthquakeFixture(), 0)

	if _, err := r.Start("no-such-instance"); !errors.Is(err, ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound, got %v", err)
	}
	if _, err := r.State("no-such-run"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if _, _, err := r.Tick("no-such-run", 0); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRunner_ComputedMaxTickMonotonic(t *testing.T) {
	fs := earthquakeFixture()
	r := newTestRunner(fs, time.Millisecond)

	state, err := r.Start("inst-eq")
	if err != nil {
		t.Fatal(err)
	}

	prev := -1
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := r.State(state.SimRunID)
		if err != nil {
			t.Fatal(err)
		}
		if st.ComputedMaxTick < prev {
			t.Fatalf("computed_max_tick went backwards: %d -> %d", prev, st.ComputedMaxTick)
		}
		prev = st.ComputedMaxTick
		if st.Done {
			if st.ComputedMaxTick != st.TotalTicks-1 {
				t.Fatalf("done with %d of %d ticks", st.ComputedMaxTick, st.TotalTicks)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("run did not finish in time")
}

func TestJanitor_EvictsFinishedRuns(t *testing.T) {
	fs := earthquakeFixture()
	r := newTestRunner(fs, 0)

	state, err := r.Start("inst-eq")
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, r, state.SimRunID)
	if r.ActiveRuns() != 1 {
		t.Fatalf("expected 1 active run, got %d", r.ActiveRuns())
	}

	j := newJanitorWithIntervals(r, 10*time.Millisecond, 5*time.Millisecond, 0)
	j.Start()
	defer j.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if r.ActiveRuns() == 0 {
			if _, err := r.State(state.SimRunID); !errors.Is(err, ErrRunNotFound) {
				t.Fatalf("evicted run still resolvable: %v", err)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("janitor never evicted the finished run")
}

func TestJanitor_KeepsRunsInsideRetention(t *testing.T) {
	fs := earthquakeFixture()
	r := newTestRunner(fs, 0)

	state, err := r.Start("inst-eq")
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, r, state.SimRunID)

	j := newJanitorWithIntervals(r, time.Hour, time.Millisecond, 0)
	swept := make(chan struct{}, 1)
	j.sweepHook = func() {
		select {
		case swept <- struct{}{}:
		default:
		}
	}
	j.Start()
	defer j.Stop()

	select {
	case <-swept:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep never ran")
	}
	if r.ActiveRuns() != 1 {
		t.Fatal("janitor evicted a run inside the retention window")
	}

	// Stop is idempotent.
	j.Stop()
	j.Stop()
}
