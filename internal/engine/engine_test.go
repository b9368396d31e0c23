package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/cascadia-sim/cascadia/internal/graph"
	"github.com/cascadia-sim/cascadia/internal/model"
	"github.com/cascadia-sim/cascadia/internal/scenario"
	"github.com/cascadia-sim/cascadia/internal/sim"
	"github.com/cascadia-sim/cascadia/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	st, closer, err := store.Bootstrap(t.TempDir())
	if err != nil {
		t.Fatalf("bootstrap store: %v", err)
	}
	t.Cleanup(func() { closer.Close() })

	snapshots := graph.NewSnapshotCache(st.Inventory, time.Minute)
	t.Cleanup(snapshots.Close)
	resolver := graph.NewResolver(st.Inventory, snapshots)
	mat := scenario.NewMaterializer(st.Catalog, st.Inventory, st.Scenario)
	runner := sim.NewRunner(st.Scenario, st.Inventory, st.Inventory, nil, 0)
	return New(st, mat, runner, resolver, nil, 5), st
}

func floatPtr(v float64) *float64 { return &v }

// seedJerusalem loads a small city inventory, one power dependency, and the
// earthquake template used across the engine tests.
func seedJerusalem(t *testing.T, st *store.Store) {
	t.Helper()
	assets := []model.Asset{
		{ID: "elec-sub-a", Name: "North Substation", Sector: model.SectorElectricity, Subtype: "substation", City: "Jerusalem", Lat: 31.78, Lng: 35.22, Criticality: 4},
		{ID: "elec-sub-b", Name: "South Substation", Sector: model.SectorElectricity, Subtype: "substation", City: "Jerusalem", Lat: 31.76, Lng: 35.23, Criticality: 3},
		{ID: "elec-sub-c", Name: "West Substation", Sector: model.SectorElectricity, Subtype: "substation", City: "Jerusalem", Lat: 31.79, Lng: 35.21, Criticality: 3},
		{ID: "elec-sub-d", Name: "Far North Substation", Sector: model.SectorElectricity, Subtype: "substation", City: "Jerusalem", Lat: 31.90, Lng: 35.22, Criticality: 3},
		{ID: "elec-sub-e", Name: "Far East Substation", Sector: model.SectorElectricity, Subtype: "substation", City: "Jerusalem", Lat: 31.77, Lng: 35.35, Criticality: 3},
		{ID: "water-pump-a", Name: "Central Pump", Sector: model.SectorWater, Subtype: "pumping_station", City: "Jerusalem", Lat: 31.78, Lng: 35.21, Criticality: 3},
	}
	deps := []model.Dependency{
		{ProviderAssetID: "elec-sub-a", ConsumerAssetID: "water-pump-a", DependencyType: "power", Priority: 1, IsActive: true},
	}
	if err := st.Inventory.ImportCity(assets, deps); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	tpl := model.Template{TemplateID: "EQ_030", Name: "Earthquake M6.5", HazardType: "EARTHQUAKE", Version: 1, IsActive: true}
	rules := []model.Rule{{
		RuleID: "EQ_030_R1", TemplateID: "EQ_030", EventKind: model.EventImpact,
		TimePct: 50, SelectionScope: model.ScopeGeoRadius,
		Sector: model.SectorElectricity, Subtype: "substation",
		TargetMode: model.TargetModePct, TargetValue: 100,
		PerformancePct: 0, GeoAnchor: "EPICENTER", GeoParam1Km: floatPtr(5),
		Priority: 1, Enabled: true,
	}}
	if err := st.Catalog.ImportTemplate(tpl, rules); err != nil {
		t.Fatalf("seed template: %v", err)
	}
}

func epicenter() []scenario.AnchorInput {
	return []scenario.AnchorInput{{Type: "EPICENTER", Lat: 31.77, Lng: 35.22}}
}

func prepareEarthquake(t *testing.T, e *Engine) *scenario.PrepareResult {
	t.Helper()
	res, err := e.Prepare(scenario.PrepareInput{
		City: "Jerusalem", Scenario: "earthquake",
		DurationHours: 24, TickMinutes: 60, RepairCrews: 2,
		Anchors: epicenter(),
	})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	return res
}

func assertKind(t *testing.T, err error, kind string) *ServiceError {
	t.Helper()
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("error type: got %T (%v), want *ServiceError", err, err)
	}
	if svcErr.Kind != kind {
		t.Fatalf("error kind: got %s (%s), want %s", svcErr.Kind, svcErr.Message, kind)
	}
	return svcErr
}

func waitRunDone(t *testing.T, e *Engine, runID string) sim.RunState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := e.RunState(runID)
		if err != nil {
			t.Fatal(err)
		}
		if st.Done {
			return st
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("run did not finish in time")
	return sim.RunState{}
}

func TestEngine_PrepareNormalizesInput(t *testing.T) {
	e, st := newTestEngine(t)
	seedJerusalem(t, st)

	// Mixed-case scenario and anchor type must resolve like the canonical form.
	res, err := e.Prepare(scenario.PrepareInput{
		City: "  Jerusalem  ", Scenario: "EarthQuake",
		DurationHours: 24, TickMinutes: 60,
		Anchors: []scenario.AnchorInput{{Type: "epicenter", Lat: 31.77, Lng: 35.22}},
	})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if res.EventsCreated != 3 || res.RecoveriesAdded != 6 || res.TotalTicks != 24 {
		t.Fatalf("unexpected summary: %+v", res)
	}
	if res.Status != model.InstanceStatusPrepared || res.TemplateID != "EQ_030" {
		t.Fatalf("unexpected summary: %+v", res)
	}

	inst, err := st.Scenario.GetInstance(res.InstanceID)
	if err != nil || inst == nil {
		t.Fatalf("instance not persisted: %v", err)
	}
	if inst.City != "Jerusalem" || inst.Scenario != "earthquake" {
		t.Fatalf("normalization not applied: %+v", inst)
	}
}

func TestEngine_PrepareErrors(t *testing.T) {
	e, st := newTestEngine(t)
	seedJerusalem(t, st)

	tests := []struct {
		name string
		in   scenario.PrepareInput
		kind string
	}{
		{"empty city", scenario.PrepareInput{Scenario: "earthquake"}, KindBadInput},
		{"empty scenario", scenario.PrepareInput{City: "Jerusalem"}, KindBadInput},
		{"anchor without type", scenario.PrepareInput{City: "Jerusalem", Scenario: "earthquake",
			Anchors: []scenario.AnchorInput{{Lat: 31.77, Lng: 35.22}}}, KindBadInput},
		{"anchor off the globe", scenario.PrepareInput{City: "Jerusalem", Scenario: "earthquake",
			Anchors: []scenario.AnchorInput{{Type: "EPICENTER", Lat: 95, Lng: 35.22}}}, KindBadInput},
		{"unknown scenario", scenario.PrepareInput{City: "Jerusalem", Scenario: "alien_invasion"}, KindUnknownScenario},
		{"missing required anchor", scenario.PrepareInput{City: "Jerusalem", Scenario: "earthquake",
			DurationHours: 24, TickMinutes: 60}, KindMissingAnchor},
		{"template not imported", scenario.PrepareInput{City: "Jerusalem", Scenario: "tsunami",
			DurationHours: 24, TickMinutes: 60,
			Anchors: []scenario.AnchorInput{{Type: "IMPACT_CENTER", Lat: 31.77, Lng: 35.22}}}, KindNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Prepare(tc.in)
			svcErr := assertKind(t, err, tc.kind)
			if tc.kind == KindMissingAnchor && svcErr.RequiredAnchor != "EPICENTER" {
				t.Fatalf("required_anchor: got %q, want EPICENTER", svcErr.RequiredAnchor)
			}
		})
	}
}

func TestEngine_ListAndDescribe(t *testing.T) {
	e, st := newTestEngine(t)
	seedJerusalem(t, st)

	first := prepareEarthquake(t, e)
	second := prepareEarthquake(t, e)

	list, err := e.ListPrepared(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(list))
	}
	if list[0].TotalTicks != 24 {
		t.Fatalf("total_ticks not derived: %+v", list[0])
	}
	// Newest first; both created in this test, the second one on top or tied.
	ids := map[string]bool{list[0].ID: true, list[1].ID: true}
	if !ids[first.InstanceID] || !ids[second.InstanceID] {
		t.Fatalf("listing missing an instance: %+v", list)
	}

	limited, err := e.ListPrepared(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Fatalf("limit ignored: got %d rows", len(limited))
	}

	detail, err := e.DescribePrepared(first.InstanceID)
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Anchors) != 1 || detail.Anchors[0].AnchorType != "EPICENTER" {
		t.Fatalf("anchors: %+v", detail.Anchors)
	}
	wantCounts := map[string]int{
		model.EventImpact:        3,
		model.EventRepairPartial: 3,
		model.EventRepairFull:    3,
	}
	for kind, want := range wantCounts {
		if detail.EventCounts[kind] != want {
			t.Fatalf("event counts: got %+v, want %+v", detail.EventCounts, wantCounts)
		}
	}
	if detail.TotalEvents != 9 || detail.TotalTicks != 24 {
		t.Fatalf("unexpected detail: %+v", detail)
	}

	_, err = e.DescribePrepared("ghost")
	assertKind(t, err, KindNotFound)
	_, err = e.DescribePrepared("  ")
	assertKind(t, err, KindBadInput)
}

func TestEngine_Timeline(t *testing.T) {
	e, st := newTestEngine(t)
	seedJerusalem(t, st)
	res := prepareEarthquake(t, e)

	tl, err := e.Timeline(res.InstanceID, 6)
	if err != nil {
		t.Fatal(err)
	}
	if tl.BucketTicks != 6 || len(tl.Buckets) != 4 {
		t.Fatalf("expected 4 buckets of 6 ticks, got %+v", tl)
	}
	if tl.Buckets[0].FromTick != 0 || tl.Buckets[0].ToTick != 5 {
		t.Fatalf("bucket 0 range: %+v", tl.Buckets[0])
	}
	if tl.Buckets[3].ToTick != 23 {
		t.Fatalf("last bucket must end at tick 23: %+v", tl.Buckets[3])
	}
	// Impacts land at tick 12, inside the third bucket. Nothing earlier.
	if tl.Buckets[0].Total != 0 || tl.Buckets[1].Total != 0 {
		t.Fatalf("events before the impact tick: %+v", tl.Buckets)
	}
	if tl.Buckets[2].Counts[model.EventImpact] != 3 {
		t.Fatalf("bucket 2 must hold the 3 impacts: %+v", tl.Buckets[2])
	}
	sum := 0
	for _, b := range tl.Buckets {
		sum += b.Total
	}
	if sum != 9 {
		t.Fatalf("expected 9 events across buckets, got %d", sum)
	}

	perTick, err := e.Timeline(res.InstanceID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if perTick.BucketTicks != 1 || len(perTick.Buckets) != 24 {
		t.Fatalf("bucket_ticks 0 must mean per-tick buckets: %+v", perTick)
	}

	collapsed, err := e.Timeline(res.InstanceID, 999)
	if err != nil {
		t.Fatal(err)
	}
	if len(collapsed.Buckets) != 1 || collapsed.Buckets[0].Total != 9 {
		t.Fatalf("oversized bucket must collapse to one: %+v", collapsed)
	}

	_, err = e.Timeline("ghost", 6)
	assertKind(t, err, KindNotFound)
}

func TestEngine_RunLifecycle(t *testing.T) {
	e, st := newTestEngine(t)
	seedJerusalem(t, st)
	res := prepareEarthquake(t, e)

	state, err := e.StartRun(res.InstanceID)
	if err != nil {
		t.Fatal(err)
	}
	if state.TotalTicks != 24 || state.ScenarioInstanceID != res.InstanceID {
		t.Fatalf("unexpected run state: %+v", state)
	}

	inst, err := st.Scenario.GetInstance(res.InstanceID)
	if err != nil || inst == nil {
		t.Fatalf("instance lookup: %v", err)
	}
	if inst.Status != model.InstanceStatusRunning {
		t.Fatalf("instance status: got %s, want RUNNING", inst.Status)
	}

	waitRunDone(t, e, state.SimRunID)

	tick, err := e.RunTick(state.SimRunID, 12)
	if err != nil {
		t.Fatal(err)
	}
	if tick.Pending || tick.Payload == nil {
		t.Fatalf("tick 12 must be available: %+v", tick)
	}
	if len(tick.Payload.AssetsChanged) != 3 {
		t.Fatalf("expected 3 changed assets, got %+v", tick.Payload.AssetsChanged)
	}
	if tick.Payload.Sectors[model.SectorElectricity] >= 100 {
		t.Fatalf("electricity must degrade at tick 12: %+v", tick.Payload.Sectors)
	}

	clamped, err := e.RunTick(state.SimRunID, 9999)
	if err != nil {
		t.Fatal(err)
	}
	if clamped.TickIndex != 23 {
		t.Fatalf("tick index must clamp to 23, got %d", clamped.TickIndex)
	}

	_, err = e.RunTick("ghost-run", 0)
	assertKind(t, err, KindNotFound)
	_, err = e.RunState("ghost-run")
	assertKind(t, err, KindNotFound)
	_, err = e.StartRun("ghost-instance")
	assertKind(t, err, KindNotFound)
	_, err = e.StartRun("")
	assertKind(t, err, KindBadInput)
}

func TestEngine_ChainAndGraph(t *testing.T) {
	e, st := newTestEngine(t)
	seedJerusalem(t, st)

	chain, err := e.Chain("water-pump-a", "upstream", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(chain.Nodes) != 2 || len(chain.Edges) != 1 {
		t.Fatalf("unexpected chain: %+v", chain)
	}
	if chain.Nodes[0].ID != "water-pump-a" {
		t.Fatalf("root must come first: %+v", chain.Nodes)
	}
	if chain.Edges[0].FromAssetID != "water-pump-a" || chain.Edges[0].ToAssetID != "elec-sub-a" {
		t.Fatalf("unexpected edge: %+v", chain.Edges[0])
	}
	if chain.MaxDepth != 5 {
		t.Fatalf("default max depth must apply, got %d", chain.MaxDepth)
	}

	_, err = e.Chain("ghost", "upstream", 3)
	assertKind(t, err, KindNotFound)
	_, err = e.Chain("water-pump-a", "sideways", 3)
	assertKind(t, err, KindBadInput)
	_, err = e.Chain("", "upstream", 3)
	assertKind(t, err, KindBadInput)

	view, err := e.Graph("Jerusalem")
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Nodes) != 6 || len(view.Links) != 1 {
		t.Fatalf("unexpected graph view: %d nodes, %d links", len(view.Nodes), len(view.Links))
	}

	_, err = e.Graph("  ")
	assertKind(t, err, KindBadInput)
}
