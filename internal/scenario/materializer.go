// Package scenario converts hazard templates plus operator anchors plus a
// city's asset inventory into the materialized event table of a scenario
// instance. Materialization is deterministic: the instance seed fully
// determines jitter and recovery draws.
package scenario

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cascadia-sim/cascadia/internal/model"
)

var ErrUnknownScenario = errors.New("unknown scenario key")

// MissingAnchorError reports the anchor type the hazard requires but the
// prepare request did not supply.
type MissingAnchorError struct {
	Required string
}

func (e *MissingAnchorError) Error() string {
	return fmt.Sprintf("scenario requires an anchor of type %s", e.Required)
}

// TemplateNotFoundError reports a mapped template that is absent from the
// catalog (or inactive). This means rules were never imported.
type TemplateNotFoundError struct {
	TemplateID string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("template %s not found or inactive", e.TemplateID)
}

// AnchorInput is one operator-placed anchor in a prepare request.
type AnchorInput struct {
	Type string  `json:"type"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// PrepareInput is a validated prepare request. Numeric fields outside their
// documented bounds are clamped, not rejected.
type PrepareInput struct {
	City          string
	Scenario      string
	DurationHours int
	TickMinutes   int
	RepairCrews   int
	Anchors       []AnchorInput
	// Seed overrides the derived seed when set. Used for reproducibility
	// experiments; normal callers leave it nil.
	Seed *int64
}

// PrepareResult summarizes a freshly materialized instance.
type PrepareResult struct {
	InstanceID      string   `json:"scenario_instance_id"`
	TemplateID      string   `json:"template_id"`
	HazardType      string   `json:"hazard_type"`
	City            string   `json:"city"`
	RuleCount       int      `json:"rule_count"`
	EventsCreated   int      `json:"events_created"`
	RecoveriesAdded int      `json:"recoveries_added"`
	AssetsUsed      int      `json:"assets_used"`
	TotalTicks      int      `json:"total_ticks"`
	Seed            int64    `json:"seed"`
	Status          string   `json:"status"`
	Warnings        []string `json:"warnings,omitempty"`
}

// CatalogReader is the slice of the catalog repo the materializer consumes.
type CatalogReader interface {
	GetTemplate(templateID string) (*model.Template, error)
	ListRulesByTemplate(templateID string) ([]model.Rule, error)
}

// AssetLister supplies the city inventory.
type AssetLister interface {
	ListAssetsByCity(city string) ([]model.Asset, error)
}

// InstanceWriter persists the materialized instance atomically.
type InstanceWriter interface {
	CreateInstance(inst model.Instance, anchors []model.Anchor, events []model.Event) error
}

// Materializer expands template rules into an instance's event table.
type Materializer struct {
	catalog   CatalogReader
	assets    AssetLister
	instances InstanceWriter
}

func NewMaterializer(catalog CatalogReader, assets AssetLister, instances InstanceWriter) *Materializer {
	return &Materializer{catalog: catalog, assets: assets, instances: instances}
}

// Prepare materializes one instance: resolves the scenario mapping, checks
// the required anchor, expands every enabled rule into events, injects
// recovery events, and persists everything in a single transaction.
func (m *Materializer) Prepare(in PrepareInput) (*PrepareResult, error) {
	spec, ok := Lookup(in.Scenario)
	if !ok {
		return nil, ErrUnknownScenario
	}

	duration := model.ClampInt(in.DurationHours, model.MinDurationHours, model.MaxDurationHours)
	tickMinutes := model.ClampInt(in.TickMinutes, model.MinTickMinutes, model.MaxTickMinutes)
	crews := model.ClampInt(in.RepairCrews, model.MinRepairCrews, model.MaxRepairCrews)

	if spec.RequiredAnchor != "" && firstAnchor(in.Anchors, spec.RequiredAnchor) == nil {
		return nil, &MissingAnchorError{Required: spec.RequiredAnchor}
	}

	tpl, err := m.catalog.GetTemplate(spec.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", spec.TemplateID, err)
	}
	if tpl == nil || !tpl.IsActive {
		return nil, &TemplateNotFoundError{TemplateID: spec.TemplateID}
	}

	allRules, err := m.catalog.ListRulesByTemplate(spec.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("load rules for %s: %w", spec.TemplateID, err)
	}
	var rules []model.Rule
	for _, r := range allRules {
		if r.Enabled {
			rules = append(rules, r)
		}
	}

	inventory, err := m.assets.ListAssetsByCity(in.City)
	if err != nil {
		return nil, fmt.Errorf("load inventory for %s: %w", in.City, err)
	}

	totalTicks := model.TotalTicks(duration, tickMinutes)

	seed := DeriveSeed(in.City, spec.Key, tpl.TemplateID, tpl.Version, duration, tickMinutes, in.Anchors)
	if in.Seed != nil {
		seed = *in.Seed
	}
	rng := newRand(seed)

	primary, warnings, assetsUsed := expandRules(rules, inventory, in.Anchors, totalTicks, rng)
	recoveries := injectRecoveries(primary, totalTicks, rng)

	instanceID := uuid.NewString()
	inst := model.Instance{
		ID:            instanceID,
		City:          in.City,
		Scenario:      spec.Key,
		HazardType:    spec.HazardType,
		TemplateID:    tpl.TemplateID,
		DurationHours: duration,
		TickMinutes:   tickMinutes,
		RepairCrews:   crews,
		Seed:          seed,
		Status:        model.InstanceStatusPrepared,
		CreatedAtNs:   time.Now().UnixNano(),
	}
	anchors := make([]model.Anchor, len(in.Anchors))
	for i, a := range in.Anchors {
		anchors[i] = model.Anchor{InstanceID: instanceID, AnchorType: a.Type, Lat: a.Lat, Lng: a.Lng}
	}

	all := make([]model.Event, 0, len(primary)+len(recoveries))
	all = append(all, primary...)
	all = append(all, recoveries...)
	for i := range all {
		all[i].InstanceID = instanceID
	}

	if err := m.instances.CreateInstance(inst, anchors, all); err != nil {
		return nil, fmt.Errorf("persist instance %s: %w", instanceID, err)
	}

	return &PrepareResult{
		InstanceID:      instanceID,
		TemplateID:      tpl.TemplateID,
		HazardType:      spec.HazardType,
		City:            in.City,
		RuleCount:       len(rules),
		EventsCreated:   len(primary),
		RecoveriesAdded: len(recoveries),
		AssetsUsed:      assetsUsed,
		TotalTicks:      totalTicks,
		Seed:            seed,
		Status:          model.InstanceStatusPrepared,
		Warnings:        warnings,
	}, nil
}

// expandRules walks the template rules in (time_pct asc, priority desc,
// rule_id asc) order and emits one event per selected asset. Assets already
// referenced by an earlier rule are skipped unless the rule allows reuse;
// the skip does not backfill, so a rule can emit fewer than k events.
func expandRules(rules []model.Rule, inventory []model.Asset, anchors []AnchorInput, totalTicks int, rng *rand.Rand) (events []model.Event, warnings []string, assetsUsed int) {
	ordered := make([]model.Rule, len(rules))
	copy(ordered, rules)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.TimePct != b.TimePct {
			return a.TimePct < b.TimePct
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.RuleID < b.RuleID
	})

	seen := make(map[string]bool)

	for _, rule := range ordered {
		pool := orderPool(candidatePool(inventory, rule), rule, anchors)
		if len(pool) == 0 {
			warnings = append(warnings, fmt.Sprintf("rule %s matched no assets", rule.RuleID))
			continue
		}

		k := selectionCount(rule, len(pool))
		baseTick := model.TickForPct(rule.TimePct, totalTicks)

		for _, asset := range pool[:k] {
			if !rule.AllowReuseAsset && seen[asset.ID] {
				continue
			}

			tick := baseTick
			if rule.TimeJitterPct != nil && *rule.TimeJitterPct > 0 {
				tick = jitterTick(baseTick, *rule.TimeJitterPct, totalTicks, rng)
			}

			events = append(events, model.Event{
				TickIndex:         tick,
				EventKind:         strings.ToUpper(rule.EventKind),
				AssetID:           asset.ID,
				PerformancePct:    model.ClampFloat(rule.PerformancePct, 0, 100),
				RepairTimeMinutes: repairMinutes(rule),
				SourceRuleID:      rule.RuleID,
			})
			seen[asset.ID] = true
		}
	}

	return events, warnings, len(seen)
}

// jitterTick shifts a base tick by a uniform draw in ±jitterPct percent of
// the run length. One draw per emitted event.
func jitterTick(baseTick int, jitterPct float64, totalTicks int, rng *rand.Rand) int {
	offsetPct := (rng.Float64()*2 - 1) * jitterPct
	delta := int(math.Round(offsetPct / 100.0 * float64(totalTicks)))
	return model.ClampInt(baseTick+delta, 0, totalTicks-1)
}

func repairMinutes(r model.Rule) *int {
	switch {
	case r.RepairTimeMin != nil && r.RepairTimeMax != nil:
		v := (*r.RepairTimeMin + *r.RepairTimeMax) / 2
		return &v
	case r.RepairTimeMin != nil:
		v := *r.RepairTimeMin
		return &v
	case r.RepairTimeMax != nil:
		v := *r.RepairTimeMax
		return &v
	default:
		return nil
	}
}

// injectRecoveries schedules a REPAIR_PARTIAL and a REPAIR_FULL after every
// primary event that leaves an asset below 100%. Draw order is fixed
// (partial delay, full delay, partial performance per event), so a given
// seed always yields the same recoveries. A candidate is dropped when it
// would land at or before the originating tick, would not improve the
// asset, or collides with an existing (asset, tick, performance) entry.
func injectRecoveries(primary []model.Event, totalTicks int, rng *rand.Rand) []model.Event {
	taken := make(map[string]bool, len(primary)*3)
	for _, e := range primary {
		taken[eventSlotKey(e.AssetID, e.TickIndex, e.PerformancePct)] = true
	}

	var out []model.Event
	for _, e := range primary {
		if e.PerformancePct >= 100 {
			continue
		}

		// Delays in ticks: partial [2,10], full [8,40]. Boost in points: [20,45].
		partialDelay := 2 + rng.IntN(9)
		fullDelay := 8 + rng.IntN(33)
		perfBoost := 20 + rng.IntN(26)

		partialTick := model.ClampInt(e.TickIndex+partialDelay, 0, totalTicks-1)
		partialPerf := math.Max(50, math.Min(95, e.PerformancePct+float64(perfBoost)))
		if partialTick > e.TickIndex && partialPerf > e.PerformancePct {
			key := eventSlotKey(e.AssetID, partialTick, partialPerf)
			if !taken[key] {
				taken[key] = true
				out = append(out, model.Event{
					TickIndex:      partialTick,
					EventKind:      model.EventRepairPartial,
					AssetID:        e.AssetID,
					PerformancePct: partialPerf,
				})
			}
		}

		fullTick := model.ClampInt(e.TickIndex+fullDelay, 0, totalTicks-1)
		if fullTick > e.TickIndex {
			key := eventSlotKey(e.AssetID, fullTick, 100)
			if !taken[key] {
				taken[key] = true
				out = append(out, model.Event{
					TickIndex:      fullTick,
					EventKind:      model.EventRepairFull,
					AssetID:        e.AssetID,
					PerformancePct: 100,
				})
			}
		}
	}
	return out
}

func eventSlotKey(assetID string, tick int, perf float64) string {
	return fmt.Sprintf("%s|%d|%g", assetID, tick, perf)
}
