package engine

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cascadia-sim/cascadia/internal/geo"
	"github.com/cascadia-sim/cascadia/internal/model"
	"github.com/cascadia-sim/cascadia/internal/scenario"
)

// List limits for prepared-instance summaries.
const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// InstanceSummary is one row of the prepared-instance listing.
type InstanceSummary struct {
	model.Instance
	TotalTicks int `json:"total_ticks"`
}

// InstanceDetail is a prepared instance with its anchors and event stats.
type InstanceDetail struct {
	Instance    model.Instance `json:"instance"`
	TotalTicks  int            `json:"total_ticks"`
	Anchors     []model.Anchor `json:"anchors"`
	EventCounts map[string]int `json:"event_counts"`
	TotalEvents int            `json:"total_events"`
}

// TimelineBucket aggregates event counts over a contiguous tick range.
type TimelineBucket struct {
	FromTick int            `json:"from_tick"`
	ToTick   int            `json:"to_tick"`
	Counts   map[string]int `json:"counts"`
	Total    int            `json:"total"`
}

// Timeline is the bucketed event histogram of one prepared instance.
type Timeline struct {
	InstanceID  string           `json:"scenario_instance_id"`
	TotalTicks  int              `json:"total_ticks"`
	BucketTicks int              `json:"bucket_ticks"`
	Buckets     []TimelineBucket `json:"buckets"`
}

// Prepare validates and normalizes the request, runs the materializer, and
// maps its failures onto the service error taxonomy. Scenario keys are
// lower-cased and anchor types upper-cased so callers need not match the
// catalog's casing.
func (e *Engine) Prepare(in scenario.PrepareInput) (*scenario.PrepareResult, error) {
	in.City = strings.TrimSpace(in.City)
	in.Scenario = strings.ToLower(strings.TrimSpace(in.Scenario))
	if in.City == "" {
		return nil, badInput("city is required")
	}
	if in.Scenario == "" {
		return nil, badInput("scenario is required")
	}
	for i, a := range in.Anchors {
		typ := strings.ToUpper(strings.TrimSpace(a.Type))
		if typ == "" {
			return nil, badInput("anchor type is required")
		}
		if !geo.ValidCoord(a.Lat, a.Lng) {
			return nil, badInput(fmt.Sprintf("anchor %s has invalid coordinates (%g, %g)", typ, a.Lat, a.Lng))
		}
		in.Anchors[i].Type = typ
	}

	start := time.Now()
	res, err := e.mat.Prepare(in)
	if err != nil {
		var anchorErr *scenario.MissingAnchorError
		var tplErr *scenario.TemplateNotFoundError
		switch {
		case errors.Is(err, scenario.ErrUnknownScenario):
			return nil, unknownScenario("unknown scenario " + in.Scenario)
		case errors.As(err, &anchorErr):
			return nil, missingAnchor(anchorErr.Required)
		case errors.As(err, &tplErr):
			return nil, notFound(tplErr.Error())
		default:
			return nil, internal("prepare scenario", err)
		}
	}

	e.metrics.InstancePrepared(res.EventsCreated, res.RecoveriesAdded, time.Since(start))
	log.Printf("[engine] prepared instance %s: city=%q scenario=%s events=%d recoveries=%d ticks=%d seed=%d",
		res.InstanceID, in.City, in.Scenario, res.EventsCreated, res.RecoveriesAdded, res.TotalTicks, res.Seed)
	return res, nil
}

// ListPrepared returns instance summaries, newest first. limit <= 0 falls
// back to the default page size.
func (e *Engine) ListPrepared(limit int) ([]InstanceSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := e.store.Scenario.ListInstances(limit)
	if err != nil {
		return nil, internal("list instances", err)
	}
	out := make([]InstanceSummary, 0, len(rows))
	for _, inst := range rows {
		out = append(out, InstanceSummary{
			Instance:   inst,
			TotalTicks: model.TotalTicks(inst.DurationHours, inst.TickMinutes),
		})
	}
	return out, nil
}

// DescribePrepared returns one instance with anchors and per-kind event counts.
func (e *Engine) DescribePrepared(id string) (*InstanceDetail, error) {
	inst, err := e.loadInstance(id)
	if err != nil {
		return nil, err
	}
	anchors, err := e.store.Scenario.ListAnchors(inst.ID)
	if err != nil {
		return nil, internal("load anchors", err)
	}
	if anchors == nil {
		anchors = make([]model.Anchor, 0)
	}
	counts, err := e.store.Scenario.CountEventsByKind(inst.ID)
	if err != nil {
		return nil, internal("count events", err)
	}
	if counts == nil {
		counts = make(map[string]int)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return &InstanceDetail{
		Instance:    *inst,
		TotalTicks:  model.TotalTicks(inst.DurationHours, inst.TickMinutes),
		Anchors:     anchors,
		EventCounts: counts,
		TotalEvents: total,
	}, nil
}

// Timeline buckets the instance's events by tick range. bucketTicks <= 0
// means one bucket per tick; oversized buckets collapse to a single one.
func (e *Engine) Timeline(id string, bucketTicks int) (*Timeline, error) {
	inst, err := e.loadInstance(id)
	if err != nil {
		return nil, err
	}
	total := model.TotalTicks(inst.DurationHours, inst.TickMinutes)
	if bucketTicks <= 0 {
		bucketTicks = 1
	}
	if bucketTicks > total {
		bucketTicks = total
	}

	events, err := e.store.Scenario.ListEvents(inst.ID)
	if err != nil {
		return nil, internal("load events", err)
	}

	nBuckets := (total + bucketTicks - 1) / bucketTicks
	buckets := make([]TimelineBucket, nBuckets)
	for i := range buckets {
		from := i * bucketTicks
		to := from + bucketTicks - 1
		if to > total-1 {
			to = total - 1
		}
		buckets[i] = TimelineBucket{FromTick: from, ToTick: to, Counts: make(map[string]int)}
	}
	for _, ev := range events {
		if ev.TickIndex < 0 || ev.TickIndex >= total {
			continue
		}
		b := &buckets[ev.TickIndex/bucketTicks]
		b.Counts[ev.EventKind]++
		b.Total++
	}

	return &Timeline{
		InstanceID:  inst.ID,
		TotalTicks:  total,
		BucketTicks: bucketTicks,
		Buckets:     buckets,
	}, nil
}

func (e *Engine) loadInstance(id string) (*model.Instance, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, badInput("scenario instance id is required")
	}
	inst, err := e.store.Scenario.GetInstance(id)
	if err != nil {
		return nil, internal("load instance", err)
	}
	if inst == nil {
		return nil, notFound("scenario instance " + id + " not found")
	}
	return inst, nil
}
