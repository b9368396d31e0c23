// Package ingest loads scenario template rules from CSV files and keeps the
// rule catalog in sync with a template directory.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cascadia-sim/cascadia/internal/model"
)

// RequiredHeader is the exact column set a rule CSV must carry, in this order.
var RequiredHeader = []string{
	"template_id", "template_name", "hazard_type", "rule_id", "event_kind",
	"time_pct", "time_jitter_pct", "selection_scope", "sector", "subtype",
	"target_mode", "target_value", "allow_reuse_asset", "performance_pct",
	"repair_time_min", "repair_time_max", "geo_anchor", "geo_param_1_km",
	"priority", "notes",
}

// TemplateRules couples one template with the rules a CSV defines for it.
// A single file may carry several templates; groups keep first-seen order.
type TemplateRules struct {
	Template model.Template
	Rules    []model.Rule
}

// ParseRules reads a rule CSV. The header must match RequiredHeader exactly;
// empty numeric cells become nil, booleans accept 0/1, true/false, yes/no,
// on/off. Imported rules are always enabled and carry template version 1
// (the store preserves an existing version on re-import).
func ParseRules(r io.Reader) ([]TemplateRules, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	groups := make(map[string]*TemplateRules)
	var order []string

	for row := 2; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}

		rule, tpl, err := parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}

		g, ok := groups[tpl.TemplateID]
		if !ok {
			g = &TemplateRules{Template: tpl}
			groups[tpl.TemplateID] = g
			order = append(order, tpl.TemplateID)
		}
		g.Rules = append(g.Rules, rule)
	}

	out := make([]TemplateRules, 0, len(order))
	for _, id := range order {
		out = append(out, *groups[id])
	}
	return out, nil
}

func checkHeader(header []string) error {
	if len(header) != len(RequiredHeader) {
		return fmt.Errorf("header has %d columns, want %d (%s)",
			len(header), len(RequiredHeader), strings.Join(RequiredHeader, ", "))
	}
	for i, name := range header {
		if strings.ToLower(strings.TrimSpace(name)) != RequiredHeader[i] {
			return fmt.Errorf("header column %d is %q, want %q", i+1, strings.TrimSpace(name), RequiredHeader[i])
		}
	}
	return nil
}

// Column indexes into a validated record, matching RequiredHeader.
const (
	colTemplateID = iota
	colTemplateName
	colHazardType
	colRuleID
	colEventKind
	colTimePct
	colTimeJitterPct
	colSelectionScope
	colSector
	colSubtype
	colTargetMode
	colTargetValue
	colAllowReuse
	colPerformancePct
	colRepairTimeMin
	colRepairTimeMax
	colGeoAnchor
	colGeoParam1Km
	colPriority
	colNotes
)

func parseRow(rec []string) (model.Rule, model.Template, error) {
	tpl := model.Template{
		TemplateID: rec[colTemplateID],
		Name:       rec[colTemplateName],
		HazardType: strings.ToUpper(rec[colHazardType]),
		Version:    1,
		IsActive:   true,
	}
	if tpl.TemplateID == "" {
		return model.Rule{}, tpl, fmt.Errorf("template_id is empty")
	}
	if rec[colRuleID] == "" {
		return model.Rule{}, tpl, fmt.Errorf("rule_id is empty")
	}

	timePct, err := requireFloat("time_pct", rec[colTimePct])
	if err != nil {
		return model.Rule{}, tpl, err
	}
	targetValue, err := requireFloat("target_value", rec[colTargetValue])
	if err != nil {
		return model.Rule{}, tpl, err
	}
	perfPct, err := requireFloat("performance_pct", rec[colPerformancePct])
	if err != nil {
		return model.Rule{}, tpl, err
	}
	jitter, err := optionalFloat("time_jitter_pct", rec[colTimeJitterPct])
	if err != nil {
		return model.Rule{}, tpl, err
	}
	geoParam, err := optionalFloat("geo_param_1_km", rec[colGeoParam1Km])
	if err != nil {
		return model.Rule{}, tpl, err
	}
	repairMin, err := optionalInt("repair_time_min", rec[colRepairTimeMin])
	if err != nil {
		return model.Rule{}, tpl, err
	}
	repairMax, err := optionalInt("repair_time_max", rec[colRepairTimeMax])
	if err != nil {
		return model.Rule{}, tpl, err
	}
	allowReuse, err := parseBool(rec[colAllowReuse])
	if err != nil {
		return model.Rule{}, tpl, fmt.Errorf("allow_reuse_asset: %w", err)
	}
	priority := 0
	if rec[colPriority] != "" {
		priority, err = strconv.Atoi(rec[colPriority])
		if err != nil {
			return model.Rule{}, tpl, fmt.Errorf("priority: invalid integer %q", rec[colPriority])
		}
	}

	rule := model.Rule{
		RuleID:          rec[colRuleID],
		TemplateID:      tpl.TemplateID,
		EventKind:       strings.ToUpper(rec[colEventKind]),
		TimePct:         timePct,
		TimeJitterPct:   jitter,
		SelectionScope:  strings.ToUpper(rec[colSelectionScope]),
		Sector:          strings.ToLower(rec[colSector]),
		Subtype:         rec[colSubtype],
		TargetMode:      strings.ToUpper(rec[colTargetMode]),
		TargetValue:     targetValue,
		AllowReuseAsset: allowReuse,
		PerformancePct:  perfPct,
		RepairTimeMin:   repairMin,
		RepairTimeMax:   repairMax,
		GeoAnchor:       strings.ToUpper(rec[colGeoAnchor]),
		GeoParam1Km:     geoParam,
		Priority:        priority,
		Notes:           rec[colNotes],
		Enabled:         true,
	}
	return rule, tpl, nil
}

func requireFloat(name, s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("%s is empty", name)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", name, s)
	}
	return v, nil
}

func optionalFloat(name, s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid number %q", name, s)
	}
	return &v, nil
}

func optionalInt(name, s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid integer %q", name, s)
	}
	return &v, nil
}

// parseBool accepts the import formats 0/1, true/false, yes/no, on/off in
// any case. An empty cell is false.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "", "0", "false", "no", "off":
		return false, nil
	case "1", "true", "yes", "on":
		return true, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}
