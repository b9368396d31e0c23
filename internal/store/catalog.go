package store

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/cascadia-sim/cascadia/internal/model"
)

// CatalogRepo wraps the scenario template catalog: templates and their
// materialization rules.
type CatalogRepo struct {
	db *sql.DB
	mu sync.Mutex
}

func newCatalogRepo(db *sql.DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

// UpsertTemplate inserts or updates a template header. The stored version is
// preserved on update; it only moves when a caller bumps it explicitly.
func (r *CatalogRepo) UpsertTemplate(t model.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return upsertTemplateTx(r.db, t)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsertTemplateTx(e execer, t model.Template) error {
	_, err := e.Exec(`
		INSERT INTO scenario_templates (template_id, name, hazard_type, version, is_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(template_id) DO UPDATE SET
			name        = excluded.name,
			hazard_type = excluded.hazard_type,
			is_active   = excluded.is_active
	`, t.TemplateID, t.Name, t.HazardType, t.Version, boolToInt(t.IsActive))
	return err
}

// GetTemplate returns the template with the given id, or nil if absent.
func (r *CatalogRepo) GetTemplate(templateID string) (*model.Template, error) {
	row := r.db.QueryRow(
		"SELECT template_id, name, hazard_type, version, is_active FROM scenario_templates WHERE template_id = ?",
		templateID)
	var t model.Template
	var active int
	if err := row.Scan(&t.TemplateID, &t.Name, &t.HazardType, &t.Version, &active); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan template %s: %w", templateID, err)
	}
	t.IsActive = active != 0
	return &t, nil
}

// ListTemplates returns all templates ordered by template_id.
func (r *CatalogRepo) ListTemplates() ([]model.Template, error) {
	rows, err := r.db.Query(
		"SELECT template_id, name, hazard_type, version, is_active FROM scenario_templates ORDER BY template_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Template
	for rows.Next() {
		var t model.Template
		var active int
		if err := rows.Scan(&t.TemplateID, &t.Name, &t.HazardType, &t.Version, &active); err != nil {
			return nil, err
		}
		t.IsActive = active != 0
		result = append(result, t)
	}
	return result, rows.Err()
}

const ruleColumns = `rule_id, template_id, event_kind, time_pct, time_jitter_pct,
		selection_scope, sector, subtype, target_mode, target_value, allow_reuse_asset,
		performance_pct, repair_time_min, repair_time_max, geo_anchor, geo_param_1_km,
		priority, notes, enabled`

func scanRule(scan func(dest ...any) error) (model.Rule, error) {
	var r model.Rule
	var jitter, geoParam sql.NullFloat64
	var repairMin, repairMax sql.NullInt64
	var reuse, enabled int
	err := scan(&r.RuleID, &r.TemplateID, &r.EventKind, &r.TimePct, &jitter,
		&r.SelectionScope, &r.Sector, &r.Subtype, &r.TargetMode, &r.TargetValue, &reuse,
		&r.PerformancePct, &repairMin, &repairMax, &r.GeoAnchor, &geoParam,
		&r.Priority, &r.Notes, &enabled)
	if err != nil {
		return r, err
	}
	if jitter.Valid {
		v := jitter.Float64
		r.TimeJitterPct = &v
	}
	if repairMin.Valid {
		v := int(repairMin.Int64)
		r.RepairTimeMin = &v
	}
	if repairMax.Valid {
		v := int(repairMax.Int64)
		r.RepairTimeMax = &v
	}
	if geoParam.Valid {
		v := geoParam.Float64
		r.GeoParam1Km = &v
	}
	r.AllowReuseAsset = reuse != 0
	r.Enabled = enabled != 0
	return r, nil
}

// UpsertRule inserts or updates a rule by rule_id.
func (r *CatalogRepo) UpsertRule(rule model.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return upsertRuleTx(r.db, rule)
}

func upsertRuleTx(e execer, rule model.Rule) error {
	_, err := e.Exec(`
		INSERT INTO scenario_template_rules (
			rule_id, template_id, event_kind, time_pct, time_jitter_pct,
			selection_scope, sector, subtype, target_mode, target_value, allow_reuse_asset,
			performance_pct, repair_time_min, repair_time_max, geo_anchor, geo_param_1_km,
			priority, notes, enabled
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(rule_id) DO UPDATE SET
			template_id       = excluded.template_id,
			event_kind        = excluded.event_kind,
			time_pct          = excluded.time_pct,
			time_jitter_pct   = excluded.time_jitter_pct,
			selection_scope   = excluded.selection_scope,
			sector            = excluded.sector,
			subtype           = excluded.subtype,
			target_mode       = excluded.target_mode,
			target_value      = excluded.target_value,
			allow_reuse_asset = excluded.allow_reuse_asset,
			performance_pct   = excluded.performance_pct,
			repair_time_min   = excluded.repair_time_min,
			repair_time_max   = excluded.repair_time_max,
			geo_anchor        = excluded.geo_anchor,
			geo_param_1_km    = excluded.geo_param_1_km,
			priority          = excluded.priority,
			notes             = excluded.notes,
			enabled           = excluded.enabled
	`, rule.RuleID, rule.TemplateID, rule.EventKind, rule.TimePct, nullFloat(rule.TimeJitterPct),
		rule.SelectionScope, rule.Sector, rule.Subtype, rule.TargetMode, rule.TargetValue, boolToInt(rule.AllowReuseAsset),
		rule.PerformancePct, nullInt(rule.RepairTimeMin), nullInt(rule.RepairTimeMax), rule.GeoAnchor, nullFloat(rule.GeoParam1Km),
		rule.Priority, rule.Notes, boolToInt(rule.Enabled))
	return err
}

// ListRulesByTemplate returns all rules of a template ordered by rule_id,
// including disabled ones. Callers filter on Enabled.
func (r *CatalogRepo) ListRulesByTemplate(templateID string) ([]model.Rule, error) {
	rows, err := r.db.Query(
		"SELECT "+ruleColumns+" FROM scenario_template_rules WHERE template_id = ? ORDER BY rule_id",
		templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Rule
	for rows.Next() {
		rule, err := scanRule(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

// ImportTemplate upserts a template header and its rules in one transaction.
// A re-import of the same file is a no-op apart from refreshed values.
func (r *CatalogRepo) ImportTemplate(t model.Template, rules []model.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("import template: begin: %w", err)
	}
	defer tx.Rollback()

	if err := upsertTemplateTx(tx, t); err != nil {
		return fmt.Errorf("import template %s: %w", t.TemplateID, err)
	}
	for _, rule := range rules {
		if err := upsertRuleTx(tx, rule); err != nil {
			return fmt.Errorf("import template %s: rule %s: %w", t.TemplateID, rule.RuleID, err)
		}
	}

	return tx.Commit()
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
