package store

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/cascadia-sim/cascadia/internal/model"
)

// ScenarioRepo wraps materialized scenario state: instances, their anchors,
// and the precomputed event timeline.
type ScenarioRepo struct {
	db *sql.DB
	mu sync.Mutex
}

func newScenarioRepo(db *sql.DB) *ScenarioRepo {
	return &ScenarioRepo{db: db}
}

// CreateInstance persists an instance together with its anchors and the full
// materialized event list in a single transaction. Either everything lands or
// nothing does. Events colliding on (asset, tick, performance) are ignored;
// the unique index guarantees at-most-once semantics for injected recoveries.
func (r *ScenarioRepo) CreateInstance(inst model.Instance, anchors []model.Anchor, events []model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("create instance: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO scenario_instances (id, city, scenario, hazard_type, template_id,
			duration_hours, tick_minutes, repair_crews, seed, status, created_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inst.ID, inst.City, inst.Scenario, inst.HazardType, inst.TemplateID,
		inst.DurationHours, inst.TickMinutes, inst.RepairCrews, inst.Seed, inst.Status, inst.CreatedAtNs); err != nil {
		return fmt.Errorf("create instance %s: %w", inst.ID, err)
	}

	for _, a := range anchors {
		if _, err := tx.Exec(`
			INSERT INTO scenario_instance_anchors (instance_id, anchor_type, lat, lng)
			VALUES (?, ?, ?, ?)
		`, inst.ID, a.AnchorType, a.Lat, a.Lng); err != nil {
			return fmt.Errorf("create instance %s: anchor %s: %w", inst.ID, a.AnchorType, err)
		}
	}

	for _, e := range events {
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO scenario_events (instance_id, tick_index, event_kind,
				asset_id, performance_pct, repair_time_minutes, source_rule_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, inst.ID, e.TickIndex, e.EventKind, e.AssetID, e.PerformancePct,
			nullInt(e.RepairTimeMinutes), e.SourceRuleID); err != nil {
			return fmt.Errorf("create instance %s: event asset=%s tick=%d: %w", inst.ID, e.AssetID, e.TickIndex, err)
		}
	}

	return tx.Commit()
}

const instanceColumns = `id, city, scenario, hazard_type, template_id,
		duration_hours, tick_minutes, repair_crews, seed, status, created_at_ns`

func scanInstance(scan func(dest ...any) error) (model.Instance, error) {
	var inst model.Instance
	err := scan(&inst.ID, &inst.City, &inst.Scenario, &inst.HazardType, &inst.TemplateID,
		&inst.DurationHours, &inst.TickMinutes, &inst.RepairCrews, &inst.Seed, &inst.Status, &inst.CreatedAtNs)
	return inst, err
}

// GetInstance returns the instance with the given id, or nil if absent.
func (r *ScenarioRepo) GetInstance(id string) (*model.Instance, error) {
	row := r.db.QueryRow("SELECT "+instanceColumns+" FROM scenario_instances WHERE id = ?", id)
	inst, err := scanInstance(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan instance %s: %w", id, err)
	}
	return &inst, nil
}

// ListInstances returns instances newest-first, capped at limit
// (0 means no cap).
func (r *ScenarioRepo) ListInstances(limit int) ([]model.Instance, error) {
	q := "SELECT " + instanceColumns + " FROM scenario_instances ORDER BY created_at_ns DESC, id DESC"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Instance
	for rows.Next() {
		inst, err := scanInstance(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, inst)
	}
	return result, rows.Err()
}

// UpdateInstanceStatus moves an instance between lifecycle states.
func (r *ScenarioRepo) UpdateInstanceStatus(id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec("UPDATE scenario_instances SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update instance %s: no such instance", id)
	}
	return nil
}

// ListAnchors returns the anchors of an instance ordered by insertion.
func (r *ScenarioRepo) ListAnchors(instanceID string) ([]model.Anchor, error) {
	rows, err := r.db.Query(
		"SELECT id, instance_id, anchor_type, lat, lng FROM scenario_instance_anchors WHERE instance_id = ? ORDER BY id",
		instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Anchor
	for rows.Next() {
		var a model.Anchor
		if err := rows.Scan(&a.ID, &a.InstanceID, &a.AnchorType, &a.Lat, &a.Lng); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// ListEvents returns the full timeline of an instance ordered by
// (tick_index, id). The tick precompute walks this once, in order.
func (r *ScenarioRepo) ListEvents(instanceID string) ([]model.Event, error) {
	rows, err := r.db.Query(`
		SELECT id, instance_id, tick_index, event_kind, asset_id, performance_pct, repair_time_minutes, source_rule_id
		FROM scenario_events
		WHERE instance_id = ?
		ORDER BY tick_index, id
	`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Event
	for rows.Next() {
		var e model.Event
		var repair sql.NullInt64
		if err := rows.Scan(&e.ID, &e.InstanceID, &e.TickIndex, &e.EventKind,
			&e.AssetID, &e.PerformancePct, &repair, &e.SourceRuleID); err != nil {
			return nil, err
		}
		if repair.Valid {
			v := int(repair.Int64)
			e.RepairTimeMinutes = &v
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// CountEventsByKind aggregates an instance's timeline per event kind.
func (r *ScenarioRepo) CountEventsByKind(instanceID string) (map[string]int, error) {
	rows, err := r.db.Query(
		"SELECT event_kind, COUNT(*) FROM scenario_events WHERE instance_id = ? GROUP BY event_kind",
		instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}
