package store

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/cascadia-sim/cascadia/internal/model"
)

// InventoryRepo wraps the asset inventory tables: assets, dependencies,
// operational state. All writes are serialized by an internal mutex.
type InventoryRepo struct {
	db *sql.DB
	mu sync.Mutex
}

func newInventoryRepo(db *sql.DB) *InventoryRepo {
	return &InventoryRepo{db: db}
}

const assetColumns = "id, name, sector, subtype, city, lat, lng, criticality, metadata_json, created_at_ns"

func scanAsset(scan func(dest ...any) error) (model.Asset, error) {
	var a model.Asset
	err := scan(&a.ID, &a.Name, &a.Sector, &a.Subtype, &a.City,
		&a.Lat, &a.Lng, &a.Criticality, &a.MetadataJSON, &a.CreatedAtNs)
	return a, err
}

// UpsertAsset inserts or updates an asset by ID.
// On update, created_at_ns is preserved.
func (r *InventoryRepo) UpsertAsset(a model.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO assets (id, name, sector, subtype, city, lat, lng, criticality, metadata_json, created_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name          = excluded.name,
			sector        = excluded.sector,
			subtype       = excluded.subtype,
			city          = excluded.city,
			lat           = excluded.lat,
			lng           = excluded.lng,
			criticality   = excluded.criticality,
			metadata_json = excluded.metadata_json
	`, a.ID, a.Name, a.Sector, a.Subtype, a.City, a.Lat, a.Lng, a.Criticality, a.MetadataJSON, a.CreatedAtNs)
	return err
}

// GetAsset returns the asset with the given id, or nil if absent.
func (r *InventoryRepo) GetAsset(id string) (*model.Asset, error) {
	row := r.db.QueryRow("SELECT "+assetColumns+" FROM assets WHERE id = ?", id)
	a, err := scanAsset(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan asset %s: %w", id, err)
	}
	return &a, nil
}

// GetAssets resolves a batch of asset ids in one query. Missing ids are
// simply absent from the result; order follows id ascending.
func (r *InventoryRepo) GetAssets(ids []string) ([]model.Asset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.Query(
		"SELECT "+assetColumns+" FROM assets WHERE id IN ("+placeholders+") ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Asset
	for rows.Next() {
		a, err := scanAsset(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// ListAssetsByCity returns all assets of a city ordered by id ascending.
// The stable order is what scope selection determinism builds on.
func (r *InventoryRepo) ListAssetsByCity(city string) ([]model.Asset, error) {
	rows, err := r.db.Query("SELECT "+assetColumns+" FROM assets WHERE city = ? ORDER BY id", city)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Asset
	for rows.Next() {
		a, err := scanAsset(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// DeleteAsset removes an asset; dependencies, state, and events cascade.
func (r *InventoryRepo) DeleteAsset(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec("DELETE FROM assets WHERE id = ?", id)
	return err
}

// UpsertDependency inserts or updates an edge keyed by
// (provider, consumer, dependency_type).
func (r *InventoryRepo) UpsertDependency(d model.Dependency) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO asset_dependencies (provider_asset_id, consumer_asset_id, dependency_type, priority, is_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(provider_asset_id, consumer_asset_id, dependency_type) DO UPDATE SET
			priority  = excluded.priority,
			is_active = excluded.is_active
	`, d.ProviderAssetID, d.ConsumerAssetID, d.DependencyType, d.Priority, boolToInt(d.IsActive))
	return err
}

const dependencyColumns = "id, provider_asset_id, consumer_asset_id, dependency_type, priority, is_active"

func scanDependency(scan func(dest ...any) error) (model.Dependency, error) {
	var d model.Dependency
	var active int
	err := scan(&d.ID, &d.ProviderAssetID, &d.ConsumerAssetID, &d.DependencyType, &d.Priority, &active)
	d.IsActive = active != 0
	return d, err
}

// ListActiveDependencies returns every active edge, ordered by id ascending.
// This is the full-graph snapshot the chain resolver traverses.
func (r *InventoryRepo) ListActiveDependencies() ([]model.Dependency, error) {
	rows, err := r.db.Query(
		"SELECT " + dependencyColumns + " FROM asset_dependencies WHERE is_active = 1 ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Dependency
	for rows.Next() {
		d, err := scanDependency(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// ListDependenciesByCity returns all edges (active or not) whose endpoints
// both belong to the city, ordered by id ascending.
func (r *InventoryRepo) ListDependenciesByCity(city string) ([]model.Dependency, error) {
	rows, err := r.db.Query(`
		SELECT d.id, d.provider_asset_id, d.consumer_asset_id, d.dependency_type, d.priority, d.is_active
		FROM asset_dependencies d
		JOIN assets p ON p.id = d.provider_asset_id
		JOIN assets c ON c.id = d.consumer_asset_id
		WHERE p.city = ? AND c.city = ?
		ORDER BY d.id
	`, city, city)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Dependency
	for rows.Next() {
		d, err := scanDependency(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// ImportCity upserts a whole city bundle (assets then dependencies) in one
// transaction. Dependencies referencing unknown assets fail the transaction
// via the foreign keys.
func (r *InventoryRepo) ImportCity(assets []model.Asset, deps []model.Dependency) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("import city: begin: %w", err)
	}
	defer tx.Rollback()

	for _, a := range assets {
		if _, err := tx.Exec(`
			INSERT INTO assets (id, name, sector, subtype, city, lat, lng, criticality, metadata_json, created_at_ns)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name          = excluded.name,
				sector        = excluded.sector,
				subtype       = excluded.subtype,
				city          = excluded.city,
				lat           = excluded.lat,
				lng           = excluded.lng,
				criticality   = excluded.criticality,
				metadata_json = excluded.metadata_json
		`, a.ID, a.Name, a.Sector, a.Subtype, a.City, a.Lat, a.Lng, a.Criticality, a.MetadataJSON, a.CreatedAtNs); err != nil {
			return fmt.Errorf("import city: asset %s: %w", a.ID, err)
		}
	}
	for _, d := range deps {
		if _, err := tx.Exec(`
			INSERT INTO asset_dependencies (provider_asset_id, consumer_asset_id, dependency_type, priority, is_active)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(provider_asset_id, consumer_asset_id, dependency_type) DO UPDATE SET
				priority  = excluded.priority,
				is_active = excluded.is_active
		`, d.ProviderAssetID, d.ConsumerAssetID, d.DependencyType, d.Priority, boolToInt(d.IsActive)); err != nil {
			return fmt.Errorf("import city: dependency %s->%s: %w", d.ProviderAssetID, d.ConsumerAssetID, err)
		}
	}

	return tx.Commit()
}

// UpsertOperationalState records the last discrete status of an asset.
func (r *InventoryRepo) UpsertOperationalState(assetID, status string, updatedAtNs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO asset_operational_state (asset_id, status, updated_at_ns)
		VALUES (?, ?, ?)
		ON CONFLICT(asset_id) DO UPDATE SET
			status        = excluded.status,
			updated_at_ns = excluded.updated_at_ns
	`, assetID, status, updatedAtNs)
	return err
}

// GetOperationalState returns the stored status of an asset, or nil if none
// was recorded yet.
func (r *InventoryRepo) GetOperationalState(assetID string) (*model.OperationalState, error) {
	row := r.db.QueryRow(
		"SELECT asset_id, status, updated_at_ns FROM asset_operational_state WHERE asset_id = ?", assetID)
	var s model.OperationalState
	if err := row.Scan(&s.AssetID, &s.Status, &s.UpdatedAtNs); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan operational state %s: %w", assetID, err)
	}
	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
