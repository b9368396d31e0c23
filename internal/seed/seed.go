// Package seed loads city inventory bundles (assets plus dependency edges)
// from YAML files into the store.
package seed

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cascadia-sim/cascadia/internal/geo"
	"github.com/cascadia-sim/cascadia/internal/model"
)

// Bundle is one city inventory file.
type Bundle struct {
	City         string             `yaml:"city"`
	Assets       []BundleAsset      `yaml:"assets"`
	Dependencies []BundleDependency `yaml:"dependencies"`
}

// BundleAsset is one asset entry. Name defaults to the id, criticality to 3.
type BundleAsset struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Sector      string         `yaml:"sector"`
	Subtype     string         `yaml:"subtype"`
	Lat         float64        `yaml:"lat"`
	Lng         float64        `yaml:"lng"`
	Criticality int            `yaml:"criticality"`
	Metadata    map[string]any `yaml:"metadata"`
}

// BundleDependency is one provider→consumer edge. Priority defaults to 1;
// edges are active unless is_active says otherwise.
type BundleDependency struct {
	Provider string `yaml:"provider"`
	Consumer string `yaml:"consumer"`
	Type     string `yaml:"type"`
	Priority int    `yaml:"priority"`
	IsActive *bool  `yaml:"is_active"`
}

// Parse unmarshals and validates a bundle.
func Parse(data []byte) (*Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("unmarshal city bundle: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Load reads and parses a bundle file.
func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Validate checks the bundle and reports every problem at once.
func (b *Bundle) Validate() error {
	var errs []string

	if strings.TrimSpace(b.City) == "" {
		errs = append(errs, "city is required")
	}
	if len(b.Assets) == 0 {
		errs = append(errs, "bundle has no assets")
	}

	ids := make(map[string]bool, len(b.Assets))
	for i, a := range b.Assets {
		where := fmt.Sprintf("asset %d (%s)", i+1, a.ID)
		if a.ID == "" {
			errs = append(errs, fmt.Sprintf("asset %d: id is required", i+1))
			continue
		}
		if ids[a.ID] {
			errs = append(errs, where+": duplicate id")
		}
		ids[a.ID] = true
		if !model.KnownSectors[a.Sector] {
			errs = append(errs, fmt.Sprintf("%s: unknown sector %q", where, a.Sector))
		}
		if !geo.ValidCoord(a.Lat, a.Lng) {
			errs = append(errs, fmt.Sprintf("%s: invalid coordinates (%g, %g)", where, a.Lat, a.Lng))
		}
	}

	for i, d := range b.Dependencies {
		where := fmt.Sprintf("dependency %d (%s→%s)", i+1, d.Provider, d.Consumer)
		if d.Provider == "" || d.Consumer == "" {
			errs = append(errs, fmt.Sprintf("dependency %d: provider and consumer are required", i+1))
			continue
		}
		if d.Type == "" {
			errs = append(errs, where+": type is required")
		}
		if !ids[d.Provider] {
			errs = append(errs, where+": provider is not an asset in this bundle")
		}
		if !ids[d.Consumer] {
			errs = append(errs, where+": consumer is not an asset in this bundle")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid city bundle:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// materialize converts the bundle into store rows, applying defaults.
func (b *Bundle) materialize(nowNs int64) ([]model.Asset, []model.Dependency, error) {
	assets := make([]model.Asset, 0, len(b.Assets))
	for _, a := range b.Assets {
		metadata := "{}"
		if len(a.Metadata) > 0 {
			raw, err := json.Marshal(a.Metadata)
			if err != nil {
				return nil, nil, fmt.Errorf("asset %s: encode metadata: %w", a.ID, err)
			}
			metadata = string(raw)
		}
		name := a.Name
		if name == "" {
			name = a.ID
		}
		criticality := a.Criticality
		if criticality == 0 {
			criticality = 3
		}
		assets = append(assets, model.Asset{
			ID:           a.ID,
			Name:         name,
			Sector:       a.Sector,
			Subtype:      a.Subtype,
			City:         b.City,
			Lat:          a.Lat,
			Lng:          a.Lng,
			Criticality:  model.ClampInt(criticality, model.MinCriticality, model.MaxCriticality),
			MetadataJSON: metadata,
			CreatedAtNs:  nowNs,
		})
	}

	deps := make([]model.Dependency, 0, len(b.Dependencies))
	for _, d := range b.Dependencies {
		priority := d.Priority
		if priority <= 0 {
			priority = 1
		}
		active := true
		if d.IsActive != nil {
			active = *d.IsActive
		}
		deps = append(deps, model.Dependency{
			ProviderAssetID: d.Provider,
			ConsumerAssetID: d.Consumer,
			DependencyType:  d.Type,
			Priority:        priority,
			IsActive:        active,
		})
	}
	return assets, deps, nil
}

// Stats counts what an Apply wrote.
type Stats struct {
	City         string `json:"city"`
	Assets       int    `json:"assets"`
	Dependencies int    `json:"dependencies"`
}

// Inventory is the store surface the importer writes through.
type Inventory interface {
	ImportCity(assets []model.Asset, deps []model.Dependency) error
}

// SnapshotInvalidator drops cached dependency snapshots after a write.
type SnapshotInvalidator interface {
	Invalidate()
}

// Importer applies validated bundles to the inventory.
type Importer struct {
	inventory Inventory
	snapshots SnapshotInvalidator // optional
}

func NewImporter(inventory Inventory, snapshots SnapshotInvalidator) *Importer {
	return &Importer{inventory: inventory, snapshots: snapshots}
}

// Apply upserts the bundle's assets and dependencies in one transaction and
// invalidates the dependency snapshot cache.
func (im *Importer) Apply(b *Bundle) (Stats, error) {
	assets, deps, err := b.materialize(time.Now().UnixNano())
	if err != nil {
		return Stats{}, err
	}
	if err := im.inventory.ImportCity(assets, deps); err != nil {
		return Stats{}, fmt.Errorf("import city %s: %w", b.City, err)
	}
	if im.snapshots != nil {
		im.snapshots.Invalidate()
	}
	log.Printf("[seed] imported city %s: %d asset(s), %d dependency(ies)",
		b.City, len(assets), len(deps))
	return Stats{City: b.City, Assets: len(assets), Dependencies: len(deps)}, nil
}

// ApplyFile loads, validates, and applies one bundle file.
func (im *Importer) ApplyFile(path string) (Stats, error) {
	b, err := Load(path)
	if err != nil {
		return Stats{}, err
	}
	return im.Apply(b)
}
