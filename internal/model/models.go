// Package model defines domain structs shared across the persistence layer
// and the scenario engine, plus the pure derivations over them (tick math,
// status thresholds).
package model

// Sectors an asset can belong to.
const (
	SectorElectricity     = "electricity"
	SectorWater           = "water"
	SectorGas             = "gas"
	SectorCommunication   = "communication"
	SectorFirstResponders = "first_responders"
)

// KnownSectors is the closed set of valid asset sectors.
var KnownSectors = map[string]bool{
	SectorElectricity:     true,
	SectorWater:           true,
	SectorGas:             true,
	SectorCommunication:   true,
	SectorFirstResponders: true,
}

// Stored operational statuses (asset_operational_state.status).
const (
	OpStatusActive   = "active"
	OpStatusPartial  = "partial"
	OpStatusInactive = "inactive"
)

// Run-facing discrete statuses derived from performance percentage.
const (
	StatusRecovered = "RECOVERED"
	StatusDegraded  = "DEGRADED"
	StatusFailed    = "FAILED"
)

// Event kinds. IMPACT and REPAIR come from template rules;
// REPAIR_PARTIAL and REPAIR_FULL are injected by the materializer.
const (
	EventImpact        = "IMPACT"
	EventRepair        = "REPAIR"
	EventRepairPartial = "REPAIR_PARTIAL"
	EventRepairFull    = "REPAIR_FULL"
)

// Rule selection scopes.
const (
	ScopeGeoRadius       = "GEO_RADIUS"
	ScopeGeoScatter      = "GEO_SCATTER"
	ScopeGraphCentrality = "GRAPH_CENTRALITY"
)

// Rule target modes.
const (
	TargetModePct   = "PCT"
	TargetModeCount = "COUNT"
)

// Instance statuses.
const (
	InstanceStatusPrepared = "PREPARED"
	InstanceStatusRunning  = "RUNNING"
)

// Asset is one geo-located infrastructure element.
type Asset struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Sector       string  `json:"sector"`
	Subtype      string  `json:"subtype"`
	City         string  `json:"city"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	Criticality  int     `json:"criticality"`
	MetadataJSON string  `json:"metadata_json"`
	CreatedAtNs  int64   `json:"created_at_ns"`
}

// Dependency is a directed provider→consumer edge in the asset graph.
// The edge set is a multigraph: several edges of different types may
// connect the same pair.
type Dependency struct {
	ID              int64  `json:"id"`
	ProviderAssetID string `json:"provider_asset_id"`
	ConsumerAssetID string `json:"consumer_asset_id"`
	DependencyType  string `json:"dependency_type"`
	Priority        int    `json:"priority"`
	IsActive        bool   `json:"is_active"`
}

// OperationalState is the last stored discrete status of an asset.
type OperationalState struct {
	AssetID     string `json:"asset_id"`
	Status      string `json:"status"`
	UpdatedAtNs int64  `json:"updated_at_ns"`
}

// Template is a named bundle of rules characterizing one hazard type.
type Template struct {
	TemplateID string `json:"template_id"`
	Name       string `json:"name"`
	HazardType string `json:"hazard_type"`
	Version    int    `json:"version"`
	IsActive   bool   `json:"is_active"`
}

// Rule is a parametric impact or repair specification inside a template.
// Optional numeric fields are pointers; nil means "not set".
type Rule struct {
	RuleID          string   `json:"rule_id"`
	TemplateID      string   `json:"template_id"`
	EventKind       string   `json:"event_kind"`
	TimePct         float64  `json:"time_pct"`
	TimeJitterPct   *float64 `json:"time_jitter_pct"`
	SelectionScope  string   `json:"selection_scope"`
	Sector          string   `json:"sector"`
	Subtype         string   `json:"subtype"`
	TargetMode      string   `json:"target_mode"`
	TargetValue     float64  `json:"target_value"`
	AllowReuseAsset bool     `json:"allow_reuse_asset"`
	PerformancePct  float64  `json:"performance_pct"`
	RepairTimeMin   *int     `json:"repair_time_min"`
	RepairTimeMax   *int     `json:"repair_time_max"`
	GeoAnchor       string   `json:"geo_anchor"`
	GeoParam1Km     *float64 `json:"geo_param_1_km"`
	Priority        int      `json:"priority"`
	Notes           string   `json:"notes"`
	Enabled         bool     `json:"enabled"`
}

// Instance is one prepared, city-bound materialization of a template.
type Instance struct {
	ID            string `json:"id"`
	City          string `json:"city"`
	Scenario      string `json:"scenario"`
	HazardType    string `json:"hazard_type"`
	TemplateID    string `json:"template_id"`
	DurationHours int    `json:"duration_hours"`
	TickMinutes   int    `json:"tick_minutes"`
	RepairCrews   int    `json:"repair_crews"`
	Seed          int64  `json:"seed"`
	Status        string `json:"status"`
	CreatedAtNs   int64  `json:"created_at_ns"`
}

// Anchor is an operator-placed geographic point scoping rule selection.
type Anchor struct {
	ID         int64   `json:"id"`
	InstanceID string  `json:"instance_id"`
	AnchorType string  `json:"anchor_type"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
}

// Event is one scheduled (tick, asset, performance) entry of an instance.
// Row id order within a tick is the in-tick application order.
type Event struct {
	ID                int64   `json:"id"`
	InstanceID        string  `json:"instance_id"`
	TickIndex         int     `json:"tick_index"`
	EventKind         string  `json:"event_kind"`
	AssetID           string  `json:"asset_id"`
	PerformancePct    float64 `json:"performance_pct"`
	RepairTimeMinutes *int    `json:"repair_time_minutes"`
	SourceRuleID      string  `json:"source_rule_id"`
}
