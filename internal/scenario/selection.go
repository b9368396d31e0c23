package scenario

import (
	"math"
	"sort"
	"strings"

	"github.com/cascadia-sim/cascadia/internal/geo"
	"github.com/cascadia-sim/cascadia/internal/model"
)

// candidatePool filters the city inventory down to assets matching the
// rule's sector and subtype. Empty rule fields do not constrain.
func candidatePool(assets []model.Asset, r model.Rule) []model.Asset {
	var pool []model.Asset
	for _, a := range assets {
		if r.Sector != "" && a.Sector != r.Sector {
			continue
		}
		if r.Subtype != "" && a.Subtype != r.Subtype {
			continue
		}
		pool = append(pool, a)
	}
	return pool
}

// firstAnchor returns the first anchor with the given type, or nil.
func firstAnchor(anchors []AnchorInput, anchorType string) *AnchorInput {
	if anchorType == "" {
		return nil
	}
	for i := range anchors {
		if anchors[i].Type == anchorType {
			return &anchors[i]
		}
	}
	return nil
}

// orderPool applies the rule's selection scope to a candidate pool and
// returns the pool filtered and deterministically ordered:
//
//   - GEO_RADIUS: keep assets within geo_param_1_km of the rule's anchor,
//     nearest first. Without an anchor the pool is left unfiltered in id
//     order; with an anchor but no positive radius it is ordered by
//     distance and not cut.
//   - GRAPH_CENTRALITY: criticality descending. This is a stated proxy for
//     centrality, not a real graph measure.
//   - GEO_SCATTER and anything unrecognized: id ascending.
//
// Ties always break on id ascending so the result never depends on map or
// host ordering.
func orderPool(pool []model.Asset, r model.Rule, anchors []AnchorInput) []model.Asset {
	out := make([]model.Asset, len(pool))
	copy(out, pool)

	switch strings.ToUpper(r.SelectionScope) {
	case model.ScopeGeoRadius:
		anchor := firstAnchor(anchors, r.GeoAnchor)
		if anchor == nil {
			sortByID(out)
			return out
		}
		dist := make(map[string]float64, len(out))
		for _, a := range out {
			dist[a.ID] = geo.DistanceKm(anchor.Lat, anchor.Lng, a.Lat, a.Lng)
		}
		if r.GeoParam1Km != nil && *r.GeoParam1Km > 0 {
			radius := *r.GeoParam1Km
			kept := out[:0]
			for _, a := range out {
				if dist[a.ID] <= radius {
					kept = append(kept, a)
				}
			}
			out = kept
		}
		sort.Slice(out, func(i, j int) bool {
			di, dj := dist[out[i].ID], dist[out[j].ID]
			if di != dj {
				return di < dj
			}
			return out[i].ID < out[j].ID
		})

	case model.ScopeGraphCentrality:
		sort.Slice(out, func(i, j int) bool {
			if out[i].Criticality != out[j].Criticality {
				return out[i].Criticality > out[j].Criticality
			}
			return out[i].ID < out[j].ID
		})

	default: // GEO_SCATTER and unknown scopes
		sortByID(out)
	}
	return out
}

func sortByID(assets []model.Asset) {
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })
}

// selectionCount derives k from the rule's target mode against a pool of
// size n. COUNT truncates the stored value; PCT rounds up so that any
// positive percentage of a non-empty pool picks at least one asset.
func selectionCount(r model.Rule, n int) int {
	switch strings.ToUpper(r.TargetMode) {
	case model.TargetModeCount:
		return model.ClampInt(int(r.TargetValue), 0, n)
	case model.TargetModePct:
		return model.ClampInt(int(math.Ceil(r.TargetValue/100.0*float64(n))), 0, n)
	default:
		return 0
	}
}
