package scenario

import "sort"

// Spec binds a UI scenario key to its template and the anchor type the
// hazard requires. The mapping is hard-coded and versioned with the code;
// templates themselves live in the store and arrive via CSV import.
type Spec struct {
	Key            string
	TemplateID     string
	HazardType     string
	RequiredAnchor string // empty when the hazard needs no anchor
}

var catalog = map[string]Spec{
	"earthquake":   {Key: "earthquake", TemplateID: "EQ_030", HazardType: "EARTHQUAKE", RequiredAnchor: "EPICENTER"},
	"cyber_attack": {Key: "cyber_attack", TemplateID: "CY_020", HazardType: "CYBER"},
	"tsunami":      {Key: "tsunami", TemplateID: "TS_025", HazardType: "TSUNAMI", RequiredAnchor: "IMPACT_CENTER"},
	"pandemic":     {Key: "pandemic", TemplateID: "PD_040", HazardType: "PANDEMIC"},
	"severe_storm": {Key: "severe_storm", TemplateID: "SS_020", HazardType: "SEVERE_STORM", RequiredAnchor: "FLOOD_POCKET"},
	"wildfire":     {Key: "wildfire", TemplateID: "WF_020", HazardType: "WILDFIRE", RequiredAnchor: "FIRE_ORIGIN"},
}

// Lookup resolves a UI scenario key.
func Lookup(key string) (Spec, bool) {
	s, ok := catalog[key]
	return s, ok
}

// Keys returns the known scenario keys, sorted. Used in error details.
func Keys() []string {
	keys := make([]string, 0, len(catalog))
	for k := range catalog {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
