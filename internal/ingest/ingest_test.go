package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/cascadia-sim/cascadia/internal/store"
)

var csvHeader = strings.Join(RequiredHeader, ",")

var eqRows = []string{
	"EQ_030,Earthquake M6.5,EARTHQUAKE,EQ_030_R1,IMPACT,50,,GEO_RADIUS,electricity,substation,PCT,100,0,0,,,EPICENTER,5,1,substations near epicenter",
	"EQ_030,Earthquake M6.5,EARTHQUAKE,EQ_030_R2,IMPACT,55,10,GEO_RADIUS,water,,COUNT,2,yes,40,60,240,EPICENTER,8,2,pumping stations",
}

var cyRows = []string{
	"CY_020,Coordinated Cyber Attack,CYBER,CY_020_R1,IMPACT,10,,GEO_SCATTER,communication,,PCT,50,false,25,,,,,3,",
}

func csvDoc(rows ...string) string {
	return csvHeader + "\n" + strings.Join(rows, "\n") + "\n"
}

func oneRowCSV(reuse string) string {
	return csvDoc("T1,Test,HZ,R1,IMPACT,50,,GEO_SCATTER,water,,PCT,10," + reuse + ",0,,,,,1,")
}

func TestParseRules_GroupsAndFields(t *testing.T) {
	groups, err := ParseRules(strings.NewReader(csvDoc(append(eqRows, cyRows...)...)))
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 template groups, got %d", len(groups))
	}

	eq := groups[0]
	if eq.Template.TemplateID != "EQ_030" || eq.Template.Name != "Earthquake M6.5" ||
		eq.Template.HazardType != "EARTHQUAKE" || eq.Template.Version != 1 || !eq.Template.IsActive {
		t.Fatalf("unexpected template: %+v", eq.Template)
	}
	if len(eq.Rules) != 2 {
		t.Fatalf("expected 2 earthquake rules, got %d", len(eq.Rules))
	}

	r1 := eq.Rules[0]
	if r1.RuleID != "EQ_030_R1" || r1.TimePct != 50 || r1.TimeJitterPct != nil {
		t.Fatalf("unexpected rule 1: %+v", r1)
	}
	if r1.GeoParam1Km == nil || *r1.GeoParam1Km != 5 || r1.GeoAnchor != "EPICENTER" {
		t.Fatalf("geo fields: %+v", r1)
	}
	if r1.AllowReuseAsset || !r1.Enabled || r1.RepairTimeMin != nil {
		t.Fatalf("unexpected rule 1: %+v", r1)
	}

	r2 := eq.Rules[1]
	if r2.TimeJitterPct == nil || *r2.TimeJitterPct != 10 {
		t.Fatalf("jitter not parsed: %+v", r2)
	}
	if r2.RepairTimeMin == nil || *r2.RepairTimeMin != 60 || r2.RepairTimeMax == nil || *r2.RepairTimeMax != 240 {
		t.Fatalf("repair bounds: %+v", r2)
	}
	if !r2.AllowReuseAsset || r2.Subtype != "" || r2.TargetMode != "COUNT" {
		t.Fatalf("unexpected rule 2: %+v", r2)
	}

	cy := groups[1]
	if cy.Template.TemplateID != "CY_020" || len(cy.Rules) != 1 {
		t.Fatalf("unexpected cyber group: %+v", cy)
	}
	if cy.Rules[0].SelectionScope != "GEO_SCATTER" || cy.Rules[0].GeoAnchor != "" || cy.Rules[0].Priority != 3 {
		t.Fatalf("unexpected cyber rule: %+v", cy.Rules[0])
	}
}

func TestParseRules_HeaderErrors(t *testing.T) {
	cols := append([]string(nil), RequiredHeader...)

	missing := strings.Join(cols[:len(cols)-1], ",")
	extra := csvHeader + ",extra"
	swapped := append([]string(nil), cols...)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	misnamed := strings.Replace(csvHeader, "time_pct", "time_percent", 1)

	tests := []struct {
		name, header string
	}{
		{"missing column", missing},
		{"extra column", extra},
		{"reordered columns", strings.Join(swapped, ",")},
		{"misnamed column", misnamed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseRules(strings.NewReader(tc.header + "\n")); err == nil {
				t.Fatal("expected header error")
			}
		})
	}

	if _, err := ParseRules(strings.NewReader("")); err == nil {
		t.Fatal("expected error for missing header")
	}
}

func TestParseRules_HeaderOnly(t *testing.T) {
	groups, err := ParseRules(strings.NewReader(csvHeader + "\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 0 {
		t.Fatalf("expected no groups, got %d", len(groups))
	}
}

func TestParseRules_BoolForms(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"0", false}, {"1", true},
		{"true", true}, {"false", false},
		{"yes", true}, {"no", false},
		{"on", true}, {"off", false},
		{"TRUE", true}, {"Off", false},
		{"", false},
	}
	for _, tc := range tests {
		groups, err := ParseRules(strings.NewReader(oneRowCSV(tc.raw)))
		if err != nil {
			t.Fatalf("%q: %v", tc.raw, err)
		}
		if got := groups[0].Rules[0].AllowReuseAsset; got != tc.want {
			t.Fatalf("%q: got %v, want %v", tc.raw, got, tc.want)
		}
	}

	if _, err := ParseRules(strings.NewReader(oneRowCSV("maybe"))); err == nil {
		t.Fatal("expected error for invalid boolean")
	}
}

func TestParseRules_NumericErrors(t *testing.T) {
	const base = "EQ_030,EQ,HZ,R1,IMPACT,%s,,GEO_SCATTER,water,,PCT,%s,0,%s,,,,,%s,"
	tests := []struct {
		name                            string
		timePct, target, perf, priority string
	}{
		{"bad time_pct", "abc", "10", "0", "1"},
		{"empty time_pct", "", "10", "0", "1"},
		{"empty target_value", "50", "", "0", "1"},
		{"bad performance_pct", "50", "10", "high", "1"},
		{"bad priority", "50", "10", "0", "first"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := csvDoc(fmt.Sprintf(base, tc.timePct, tc.target, tc.perf, tc.priority))
			_, err := ParseRules(strings.NewReader(doc))
			if err == nil {
				t.Fatal("expected parse error")
			}
			if !strings.Contains(err.Error(), "row 2") {
				t.Fatalf("error must name the row: %v", err)
			}
		})
	}
}

func newTestImporter(t *testing.T) (*Importer, *store.Store) {
	t.Helper()
	st, closer, err := store.Bootstrap(t.TempDir())
	if err != nil {
		t.Fatalf("bootstrap store: %v", err)
	}
	t.Cleanup(func() { closer.Close() })
	return NewImporter(st.Catalog, nil), st
}

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestImportFile_IdempotentReimport(t *testing.T) {
	im, st := newTestImporter(t)
	dir := t.TempDir()
	path := writeCSV(t, dir, "rules.csv", csvDoc(append(eqRows, cyRows...)...))

	stats, err := im.ImportFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Files != 1 || stats.Templates != 2 || stats.Rules != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	before, err := st.Catalog.ListRulesByTemplate("EQ_030")
	if err != nil {
		t.Fatal(err)
	}
	if len(before) != 2 {
		t.Fatalf("expected 2 stored rules, got %d", len(before))
	}

	again, err := im.ImportFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if again != stats {
		t.Fatalf("re-import stats changed: %+v vs %+v", again, stats)
	}

	after, err := st.Catalog.ListRulesByTemplate("EQ_030")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("re-import changed the rule table:\nbefore %+v\nafter  %+v", before, after)
	}

	tpl, err := st.Catalog.GetTemplate("EQ_030")
	if err != nil || tpl == nil {
		t.Fatalf("template lookup: %v", err)
	}
	if tpl.Version != 1 || !tpl.IsActive {
		t.Fatalf("unexpected template after re-import: %+v", tpl)
	}
}

func TestImportDir_SortedAndResilient(t *testing.T) {
	im, st := newTestImporter(t)
	dir := t.TempDir()
	writeCSV(t, dir, "b_cyber.csv", csvDoc(cyRows...))
	writeCSV(t, dir, "a_earthquake.csv", csvDoc(eqRows...))
	writeCSV(t, dir, "broken.csv", "not,a,rule,header\nx,y,z,w\n")

	stats, err := im.ImportDir(dir)
	if err == nil {
		t.Fatal("expected the broken file to surface an error")
	}
	if stats.Files != 2 || stats.Templates != 2 || stats.Rules != 3 {
		t.Fatalf("good files must still import: %+v", stats)
	}

	for _, id := range []string{"EQ_030", "CY_020"} {
		tpl, err := st.Catalog.GetTemplate(id)
		if err != nil || tpl == nil {
			t.Fatalf("template %s missing after dir import: %v", id, err)
		}
	}

	_, err = im.ImportDir(filepath.Join(dir, "absent"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestAutoload_StartupScanAndWatch(t *testing.T) {
	im, st := newTestImporter(t)
	dir := t.TempDir()
	writeCSV(t, dir, "earthquake.csv", csvDoc(eqRows...))

	a := NewAutoload(im, AutoloadConfig{Dir: dir, RescanSchedule: "@hourly", Debounce: 10 * time.Millisecond})
	a.Start()
	t.Cleanup(a.Stop)

	// The startup scan runs synchronously inside Start.
	tpl, err := st.Catalog.GetTemplate("EQ_030")
	if err != nil || tpl == nil {
		t.Fatalf("startup scan did not import: %v", err)
	}

	// A new file in the watched directory triggers a debounced rescan.
	writeCSV(t, dir, "cyber.csv", csvDoc(cyRows...))
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		tpl, err := st.Catalog.GetTemplate("CY_020")
		if err != nil {
			t.Fatal(err)
		}
		if tpl != nil {
			a.Stop()
			a.Stop() // idempotent
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("watcher never imported the new file")
}

func TestAutoload_MissingDirTolerated(t *testing.T) {
	im, _ := newTestImporter(t)
	a := NewAutoload(im, AutoloadConfig{Dir: filepath.Join(t.TempDir(), "absent")})
	a.Start()
	a.Stop()
}
