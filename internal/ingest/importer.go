package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/cascadia-sim/cascadia/internal/metrics"
	"github.com/cascadia-sim/cascadia/internal/model"
)

// Catalog is the store surface the importer writes through.
type Catalog interface {
	ImportTemplate(t model.Template, rules []model.Rule) error
}

// ImportStats counts what an import pass touched.
type ImportStats struct {
	Files     int `json:"files"`
	Templates int `json:"templates"`
	Rules     int `json:"rules"`
}

func (s *ImportStats) add(o ImportStats) {
	s.Files += o.Files
	s.Templates += o.Templates
	s.Rules += o.Rules
}

// Importer loads rule CSVs into the catalog.
type Importer struct {
	catalog Catalog
	metrics *metrics.Set
}

func NewImporter(catalog Catalog, m *metrics.Set) *Importer {
	return &Importer{catalog: catalog, metrics: m}
}

// ImportFile parses one CSV and upserts every template it names, each with
// its rules in a single transaction.
func (im *Importer) ImportFile(path string) (ImportStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportStats{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	groups, err := ParseRules(f)
	if err != nil {
		return ImportStats{}, fmt.Errorf("parse %s: %w", path, err)
	}

	stats := ImportStats{Files: 1}
	for _, g := range groups {
		if err := im.catalog.ImportTemplate(g.Template, g.Rules); err != nil {
			return stats, fmt.Errorf("import template %s from %s: %w", g.Template.TemplateID, path, err)
		}
		stats.Templates++
		stats.Rules += len(g.Rules)
	}
	im.metrics.RulesImported(stats.Rules)
	log.Printf("[ingest] imported %s: %d template(s), %d rule(s)",
		filepath.Base(path), stats.Templates, stats.Rules)
	return stats, nil
}

// ImportDir imports every *.csv under dir in name order. A broken file does
// not stop the pass; its error is joined into the returned error alongside
// the stats of the files that did import. A missing directory reports
// fs.ErrNotExist.
func (im *Importer) ImportDir(dir string) (ImportStats, error) {
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ImportStats{}, fmt.Errorf("template dir %s: %w", dir, fs.ErrNotExist)
		}
		return ImportStats{}, fmt.Errorf("stat template dir %s: %w", dir, err)
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return ImportStats{}, fmt.Errorf("scan template dir %s: %w", dir, err)
	}
	sort.Strings(paths)

	var total ImportStats
	var errs []error
	for _, path := range paths {
		stats, err := im.ImportFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total.add(stats)
	}
	return total, errors.Join(errs...)
}
