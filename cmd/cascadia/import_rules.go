package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cascadia-sim/cascadia/internal/config"
	"github.com/cascadia-sim/cascadia/internal/ingest"
	"github.com/cascadia-sim/cascadia/internal/store"
)

var importRulesCmd = &cobra.Command{
	Use:   "import-rules",
	Args:  cobra.NoArgs,
	Short: "Import scenario rule CSV files into the catalog",
	Long: `Parses rule CSV files and upserts the scenario templates they define
into the state store, then exits.`,
	RunE: runImportRules,
}

func init() {
	importRulesCmd.Flags().String("file", "", "path to a single rule CSV file")
	importRulesCmd.Flags().String("dir", "", "directory of rule CSV files (default is the template dir)")
}

func runImportRules(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	dir, _ := cmd.Flags().GetString("dir")
	if file != "" && dir != "" {
		return fmt.Errorf("--file and --dir are mutually exclusive")
	}

	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		return err
	}
	if file == "" && dir == "" {
		dir = envCfg.TemplateDir
	}

	st, dbCloser, err := store.Bootstrap(envCfg.StateDir)
	if err != nil {
		return fmt.Errorf("store bootstrap: %w", err)
	}
	defer dbCloser.Close()

	importer := ingest.NewImporter(st.Catalog, nil)

	var stats ingest.ImportStats
	if file != "" {
		stats, err = importer.ImportFile(file)
	} else {
		stats, err = importer.ImportDir(dir)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d file(s): %d template(s), %d rule(s)\n", stats.Files, stats.Templates, stats.Rules)
	return nil
}
