package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cascadia-sim/cascadia/internal/config"
	"github.com/cascadia-sim/cascadia/internal/seed"
	"github.com/cascadia-sim/cascadia/internal/store"
)

var seedCityCmd = &cobra.Command{
	Use:   "seed-city",
	Args:  cobra.NoArgs,
	Short: "Load a city inventory bundle into the store",
	Long: `Parses a YAML city bundle of assets and dependency edges and upserts
it into the state store, then exits.`,
	RunE: runSeedCity,
}

func init() {
	seedCityCmd.Flags().String("file", "", "path to the city bundle YAML file")
}

func runSeedCity(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	if file == "" {
		return fmt.Errorf("--file flag is required")
	}

	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		return err
	}

	st, dbCloser, err := store.Bootstrap(envCfg.StateDir)
	if err != nil {
		return fmt.Errorf("store bootstrap: %w", err)
	}
	defer dbCloser.Close()

	stats, err := seed.NewImporter(st.Inventory, nil).ApplyFile(file)
	if err != nil {
		return err
	}

	fmt.Printf("Seeded %s: %d asset(s), %d dependency(ies)\n", stats.City, stats.Assets, stats.Dependencies)
	return nil
}
