package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cascadia-sim/cascadia/internal/buildinfo"
)

var rootCmd = &cobra.Command{
	Use:   "cascadia",
	Short: "Crisis-impact simulation backend for city infrastructure",
	Long: `Cascadia materializes hazard scenarios against a city's infrastructure
inventory, replays the resulting impact and recovery events as discrete
simulation ticks, and serves scenario state over a JSON HTTP API.`,
	Version: buildinfo.Version,
}

func init() {
	// Subcommands are defined in separate files:
	// - serveCmd in serve.go
	// - importRulesCmd in import_rules.go
	// - seedCityCmd in seed_city.go
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importRulesCmd)
	rootCmd.AddCommand(seedCityCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
