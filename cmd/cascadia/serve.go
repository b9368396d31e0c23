package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cascadia-sim/cascadia/internal/api"
	"github.com/cascadia-sim/cascadia/internal/buildinfo"
	"github.com/cascadia-sim/cascadia/internal/config"
	"github.com/cascadia-sim/cascadia/internal/engine"
	"github.com/cascadia-sim/cascadia/internal/graph"
	"github.com/cascadia-sim/cascadia/internal/ingest"
	"github.com/cascadia-sim/cascadia/internal/metrics"
	"github.com/cascadia-sim/cascadia/internal/scenario"
	"github.com/cascadia-sim/cascadia/internal/sim"
	"github.com/cascadia-sim/cascadia/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Args:  cobra.NoArgs,
	Short: "Run the Cascadia API server",
	Long: `Opens the state store, wires the simulation engine and rule catalog,
and serves the HTTP API until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

// cascadiaApp owns every long-lived component of a serving process, in the
// order they must be torn down.
type cascadiaApp struct {
	envCfg    *config.EnvConfig
	snapshots *graph.SnapshotCache
	janitor   *sim.Janitor
	autoload  *ingest.Autoload
	server    *api.Server
}

func run() error {
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		return err
	}

	st, dbCloser, err := store.Bootstrap(envCfg.StateDir)
	if err != nil {
		return fmt.Errorf("store bootstrap: %w", err)
	}
	log.Println("Store bootstrap complete")

	app := newCascadiaApp(envCfg, st)

	serverErrCh := app.startServers()
	runtimeErr := waitForShutdown(serverErrCh)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app.shutdown(ctx)

	if err := dbCloser.Close(); err != nil {
		log.Printf("Store close error: %v", err)
	}
	if runtimeErr != nil {
		return fmt.Errorf("runtime server error: %w", runtimeErr)
	}
	return nil
}

func newCascadiaApp(envCfg *config.EnvConfig, st *store.Store) *cascadiaApp {
	m := metrics.NewSet()

	snapshots := graph.NewSnapshotCache(st.Inventory, envCfg.ChainCacheTTL)
	resolver := graph.NewResolver(st.Inventory, snapshots)
	materializer := scenario.NewMaterializer(st.Catalog, st.Inventory, st.Scenario)
	runner := sim.NewRunner(st.Scenario, st.Inventory, st.Inventory, m, envCfg.TickPacing)
	eng := engine.New(st, materializer, runner, resolver, m, envCfg.DefaultMaxDepth)

	janitor := sim.NewJanitor(runner, envCfg.RunRetention)
	janitor.Start()
	log.Println("Run janitor started")

	var autoload *ingest.Autoload
	if envCfg.TemplateAutoload {
		importer := ingest.NewImporter(st.Catalog, m)
		autoload = ingest.NewAutoload(importer, ingest.AutoloadConfig{
			Dir:            envCfg.TemplateDir,
			RescanSchedule: envCfg.TemplateRescanSchedule,
		})
		autoload.Start()
		log.Println("Template autoload started")
	}

	srv := api.NewServerWithAddress(
		envCfg.ListenAddress,
		envCfg.Port,
		eng,
		api.SystemInfo{
			Version:   buildinfo.Version,
			GitCommit: buildinfo.GitCommit,
			BuildTime: buildinfo.BuildTime,
			StartedAt: time.Now().UTC(),
		},
		m,
		int64(envCfg.APIMaxBodyBytes),
	)

	return &cascadiaApp{
		envCfg:    envCfg,
		snapshots: snapshots,
		janitor:   janitor,
		autoload:  autoload,
		server:    srv,
	}
}

func (a *cascadiaApp) startServers() <-chan error {
	serverErrCh := make(chan error, 1)
	reportServerErr := func(name string, err error) {
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		wrapped := fmt.Errorf("%s: %w", name, err)
		select {
		case serverErrCh <- wrapped:
		default:
		}
	}

	go func() {
		log.Printf("Cascadia server starting on %s", formatListenURL(a.envCfg.ListenAddress, a.envCfg.Port))
		reportServerErr("cascadia server", a.server.ListenAndServe())
	}()

	return serverErrCh
}

func waitForShutdown(serverErrCh <-chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		log.Printf("Received signal %s, shutting down...", sig)
		return nil
	case err := <-serverErrCh:
		log.Printf("Received server runtime error (%v), shutting down...", err)
		return err
	}
}

func formatListenURL(listenAddress string, port int) string {
	return "http://" + net.JoinHostPort(listenAddress, strconv.Itoa(port))
}

func (a *cascadiaApp) shutdown(ctx context.Context) {
	if err := a.server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Cascadia server stopped")

	// Stop in order: event sources first, then background sweeps, then caches.
	if a.autoload != nil {
		a.autoload.Stop()
		log.Println("Template autoload stopped")
	}

	a.janitor.Stop()
	log.Println("Run janitor stopped")

	a.snapshots.Close()
	log.Println("Snapshot cache closed")
}
