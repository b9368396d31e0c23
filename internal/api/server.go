package api

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/cascadia-sim/cascadia/internal/engine"
	"github.com/cascadia-sim/cascadia/internal/metrics"
)

// Server wraps the HTTP server and mux for the Cascadia API.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

// NewServer creates a new API server wired with all routes.
func NewServer(
	port int,
	eng *engine.Engine,
	systemInfo SystemInfo,
	m *metrics.Set,
	apiMaxBodyBytes int64,
) *Server {
	return NewServerWithAddress("", port, eng, systemInfo, m, apiMaxBodyBytes)
}

// NewServerWithAddress creates a new API server with an explicit listen address.
func NewServerWithAddress(
	listenAddress string,
	port int,
	eng *engine.Engine,
	systemInfo SystemInfo,
	m *metrics.Set,
	apiMaxBodyBytes int64,
) *Server {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", HandleHealthz())
	mux.Handle("GET /metrics", m.Handler())

	apiMux := http.NewServeMux()
	apiMux.Handle("GET /api/system/info", HandleSystemInfo(systemInfo))

	// Scenario materialization.
	apiMux.Handle("POST /api/scenario/prepare", HandlePrepareScenario(eng))
	apiMux.Handle("GET /api/scenario/prepared", HandleListPrepared(eng))
	apiMux.Handle("GET /api/scenario/prepared/{id}", HandleGetPrepared(eng))
	apiMux.Handle("GET /api/scenario/prepared/{id}/timeline", HandleScenarioTimeline(eng))

	// Simulation runs.
	apiMux.Handle("POST /api/sim/start", HandleSimStart(eng))
	apiMux.Handle("POST /api/execute", HandleExecute(eng))
	apiMux.Handle("GET /api/sim/state", HandleSimState(eng))
	apiMux.Handle("GET /api/sim/tick", HandleSimTick(eng))

	// Dependency queries.
	apiMux.Handle("GET /api/dependencies/chain", HandleDependencyChain(eng))
	apiMux.Handle("GET /api/dependencies/graph", HandleDependencyGraph(eng))

	mux.Handle("/api/", RequestBodyLimitMiddleware(apiMaxBodyBytes, apiMux))

	handler := MetricsMiddleware(m, mux)

	srv := &http.Server{
		Addr:    net.JoinHostPort(listenAddress, strconv.Itoa(port)),
		Handler: handler,
	}

	return &Server{
		httpServer: srv,
		handler:    handler,
	}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
