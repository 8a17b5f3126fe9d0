package core

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/veilnet/veilnet/database"
	"github.com/veilnet/veilnet/log"
)

// InternalAPI is a localhost-only diagnostics server. It exposes health and
// circuit bookkeeping for operator tooling; nothing it serves feeds back into
// the request pipeline, and it never exposes request or response contents.
type InternalAPI struct {
	server  *http.Server
	router  *mux.Router
	network *AnonymizedNetwork
	db      *database.Database
	port    int
	running bool
	mtx     sync.Mutex
}

// NewInternalAPI creates the diagnostics API. db may be nil; the journal
// endpoint then reports an empty list.
func NewInternalAPI(port int, network *AnonymizedNetwork, db *database.Database) *InternalAPI {
	api := &InternalAPI{
		port:    port,
		network: network,
		db:      db,
		router:  mux.NewRouter(),
	}
	api.setupRoutes()
	return api
}

func (api *InternalAPI) setupRoutes() {
	api.router.HandleFunc("/_health", api.handleHealth).Methods("GET")
	api.router.HandleFunc("/_circuit", api.handleCircuit).Methods("GET")
	api.router.HandleFunc("/_journal", api.handleJournal).Methods("GET")
	api.router.PathPrefix("/").HandlerFunc(api.handleNotFound)
}

// Start launches the server. Binds ONLY to localhost.
func (api *InternalAPI) Start() error {
	api.mtx.Lock()
	defer api.mtx.Unlock()

	if api.running {
		return fmt.Errorf("internal API server already running")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", api.port)

	api.server = &http.Server{
		Addr:         addr,
		Handler:      api.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind internal API to %s: %v", addr, err)
	}

	go func() {
		log.Info("internal API server started on http://%s", addr)
		if err := api.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("internal API server error: %v", err)
		}
	}()

	api.running = true
	return nil
}

// Stop shuts the server down.
func (api *InternalAPI) Stop() {
	api.mtx.Lock()
	defer api.mtx.Unlock()

	if api.server != nil && api.running {
		api.server.Close()
		api.running = false
		log.Info("internal API server stopped")
	}
}

func (api *InternalAPI) IsRunning() bool {
	api.mtx.Lock()
	defer api.mtx.Unlock()
	return api.running
}

func (api *InternalAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":          "ok",
		"tor_connected":   api.network.IsHealthy(),
		"active_circuits": api.network.ActiveCircuits(),
	})
}

func (api *InternalAPI) handleCircuit(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	info := api.network.GetCircuitInfo()
	if info == nil {
		http.Error(w, `{"error":"no circuit information available"}`, http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(info)
}

func (api *InternalAPI) handleJournal(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if api.db == nil {
		json.NewEncoder(w).Encode([]struct{}{})
		return
	}
	var events []*database.CircuitEvent
	var err error
	if circuit_id := r.URL.Query().Get("circuit"); circuit_id != "" {
		events, err = api.db.ListCircuitEventsFor(circuit_id)
	} else {
		events, err = api.db.ListCircuitEvents()
	}
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"%s"}`, err.Error()), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(events)
}

func (api *InternalAPI) handleNotFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
}
