package core

import (
	"context"
	"sync"
	"time"

	"github.com/veilnet/veilnet/database"
	"github.com/veilnet/veilnet/log"
)

// Circuit is one isolated transport path, owned by the single request that
// created it. It is never shared and never reused.
type Circuit struct {
	Id        string
	CreatedAt time.Time
}

// CircuitManager requests fresh circuits from the transport controller and
// tracks their identifiers so shutdown can force-close whatever is still
// open. The tracked set is the only shared mutable state in the layer.
type CircuitManager struct {
	ctrl TransportController
	db   *database.Database

	mtx    sync.Mutex
	active map[string]struct{}
}

func NewCircuitManager(ctrl TransportController, db *database.Database) *CircuitManager {
	return &CircuitManager{
		ctrl:   ctrl,
		db:     db,
		active: make(map[string]struct{}),
	}
}

// NewCircuit obtains a previously-unused circuit from the controller. A
// controller failure propagates as a typed error; there is no fallback to an
// existing circuit. The lock covers only the set insert, never the control
// round trip.
func (cm *CircuitManager) NewCircuit(ctx context.Context) (*Circuit, error) {
	circuit_id, err := cm.ctrl.NewCircuit(ctx)
	if err != nil {
		return nil, wrapError(ErrKindCircuitCreation, err)
	}

	cm.mtx.Lock()
	if _, ok := cm.active[circuit_id]; ok {
		cm.mtx.Unlock()
		// The controller handed out an identifier that is already live.
		// Tracking it would alias two requests onto one circuit.
		return nil, netError(ErrKindCircuitCreation, "controller returned duplicate circuit id")
	}
	cm.active[circuit_id] = struct{}{}
	cm.mtx.Unlock()

	c := &Circuit{
		Id:        circuit_id,
		CreatedAt: time.Now(),
	}
	if cm.db != nil {
		cm.db.CircuitCreated(c.Id)
	}
	log.Debug("created circuit %s", c.Id)
	return c, nil
}

// CloseCircuit tears down one circuit, best effort. Failures are recorded for
// diagnostics and logged, never surfaced: cleanup must not mask the primary
// result of the request that owned the circuit.
func (cm *CircuitManager) CloseCircuit(ctx context.Context, c *Circuit) {
	if c == nil {
		return
	}
	cm.mtx.Lock()
	delete(cm.active, c.Id)
	cm.mtx.Unlock()

	if err := cm.ctrl.CloseCircuit(ctx, c.Id); err != nil {
		log.Warning("failed to close circuit %s: %v", c.Id, err)
		if cm.db != nil {
			cm.db.CircuitCloseFailed(c.Id, err.Error())
		}
		return
	}
	if cm.db != nil {
		cm.db.CircuitClosed(c.Id)
	}
	log.Debug("closed circuit %s", c.Id)
}

// CloseAll drains the tracked set and best-effort closes every identifier.
// Individual close failures never abort the shutdown.
func (cm *CircuitManager) CloseAll(ctx context.Context) {
	cm.mtx.Lock()
	drained := make([]string, 0, len(cm.active))
	for id := range cm.active {
		drained = append(drained, id)
	}
	cm.active = make(map[string]struct{})
	cm.mtx.Unlock()

	for _, id := range drained {
		if err := cm.ctrl.CloseCircuit(ctx, id); err != nil {
			log.Warning("failed to close circuit %s: %v", id, err)
			if cm.db != nil {
				cm.db.CircuitCloseFailed(id, err.Error())
			}
			continue
		}
		if cm.db != nil {
			cm.db.CircuitClosed(id)
		}
	}
	if len(drained) > 0 {
		log.Info("closed %d active circuits", len(drained))
	}
}

// ActiveCount reports how many circuits are currently tracked.
func (cm *CircuitManager) ActiveCount() int {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	return len(cm.active)
}
