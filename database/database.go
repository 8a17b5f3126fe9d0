package database

import (
	"encoding/json"
	"strconv"

	"github.com/tidwall/buntdb"
)

// Database is the diagnostics journal for the network layer. It records
// circuit lifecycle events so an operator can inspect cleanup behavior after
// the fact. The store is always in-memory: nothing about a request or a
// circuit may survive the process.
type Database struct {
	db *buntdb.DB
}

func NewDatabase() (*Database, error) {
	var err error
	d := &Database{}

	d.db, err = buntdb.Open(":memory:")
	if err != nil {
		return nil, err
	}

	d.circuitEventsInit()
	return d, nil
}

func (d *Database) CircuitCreated(circuit_id string) error {
	return d.circuitEventCreate(circuit_id, EventCircuitCreated, "")
}

func (d *Database) CircuitClosed(circuit_id string) error {
	return d.circuitEventCreate(circuit_id, EventCircuitClosed, "")
}

// CircuitCloseFailed records a best-effort close that did not succeed. These
// are the only cleanup failures the layer keeps; they never surface to the
// caller of a request.
func (d *Database) CircuitCloseFailed(circuit_id string, reason string) error {
	return d.circuitEventCreate(circuit_id, EventCircuitCloseFailed, reason)
}

func (d *Database) ListCircuitEvents() ([]*CircuitEvent, error) {
	return d.circuitEventsList()
}

// ListCircuitEventsFor returns only the events of one circuit.
func (d *Database) ListCircuitEventsFor(circuit_id string) ([]*CircuitEvent, error) {
	return d.circuitEventsByCircuit(circuit_id)
}

func (d *Database) ListCloseFailures() ([]*CircuitEvent, error) {
	events, err := d.circuitEventsList()
	if err != nil {
		return nil, err
	}
	failures := []*CircuitEvent{}
	for _, ev := range events {
		if ev.Kind == EventCircuitCloseFailed {
			failures = append(failures, ev)
		}
	}
	return failures, nil
}

func (d *Database) Close() {
	d.db.Close()
}

func (d *Database) genIndex(table_name string, id int) string {
	return table_name + ":" + strconv.Itoa(id)
}

func (d *Database) getNextId(table_name string) (int, error) {
	var id int = 1
	var err error
	err = d.db.Update(func(tx *buntdb.Tx) error {
		var s_id string
		if s_id, err = tx.Get(table_name + ":0:id"); err == nil {
			if id, err = strconv.Atoi(s_id); err != nil {
				return err
			}
		}
		tx.Set(table_name+":0:id", strconv.Itoa(id+1), nil)
		return nil
	})
	return id, err
}

func (d *Database) getPivot(t interface{}) string {
	pivot, _ := json.Marshal(t)
	return string(pivot)
}
