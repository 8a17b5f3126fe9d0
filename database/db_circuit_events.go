package database

import (
	"encoding/json"
	"time"

	"github.com/tidwall/buntdb"
)

const CircuitEventTable = "circuit_events"

const (
	EventCircuitCreated     = "created"
	EventCircuitClosed      = "closed"
	EventCircuitCloseFailed = "close_failed"
)

type CircuitEvent struct {
	Id        int    `json:"id"`
	CircuitId string `json:"circuit_id"`
	Kind      string `json:"kind"`
	Reason    string `json:"reason,omitempty"`
	Time      int64  `json:"time"`
}

func (d *Database) circuitEventsInit() {
	d.db.CreateIndex("circuit_events_id", CircuitEventTable+":*", buntdb.IndexJSON("id"))
	d.db.CreateIndex("circuit_events_cid", CircuitEventTable+":*", buntdb.IndexJSON("circuit_id"))
}

func (d *Database) circuitEventCreate(circuit_id string, kind string, reason string) error {
	id, _ := d.getNextId(CircuitEventTable)

	ev := &CircuitEvent{
		Id:        id,
		CircuitId: circuit_id,
		Kind:      kind,
		Reason:    reason,
		Time:      time.Now().UTC().Unix(),
	}

	jf, _ := json.Marshal(ev)

	err := d.db.Update(func(tx *buntdb.Tx) error {
		tx.Set(d.genIndex(CircuitEventTable, id), string(jf), nil)
		return nil
	})
	return err
}

func (d *Database) circuitEventsList() ([]*CircuitEvent, error) {
	events := []*CircuitEvent{}
	err := d.db.View(func(tx *buntdb.Tx) error {
		tx.Ascend("circuit_events_id", func(key, val string) bool {
			ev := &CircuitEvent{}
			if err := json.Unmarshal([]byte(val), ev); err == nil {
				events = append(events, ev)
			}
			return true
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (d *Database) circuitEventsByCircuit(circuit_id string) ([]*CircuitEvent, error) {
	events := []*CircuitEvent{}
	err := d.db.View(func(tx *buntdb.Tx) error {
		tx.AscendEqual("circuit_events_cid", d.getPivot(map[string]string{"circuit_id": circuit_id}), func(key, val string) bool {
			ev := &CircuitEvent{}
			if err := json.Unmarshal([]byte(val), ev); err == nil {
				events = append(events, ev)
			}
			return true
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}
