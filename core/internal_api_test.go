package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/veilnet/veilnet/database"
)

func TestInternalAPIHealth(t *testing.T) {
	fc := &fakeController{}
	an := NewAnonymizedNetwork(fc, nil)
	api := NewInternalAPI(0, an, nil)

	req := httptest.NewRequest("GET", "/_health", nil)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected status: %v", body["status"])
	}
	if body["tor_connected"] != true {
		t.Errorf("expected tor_connected true, got %v", body["tor_connected"])
	}
}

func TestInternalAPICircuit(t *testing.T) {
	fc := &fakeController{}
	an := NewAnonymizedNetwork(fc, nil)
	api := NewInternalAPI(0, an, nil)

	req := httptest.NewRequest("GET", "/_circuit", nil)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var info CircuitInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if info.HopCount != 3 {
		t.Errorf("unexpected hop count: %d", info.HopCount)
	}
}

func TestInternalAPIJournalFilterByCircuit(t *testing.T) {
	db, err := database.NewDatabase()
	if err != nil {
		t.Fatalf("database: %v", err)
	}
	t.Cleanup(db.Close)
	db.CircuitCreated("10")
	db.CircuitCreated("11")
	db.CircuitClosed("10")

	fc := &fakeController{}
	an := NewAnonymizedNetwork(fc, db)
	api := NewInternalAPI(0, an, db)

	req := httptest.NewRequest("GET", "/_journal?circuit=10", nil)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var events []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events for circuit 10, got %d", len(events))
	}
	for _, ev := range events {
		if ev["circuit_id"] != "10" {
			t.Errorf("event for wrong circuit: %v", ev)
		}
	}
}

func TestInternalAPIUnknownPath(t *testing.T) {
	fc := &fakeController{}
	an := NewAnonymizedNetwork(fc, nil)
	api := NewInternalAPI(0, an, nil)

	req := httptest.NewRequest("GET", "/secrets", nil)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestInternalAPINotRunningByDefault(t *testing.T) {
	api := NewInternalAPI(0, nil, nil)
	if api.IsRunning() {
		t.Error("API reports running before Start")
	}
}
