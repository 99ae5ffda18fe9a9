package main

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"fms/internal/testutil"
)

func TestInventoryReceiveAndBalance(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)

	w := httptest.NewRecorder()
	handleInventoryTransact(w, authedRequest("POST", "/api/v1/inventory/transact",
		`{"cutter_type":"PDC-1613","category":"ground","type":"receive","qty":25,"reference":"GRIND-42"}`, cookie))
	if w.Code != 200 {
		t.Fatalf("receive failed: %d %s", w.Code, w.Body.String())
	}
	var txn CutterTransaction
	testutil.DecodeEnvelope(t, w, &txn)
	if txn.Qty != 25 {
		t.Errorf("stored qty = %d, want 25", txn.Qty)
	}

	w = httptest.NewRecorder()
	handleGetBalance(w, authedRequest("GET", "/api/v1/inventory/PDC-1613", "", cookie), "PDC-1613")
	var b CutterBalance
	testutil.DecodeEnvelope(t, w, &b)
	if b.Total != 105 {
		t.Errorf("total = %d, want 105 (80 seed + 25)", b.Total)
	}
	if b.ByCategory["ground"] != 25 {
		t.Errorf("ground = %d, want 25", b.ByCategory["ground"])
	}
}

func TestInventoryIssueSignConvention(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)

	// Caller sends a positive qty; the ledger stores it negative
	w := httptest.NewRecorder()
	handleInventoryTransact(w, authedRequest("POST", "/api/v1/inventory/transact",
		`{"cutter_type":"PDC-1308","category":"new","type":"issue","qty":10}`, cookie))
	if w.Code != 200 {
		t.Fatalf("issue failed: %d %s", w.Code, w.Body.String())
	}
	var txn CutterTransaction
	testutil.DecodeEnvelope(t, w, &txn)
	if txn.Qty != -10 {
		t.Errorf("stored qty = %d, want -10", txn.Qty)
	}

	b, _ := loadBalance("PDC-1308")
	if b.ByCategory["new"] != 190 {
		t.Errorf("new balance = %d, want 190", b.ByCategory["new"])
	}
}

func TestInventoryRejectsOverdraw(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)

	w := httptest.NewRecorder()
	handleInventoryTransact(w, authedRequest("POST", "/api/v1/inventory/transact",
		`{"cutter_type":"PDC-1308","category":"ground","type":"issue","qty":1}`, cookie))
	if w.Code != 409 {
		t.Errorf("overdraw: expected 409, got %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	handleInventoryTransact(w, authedRequest("POST", "/api/v1/inventory/transact",
		`{"cutter_type":"PDC-1308","category":"new","type":"adjust","qty":-500}`, cookie))
	if w.Code != 409 {
		t.Errorf("negative adjust past zero: expected 409, got %d", w.Code)
	}
}

func TestInventoryRejectsBadInput(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)

	cases := []string{
		`{"cutter_type":"NOPE-1","category":"new","type":"receive","qty":5}`,
		`{"cutter_type":"PDC-1308","category":"stolen","type":"receive","qty":5}`,
		`{"cutter_type":"PDC-1308","category":"new","type":"teleport","qty":5}`,
		`{"cutter_type":"PDC-1308","category":"new","type":"receive","qty":-5}`,
		`{"cutter_type":"PDC-1308","category":"new","type":"adjust","qty":0}`,
	}
	for _, body := range cases {
		w := httptest.NewRecorder()
		handleInventoryTransact(w, authedRequest("POST", "/api/v1/inventory/transact", body, cookie))
		if w.Code != 400 {
			t.Errorf("body %s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestInventoryHistory(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)

	w := httptest.NewRecorder()
	handleInventoryHistory(w, authedRequest("GET", "/api/v1/inventory/PDC-1308/history", "", cookie), "PDC-1308")
	if w.Code != 200 {
		t.Fatalf("history failed: %d", w.Code)
	}
	var txns []CutterTransaction
	testutil.DecodeEnvelope(t, w, &txns)
	if len(txns) != 2 {
		t.Errorf("got %d transactions, want 2 (seed)", len(txns))
	}

	// Limit caps the page while meta reports the full count
	w = httptest.NewRecorder()
	handleInventoryHistory(w, authedRequest("GET", "/api/v1/inventory/PDC-1308/history?limit=1", "", cookie), "PDC-1308")
	var env APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Meta == nil || env.Meta.Total != 2 || env.Meta.Limit != 1 {
		t.Errorf("meta = %+v, want total 2 limit 1", env.Meta)
	}

	w = httptest.NewRecorder()
	handleInventoryHistory(w, authedRequest("GET", "/api/v1/inventory/NOPE/history", "", cookie), "NOPE")
	if w.Code != 404 {
		t.Errorf("unknown type: expected 404, got %d", w.Code)
	}
}

func TestListBalancesCoversAllTypes(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)

	w := httptest.NewRecorder()
	handleListBalances(w, authedRequest("GET", "/api/v1/inventory/balances", "", cookie))
	var items []CutterBalance
	testutil.DecodeEnvelope(t, w, &items)
	if len(items) != 2 {
		t.Fatalf("got %d balances, want 2", len(items))
	}
	byType := map[string]int{}
	for _, b := range items {
		byType[b.CutterType] = b.Total
	}
	if byType["PDC-1308"] != 240 || byType["PDC-1613"] != 80 {
		t.Errorf("balances = %+v", byType)
	}
}
