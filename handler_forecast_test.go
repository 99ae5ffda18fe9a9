package main

import (
	"net/http/httptest"
	"testing"

	"fms/internal/testutil"
)

func TestBuildForecastAggregates(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)

	// Open job against the seed design: requires 2x PDC-1308, 1x PDC-1613
	createTestJob(t, cookie, "SN-2001")

	// Recent consumption: 60x PDC-1308 issued
	w := httptest.NewRecorder()
	handleInventoryTransact(w, authedRequest("POST", "/api/v1/inventory/transact",
		`{"cutter_type":"PDC-1308","category":"new","type":"issue","qty":60}`, cookie))
	if w.Code != 200 {
		t.Fatalf("issue failed: %d %s", w.Code, w.Body.String())
	}

	// Open PO brings 40x PDC-1613 on order
	p := createTestPO(t, cookie)
	movePO(t, cookie, p.ID, "sent")

	lines, err := buildForecast()
	if err != nil {
		t.Fatal(err)
	}
	byType := map[string]ForecastLine{}
	for _, l := range lines {
		byType[l.CutterType] = l
	}

	l1308 := byType["PDC-1308"]
	if l1308.OnHand != 180 {
		t.Errorf("PDC-1308 on hand = %d, want 180", l1308.OnHand)
	}
	if l1308.Required != 2 {
		t.Errorf("PDC-1308 required = %d, want 2", l1308.Required)
	}
	if l1308.OnOrder != 100 {
		t.Errorf("PDC-1308 on order = %d, want 100", l1308.OnOrder)
	}
	if l1308.Consumption6M != 60 {
		t.Errorf("PDC-1308 consumption = %d, want 60", l1308.Consumption6M)
	}
	// 60/6 = 10 monthly + 5 buffer = 15
	if l1308.SafetyStock != 15 {
		t.Errorf("PDC-1308 safety stock = %d, want 15", l1308.SafetyStock)
	}
	if l1308.Projected != 278 {
		t.Errorf("PDC-1308 projected = %d, want 278", l1308.Projected)
	}
	if l1308.Shortage != 0 {
		t.Errorf("PDC-1308 shortage = %d, want 0", l1308.Shortage)
	}

	l1613 := byType["PDC-1613"]
	if l1613.Required != 1 || l1613.OnOrder != 40 {
		t.Errorf("PDC-1613 line = %+v", l1613)
	}
}

func TestShortagesFlagThinStock(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)

	// Burn PDC-1613 down to 5 on hand with heavy recent consumption
	w := httptest.NewRecorder()
	handleInventoryTransact(w, authedRequest("POST", "/api/v1/inventory/transact",
		`{"cutter_type":"PDC-1613","category":"new","type":"issue","qty":75}`, cookie))
	if w.Code != 200 {
		t.Fatalf("issue failed: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	handleShortages(w, authedRequest("GET", "/api/v1/forecast/shortages", "", cookie))
	if w.Code != 200 {
		t.Fatalf("shortages failed: %d", w.Code)
	}
	var short []ForecastLine
	testutil.DecodeEnvelope(t, w, &short)

	found := false
	for _, l := range short {
		if l.CutterType == "PDC-1613" {
			found = true
			// ceil(75/6)=13 +5 buffer = 18, round up = 20; projected 5
			if l.SafetyStock != 20 {
				t.Errorf("safety stock = %d, want 20", l.SafetyStock)
			}
			if l.Shortage != 15 {
				t.Errorf("shortage = %d, want 15", l.Shortage)
			}
			if l.SuggestedOrder != 15 {
				t.Errorf("suggested order = %d, want 15", l.SuggestedOrder)
			}
		}
		if l.CutterType == "PDC-1308" {
			t.Error("healthy PDC-1308 flagged as short")
		}
	}
	if !found {
		t.Fatal("PDC-1613 not flagged")
	}
}

func TestSafetyStockEndpoint(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)

	w := httptest.NewRecorder()
	handleSafetyStock(w, authedRequest("GET", "/api/v1/forecast/safety-stock", "", cookie))
	if w.Code != 200 {
		t.Fatalf("safety-stock failed: %d", w.Code)
	}
	var rows []struct {
		CutterType    string `json:"cutter_type"`
		Consumption6M int    `json:"consumption_6m"`
		SafetyStock   int    `json:"safety_stock"`
	}
	testutil.DecodeEnvelope(t, w, &rows)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	for _, r := range rows {
		if r.Consumption6M != 0 || r.SafetyStock != 0 {
			t.Errorf("no consumption yet, got %+v", r)
		}
	}
}
