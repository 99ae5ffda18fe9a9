package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"fms/internal/testutil"
)

func createTestBit(t *testing.T, cookie *http.Cookie, serial string) Bit {
	t.Helper()
	designID := "DSN-" + seedYear() + "-001"
	w := httptest.NewRecorder()
	body := fmt.Sprintf(`{"serial_number":%q,"design_id":%q,"customer":"Apex Drilling"}`, serial, designID)
	handleCreateBit(w, authedRequest("POST", "/api/v1/bits", body, cookie))
	if w.Code != 200 {
		t.Fatalf("create bit failed: %d %s", w.Code, w.Body.String())
	}
	var b Bit
	testutil.DecodeEnvelope(t, w, &b)
	return b
}

func createTestJob(t *testing.T, cookie *http.Cookie, serial string) Job {
	t.Helper()
	createTestBit(t, cookie, serial)
	w := httptest.NewRecorder()
	handleCreateJob(w, authedRequest("POST", "/api/v1/jobs", fmt.Sprintf(`{"bit_serial":%q}`, serial), cookie))
	if w.Code != 200 {
		t.Fatalf("create job failed: %d %s", w.Code, w.Body.String())
	}
	var j Job
	testutil.DecodeEnvelope(t, w, &j)
	return j
}

func moveJob(t *testing.T, cookie *http.Cookie, jobID, status string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	handleUpdateJob(w, authedRequest("PUT", "/api/v1/jobs/"+jobID, fmt.Sprintf(`{"status":%q}`, status), cookie), jobID)
	return w
}

func TestCreateJobMarksBitInShop(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)

	j := createTestJob(t, cookie, "SN-1001")
	if j.Status != "received" {
		t.Errorf("new job status = %q, want received", j.Status)
	}
	if j.Customer != "Apex Drilling" {
		t.Errorf("customer not inherited from bit: %q", j.Customer)
	}

	var bitStatus string
	db.QueryRow("SELECT status FROM bits WHERE serial_number='SN-1001'").Scan(&bitStatus)
	if bitStatus != "in_shop" {
		t.Errorf("bit status = %q, want in_shop", bitStatus)
	}
}

func TestCreateJobRejectsSecondOpenJob(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)

	createTestJob(t, cookie, "SN-1002")
	w := httptest.NewRecorder()
	handleCreateJob(w, authedRequest("POST", "/api/v1/jobs", `{"bit_serial":"SN-1002"}`, cookie))
	if w.Code != 409 {
		t.Errorf("expected 409, got %d %s", w.Code, w.Body.String())
	}
}

func TestJobWorkflowTransitions(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)
	j := createTestJob(t, cookie, "SN-1003")

	// received cannot jump straight to qc
	if w := moveJob(t, cookie, j.ID, "qc"); w.Code != 409 {
		t.Errorf("received->qc: expected 409, got %d", w.Code)
	}

	for _, status := range []string{"evaluation", "repair", "qc"} {
		if w := moveJob(t, cookie, j.ID, status); w.Code != 200 {
			t.Fatalf("move to %s failed: %d %s", status, w.Code, w.Body.String())
		}
	}

	// qc can fail back to repair
	if w := moveJob(t, cookie, j.ID, "repair"); w.Code != 200 {
		t.Errorf("qc->repair rejected: %d", w.Code)
	}
	if w := moveJob(t, cookie, j.ID, "qc"); w.Code != 200 {
		t.Fatal("repair->qc failed")
	}

	w := moveJob(t, cookie, j.ID, "shipped")
	if w.Code != 200 {
		t.Fatalf("ship failed: %d %s", w.Code, w.Body.String())
	}
	var shipped Job
	testutil.DecodeEnvelope(t, w, &shipped)
	if shipped.ShippedAt == nil {
		t.Error("shipped_at not stamped")
	}

	var bitStatus string
	db.QueryRow("SELECT status FROM bits WHERE serial_number='SN-1003'").Scan(&bitStatus)
	if bitStatus != "in_service" {
		t.Errorf("bit status after shipping = %q, want in_service", bitStatus)
	}

	// shipped is terminal
	if w := moveJob(t, cookie, j.ID, "repair"); w.Code != 409 {
		t.Errorf("shipped->repair: expected 409, got %d", w.Code)
	}
}

func TestJobHoldResumesToEvaluation(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)
	j := createTestJob(t, cookie, "SN-1004")

	moveJob(t, cookie, j.ID, "evaluation")
	moveJob(t, cookie, j.ID, "repair")
	if w := moveJob(t, cookie, j.ID, "on_hold"); w.Code != 200 {
		t.Fatalf("hold failed: %d", w.Code)
	}
	if w := moveJob(t, cookie, j.ID, "repair"); w.Code != 409 {
		t.Errorf("on_hold->repair: expected 409, got %d", w.Code)
	}
	if w := moveJob(t, cookie, j.ID, "evaluation"); w.Code != 200 {
		t.Errorf("on_hold->evaluation rejected: %d", w.Code)
	}
}

func TestCutterMapSnapshotAndStatus(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)
	j := createTestJob(t, cookie, "SN-1005")

	w := httptest.NewRecorder()
	handleCreateMap(w, authedRequest("POST", "/api/v1/jobs/"+j.ID+"/maps", `{"stage":"as_received"}`, cookie), j.ID)
	if w.Code != 200 {
		t.Fatalf("create map failed: %d %s", w.Code, w.Body.String())
	}
	var m CutterMap
	testutil.DecodeEnvelope(t, w, &m)
	if len(m.Cells) != 3 {
		t.Fatalf("snapshot has %d cells, want 3 (seed grid)", len(m.Cells))
	}
	for _, c := range m.Cells {
		if c.Status != "missing" {
			t.Errorf("fresh cell status = %q, want missing", c.Status)
		}
	}

	// Duplicate stage refused
	w = httptest.NewRecorder()
	handleCreateMap(w, authedRequest("POST", "/api/v1/jobs/"+j.ID+"/maps", `{"stage":"as_received"}`, cookie), j.ID)
	if w.Code != 409 {
		t.Errorf("duplicate stage: expected 409, got %d", w.Code)
	}

	mapID := fmt.Sprintf("%d", m.ID)

	// Matching cutter
	w = httptest.NewRecorder()
	handleUpdateMapCell(w, authedRequest("PUT", "/api/v1/jobs/"+j.ID+"/maps/"+mapID+"/cells", `{"blade":1,"pocket":1,"actual_cutter":"PDC-1308"}`, cookie), j.ID, mapID)
	var cell MapCell
	testutil.DecodeEnvelope(t, w, &cell)
	if cell.Status != "match" {
		t.Errorf("status = %q, want match", cell.Status)
	}

	// Substitute cutter
	w = httptest.NewRecorder()
	handleUpdateMapCell(w, authedRequest("PUT", "/api/v1/jobs/"+j.ID+"/maps/"+mapID+"/cells", `{"blade":1,"pocket":2,"actual_cutter":"PDC-1613"}`, cookie), j.ID, mapID)
	testutil.DecodeEnvelope(t, w, &cell)
	if cell.Status != "substitute" {
		t.Errorf("status = %q, want substitute", cell.Status)
	}

	w = httptest.NewRecorder()
	handleMapSummary(w, authedRequest("GET", "/api/v1/jobs/"+j.ID+"/maps/"+mapID+"/summary", "", cookie), j.ID, mapID)
	var sum MapSummary
	testutil.DecodeEnvelope(t, w, &sum)
	if sum.Match != 1 || sum.Substitute != 1 || sum.Missing != 1 {
		t.Errorf("summary = %+v", sum)
	}
	want := 2.0 / 3.0
	if diff := sum.Completion - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("completion = %v, want %v", sum.Completion, want)
	}
}

func TestIssueToJobDrawsByCategory(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)
	j := createTestJob(t, cookie, "SN-1006")
	moveJob(t, cookie, j.ID, "evaluation")
	moveJob(t, cookie, j.ID, "repair")

	// Seed: PDC-1308 has 200 new + 40 reclaimed
	w := httptest.NewRecorder()
	handleIssueToJob(w, authedRequest("POST", "/api/v1/jobs/"+j.ID+"/issue", `{"cutter_type":"PDC-1308","qty":50}`, cookie), j.ID)
	if w.Code != 200 {
		t.Fatalf("issue failed: %d %s", w.Code, w.Body.String())
	}

	b, err := loadBalance("PDC-1308")
	if err != nil {
		t.Fatal(err)
	}
	if b.ByCategory["reclaimed"] != 0 {
		t.Errorf("reclaimed balance = %d, want 0 (drawn first)", b.ByCategory["reclaimed"])
	}
	if b.ByCategory["new"] != 190 {
		t.Errorf("new balance = %d, want 190", b.ByCategory["new"])
	}
	if b.Total != 190 {
		t.Errorf("total = %d, want 190", b.Total)
	}
}

func TestIssueToJobRejectsShortfall(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)
	j := createTestJob(t, cookie, "SN-1007")
	moveJob(t, cookie, j.ID, "evaluation")

	w := httptest.NewRecorder()
	handleIssueToJob(w, authedRequest("POST", "/api/v1/jobs/"+j.ID+"/issue", `{"cutter_type":"PDC-1613","qty":500}`, cookie), j.ID)
	if w.Code != 409 {
		t.Fatalf("expected 409, got %d %s", w.Code, w.Body.String())
	}

	// Nothing partial was written
	b, _ := loadBalance("PDC-1613")
	if b.Total != 80 {
		t.Errorf("balance after rejected issue = %d, want 80", b.Total)
	}
}

func TestIssueToJobPinnedCategory(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)
	j := createTestJob(t, cookie, "SN-1008")
	moveJob(t, cookie, j.ID, "evaluation")

	w := httptest.NewRecorder()
	handleIssueToJob(w, authedRequest("POST", "/api/v1/jobs/"+j.ID+"/issue", `{"cutter_type":"PDC-1308","qty":5,"category":"new"}`, cookie), j.ID)
	if w.Code != 200 {
		t.Fatalf("pinned issue failed: %d %s", w.Code, w.Body.String())
	}

	b, _ := loadBalance("PDC-1308")
	if b.ByCategory["new"] != 195 || b.ByCategory["reclaimed"] != 40 {
		t.Errorf("balances = %+v, pinned draw should not touch reclaimed", b.ByCategory)
	}
}
