package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"fms/internal/testutil"
)

func createTestPO(t *testing.T, cookie *http.Cookie) PurchaseOrder {
	t.Helper()
	vendorID := "VEN-" + seedYear() + "-001"
	body := fmt.Sprintf(`{"vendor_id":%q,"lines":[
		{"cutter_type":"PDC-1308","qty_ordered":100,"unit_price":"14.25"},
		{"cutter_type":"PDC-1613","qty_ordered":40,"unit_price":"21.00"}
	]}`, vendorID)
	w := httptest.NewRecorder()
	handleCreatePO(w, authedRequest("POST", "/api/v1/pos", body, cookie))
	if w.Code != 200 {
		t.Fatalf("create PO failed: %d %s", w.Code, w.Body.String())
	}
	var p PurchaseOrder
	testutil.DecodeEnvelope(t, w, &p)
	return p
}

func movePO(t *testing.T, cookie *http.Cookie, id, status string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	handleUpdatePO(w, authedRequest("PUT", "/api/v1/pos/"+id, fmt.Sprintf(`{"status":%q}`, status), cookie), id)
	return w
}

func TestCreatePOComputesTotal(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)

	p := createTestPO(t, cookie)
	// 100*14.25 + 40*21.00 = 1425 + 840 = 2265
	if p.Total != "2265.00" {
		t.Errorf("total = %q, want 2265.00", p.Total)
	}
	if p.Status != "draft" {
		t.Errorf("status = %q, want draft", p.Status)
	}
	if len(p.Lines) != 2 {
		t.Errorf("got %d lines, want 2", len(p.Lines))
	}
}

func TestCreatePORejectsBadLines(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)
	vendorID := "VEN-" + seedYear() + "-001"

	cases := []string{
		fmt.Sprintf(`{"vendor_id":%q,"lines":[]}`, vendorID),
		fmt.Sprintf(`{"vendor_id":%q,"lines":[{"cutter_type":"NOPE","qty_ordered":10}]}`, vendorID),
		fmt.Sprintf(`{"vendor_id":%q,"lines":[{"cutter_type":"PDC-1308","qty_ordered":0}]}`, vendorID),
		fmt.Sprintf(`{"vendor_id":%q,"lines":[{"cutter_type":"PDC-1308","qty_ordered":5,"unit_price":"-2"}]}`, vendorID),
		`{"vendor_id":"VEN-9999-099","lines":[{"cutter_type":"PDC-1308","qty_ordered":5}]}`,
	}
	for _, body := range cases {
		w := httptest.NewRecorder()
		handleCreatePO(w, authedRequest("POST", "/api/v1/pos", body, cookie))
		if w.Code != 400 {
			t.Errorf("body %s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestPOWorkflow(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)
	p := createTestPO(t, cookie)

	// draft cannot be confirmed directly
	if w := movePO(t, cookie, p.ID, "confirmed"); w.Code != 409 {
		t.Errorf("draft->confirmed: expected 409, got %d", w.Code)
	}
	if w := movePO(t, cookie, p.ID, "sent"); w.Code != 200 {
		t.Fatalf("draft->sent failed: %d", w.Code)
	}
	if w := movePO(t, cookie, p.ID, "confirmed"); w.Code != 200 {
		t.Fatalf("sent->confirmed failed: %d", w.Code)
	}
}

func TestReceivePOPostsLedger(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)
	p := createTestPO(t, cookie)
	movePO(t, cookie, p.ID, "sent")

	// Receiving against a draft PO is refused; sent is fine
	body := fmt.Sprintf(`{"lines":[{"line_id":%d,"qty":60}]}`, p.Lines[0].ID)
	w := httptest.NewRecorder()
	handleReceivePO(w, authedRequest("POST", "/api/v1/pos/"+p.ID+"/receive", body, cookie), p.ID)
	if w.Code != 200 {
		t.Fatalf("receive failed: %d %s", w.Code, w.Body.String())
	}
	var got PurchaseOrder
	testutil.DecodeEnvelope(t, w, &got)
	if got.Status != "partial" {
		t.Errorf("status = %q, want partial", got.Status)
	}

	b, _ := loadBalance("PDC-1308")
	if b.ByCategory["new"] != 260 {
		t.Errorf("new balance = %d, want 260 (200 seed + 60)", b.ByCategory["new"])
	}

	// Finish both lines
	body = fmt.Sprintf(`{"lines":[{"line_id":%d,"qty":40},{"line_id":%d,"qty":40}]}`, p.Lines[0].ID, p.Lines[1].ID)
	w = httptest.NewRecorder()
	handleReceivePO(w, authedRequest("POST", "/api/v1/pos/"+p.ID+"/receive", body, cookie), p.ID)
	if w.Code != 200 {
		t.Fatalf("final receive failed: %d %s", w.Code, w.Body.String())
	}
	testutil.DecodeEnvelope(t, w, &got)
	if got.Status != "received" {
		t.Errorf("status = %q, want received", got.Status)
	}
	if got.ReceivedAt == nil {
		t.Error("received_at not stamped")
	}
}

func TestReceivePOAggregatesDuplicateLines(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)
	p := createTestPO(t, cookie)
	movePO(t, cookie, p.ID, "sent")

	// Two entries for the same line must be summed before the
	// over-receipt check, not validated independently
	body := fmt.Sprintf(`{"lines":[{"line_id":%d,"qty":60},{"line_id":%d,"qty":60}]}`, p.Lines[0].ID, p.Lines[0].ID)
	w := httptest.NewRecorder()
	handleReceivePO(w, authedRequest("POST", "/api/v1/pos/"+p.ID+"/receive", body, cookie), p.ID)
	if w.Code != 409 {
		t.Fatalf("duplicate-line over-receipt: expected 409, got %d %s", w.Code, w.Body.String())
	}
	var received int
	db.QueryRow("SELECT qty_received FROM po_lines WHERE id=?", p.Lines[0].ID).Scan(&received)
	if received != 0 {
		t.Errorf("qty_received = %d, want 0 after rejection", received)
	}
	b, _ := loadBalance("PDC-1308")
	if b.ByCategory["new"] != 200 {
		t.Errorf("new balance = %d, want 200 (seed only, no receipts posted)", b.ByCategory["new"])
	}

	// Split entries that fit within the ordered qty still book
	body = fmt.Sprintf(`{"lines":[{"line_id":%d,"qty":60},{"line_id":%d,"qty":40}]}`, p.Lines[0].ID, p.Lines[0].ID)
	w = httptest.NewRecorder()
	handleReceivePO(w, authedRequest("POST", "/api/v1/pos/"+p.ID+"/receive", body, cookie), p.ID)
	if w.Code != 200 {
		t.Fatalf("split receipt failed: %d %s", w.Code, w.Body.String())
	}
	db.QueryRow("SELECT qty_received FROM po_lines WHERE id=?", p.Lines[0].ID).Scan(&received)
	if received != 100 {
		t.Errorf("qty_received = %d, want 100", received)
	}
}

func TestReceivePORejectsOverReceipt(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)
	p := createTestPO(t, cookie)
	movePO(t, cookie, p.ID, "sent")

	body := fmt.Sprintf(`{"lines":[{"line_id":%d,"qty":101}]}`, p.Lines[0].ID)
	w := httptest.NewRecorder()
	handleReceivePO(w, authedRequest("POST", "/api/v1/pos/"+p.ID+"/receive", body, cookie), p.ID)
	if w.Code != 409 {
		t.Errorf("over-receipt: expected 409, got %d %s", w.Code, w.Body.String())
	}
}

func TestReceivePORequiresOpenStatus(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)
	p := createTestPO(t, cookie)

	body := fmt.Sprintf(`{"lines":[{"line_id":%d,"qty":10}]}`, p.Lines[0].ID)
	w := httptest.NewRecorder()
	handleReceivePO(w, authedRequest("POST", "/api/v1/pos/"+p.ID+"/receive", body, cookie), p.ID)
	if w.Code != 409 {
		t.Errorf("receive on draft: expected 409, got %d", w.Code)
	}
}

func TestCreatePOBlockedVendor(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)

	w := httptest.NewRecorder()
	handleCreateVendor(w, authedRequest("POST", "/api/v1/vendors", `{"name":"Bad Actor Inc","status":"blocked"}`, cookie))
	if w.Code != 200 {
		t.Fatalf("create vendor failed: %d", w.Code)
	}
	var v Vendor
	testutil.DecodeEnvelope(t, w, &v)

	body := fmt.Sprintf(`{"vendor_id":%q,"lines":[{"cutter_type":"PDC-1308","qty_ordered":5}]}`, v.ID)
	w = httptest.NewRecorder()
	handleCreatePO(w, authedRequest("POST", "/api/v1/pos", body, cookie))
	if w.Code != 409 {
		t.Errorf("blocked vendor: expected 409, got %d", w.Code)
	}
}
