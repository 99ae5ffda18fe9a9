package main

import (
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"fms/internal/testutil"
)

func TestGenerateNotificationsDedup(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)

	// Certification expiring inside the warning window
	soon := time.Now().AddDate(0, 0, 10).Format("2006-01-02")
	empID := "EMP-" + seedYear() + "-001"
	if _, err := db.Exec("INSERT INTO certifications (employee_id,kind,issued_on,expires_on) VALUES (?,?,?,?)",
		empID, "qc-l1", "2025-01-01", soon); err != nil {
		t.Fatal(err)
	}

	// Overdue PO
	p := createTestPO(t, cookie)
	movePO(t, cookie, p.ID, "sent")
	yesterday := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	if _, err := db.Exec("UPDATE purchase_orders SET expected_date=? WHERE id=?", yesterday, p.ID); err != nil {
		t.Fatal(err)
	}

	generateNotifications()
	generateNotifications()

	w := httptest.NewRecorder()
	handleListNotifications(w, authedRequest("GET", "/api/v1/notifications?unread=true", "", cookie))
	var items []Notification
	testutil.DecodeEnvelope(t, w, &items)

	counts := map[string]int{}
	for _, n := range items {
		counts[n.Type+"/"+n.RecordID]++
	}
	if counts["cert_expiring/"+empID] != 1 {
		t.Errorf("cert_expiring count = %d, want 1 (deduped)", counts["cert_expiring/"+empID])
	}
	if counts["po_overdue/"+p.ID] != 1 {
		t.Errorf("po_overdue count = %d, want 1 (deduped)", counts["po_overdue/"+p.ID])
	}
}

func TestMarkNotificationRead(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)

	notify("low_stock", "warning", "Low stock: PDC-1613", "test", "PDC-1613", "inventory")

	w := httptest.NewRecorder()
	handleListNotifications(w, authedRequest("GET", "/api/v1/notifications?unread=true", "", cookie))
	var items []Notification
	testutil.DecodeEnvelope(t, w, &items)
	if len(items) != 1 {
		t.Fatalf("got %d notifications, want 1", len(items))
	}
	id := strconv.Itoa(items[0].ID)

	w = httptest.NewRecorder()
	handleMarkNotificationRead(w, authedRequest("POST", "/api/v1/notifications/"+id+"/read", "", cookie), id)
	if w.Code != 200 {
		t.Fatalf("mark read failed: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	handleListNotifications(w, authedRequest("GET", "/api/v1/notifications?unread=true", "", cookie))
	items = nil
	testutil.DecodeEnvelope(t, w, &items)
	if len(items) != 0 {
		t.Errorf("%d unread after marking read, want 0", len(items))
	}

	// Already read
	w = httptest.NewRecorder()
	handleMarkNotificationRead(w, authedRequest("POST", "/api/v1/notifications/"+id+"/read", "", cookie), id)
	if w.Code != 404 {
		t.Errorf("re-read: expected 404, got %d", w.Code)
	}
}

func TestHRCertifications(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	cookie := loginAdmin(t)
	empID := "EMP-" + seedYear() + "-002"

	w := httptest.NewRecorder()
	handleAddCertification(w, authedRequest("POST", "/api/v1/employees/"+empID+"/certs",
		`{"kind":"grind-l1","issued_on":"2026-01-15","expires_on":"2028-01-15"}`, cookie), empID)
	if w.Code != 200 {
		t.Fatalf("add cert failed: %d %s", w.Code, w.Body.String())
	}
	var c Certification
	testutil.DecodeEnvelope(t, w, &c)

	w = httptest.NewRecorder()
	handleGetEmployee(w, authedRequest("GET", "/api/v1/employees/"+empID, "", cookie), empID)
	var e Employee
	testutil.DecodeEnvelope(t, w, &e)
	if len(e.Certs) != 1 {
		t.Fatalf("got %d certs, want 1", len(e.Certs))
	}

	certID := strconv.Itoa(c.ID)
	w = httptest.NewRecorder()
	handleDeleteCertification(w, authedRequest("DELETE", "/api/v1/employees/"+empID+"/certs/"+certID, "", cookie), empID, certID)
	if w.Code != 200 {
		t.Fatalf("delete cert failed: %d", w.Code)
	}
}
