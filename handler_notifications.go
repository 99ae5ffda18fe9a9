package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

func handleListNotifications(w http.ResponseWriter, r *http.Request) {
	query := "SELECT id,type,severity,title,COALESCE(message,''),COALESCE(record_id,''),COALESCE(module,''),read_at,created_at FROM notifications"
	if r.URL.Query().Get("unread") == "true" {
		query += " WHERE read_at IS NULL"
	}
	query += " ORDER BY created_at DESC LIMIT 200"
	rows, err := db.Query(query)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []Notification
	for rows.Next() {
		var n Notification
		rows.Scan(&n.ID, &n.Type, &n.Severity, &n.Title, &n.Message, &n.RecordID, &n.Module, &n.ReadAt, &n.CreatedAt)
		items = append(items, n)
	}
	if items == nil {
		items = []Notification{}
	}
	jsonResp(w, items)
}

func handleMarkNotificationRead(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		jsonErr(w, "invalid notification id", 400)
		return
	}
	now := time.Now().Format("2006-01-02 15:04:05")
	res, err := db.Exec("UPDATE notifications SET read_at=? WHERE id=? AND read_at IS NULL", now, id)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		jsonErr(w, "not found", 404)
		return
	}
	jsonResp(w, map[string]string{"status": "read"})
}

// notify inserts a notification unless an unread one already exists for
// the same type and record.
func notify(kind, severity, title, message, recordID, module string) {
	var dup int
	db.QueryRow("SELECT COUNT(*) FROM notifications WHERE type=? AND record_id=? AND read_at IS NULL", kind, recordID).Scan(&dup)
	if dup > 0 {
		return
	}
	db.Exec("INSERT INTO notifications (type,severity,title,message,record_id,module) VALUES (?,?,?,?,?,?)",
		kind, severity, title, message, recordID, module)
	broadcast("notification", "create", recordID)
}

// generateNotifications scans for conditions worth flagging: stock
// below safety level, certifications about to expire and overdue
// purchase orders. Runs on a timer from main.
func generateNotifications() {
	lines, err := buildForecast()
	if err == nil {
		for _, l := range lines {
			if l.Shortage > 0 {
				notify("low_stock", "warning",
					"Low stock: "+l.CutterType,
					fmt.Sprintf("Projected %d against safety stock %d. Suggested order: %d.", l.Projected, l.SafetyStock, l.SuggestedOrder),
					l.CutterType, "inventory")
			}
		}
	}

	warnDays := 30
	if cfg != nil && cfg.CertWarningDays > 0 {
		warnDays = cfg.CertWarningDays
	}
	horizon := time.Now().AddDate(0, 0, warnDays).Format("2006-01-02")
	today := time.Now().Format("2006-01-02")
	rows, err := db.Query(`SELECT c.employee_id, e.name, c.kind, c.expires_on
		FROM certifications c JOIN employees e ON e.id = c.employee_id
		WHERE e.active = 1 AND c.expires_on != '' AND c.expires_on <= ? AND c.expires_on >= ?`, horizon, today)
	if err == nil {
		for rows.Next() {
			var empID, name, kind, expires string
			rows.Scan(&empID, &name, &kind, &expires)
			notify("cert_expiring", "warning",
				"Certification expiring: "+name,
				fmt.Sprintf("%s certification for %s expires on %s.", kind, name, expires),
				empID, "employee")
		}
		rows.Close()
	}

	rows, err = db.Query(`SELECT id, expected_date FROM purchase_orders
		WHERE status IN ('sent','confirmed','partial') AND expected_date != '' AND expected_date < ?`, today)
	if err == nil {
		for rows.Next() {
			var poID, expected string
			rows.Scan(&poID, &expected)
			notify("po_overdue", "warning",
				"PO overdue: "+poID,
				fmt.Sprintf("Purchase order %s was expected on %s and is still open.", poID, expected),
				poID, "po")
		}
		rows.Close()
	}
}
