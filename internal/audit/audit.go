// Package audit writes and queries the append-only audit_log table.
package audit

import (
	"database/sql"
	"log"
	"net/http"
	"strings"

	"fms/internal/models"
	"fms/internal/websocket"
)

// Action constants.
const (
	ActionCreate  = "created"
	ActionUpdate  = "updated"
	ActionDelete  = "deleted"
	ActionLogin   = "login"
	ActionLogout  = "logout"
	ActionExport  = "exported"
	ActionIssue   = "issued"
	ActionReceive = "received"
)

// Log inserts one audit row and broadcasts the change to websocket
// clients. Audit failures are logged, never surfaced to the caller.
func Log(db *sql.DB, hub *websocket.Hub, username, action, module, recordID, summary string) {
	_, err := db.Exec("INSERT INTO audit_log (username, action, module, record_id, summary) VALUES (?, ?, ?, ?, ?)",
		username, action, module, recordID, summary)
	if err != nil {
		log.Printf("audit: %v", err)
	}
	if hub != nil {
		hub.BroadcastChange(module, action, recordID)
	}
}

// Username resolves the acting user from the session cookie, falling
// back to "system" for background work and unauthenticated calls.
func Username(db *sql.DB, r *http.Request) string {
	cookie, err := r.Cookie("fms_session")
	if err != nil {
		return "system"
	}
	var username string
	err = db.QueryRow("SELECT u.username FROM users u JOIN sessions s ON u.id = s.user_id WHERE s.token = ?", cookie.Value).Scan(&username)
	if err != nil {
		return "system"
	}
	return username
}

// List returns recent audit entries, optionally filtered by module
// and/or record id.
func List(db *sql.DB, module, recordID string, limit int) ([]models.AuditEntry, error) {
	q := "SELECT id, username, action, module, record_id, COALESCE(summary,''), created_at FROM audit_log"
	var conds []string
	var args []interface{}
	if module != "" {
		conds = append(conds, "module = ?")
		args = append(args, module)
	}
	if recordID != "" {
		conds = append(conds, "record_id = ?")
		args = append(args, recordID)
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.Username, &e.Action, &e.Module, &e.RecordID, &e.Summary, &e.CreatedAt); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return entries, nil
}
