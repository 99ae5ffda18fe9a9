package main

import (
	"net/http"
	"strconv"

	"fms/internal/audit"
)

// Wrappers injecting the global db and websocket hub.

func logAudit(username, action, module, recordID, summary string) {
	audit.Log(db, wsHub, username, action, module, recordID, summary)
}

func getUsername(r *http.Request) string {
	return audit.Username(db, r)
}

func handleAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	entries, err := audit.List(db, r.URL.Query().Get("module"), r.URL.Query().Get("record_id"), limit)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	jsonResp(w, entries)
}
