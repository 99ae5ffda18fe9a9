package main

import (
	"net/http"
	"time"

	"fms/internal/audit"
)

const ncrCols = "id,title,COALESCE(description,''),COALESCE(job_id,''),COALESCE(cutter_type,''),severity,status,COALESCE(disposition,''),COALESCE(root_cause,''),COALESCE(corrective_action,''),COALESCE(created_by,''),created_at,resolved_at"

func scanNCR(row interface{ Scan(...interface{}) error }) (NCR, error) {
	var n NCR
	err := row.Scan(&n.ID, &n.Title, &n.Description, &n.JobID, &n.CutterType, &n.Severity, &n.Status,
		&n.Disposition, &n.RootCause, &n.CorrectiveAction, &n.CreatedBy, &n.CreatedAt, &n.ResolvedAt)
	return n, err
}

func handleListNCRs(w http.ResponseWriter, r *http.Request) {
	query := "SELECT " + ncrCols + " FROM ncrs"
	var conds []string
	var args []interface{}
	if s := r.URL.Query().Get("status"); s != "" {
		conds = append(conds, "status=?")
		args = append(args, s)
	}
	if s := r.URL.Query().Get("severity"); s != "" {
		conds = append(conds, "severity=?")
		args = append(args, s)
	}
	if j := r.URL.Query().Get("job_id"); j != "" {
		conds = append(conds, "job_id=?")
		args = append(args, j)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.Query(query, args...)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []NCR
	for rows.Next() {
		n, err := scanNCR(rows)
		if err != nil {
			continue
		}
		items = append(items, n)
	}
	if items == nil {
		items = []NCR{}
	}
	jsonResp(w, items)
}

func handleGetNCR(w http.ResponseWriter, r *http.Request, id string) {
	n, err := scanNCR(db.QueryRow("SELECT "+ncrCols+" FROM ncrs WHERE id=?", id))
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}
	jsonResp(w, n)
}

func handleCreateNCR(w http.ResponseWriter, r *http.Request) {
	var n NCR
	if err := decodeBody(r, &n); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}

	ve := &ValidationErrors{}
	requireField(ve, "title", n.Title)
	validateMaxLength(ve, "title", n.Title, 300)
	if n.Severity != "" {
		validateEnum(ve, "severity", n.Severity, validNCRSeverities)
	}
	if ve.HasErrors() {
		jsonErr(w, ve.Error(), 400)
		return
	}

	if n.JobID != "" {
		var exists int
		db.QueryRow("SELECT COUNT(*) FROM jobs WHERE id=?", n.JobID).Scan(&exists)
		if exists == 0 {
			jsonErr(w, "unknown job "+n.JobID, 400)
			return
		}
	}
	if n.CutterType != "" {
		var exists int
		db.QueryRow("SELECT COUNT(*) FROM cutter_types WHERE id=?", n.CutterType).Scan(&exists)
		if exists == 0 {
			jsonErr(w, "unknown cutter type "+n.CutterType, 400)
			return
		}
	}

	n.ID = nextID("NCR", "ncrs", 3)
	if n.Severity == "" {
		n.Severity = "minor"
	}
	n.Status = "open"
	n.CreatedBy = getUsername(r)
	now := time.Now().Format("2006-01-02 15:04:05")
	_, err := db.Exec("INSERT INTO ncrs (id,title,description,job_id,cutter_type,severity,status,created_by,created_at) VALUES (?,?,?,?,?,?,?,?,?)",
		n.ID, n.Title, n.Description, n.JobID, n.CutterType, n.Severity, n.Status, n.CreatedBy, now)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	n.CreatedAt = now
	logAudit(n.CreatedBy, audit.ActionCreate, "ncr", n.ID, "Opened NCR "+n.ID+": "+n.Title)
	broadcast("ncr", "create", n.ID)
	jsonResp(w, n)
}

func handleUpdateNCR(w http.ResponseWriter, r *http.Request, id string) {
	cur, err := scanNCR(db.QueryRow("SELECT "+ncrCols+" FROM ncrs WHERE id=?", id))
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}
	if cur.Status == "closed" {
		jsonErr(w, "NCR "+id+" is closed", 409)
		return
	}

	var body struct {
		Title            *string `json:"title"`
		Description      *string `json:"description"`
		Severity         *string `json:"severity"`
		Status           *string `json:"status"`
		Disposition      *string `json:"disposition"`
		RootCause        *string `json:"root_cause"`
		CorrectiveAction *string `json:"corrective_action"`
	}
	if err := decodeBody(r, &body); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}
	if body.Title != nil {
		cur.Title = *body.Title
	}
	if body.Description != nil {
		cur.Description = *body.Description
	}
	if body.Severity != nil {
		cur.Severity = *body.Severity
	}
	if body.Disposition != nil {
		cur.Disposition = *body.Disposition
	}
	if body.RootCause != nil {
		cur.RootCause = *body.RootCause
	}
	if body.CorrectiveAction != nil {
		cur.CorrectiveAction = *body.CorrectiveAction
	}
	newStatus := cur.Status
	if body.Status != nil {
		newStatus = *body.Status
	}

	ve := &ValidationErrors{}
	requireField(ve, "title", cur.Title)
	validateEnum(ve, "severity", cur.Severity, validNCRSeverities)
	validateEnum(ve, "status", newStatus, validNCRStatuses)
	if cur.Disposition != "" {
		validateEnum(ve, "disposition", cur.Disposition, validDispositions)
	}
	if ve.HasErrors() {
		jsonErr(w, ve.Error(), 400)
		return
	}

	// Resolution requires a disposition on record
	if (newStatus == "resolved" || newStatus == "closed") && cur.Disposition == "" {
		jsonErr(w, "a disposition is required before resolving an NCR", 409)
		return
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	if (newStatus == "resolved" || newStatus == "closed") && cur.ResolvedAt == nil {
		_, err = db.Exec("UPDATE ncrs SET title=?,description=?,severity=?,status=?,disposition=?,root_cause=?,corrective_action=?,resolved_at=? WHERE id=?",
			cur.Title, cur.Description, cur.Severity, newStatus, cur.Disposition, cur.RootCause, cur.CorrectiveAction, now, id)
	} else {
		_, err = db.Exec("UPDATE ncrs SET title=?,description=?,severity=?,status=?,disposition=?,root_cause=?,corrective_action=? WHERE id=?",
			cur.Title, cur.Description, cur.Severity, newStatus, cur.Disposition, cur.RootCause, cur.CorrectiveAction, id)
	}
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	logAudit(getUsername(r), audit.ActionUpdate, "ncr", id, "Updated NCR "+id+" ("+newStatus+")")
	broadcast("ncr", "update", id)
	handleGetNCR(w, r, id)
}
