package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"fms/internal/audit"
	"fms/internal/forecast"
	"fms/internal/grid"
)

func scanJob(row interface{ Scan(...interface{}) error }) (Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.BitSerial, &j.DesignID, &j.Customer, &j.Status, &j.Priority, &j.Notes,
		&j.PromisedDate, &j.ReceivedAt, &j.ShippedAt, &j.CreatedAt, &j.UpdatedAt)
	return j, err
}

const jobCols = "id,bit_serial,design_id,COALESCE(customer,''),status,priority,COALESCE(notes,''),COALESCE(promised_date,''),received_at,shipped_at,created_at,updated_at"

func handleListJobs(w http.ResponseWriter, r *http.Request) {
	query := "SELECT " + jobCols + " FROM jobs"
	var conds []string
	var args []interface{}
	if s := r.URL.Query().Get("status"); s != "" {
		conds = append(conds, "status=?")
		args = append(args, s)
	}
	if d := r.URL.Query().Get("design_id"); d != "" {
		conds = append(conds, "design_id=?")
		args = append(args, d)
	}
	if c := r.URL.Query().Get("customer"); c != "" {
		conds = append(conds, "customer LIKE ?")
		args = append(args, "%"+c+"%")
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
	var items []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			continue
		}
		items = append(items, j)
	}
	if items == nil {
		items = []Job{}
	}
	jsonResp(w, items)
}

func handleGetJob(w http.ResponseWriter, r *http.Request, id string) {
	j, err := scanJob(db.QueryRow("SELECT "+jobCols+" FROM jobs WHERE id=?", id))
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}
	jsonResp(w, j)
}

func handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var j Job
	if err := decodeBody(r, &j); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}

	ve := &ValidationErrors{}
	requireField(ve, "bit_serial", j.BitSerial)
	if j.Priority != "" {
		validateEnum(ve, "priority", j.Priority, validJobPriorities)
	}
	if j.PromisedDate != "" {
		validateDate(ve, "promised_date", j.PromisedDate)
	}
	if ve.HasErrors() {
		jsonErr(w, ve.Error(), 400)
		return
	}

	var bit Bit
	err := db.QueryRow("SELECT serial_number,design_id,COALESCE(customer,''),status FROM bits WHERE serial_number=?", j.BitSerial).
		Scan(&bit.SerialNumber, &bit.DesignID, &bit.Customer, &bit.Status)
	if err != nil {
		jsonErr(w, "unknown bit "+j.BitSerial, 400)
		return
	}
	if bit.Status == "scrapped" {
		jsonErr(w, "bit "+j.BitSerial+" is scrapped", 409)
		return
	}
	var open int
	db.QueryRow("SELECT COUNT(*) FROM jobs WHERE bit_serial=? AND status NOT IN ('shipped','cancelled')", j.BitSerial).Scan(&open)
	if open > 0 {
		jsonErr(w, "bit "+j.BitSerial+" already has an open job", 409)
		return
	}

	j.ID = nextID("JOB", "jobs", 4)
	j.DesignID = bit.DesignID
	if j.Customer == "" {
		j.Customer = bit.Customer
	}
	if j.Priority == "" {
		j.Priority = "normal"
	}
	j.Status = "received"
	now := time.Now().Format("2006-01-02 15:04:05")
	_, err = db.Exec("INSERT INTO jobs (id,bit_serial,design_id,customer,status,priority,notes,promised_date,received_at,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)",
		j.ID, j.BitSerial, j.DesignID, j.Customer, j.Status, j.Priority, j.Notes, j.PromisedDate, now, now, now)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	db.Exec("UPDATE bits SET status='in_shop' WHERE serial_number=?", j.BitSerial)
	j.ReceivedAt, j.CreatedAt, j.UpdatedAt = now, now, now

	logAudit(getUsername(r), audit.ActionCreate, "job", j.ID, "Opened repair job "+j.ID+" for bit "+j.BitSerial)
	broadcast("job", "create", j.ID)
	jsonResp(w, j)
}

func handleUpdateJob(w http.ResponseWriter, r *http.Request, id string) {
	cur, err := scanJob(db.QueryRow("SELECT "+jobCols+" FROM jobs WHERE id=?", id))
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}

	var body struct {
		Status       *string `json:"status"`
		Priority     *string `json:"priority"`
		Customer     *string `json:"customer"`
		Notes        *string `json:"notes"`
		PromisedDate *string `json:"promised_date"`
	}
	if err := decodeBody(r, &body); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}

	newStatus := cur.Status
	if body.Status != nil && *body.Status != cur.Status {
		newStatus = *body.Status
		ve := &ValidationErrors{}
		validateEnum(ve, "status", newStatus, validJobStatuses)
		if ve.HasErrors() {
			jsonErr(w, ve.Error(), 400)
			return
		}
		if !isValidJobTransition(cur.Status, newStatus) {
			jsonErr(w, fmt.Sprintf("cannot move job from %s to %s", cur.Status, newStatus), 409)
			return
		}
	}
	if body.Priority != nil {
		cur.Priority = *body.Priority
	}
	if body.Customer != nil {
		cur.Customer = *body.Customer
	}
	if body.Notes != nil {
		cur.Notes = *body.Notes
	}
	if body.PromisedDate != nil {
		cur.PromisedDate = *body.PromisedDate
	}

	ve := &ValidationErrors{}
	validateEnum(ve, "priority", cur.Priority, validJobPriorities)
	if cur.PromisedDate != "" {
		validateDate(ve, "promised_date", cur.PromisedDate)
	}
	if ve.HasErrors() {
		jsonErr(w, ve.Error(), 400)
		return
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	if newStatus == "shipped" && cur.Status != "shipped" {
		_, err = db.Exec("UPDATE jobs SET status=?,priority=?,customer=?,notes=?,promised_date=?,shipped_at=?,updated_at=? WHERE id=?",
			newStatus, cur.Priority, cur.Customer, cur.Notes, cur.PromisedDate, now, now, id)
	} else {
		_, err = db.Exec("UPDATE jobs SET status=?,priority=?,customer=?,notes=?,promised_date=?,updated_at=? WHERE id=?",
			newStatus, cur.Priority, cur.Customer, cur.Notes, cur.PromisedDate, now, id)
	}
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	// A closed job releases the bit back to service
	if newStatus == "shipped" || newStatus == "cancelled" {
		db.Exec("UPDATE bits SET status='in_service' WHERE serial_number=? AND status='in_shop'", cur.BitSerial)
	}

	if newStatus != cur.Status {
		logAudit(getUsername(r), audit.ActionUpdate, "job", id, fmt.Sprintf("Job %s moved %s -> %s", id, cur.Status, newStatus))
	} else {
		logAudit(getUsername(r), audit.ActionUpdate, "job", id, "Updated job "+id)
	}
	broadcast("job", "update", id)
	handleGetJob(w, r, id)
}

// Cutter maps

func loadMapCells(mapID int) []MapCell {
	rows, err := db.Query("SELECT id,map_id,blade,pocket,is_primary,COALESCE(required_cutter,''),COALESCE(actual_cutter,''),status FROM map_cells WHERE map_id=? ORDER BY blade,pocket,is_primary DESC", mapID)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var cells []MapCell
	for rows.Next() {
		var c MapCell
		rows.Scan(&c.ID, &c.MapID, &c.Blade, &c.Pocket, &c.IsPrimary, &c.RequiredCutter, &c.ActualCutter, &c.Status)
		cells = append(cells, c)
	}
	return cells
}

func handleListMaps(w http.ResponseWriter, r *http.Request, jobID string) {
	var exists int
	db.QueryRow("SELECT COUNT(*) FROM jobs WHERE id=?", jobID).Scan(&exists)
	if exists == 0 {
		jsonErr(w, "not found", 404)
		return
	}
	rows, err := db.Query("SELECT id,job_id,stage,COALESCE(created_by,''),created_at FROM cutter_maps WHERE job_id=? ORDER BY id", jobID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []CutterMap
	for rows.Next() {
		var m CutterMap
		rows.Scan(&m.ID, &m.JobID, &m.Stage, &m.CreatedBy, &m.CreatedAt)
		items = append(items, m)
	}
	if items == nil {
		items = []CutterMap{}
	}
	jsonResp(w, items)
}

// handleCreateMap snapshots the design grid as the map's required side.
func handleCreateMap(w http.ResponseWriter, r *http.Request, jobID string) {
	var designID, jobStatus string
	err := db.QueryRow("SELECT design_id,status FROM jobs WHERE id=?", jobID).Scan(&designID, &jobStatus)
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}
	if jobStatus == "shipped" || jobStatus == "cancelled" {
		jsonErr(w, "job "+jobID+" is closed", 409)
		return
	}

	var m CutterMap
	if err := decodeBody(r, &m); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}

	ve := &ValidationErrors{}
	requireField(ve, "stage", m.Stage)
	validateEnum(ve, "stage", m.Stage, validMapStages)
	if ve.HasErrors() {
		jsonErr(w, ve.Error(), 400)
		return
	}

	gridCells, err := loadGridCells(designID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	if len(gridCells) == 0 {
		jsonErr(w, "design "+designID+" has no grid to snapshot", 409)
		return
	}

	tx, err := db.Begin()
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	now := time.Now().Format("2006-01-02 15:04:05")
	createdBy := getUsername(r)
	res, err := tx.Exec("INSERT INTO cutter_maps (job_id,stage,created_by,created_at) VALUES (?,?,?,?)",
		jobID, m.Stage, createdBy, now)
	if err != nil {
		jsonErr(w, "a "+m.Stage+" map already exists for "+jobID, 409)
		return
	}
	mapID, _ := res.LastInsertId()

	for _, c := range gridCells {
		primary := 0
		if c.IsPrimary {
			primary = 1
		}
		status := grid.CellStatus(c.CutterType, "")
		if _, err := tx.Exec("INSERT INTO map_cells (map_id,blade,pocket,is_primary,required_cutter,actual_cutter,status) VALUES (?,?,?,?,?,'',?)",
			mapID, c.Blade, c.Pocket, primary, c.CutterType, status); err != nil {
			jsonErr(w, err.Error(), 500)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	m.ID = int(mapID)
	m.JobID = jobID
	m.CreatedBy = createdBy
	m.CreatedAt = now
	m.Cells = loadMapCells(m.ID)
	logAudit(createdBy, audit.ActionCreate, "map", jobID, fmt.Sprintf("Created %s map for %s (%d cells)", m.Stage, jobID, len(m.Cells)))
	broadcast("map", "create", m.ID)
	jsonResp(w, m)
}

func findMap(jobID, mapIDStr string) (CutterMap, error) {
	var m CutterMap
	mapID, err := strconv.Atoi(mapIDStr)
	if err != nil {
		return m, fmt.Errorf("invalid map id")
	}
	err = db.QueryRow("SELECT id,job_id,stage,COALESCE(created_by,''),created_at FROM cutter_maps WHERE id=? AND job_id=?", mapID, jobID).
		Scan(&m.ID, &m.JobID, &m.Stage, &m.CreatedBy, &m.CreatedAt)
	return m, err
}

func handleGetMap(w http.ResponseWriter, r *http.Request, jobID, mapIDStr string) {
	m, err := findMap(jobID, mapIDStr)
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}
	m.Cells = loadMapCells(m.ID)
	jsonResp(w, m)
}

// handleUpdateMapCell records the observed cutter at one position and
// rederives the cell status.
func handleUpdateMapCell(w http.ResponseWriter, r *http.Request, jobID, mapIDStr string) {
	m, err := findMap(jobID, mapIDStr)
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}

	var body struct {
		Blade        int    `json:"blade"`
		Pocket       int    `json:"pocket"`
		IsPrimary    *bool  `json:"is_primary"`
		ActualCutter string `json:"actual_cutter"`
	}
	if err := decodeBody(r, &body); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}
	primary := 1
	if body.IsPrimary != nil && !*body.IsPrimary {
		primary = 0
	}

	var cellID int
	var required string
	err = db.QueryRow("SELECT id,COALESCE(required_cutter,'') FROM map_cells WHERE map_id=? AND blade=? AND pocket=? AND is_primary=?",
		m.ID, body.Blade, body.Pocket, primary).Scan(&cellID, &required)
	if err != nil {
		jsonErr(w, fmt.Sprintf("no cell at blade %d pocket %d", body.Blade, body.Pocket), 404)
		return
	}

	status := grid.CellStatus(required, body.ActualCutter)
	_, err = db.Exec("UPDATE map_cells SET actual_cutter=?,status=? WHERE id=?", body.ActualCutter, status, cellID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	broadcast("map", "update", m.ID)

	var c MapCell
	db.QueryRow("SELECT id,map_id,blade,pocket,is_primary,COALESCE(required_cutter,''),COALESCE(actual_cutter,''),status FROM map_cells WHERE id=?", cellID).
		Scan(&c.ID, &c.MapID, &c.Blade, &c.Pocket, &c.IsPrimary, &c.RequiredCutter, &c.ActualCutter, &c.Status)
	jsonResp(w, c)
}

func handleMapSummary(w http.ResponseWriter, r *http.Request, jobID, mapIDStr string) {
	m, err := findMap(jobID, mapIDStr)
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}
	var sum grid.Summary
	for _, c := range loadMapCells(m.ID) {
		sum.Add(c.Status)
	}
	jsonResp(w, MapSummary{
		MapID:      m.ID,
		Stage:      m.Stage,
		Match:      sum.Match,
		Substitute: sum.Substitute,
		Missing:    sum.Missing,
		Extra:      sum.Extra,
		Empty:      sum.Empty,
		Completion: sum.Completion(),
	})
}

func handleJobBOM(w http.ResponseWriter, r *http.Request, jobID string) {
	var designID string
	err := db.QueryRow("SELECT design_id FROM jobs WHERE id=?", jobID).Scan(&designID)
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}
	lines, err := designBOM(designID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	jsonResp(w, lines)
}

// categoryBalances sums the ledger for one cutter type by category. The
// querier lets issue paths read inside their write transaction.
func categoryBalances(q interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
}, cutterType string) (map[string]int, error) {
	rows, err := q.Query("SELECT category, COALESCE(SUM(qty),0) FROM cutter_transactions WHERE cutter_type=? GROUP BY category", cutterType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	balances := make(map[string]int)
	for rows.Next() {
		var cat string
		var qty int
		rows.Scan(&cat, &qty)
		balances[cat] = qty
	}
	return balances, nil
}

// handleIssueToJob draws cutters from stock against a repair job. The
// quantity is split across ownership categories by draw priority unless
// the caller pins one.
func handleIssueToJob(w http.ResponseWriter, r *http.Request, jobID string) {
	var jobStatus string
	err := db.QueryRow("SELECT status FROM jobs WHERE id=?", jobID).Scan(&jobStatus)
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}
	if jobStatus == "shipped" || jobStatus == "cancelled" || jobStatus == "on_hold" {
		jsonErr(w, "job "+jobID+" is not accepting issues ("+jobStatus+")", 409)
		return
	}

	var body struct {
		CutterType string `json:"cutter_type"`
		Qty        int    `json:"qty"`
		Category   string `json:"category"`
		Notes      string `json:"notes"`
	}
	if err := decodeBody(r, &body); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}

	ve := &ValidationErrors{}
	requireField(ve, "cutter_type", body.CutterType)
	validatePositiveInt(ve, "qty", body.Qty)
	if body.Category != "" {
		validateEnum(ve, "category", body.Category, validCategories)
	}
	if ve.HasErrors() {
		jsonErr(w, ve.Error(), 400)
		return
	}

	var exists int
	db.QueryRow("SELECT COUNT(*) FROM cutter_types WHERE id=?", body.CutterType).Scan(&exists)
	if exists == 0 {
		jsonErr(w, "unknown cutter type "+body.CutterType, 400)
		return
	}

	// Plan against balances read inside the write transaction so a
	// concurrent issue cannot invalidate the draw plan after the fact.
	tx, err := db.Begin()
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()
	balances, err := categoryBalances(tx, body.CutterType)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	draws, err := forecast.PlanIssue(balances, body.Qty, body.Category)
	if err != nil {
		jsonErr(w, err.Error(), 409)
		return
	}
	now := time.Now().Format("2006-01-02 15:04:05")
	user := getUsername(r)
	for _, d := range draws {
		if _, err := tx.Exec("INSERT INTO cutter_transactions (cutter_type,category,type,qty,reference,notes,created_by,created_at) VALUES (?,?,'issue',?,?,?,?,?)",
			body.CutterType, d.Category, -d.Qty, jobID, body.Notes, user, now); err != nil {
			jsonErr(w, err.Error(), 500)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	logAudit(user, audit.ActionIssue, "inventory", jobID, fmt.Sprintf("Issued %d x %s to %s", body.Qty, body.CutterType, jobID))
	broadcast("inventory", "update", body.CutterType)
	jsonResp(w, draws)
}
