package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"fms/internal/audit"
	"fms/internal/forecast"
)

func handleListCutterTypes(w http.ResponseWriter, r *http.Request) {
	rows, err := db.Query("SELECT id,COALESCE(description,''),diameter_mm,length_mm,COALESCE(substrate,''),active,created_at FROM cutter_types ORDER BY id")
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []CutterType
	for rows.Next() {
		var c CutterType
		rows.Scan(&c.ID, &c.Description, &c.DiameterMM, &c.LengthMM, &c.Substrate, &c.Active, &c.CreatedAt)
		items = append(items, c)
	}
	if items == nil {
		items = []CutterType{}
	}
	jsonResp(w, items)
}

func handleGetCutterType(w http.ResponseWriter, r *http.Request, id string) {
	var c CutterType
	err := db.QueryRow("SELECT id,COALESCE(description,''),diameter_mm,length_mm,COALESCE(substrate,''),active,created_at FROM cutter_types WHERE id=?", id).
		Scan(&c.ID, &c.Description, &c.DiameterMM, &c.LengthMM, &c.Substrate, &c.Active, &c.CreatedAt)
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}
	jsonResp(w, c)
}

func handleCreateCutterType(w http.ResponseWriter, r *http.Request) {
	var c CutterType
	if err := decodeBody(r, &c); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}

	ve := &ValidationErrors{}
	requireField(ve, "id", c.ID)
	validateMaxLength(ve, "id", c.ID, 50)
	if c.DiameterMM < 0 {
		ve.Add("diameter_mm", "must not be negative")
	}
	if c.LengthMM < 0 {
		ve.Add("length_mm", "must not be negative")
	}
	if ve.HasErrors() {
		jsonErr(w, ve.Error(), 400)
		return
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	_, err := db.Exec("INSERT INTO cutter_types (id,description,diameter_mm,length_mm,substrate,active,created_at) VALUES (?,?,?,?,?,1,?)",
		c.ID, c.Description, c.DiameterMM, c.LengthMM, c.Substrate, now)
	if err != nil {
		jsonErr(w, "cutter type already exists", 409)
		return
	}
	c.Active = true
	c.CreatedAt = now
	logAudit(getUsername(r), audit.ActionCreate, "cutter", c.ID, "Added cutter type "+c.ID)
	jsonResp(w, c)
}

func handleUpdateCutterType(w http.ResponseWriter, r *http.Request, id string) {
	var cur CutterType
	err := db.QueryRow("SELECT id,COALESCE(description,''),diameter_mm,length_mm,COALESCE(substrate,''),active FROM cutter_types WHERE id=?", id).
		Scan(&cur.ID, &cur.Description, &cur.DiameterMM, &cur.LengthMM, &cur.Substrate, &cur.Active)
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}

	var body struct {
		Description *string  `json:"description"`
		DiameterMM  *float64 `json:"diameter_mm"`
		LengthMM    *float64 `json:"length_mm"`
		Substrate   *string  `json:"substrate"`
		Active      *bool    `json:"active"`
	}
	if err := decodeBody(r, &body); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}
	if body.Description != nil {
		cur.Description = *body.Description
	}
	if body.DiameterMM != nil {
		cur.DiameterMM = *body.DiameterMM
	}
	if body.LengthMM != nil {
		cur.LengthMM = *body.LengthMM
	}
	if body.Substrate != nil {
		cur.Substrate = *body.Substrate
	}
	if body.Active != nil {
		cur.Active = *body.Active
	}

	active := 0
	if cur.Active {
		active = 1
	}
	_, err = db.Exec("UPDATE cutter_types SET description=?,diameter_mm=?,length_mm=?,substrate=?,active=? WHERE id=?",
		cur.Description, cur.DiameterMM, cur.LengthMM, cur.Substrate, active, id)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	logAudit(getUsername(r), audit.ActionUpdate, "cutter", id, "Updated cutter type "+id)
	handleGetCutterType(w, r, id)
}

// signedQty applies the ledger sign convention: receives and returns add
// stock, issues and scraps remove it, adjustments carry their own sign.
func signedQty(txnType string, qty int) (int, error) {
	switch txnType {
	case "receive", "return":
		if qty <= 0 {
			return 0, fmt.Errorf("%s qty must be positive", txnType)
		}
		return qty, nil
	case "issue", "scrap":
		if qty <= 0 {
			return 0, fmt.Errorf("%s qty must be positive", txnType)
		}
		return -qty, nil
	case "adjust":
		if qty == 0 {
			return 0, fmt.Errorf("adjust qty must not be zero")
		}
		return qty, nil
	default:
		return 0, fmt.Errorf("unknown transaction type %q", txnType)
	}
}

func handleInventoryTransact(w http.ResponseWriter, r *http.Request) {
	var t CutterTransaction
	if err := decodeBody(r, &t); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}

	ve := &ValidationErrors{}
	requireField(ve, "cutter_type", t.CutterType)
	validateEnum(ve, "category", t.Category, validCategories)
	validateEnum(ve, "type", t.Type, validTxnTypes)
	if ve.HasErrors() {
		jsonErr(w, ve.Error(), 400)
		return
	}

	var exists int
	db.QueryRow("SELECT COUNT(*) FROM cutter_types WHERE id=?", t.CutterType).Scan(&exists)
	if exists == 0 {
		jsonErr(w, "unknown cutter type "+t.CutterType, 400)
		return
	}

	qty, err := signedQty(t.Type, t.Qty)
	if err != nil {
		jsonErr(w, err.Error(), 400)
		return
	}

	// Balance check and insert share a transaction so concurrent
	// withdrawals cannot both pass the guard.
	tx, err := db.Begin()
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()
	if qty < 0 {
		var balance int
		tx.QueryRow("SELECT COALESCE(SUM(qty),0) FROM cutter_transactions WHERE cutter_type=? AND category=?",
			t.CutterType, t.Category).Scan(&balance)
		if balance+qty < 0 {
			jsonErr(w, fmt.Sprintf("insufficient %s stock of %s: have %d, need %d", t.Category, t.CutterType, balance, -qty), 409)
			return
		}
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	user := getUsername(r)
	res, err := tx.Exec("INSERT INTO cutter_transactions (cutter_type,category,type,qty,reference,notes,created_by,created_at) VALUES (?,?,?,?,?,?,?,?)",
		t.CutterType, t.Category, t.Type, qty, t.Reference, t.Notes, user, now)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	lastID, _ := res.LastInsertId()
	if err := tx.Commit(); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	t.ID = int(lastID)
	t.Qty = qty
	t.CreatedBy = user
	t.CreatedAt = now

	logAudit(user, audit.ActionUpdate, "inventory", t.CutterType, fmt.Sprintf("%s %d x %s (%s)", t.Type, qty, t.CutterType, t.Category))
	broadcast("inventory", "update", t.CutterType)
	jsonResp(w, t)
}

func loadBalance(cutterType string) (CutterBalance, error) {
	b := CutterBalance{CutterType: cutterType, ByCategory: make(map[string]int)}
	for _, c := range forecast.Categories {
		b.ByCategory[c] = 0
	}
	cats, err := categoryBalances(db, cutterType)
	if err != nil {
		return b, err
	}
	for cat, qty := range cats {
		b.ByCategory[cat] = qty
		b.Total += qty
	}
	return b, nil
}

func handleListBalances(w http.ResponseWriter, r *http.Request) {
	rows, err := db.Query("SELECT id FROM cutter_types ORDER BY id")
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var types []string
	for rows.Next() {
		var id string
		rows.Scan(&id)
		types = append(types, id)
	}

	items := []CutterBalance{}
	for _, id := range types {
		b, err := loadBalance(id)
		if err != nil {
			jsonErr(w, err.Error(), 500)
			return
		}
		items = append(items, b)
	}
	jsonResp(w, items)
}

func handleGetBalance(w http.ResponseWriter, r *http.Request, cutterType string) {
	var exists int
	db.QueryRow("SELECT COUNT(*) FROM cutter_types WHERE id=?", cutterType).Scan(&exists)
	if exists == 0 {
		jsonErr(w, "not found", 404)
		return
	}
	b, err := loadBalance(cutterType)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	jsonResp(w, b)
}

func handleInventoryHistory(w http.ResponseWriter, r *http.Request, cutterType string) {
	var exists int
	db.QueryRow("SELECT COUNT(*) FROM cutter_types WHERE id=?", cutterType).Scan(&exists)
	if exists == 0 {
		jsonErr(w, "not found", 404)
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	rows, err := db.Query("SELECT id,cutter_type,category,type,qty,COALESCE(reference,''),COALESCE(notes,''),COALESCE(created_by,''),created_at FROM cutter_transactions WHERE cutter_type=? ORDER BY id DESC LIMIT ?",
		cutterType, limit)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []CutterTransaction
	for rows.Next() {
		var t CutterTransaction
		rows.Scan(&t.ID, &t.CutterType, &t.Category, &t.Type, &t.Qty, &t.Reference, &t.Notes, &t.CreatedBy, &t.CreatedAt)
		items = append(items, t)
	}
	if items == nil {
		items = []CutterTransaction{}
	}
	var total int
	db.QueryRow("SELECT COUNT(*) FROM cutter_transactions WHERE cutter_type=?", cutterType).Scan(&total)
	jsonRespMeta(w, items, total, 1, limit)
}
