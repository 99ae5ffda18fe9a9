package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"fms/internal/audit"
)

func handleListVendors(w http.ResponseWriter, r *http.Request) {
	rows, err := db.Query("SELECT id,name,COALESCE(contact_name,''),COALESCE(contact_email,''),COALESCE(contact_phone,''),lead_time_days,status,COALESCE(notes,''),created_at FROM vendors ORDER BY id")
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []Vendor
	for rows.Next() {
		var v Vendor
		rows.Scan(&v.ID, &v.Name, &v.ContactName, &v.ContactEmail, &v.ContactPhone, &v.LeadTimeDays, &v.Status, &v.Notes, &v.CreatedAt)
		items = append(items, v)
	}
	if items == nil {
		items = []Vendor{}
	}
	jsonResp(w, items)
}

func handleGetVendor(w http.ResponseWriter, r *http.Request, id string) {
	var v Vendor
	err := db.QueryRow("SELECT id,name,COALESCE(contact_name,''),COALESCE(contact_email,''),COALESCE(contact_phone,''),lead_time_days,status,COALESCE(notes,''),created_at FROM vendors WHERE id=?", id).
		Scan(&v.ID, &v.Name, &v.ContactName, &v.ContactEmail, &v.ContactPhone, &v.LeadTimeDays, &v.Status, &v.Notes, &v.CreatedAt)
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}
	jsonResp(w, v)
}

func handleCreateVendor(w http.ResponseWriter, r *http.Request) {
	var v Vendor
	if err := decodeBody(r, &v); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}

	ve := &ValidationErrors{}
	requireField(ve, "name", v.Name)
	validateMaxLength(ve, "name", v.Name, 200)
	if v.Status != "" {
		validateEnum(ve, "status", v.Status, validVendorStatuses)
	}
	if v.LeadTimeDays < 0 {
		ve.Add("lead_time_days", "must not be negative")
	}
	if ve.HasErrors() {
		jsonErr(w, ve.Error(), 400)
		return
	}

	v.ID = nextID("VEN", "vendors", 3)
	if v.Status == "" {
		v.Status = "active"
	}
	now := time.Now().Format("2006-01-02 15:04:05")
	_, err := db.Exec("INSERT INTO vendors (id,name,contact_name,contact_email,contact_phone,lead_time_days,status,notes,created_at) VALUES (?,?,?,?,?,?,?,?,?)",
		v.ID, v.Name, v.ContactName, v.ContactEmail, v.ContactPhone, v.LeadTimeDays, v.Status, v.Notes, now)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	v.CreatedAt = now
	logAudit(getUsername(r), audit.ActionCreate, "vendor", v.ID, "Added vendor "+v.Name)
	jsonResp(w, v)
}

func handleUpdateVendor(w http.ResponseWriter, r *http.Request, id string) {
	var cur Vendor
	err := db.QueryRow("SELECT id,name,COALESCE(contact_name,''),COALESCE(contact_email,''),COALESCE(contact_phone,''),lead_time_days,status,COALESCE(notes,'') FROM vendors WHERE id=?", id).
		Scan(&cur.ID, &cur.Name, &cur.ContactName, &cur.ContactEmail, &cur.ContactPhone, &cur.LeadTimeDays, &cur.Status, &cur.Notes)
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}

	var body struct {
		Name         *string `json:"name"`
		ContactName  *string `json:"contact_name"`
		ContactEmail *string `json:"contact_email"`
		ContactPhone *string `json:"contact_phone"`
		LeadTimeDays *int    `json:"lead_time_days"`
		Status       *string `json:"status"`
		Notes        *string `json:"notes"`
	}
	if err := decodeBody(r, &body); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}
	if body.Name != nil {
		cur.Name = *body.Name
	}
	if body.ContactName != nil {
		cur.ContactName = *body.ContactName
	}
	if body.ContactEmail != nil {
		cur.ContactEmail = *body.ContactEmail
	}
	if body.ContactPhone != nil {
		cur.ContactPhone = *body.ContactPhone
	}
	if body.LeadTimeDays != nil {
		cur.LeadTimeDays = *body.LeadTimeDays
	}
	if body.Status != nil {
		cur.Status = *body.Status
	}
	if body.Notes != nil {
		cur.Notes = *body.Notes
	}

	ve := &ValidationErrors{}
	requireField(ve, "name", cur.Name)
	validateEnum(ve, "status", cur.Status, validVendorStatuses)
	if cur.LeadTimeDays < 0 {
		ve.Add("lead_time_days", "must not be negative")
	}
	if ve.HasErrors() {
		jsonErr(w, ve.Error(), 400)
		return
	}

	_, err = db.Exec("UPDATE vendors SET name=?,contact_name=?,contact_email=?,contact_phone=?,lead_time_days=?,status=?,notes=? WHERE id=?",
		cur.Name, cur.ContactName, cur.ContactEmail, cur.ContactPhone, cur.LeadTimeDays, cur.Status, cur.Notes, id)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	logAudit(getUsername(r), audit.ActionUpdate, "vendor", id, "Updated vendor "+cur.Name)
	handleGetVendor(w, r, id)
}

// Purchase orders

const poCols = "id,vendor_id,status,COALESCE(notes,''),total,COALESCE(created_by,''),created_at,COALESCE(expected_date,''),received_at"

func scanPO(row interface{ Scan(...interface{}) error }) (PurchaseOrder, error) {
	var p PurchaseOrder
	err := row.Scan(&p.ID, &p.VendorID, &p.Status, &p.Notes, &p.Total, &p.CreatedBy, &p.CreatedAt, &p.ExpectedDate, &p.ReceivedAt)
	return p, err
}

func loadPOLines(poID string) []POLine {
	rows, err := db.Query("SELECT id,po_id,cutter_type,qty_ordered,qty_received,unit_price,COALESCE(notes,'') FROM po_lines WHERE po_id=? ORDER BY id", poID)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var lines []POLine
	for rows.Next() {
		var l POLine
		rows.Scan(&l.ID, &l.POID, &l.CutterType, &l.QtyOrdered, &l.QtyReceived, &l.UnitPrice, &l.Notes)
		lines = append(lines, l)
	}
	return lines
}

func handleListPOs(w http.ResponseWriter, r *http.Request) {
	query := "SELECT " + poCols + " FROM purchase_orders"
	var args []interface{}
	if s := r.URL.Query().Get("status"); s != "" {
		query += " WHERE status=?"
		args = append(args, s)
	}
	query += " ORDER BY created_at DESC"
	rows, err := db.Query(query, args...)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []PurchaseOrder
	for rows.Next() {
		p, err := scanPO(rows)
		if err != nil {
			continue
		}
		items = append(items, p)
	}
	if items == nil {
		items = []PurchaseOrder{}
	}
	jsonResp(w, items)
}

func handleGetPO(w http.ResponseWriter, r *http.Request, id string) {
	p, err := scanPO(db.QueryRow("SELECT "+poCols+" FROM purchase_orders WHERE id=?", id))
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}
	p.Lines = loadPOLines(id)
	jsonResp(w, p)
}

func handleCreatePO(w http.ResponseWriter, r *http.Request) {
	var p PurchaseOrder
	if err := decodeBody(r, &p); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}

	ve := &ValidationErrors{}
	requireField(ve, "vendor_id", p.VendorID)
	if p.ExpectedDate != "" {
		validateDate(ve, "expected_date", p.ExpectedDate)
	}
	if len(p.Lines) == 0 {
		ve.Add("lines", "at least one line is required")
	}
	if ve.HasErrors() {
		jsonErr(w, ve.Error(), 400)
		return
	}

	var vendorStatus string
	err := db.QueryRow("SELECT status FROM vendors WHERE id=?", p.VendorID).Scan(&vendorStatus)
	if err != nil {
		jsonErr(w, "unknown vendor "+p.VendorID, 400)
		return
	}
	if vendorStatus == "blocked" {
		jsonErr(w, "vendor "+p.VendorID+" is blocked", 409)
		return
	}

	total := decimal.Zero
	for i, l := range p.Lines {
		if l.CutterType == "" {
			jsonErr(w, fmt.Sprintf("line %d: cutter_type is required", i+1), 400)
			return
		}
		var exists int
		db.QueryRow("SELECT COUNT(*) FROM cutter_types WHERE id=?", l.CutterType).Scan(&exists)
		if exists == 0 {
			jsonErr(w, fmt.Sprintf("line %d: unknown cutter type %s", i+1, l.CutterType), 400)
			return
		}
		if l.QtyOrdered <= 0 {
			jsonErr(w, fmt.Sprintf("line %d: qty_ordered must be positive", i+1), 400)
			return
		}
		price := decimal.Zero
		if l.UnitPrice != "" {
			price, err = decimal.NewFromString(l.UnitPrice)
			if err != nil || price.IsNegative() {
				jsonErr(w, fmt.Sprintf("line %d: invalid unit_price", i+1), 400)
				return
			}
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(l.QtyOrdered))))
	}

	tx, err := db.Begin()
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	p.ID = nextID("PO", "purchase_orders", 4)
	p.Status = "draft"
	p.Total = total.StringFixed(2)
	p.CreatedBy = getUsername(r)
	now := time.Now().Format("2006-01-02 15:04:05")
	if _, err := tx.Exec("INSERT INTO purchase_orders (id,vendor_id,status,notes,total,created_by,created_at,expected_date) VALUES (?,?,?,?,?,?,?,?)",
		p.ID, p.VendorID, p.Status, p.Notes, p.Total, p.CreatedBy, now, p.ExpectedDate); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	for _, l := range p.Lines {
		price := l.UnitPrice
		if price == "" {
			price = "0"
		}
		if _, err := tx.Exec("INSERT INTO po_lines (po_id,cutter_type,qty_ordered,qty_received,unit_price,notes) VALUES (?,?,?,0,?,?)",
			p.ID, l.CutterType, l.QtyOrdered, price, l.Notes); err != nil {
			jsonErr(w, err.Error(), 500)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	logAudit(p.CreatedBy, audit.ActionCreate, "po", p.ID, fmt.Sprintf("Created PO %s (%d lines, total %s)", p.ID, len(p.Lines), p.Total))
	broadcast("po", "create", p.ID)
	handleGetPO(w, r, p.ID)
}

// poStatusTransitions is the purchasing workflow. Receipts move a PO to
// partial or received via handleReceivePO, not here.
var poStatusTransitions = map[string][]string{
	"draft":     {"sent", "cancelled"},
	"sent":      {"confirmed", "cancelled"},
	"confirmed": {"cancelled"},
	"partial":   {"cancelled"},
	"received":  {},
	"cancelled": {},
}

func handleUpdatePO(w http.ResponseWriter, r *http.Request, id string) {
	cur, err := scanPO(db.QueryRow("SELECT "+poCols+" FROM purchase_orders WHERE id=?", id))
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}

	var body struct {
		Status       *string `json:"status"`
		Notes        *string `json:"notes"`
		ExpectedDate *string `json:"expected_date"`
	}
	if err := decodeBody(r, &body); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}

	newStatus := cur.Status
	if body.Status != nil && *body.Status != cur.Status {
		newStatus = *body.Status
		ve := &ValidationErrors{}
		validateEnum(ve, "status", newStatus, validPOStatuses)
		if ve.HasErrors() {
			jsonErr(w, ve.Error(), 400)
			return
		}
		allowed := false
		for _, s := range poStatusTransitions[cur.Status] {
			if s == newStatus {
				allowed = true
			}
		}
		if !allowed {
			jsonErr(w, fmt.Sprintf("cannot move PO from %s to %s", cur.Status, newStatus), 409)
			return
		}
	}
	if body.Notes != nil {
		cur.Notes = *body.Notes
	}
	if body.ExpectedDate != nil {
		cur.ExpectedDate = *body.ExpectedDate
	}

	ve := &ValidationErrors{}
	if cur.ExpectedDate != "" {
		validateDate(ve, "expected_date", cur.ExpectedDate)
	}
	if ve.HasErrors() {
		jsonErr(w, ve.Error(), 400)
		return
	}

	_, err = db.Exec("UPDATE purchase_orders SET status=?,notes=?,expected_date=? WHERE id=?",
		newStatus, cur.Notes, cur.ExpectedDate, id)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	if newStatus != cur.Status {
		logAudit(getUsername(r), audit.ActionUpdate, "po", id, fmt.Sprintf("PO %s moved %s -> %s", id, cur.Status, newStatus))
	} else {
		logAudit(getUsername(r), audit.ActionUpdate, "po", id, "Updated PO "+id)
	}
	broadcast("po", "update", id)
	handleGetPO(w, r, id)
}

// handleReceivePO books received quantities against PO lines and posts
// matching receive transactions to the cutter ledger.
func handleReceivePO(w http.ResponseWriter, r *http.Request, id string) {
	cur, err := scanPO(db.QueryRow("SELECT "+poCols+" FROM purchase_orders WHERE id=?", id))
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}
	switch cur.Status {
	case "sent", "confirmed", "partial":
	default:
		jsonErr(w, "PO "+id+" is not open for receiving ("+cur.Status+")", 409)
		return
	}

	var body struct {
		Lines []struct {
			LineID int `json:"line_id"`
			Qty    int `json:"qty"`
		} `json:"lines"`
	}
	if err := decodeBody(r, &body); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}
	if len(body.Lines) == 0 {
		jsonErr(w, "no receipt lines given", 400)
		return
	}

	lines := loadPOLines(id)
	byID := make(map[int]POLine, len(lines))
	for _, l := range lines {
		byID[l.ID] = l
	}
	// Aggregate per line so a body naming the same line twice cannot
	// slip past the over-receipt check.
	recv := make(map[int]int, len(body.Lines))
	var order []int
	for _, rl := range body.Lines {
		l, ok := byID[rl.LineID]
		if !ok {
			jsonErr(w, fmt.Sprintf("line %d does not belong to %s", rl.LineID, id), 400)
			return
		}
		if rl.Qty <= 0 {
			jsonErr(w, fmt.Sprintf("line %d: receipt qty must be positive", rl.LineID), 400)
			return
		}
		if _, seen := recv[rl.LineID]; !seen {
			order = append(order, rl.LineID)
		}
		recv[rl.LineID] += rl.Qty
		if l.QtyReceived+recv[rl.LineID] > l.QtyOrdered {
			jsonErr(w, fmt.Sprintf("line %d: receiving %d would exceed ordered %d (already received %d)",
				rl.LineID, recv[rl.LineID], l.QtyOrdered, l.QtyReceived), 409)
			return
		}
	}

	tx, err := db.Begin()
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()
	now := time.Now().Format("2006-01-02 15:04:05")
	user := getUsername(r)
	for _, lineID := range order {
		l := byID[lineID]
		qty := recv[lineID]
		if _, err := tx.Exec("UPDATE po_lines SET qty_received=qty_received+? WHERE id=?", qty, lineID); err != nil {
			jsonErr(w, err.Error(), 500)
			return
		}
		if _, err := tx.Exec("INSERT INTO cutter_transactions (cutter_type,category,type,qty,reference,created_by,created_at) VALUES (?,'new','receive',?,?,?,?)",
			l.CutterType, qty, id, user, now); err != nil {
			jsonErr(w, err.Error(), 500)
			return
		}
	}

	// Roll up PO status from line completion
	var remaining int
	if err := tx.QueryRow("SELECT COALESCE(SUM(qty_ordered - qty_received),0) FROM po_lines WHERE po_id=?", id).Scan(&remaining); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	newStatus := "partial"
	if remaining == 0 {
		newStatus = "received"
		if _, err := tx.Exec("UPDATE purchase_orders SET status=?,received_at=? WHERE id=?", newStatus, now, id); err != nil {
			jsonErr(w, err.Error(), 500)
			return
		}
	} else {
		if _, err := tx.Exec("UPDATE purchase_orders SET status=? WHERE id=?", newStatus, id); err != nil {
			jsonErr(w, err.Error(), 500)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	logAudit(user, audit.ActionReceive, "po", id, fmt.Sprintf("Received %d lines on %s (%s)", len(body.Lines), id, newStatus))
	broadcast("po", "update", id)
	broadcast("inventory", "update", id)
	handleGetPO(w, r, id)
}
