package main

import (
	"net/http"
	"strconv"
	"time"

	"fms/internal/audit"
)

func handleListEmployees(w http.ResponseWriter, r *http.Request) {
	query := "SELECT id,badge,name,craft,COALESCE(email,''),active,COALESCE(hired_on,''),created_at FROM employees"
	var args []interface{}
	if c := r.URL.Query().Get("craft"); c != "" {
		query += " WHERE craft=?"
		args = append(args, c)
	}
	query += " ORDER BY id"
	rows, err := db.Query(query, args...)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []Employee
	for rows.Next() {
		var e Employee
		rows.Scan(&e.ID, &e.Badge, &e.Name, &e.Craft, &e.Email, &e.Active, &e.HiredOn, &e.CreatedAt)
		items = append(items, e)
	}
	if items == nil {
		items = []Employee{}
	}
	jsonResp(w, items)
}

func loadCerts(employeeID string) []Certification {
	rows, err := db.Query("SELECT id,employee_id,kind,issued_on,COALESCE(expires_on,''),COALESCE(notes,'') FROM certifications WHERE employee_id=? ORDER BY expires_on", employeeID)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var certs []Certification
	for rows.Next() {
		var c Certification
		rows.Scan(&c.ID, &c.EmployeeID, &c.Kind, &c.IssuedOn, &c.ExpiresOn, &c.Notes)
		certs = append(certs, c)
	}
	return certs
}

func handleGetEmployee(w http.ResponseWriter, r *http.Request, id string) {
	var e Employee
	err := db.QueryRow("SELECT id,badge,name,craft,COALESCE(email,''),active,COALESCE(hired_on,''),created_at FROM employees WHERE id=?", id).
		Scan(&e.ID, &e.Badge, &e.Name, &e.Craft, &e.Email, &e.Active, &e.HiredOn, &e.CreatedAt)
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}
	e.Certs = loadCerts(id)
	jsonResp(w, e)
}

func handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var e Employee
	if err := decodeBody(r, &e); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}

	ve := &ValidationErrors{}
	requireField(ve, "badge", e.Badge)
	requireField(ve, "name", e.Name)
	validateMaxLength(ve, "name", e.Name, 200)
	if e.Craft != "" {
		validateEnum(ve, "craft", e.Craft, validCrafts)
	}
	if e.HiredOn != "" {
		validateDate(ve, "hired_on", e.HiredOn)
	}
	if ve.HasErrors() {
		jsonErr(w, ve.Error(), 400)
		return
	}

	e.ID = nextID("EMP", "employees", 3)
	now := time.Now().Format("2006-01-02 15:04:05")
	_, err := db.Exec("INSERT INTO employees (id,badge,name,craft,email,active,hired_on,created_at) VALUES (?,?,?,?,?,1,?,?)",
		e.ID, e.Badge, e.Name, e.Craft, e.Email, e.HiredOn, now)
	if err != nil {
		jsonErr(w, "badge already in use", 409)
		return
	}
	e.Active = true
	e.CreatedAt = now
	logAudit(getUsername(r), audit.ActionCreate, "employee", e.ID, "Added employee "+e.Name)
	jsonResp(w, e)
}

func handleUpdateEmployee(w http.ResponseWriter, r *http.Request, id string) {
	var cur Employee
	err := db.QueryRow("SELECT id,badge,name,craft,COALESCE(email,''),active,COALESCE(hired_on,'') FROM employees WHERE id=?", id).
		Scan(&cur.ID, &cur.Badge, &cur.Name, &cur.Craft, &cur.Email, &cur.Active, &cur.HiredOn)
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}

	var body struct {
		Badge   *string `json:"badge"`
		Name    *string `json:"name"`
		Craft   *string `json:"craft"`
		Email   *string `json:"email"`
		Active  *bool   `json:"active"`
		HiredOn *string `json:"hired_on"`
	}
	if err := decodeBody(r, &body); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}
	if body.Badge != nil {
		cur.Badge = *body.Badge
	}
	if body.Name != nil {
		cur.Name = *body.Name
	}
	if body.Craft != nil {
		cur.Craft = *body.Craft
	}
	if body.Email != nil {
		cur.Email = *body.Email
	}
	if body.Active != nil {
		cur.Active = *body.Active
	}
	if body.HiredOn != nil {
		cur.HiredOn = *body.HiredOn
	}

	ve := &ValidationErrors{}
	requireField(ve, "badge", cur.Badge)
	requireField(ve, "name", cur.Name)
	if cur.Craft != "" {
		validateEnum(ve, "craft", cur.Craft, validCrafts)
	}
	if cur.HiredOn != "" {
		validateDate(ve, "hired_on", cur.HiredOn)
	}
	if ve.HasErrors() {
		jsonErr(w, ve.Error(), 400)
		return
	}

	active := 0
	if cur.Active {
		active = 1
	}
	_, err = db.Exec("UPDATE employees SET badge=?,name=?,craft=?,email=?,active=?,hired_on=? WHERE id=?",
		cur.Badge, cur.Name, cur.Craft, cur.Email, active, cur.HiredOn, id)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	logAudit(getUsername(r), audit.ActionUpdate, "employee", id, "Updated employee "+cur.Name)
	handleGetEmployee(w, r, id)
}

func handleAddCertification(w http.ResponseWriter, r *http.Request, employeeID string) {
	var exists int
	db.QueryRow("SELECT COUNT(*) FROM employees WHERE id=?", employeeID).Scan(&exists)
	if exists == 0 {
		jsonErr(w, "not found", 404)
		return
	}

	var c Certification
	if err := decodeBody(r, &c); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}

	ve := &ValidationErrors{}
	requireField(ve, "kind", c.Kind)
	requireField(ve, "issued_on", c.IssuedOn)
	validateDate(ve, "issued_on", c.IssuedOn)
	if c.ExpiresOn != "" {
		validateDate(ve, "expires_on", c.ExpiresOn)
	}
	if ve.HasErrors() {
		jsonErr(w, ve.Error(), 400)
		return
	}

	res, err := db.Exec("INSERT INTO certifications (employee_id,kind,issued_on,expires_on,notes) VALUES (?,?,?,?,?)",
		employeeID, c.Kind, c.IssuedOn, c.ExpiresOn, c.Notes)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	lastID, _ := res.LastInsertId()
	c.ID = int(lastID)
	c.EmployeeID = employeeID
	logAudit(getUsername(r), audit.ActionCreate, "certification", employeeID, "Added "+c.Kind+" certification for "+employeeID)
	jsonResp(w, c)
}

func handleDeleteCertification(w http.ResponseWriter, r *http.Request, employeeID, certID string) {
	id, err := strconv.Atoi(certID)
	if err != nil {
		jsonErr(w, "invalid certification id", 400)
		return
	}
	res, err := db.Exec("DELETE FROM certifications WHERE id=? AND employee_id=?", id, employeeID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		jsonErr(w, "not found", 404)
		return
	}
	logAudit(getUsername(r), audit.ActionDelete, "certification", employeeID, "Removed certification "+certID+" from "+employeeID)
	jsonResp(w, map[string]string{"status": "deleted"})
}
