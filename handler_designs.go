package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"fms/internal/audit"
	"fms/internal/grid"
)

func handleListDesigns(w http.ResponseWriter, r *http.Request) {
	rows, err := db.Query("SELECT id,name,size_in,blade_count,max_pockets,ordering_scheme,COALESCE(notes,''),created_at,updated_at FROM bit_designs ORDER BY id")
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []BitDesign
	for rows.Next() {
		var d BitDesign
		rows.Scan(&d.ID, &d.Name, &d.SizeIn, &d.BladeCount, &d.MaxPockets, &d.OrderingScheme, &d.Notes, &d.CreatedAt, &d.UpdatedAt)
		items = append(items, d)
	}
	if items == nil {
		items = []BitDesign{}
	}
	jsonResp(w, items)
}

func handleGetDesign(w http.ResponseWriter, r *http.Request, id string) {
	var d BitDesign
	err := db.QueryRow("SELECT id,name,size_in,blade_count,max_pockets,ordering_scheme,COALESCE(notes,''),created_at,updated_at FROM bit_designs WHERE id=?", id).
		Scan(&d.ID, &d.Name, &d.SizeIn, &d.BladeCount, &d.MaxPockets, &d.OrderingScheme, &d.Notes, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}
	jsonResp(w, d)
}

func handleCreateDesign(w http.ResponseWriter, r *http.Request) {
	var d BitDesign
	if err := decodeBody(r, &d); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}

	ve := &ValidationErrors{}
	requireField(ve, "name", d.Name)
	validateMaxLength(ve, "name", d.Name, 200)
	validatePositiveInt(ve, "blade_count", d.BladeCount)
	validatePositiveInt(ve, "max_pockets", d.MaxPockets)
	if d.OrderingScheme != "" {
		validateEnum(ve, "ordering_scheme", d.OrderingScheme, validSchemes)
	}
	if ve.HasErrors() {
		jsonErr(w, ve.Error(), 400)
		return
	}

	d.ID = nextID("DSN", "bit_designs", 3)
	if d.OrderingScheme == "" {
		d.OrderingScheme = grid.SchemeContinuous
	}
	now := time.Now().Format("2006-01-02 15:04:05")
	_, err := db.Exec("INSERT INTO bit_designs (id,name,size_in,blade_count,max_pockets,ordering_scheme,notes,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)",
		d.ID, d.Name, d.SizeIn, d.BladeCount, d.MaxPockets, d.OrderingScheme, d.Notes, now, now)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	d.CreatedAt, d.UpdatedAt = now, now
	logAudit(getUsername(r), audit.ActionCreate, "design", d.ID, "Created design "+d.ID+" "+d.Name)
	jsonResp(w, d)
}

func handleUpdateDesign(w http.ResponseWriter, r *http.Request, id string) {
	var cur BitDesign
	err := db.QueryRow("SELECT id,name,size_in,blade_count,max_pockets,ordering_scheme,COALESCE(notes,'') FROM bit_designs WHERE id=?", id).
		Scan(&cur.ID, &cur.Name, &cur.SizeIn, &cur.BladeCount, &cur.MaxPockets, &cur.OrderingScheme, &cur.Notes)
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}

	var d BitDesign
	if err := decodeBody(r, &d); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}
	if d.Name == "" {
		d.Name = cur.Name
	}
	if d.SizeIn == 0 {
		d.SizeIn = cur.SizeIn
	}
	if d.BladeCount == 0 {
		d.BladeCount = cur.BladeCount
	}
	if d.MaxPockets == 0 {
		d.MaxPockets = cur.MaxPockets
	}
	if d.OrderingScheme == "" {
		d.OrderingScheme = cur.OrderingScheme
	}
	if d.Notes == "" {
		d.Notes = cur.Notes
	}

	ve := &ValidationErrors{}
	validateMaxLength(ve, "name", d.Name, 200)
	validatePositiveInt(ve, "blade_count", d.BladeCount)
	validatePositiveInt(ve, "max_pockets", d.MaxPockets)
	validateEnum(ve, "ordering_scheme", d.OrderingScheme, validSchemes)
	if ve.HasErrors() {
		jsonErr(w, ve.Error(), 400)
		return
	}

	// Shrinking the header must not orphan existing cells
	var outOfBounds int
	db.QueryRow("SELECT COUNT(*) FROM grid_cells WHERE design_id=? AND (blade > ? OR pocket > ?)", id, d.BladeCount, d.MaxPockets).Scan(&outOfBounds)
	if outOfBounds > 0 {
		jsonErr(w, fmt.Sprintf("%d grid cells fall outside the new blade/pocket bounds", outOfBounds), 409)
		return
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	_, err = db.Exec("UPDATE bit_designs SET name=?,size_in=?,blade_count=?,max_pockets=?,ordering_scheme=?,notes=?,updated_at=? WHERE id=?",
		d.Name, d.SizeIn, d.BladeCount, d.MaxPockets, d.OrderingScheme, d.Notes, now, id)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	if d.OrderingScheme != cur.OrderingScheme {
		if err := renumberGrid(id, d.OrderingScheme); err != nil {
			jsonErr(w, err.Error(), 500)
			return
		}
	}
	logAudit(getUsername(r), audit.ActionUpdate, "design", id, "Updated design "+id)
	handleGetDesign(w, r, id)
}

func loadGridCells(designID string) ([]GridCell, error) {
	rows, err := db.Query("SELECT id,design_id,blade,pocket,is_primary,COALESCE(cutter_type,''),seq FROM grid_cells WHERE design_id=? ORDER BY seq, blade, pocket", designID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cells []GridCell
	for rows.Next() {
		var c GridCell
		rows.Scan(&c.ID, &c.DesignID, &c.Blade, &c.Pocket, &c.IsPrimary, &c.CutterType, &c.Seq)
		cells = append(cells, c)
	}
	return cells, nil
}

func handleGetGrid(w http.ResponseWriter, r *http.Request, designID string) {
	var exists int
	db.QueryRow("SELECT COUNT(*) FROM bit_designs WHERE id=?", designID).Scan(&exists)
	if exists == 0 {
		jsonErr(w, "not found", 404)
		return
	}
	cells, err := loadGridCells(designID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	if cells == nil {
		cells = []GridCell{}
	}
	jsonResp(w, cells)
}

// handleUpsertGridCell writes one cell position and renumbers the grid.
func handleUpsertGridCell(w http.ResponseWriter, r *http.Request, designID string) {
	var d BitDesign
	err := db.QueryRow("SELECT blade_count,max_pockets,ordering_scheme FROM bit_designs WHERE id=?", designID).
		Scan(&d.BladeCount, &d.MaxPockets, &d.OrderingScheme)
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}

	var c GridCell
	if err := decodeBody(r, &c); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}
	ve := &ValidationErrors{}
	validateIntRange(ve, "blade", c.Blade, 1, d.BladeCount)
	validateIntRange(ve, "pocket", c.Pocket, 1, d.MaxPockets)
	if ve.HasErrors() {
		jsonErr(w, ve.Error(), 400)
		return
	}

	primary := 0
	if c.IsPrimary {
		primary = 1
	}
	_, err = db.Exec(`INSERT INTO grid_cells (design_id,blade,pocket,is_primary,cutter_type)
		VALUES (?,?,?,?,?)
		ON CONFLICT(design_id,blade,pocket,is_primary) DO UPDATE SET cutter_type=excluded.cutter_type`,
		designID, c.Blade, c.Pocket, primary, c.CutterType)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	if err := renumberGrid(designID, d.OrderingScheme); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	logAudit(getUsername(r), audit.ActionUpdate, "grid", designID, fmt.Sprintf("Set cell b%d p%d on %s", c.Blade, c.Pocket, designID))
	broadcast("grid", "update", designID)
	handleGetGrid(w, r, designID)
}

// gridLayout is the YAML bulk import format for a full design grid.
type gridLayout struct {
	Cells []struct {
		Blade   int    `yaml:"blade"`
		Pocket  int    `yaml:"pocket"`
		Primary *bool  `yaml:"primary"`
		Cutter  string `yaml:"cutter"`
	} `yaml:"cells"`
}

// handleImportGrid replaces the whole grid from a YAML layout file.
func handleImportGrid(w http.ResponseWriter, r *http.Request, designID string) {
	var d BitDesign
	err := db.QueryRow("SELECT blade_count,max_pockets,ordering_scheme FROM bit_designs WHERE id=?", designID).
		Scan(&d.BladeCount, &d.MaxPockets, &d.OrderingScheme)
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		jsonErr(w, "read body: "+err.Error(), 400)
		return
	}
	var layout gridLayout
	if err := yaml.Unmarshal(body, &layout); err != nil {
		jsonErr(w, "invalid YAML: "+err.Error(), 400)
		return
	}
	if len(layout.Cells) == 0 {
		jsonErr(w, "layout has no cells", 400)
		return
	}

	cells := make([]grid.Cell, 0, len(layout.Cells))
	for _, lc := range layout.Cells {
		primary := true
		if lc.Primary != nil {
			primary = *lc.Primary
		}
		cells = append(cells, grid.Cell{Blade: lc.Blade, Pocket: lc.Pocket, IsPrimary: primary, CutterType: lc.Cutter})
	}
	if err := grid.Validate(cells, d.BladeCount, d.MaxPockets); err != nil {
		jsonErr(w, err.Error(), 400)
		return
	}
	numbered, err := grid.Number(cells, d.OrderingScheme)
	if err != nil {
		jsonErr(w, err.Error(), 400)
		return
	}

	tx, err := db.Begin()
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM grid_cells WHERE design_id=?", designID); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	for _, c := range numbered {
		primary := 0
		if c.IsPrimary {
			primary = 1
		}
		if _, err := tx.Exec("INSERT INTO grid_cells (design_id,blade,pocket,is_primary,cutter_type,seq) VALUES (?,?,?,?,?,?)",
			designID, c.Blade, c.Pocket, primary, c.CutterType, c.Seq); err != nil {
			jsonErr(w, err.Error(), 500)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	logAudit(getUsername(r), audit.ActionUpdate, "grid", designID, fmt.Sprintf("Imported %d grid cells for %s", len(numbered), designID))
	broadcast("grid", "update", designID)
	handleGetGrid(w, r, designID)
}

// renumberGrid recomputes sequence numbers for all cells of a design.
func renumberGrid(designID, scheme string) error {
	dbCells, err := loadGridCells(designID)
	if err != nil {
		return err
	}
	cells := make([]grid.Cell, len(dbCells))
	for i, c := range dbCells {
		cells[i] = grid.Cell{Blade: c.Blade, Pocket: c.Pocket, IsPrimary: c.IsPrimary, CutterType: c.CutterType}
	}
	numbered, err := grid.Number(cells, scheme)
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, c := range numbered {
		primary := 0
		if c.IsPrimary {
			primary = 1
		}
		if _, err := tx.Exec("UPDATE grid_cells SET seq=? WHERE design_id=? AND blade=? AND pocket=? AND is_primary=?",
			c.Seq, designID, c.Blade, c.Pocket, primary); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func handleRenumberGrid(w http.ResponseWriter, r *http.Request, designID string) {
	var scheme string
	err := db.QueryRow("SELECT ordering_scheme FROM bit_designs WHERE id=?", designID).Scan(&scheme)
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}
	if err := renumberGrid(designID, scheme); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	logAudit(getUsername(r), audit.ActionUpdate, "grid", designID, "Renumbered grid for "+designID)
	handleGetGrid(w, r, designID)
}

// BOMLine is a per-cutter-type requirement count for one design.
type BOMLine struct {
	CutterType string `json:"cutter_type"`
	Qty        int    `json:"qty"`
}

func designBOM(designID string) ([]BOMLine, error) {
	rows, err := db.Query("SELECT cutter_type, COUNT(*) FROM grid_cells WHERE design_id=? AND cutter_type != '' GROUP BY cutter_type ORDER BY cutter_type", designID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []BOMLine
	for rows.Next() {
		var l BOMLine
		rows.Scan(&l.CutterType, &l.Qty)
		lines = append(lines, l)
	}
	if lines == nil {
		lines = []BOMLine{}
	}
	return lines, nil
}

func handleDesignBOM(w http.ResponseWriter, r *http.Request, designID string) {
	var exists int
	db.QueryRow("SELECT COUNT(*) FROM bit_designs WHERE id=?", designID).Scan(&exists)
	if exists == 0 {
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

// Bit registry

func handleListBits(w http.ResponseWriter, r *http.Request) {
	query := "SELECT serial_number,design_id,COALESCE(customer,''),status,COALESCE(notes,''),created_at FROM bits"
	var args []interface{}
	if s := r.URL.Query().Get("status"); s != "" {
		query += " WHERE status=?"
		args = append(args, s)
	}
	query += " ORDER BY serial_number"
	rows, err := db.Query(query, args...)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []Bit
	for rows.Next() {
		var b Bit
		rows.Scan(&b.SerialNumber, &b.DesignID, &b.Customer, &b.Status, &b.Notes, &b.CreatedAt)
		items = append(items, b)
	}
	if items == nil {
		items = []Bit{}
	}
	jsonResp(w, items)
}

func handleGetBit(w http.ResponseWriter, r *http.Request, serial string) {
	var b Bit
	err := db.QueryRow("SELECT serial_number,design_id,COALESCE(customer,''),status,COALESCE(notes,''),created_at FROM bits WHERE serial_number=?", serial).
		Scan(&b.SerialNumber, &b.DesignID, &b.Customer, &b.Status, &b.Notes, &b.CreatedAt)
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}
	jsonResp(w, b)
}

func handleCreateBit(w http.ResponseWriter, r *http.Request) {
	var b Bit
	if err := decodeBody(r, &b); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}

	ve := &ValidationErrors{}
	requireField(ve, "serial_number", b.SerialNumber)
	requireField(ve, "design_id", b.DesignID)
	if b.Status != "" {
		validateEnum(ve, "status", b.Status, validBitStatuses)
	}
	if ve.HasErrors() {
		jsonErr(w, ve.Error(), 400)
		return
	}

	var exists int
	db.QueryRow("SELECT COUNT(*) FROM bit_designs WHERE id=?", b.DesignID).Scan(&exists)
	if exists == 0 {
		jsonErr(w, "unknown design "+b.DesignID, 400)
		return
	}

	if b.Status == "" {
		b.Status = "in_service"
	}
	now := time.Now().Format("2006-01-02 15:04:05")
	_, err := db.Exec("INSERT INTO bits (serial_number,design_id,customer,status,notes,created_at) VALUES (?,?,?,?,?,?)",
		b.SerialNumber, b.DesignID, b.Customer, b.Status, b.Notes, now)
	if err != nil {
		jsonErr(w, "serial already registered", 409)
		return
	}
	b.CreatedAt = now
	logAudit(getUsername(r), audit.ActionCreate, "bit", b.SerialNumber, "Registered bit "+b.SerialNumber)
	jsonResp(w, b)
}

func handleUpdateBit(w http.ResponseWriter, r *http.Request, serial string) {
	var cur Bit
	err := db.QueryRow("SELECT serial_number,design_id,COALESCE(customer,''),status,COALESCE(notes,'') FROM bits WHERE serial_number=?", serial).
		Scan(&cur.SerialNumber, &cur.DesignID, &cur.Customer, &cur.Status, &cur.Notes)
	if err != nil {
		jsonErr(w, "not found", 404)
		return
	}

	var b Bit
	if err := decodeBody(r, &b); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}
	if b.Customer == "" {
		b.Customer = cur.Customer
	}
	if b.Status == "" {
		b.Status = cur.Status
	}
	if b.Notes == "" {
		b.Notes = cur.Notes
	}

	ve := &ValidationErrors{}
	validateEnum(ve, "status", b.Status, validBitStatuses)
	if ve.HasErrors() {
		jsonErr(w, ve.Error(), 400)
		return
	}

	_, err = db.Exec("UPDATE bits SET customer=?,status=?,notes=? WHERE serial_number=?",
		b.Customer, b.Status, b.Notes, serial)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	logAudit(getUsername(r), audit.ActionUpdate, "bit", serial, "Updated bit "+serial)
	handleGetBit(w, r, serial)
}
