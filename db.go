package main

import (
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

var db *sql.DB

func initDB(path string) error {
	// Close previous connection if any (prevents goroutine leaks in tests)
	if db != nil {
		db.Close()
	}
	var err error
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err = sql.Open("sqlite", path+sep+"_journal_mode=WAL&_busy_timeout=10000&_foreign_keys=1")
	if err != nil {
		return err
	}

	// SQLite handles 1 writer + multiple readers with WAL mode
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	// Some drivers don't parse connection string params correctly
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000"); err != nil {
		return fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	return runMigrations()
}

func runMigrations() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			display_name TEXT,
			role TEXT DEFAULT 'user',
			active INTEGER DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_login DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT DEFAULT 'system',
			action TEXT NOT NULL,
			module TEXT NOT NULL,
			record_id TEXT NOT NULL,
			summary TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS employees (
			id TEXT PRIMARY KEY,
			badge TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			craft TEXT DEFAULT '' CHECK(craft IN ('','braze','eval','grind','qc','office')),
			email TEXT DEFAULT '',
			active INTEGER DEFAULT 1,
			hired_on TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS certifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			employee_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			issued_on TEXT DEFAULT '',
			expires_on TEXT DEFAULT '',
			notes TEXT DEFAULT '',
			FOREIGN KEY (employee_id) REFERENCES employees(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS bit_designs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			size_in REAL DEFAULT 0 CHECK(size_in >= 0),
			blade_count INTEGER NOT NULL CHECK(blade_count > 0),
			max_pockets INTEGER NOT NULL CHECK(max_pockets > 0),
			ordering_scheme TEXT DEFAULT 'continuous' CHECK(ordering_scheme IN ('continuous','reset_per_type','engagement')),
			notes TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS grid_cells (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			design_id TEXT NOT NULL,
			blade INTEGER NOT NULL CHECK(blade > 0),
			pocket INTEGER NOT NULL CHECK(pocket > 0),
			is_primary INTEGER NOT NULL DEFAULT 1,
			cutter_type TEXT DEFAULT '',
			seq INTEGER DEFAULT 0,
			UNIQUE(design_id, blade, pocket, is_primary),
			FOREIGN KEY (design_id) REFERENCES bit_designs(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS bits (
			serial_number TEXT PRIMARY KEY,
			design_id TEXT NOT NULL,
			customer TEXT DEFAULT '',
			status TEXT DEFAULT 'in_service' CHECK(status IN ('in_service','in_shop','scrapped')),
			notes TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (design_id) REFERENCES bit_designs(id) ON DELETE RESTRICT
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			bit_serial TEXT NOT NULL,
			design_id TEXT NOT NULL,
			customer TEXT DEFAULT '',
			status TEXT DEFAULT 'received' CHECK(status IN ('received','evaluation','repair','qc','shipped','on_hold','cancelled')),
			priority TEXT DEFAULT 'normal' CHECK(priority IN ('low','normal','high','critical')),
			notes TEXT DEFAULT '',
			promised_date TEXT DEFAULT '',
			received_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			shipped_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (design_id) REFERENCES bit_designs(id) ON DELETE RESTRICT
		)`,
		`CREATE TABLE IF NOT EXISTS cutter_maps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL,
			stage TEXT NOT NULL CHECK(stage IN ('as_received','as_built','post_eval','final')),
			created_by TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(job_id, stage),
			FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS map_cells (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			map_id INTEGER NOT NULL,
			blade INTEGER NOT NULL,
			pocket INTEGER NOT NULL,
			is_primary INTEGER NOT NULL DEFAULT 1,
			required_cutter TEXT DEFAULT '',
			actual_cutter TEXT DEFAULT '',
			status TEXT DEFAULT 'empty' CHECK(status IN ('empty','missing','extra','match','substitute')),
			UNIQUE(map_id, blade, pocket, is_primary),
			FOREIGN KEY (map_id) REFERENCES cutter_maps(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS cutter_types (
			id TEXT PRIMARY KEY,
			description TEXT DEFAULT '',
			diameter_mm REAL DEFAULT 0 CHECK(diameter_mm >= 0),
			length_mm REAL DEFAULT 0 CHECK(length_mm >= 0),
			substrate TEXT DEFAULT '',
			active INTEGER DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS cutter_transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cutter_type TEXT NOT NULL,
			category TEXT NOT NULL CHECK(category IN ('new','reclaimed','ground','vendor_return')),
			type TEXT NOT NULL CHECK(type IN ('receive','issue','adjust','scrap','return')),
			qty INTEGER NOT NULL,
			reference TEXT DEFAULT '',
			notes TEXT DEFAULT '',
			created_by TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS vendors (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			contact_name TEXT DEFAULT '',
			contact_email TEXT DEFAULT '',
			contact_phone TEXT DEFAULT '',
			lead_time_days INTEGER DEFAULT 0 CHECK(lead_time_days >= 0),
			status TEXT DEFAULT 'active' CHECK(status IN ('active','preferred','inactive','blocked')),
			notes TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS purchase_orders (
			id TEXT PRIMARY KEY,
			vendor_id TEXT NOT NULL,
			status TEXT DEFAULT 'draft' CHECK(status IN ('draft','sent','confirmed','partial','received','cancelled')),
			notes TEXT DEFAULT '',
			total TEXT DEFAULT '0',
			created_by TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			expected_date TEXT DEFAULT '',
			received_at DATETIME,
			FOREIGN KEY (vendor_id) REFERENCES vendors(id) ON DELETE RESTRICT
		)`,
		`CREATE TABLE IF NOT EXISTS po_lines (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			po_id TEXT NOT NULL,
			cutter_type TEXT NOT NULL,
			qty_ordered INTEGER NOT NULL CHECK(qty_ordered > 0),
			qty_received INTEGER DEFAULT 0 CHECK(qty_received >= 0),
			unit_price TEXT DEFAULT '0',
			notes TEXT DEFAULT '',
			FOREIGN KEY (po_id) REFERENCES purchase_orders(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS ncrs (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT DEFAULT '',
			job_id TEXT DEFAULT '',
			cutter_type TEXT DEFAULT '',
			severity TEXT DEFAULT 'minor' CHECK(severity IN ('minor','major','critical')),
			status TEXT DEFAULT 'open' CHECK(status IN ('open','investigating','resolved','closed')),
			disposition TEXT DEFAULT '' CHECK(disposition IN ('','use_as_is','rework','scrap','return_to_vendor')),
			root_cause TEXT DEFAULT '',
			corrective_action TEXT DEFAULT '',
			created_by TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			resolved_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			severity TEXT DEFAULT 'info',
			title TEXT NOT NULL,
			message TEXT DEFAULT '',
			record_id TEXT DEFAULT '',
			module TEXT DEFAULT '',
			read_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, t := range tables {
		if _, err := db.Exec(t); err != nil {
			return fmt.Errorf("migration error: %w\nSQL: %s", err, t)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)",
		"CREATE INDEX IF NOT EXISTS idx_audit_log_module ON audit_log(module)",
		"CREATE INDEX IF NOT EXISTS idx_audit_log_record_id ON audit_log(record_id)",
		"CREATE INDEX IF NOT EXISTS idx_audit_log_created_at ON audit_log(created_at)",
		"CREATE INDEX IF NOT EXISTS idx_certifications_employee_id ON certifications(employee_id)",
		"CREATE INDEX IF NOT EXISTS idx_certifications_expires_on ON certifications(expires_on)",
		"CREATE INDEX IF NOT EXISTS idx_grid_cells_design_id ON grid_cells(design_id)",
		"CREATE INDEX IF NOT EXISTS idx_bits_design_id ON bits(design_id)",
		"CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)",
		"CREATE INDEX IF NOT EXISTS idx_jobs_design_id ON jobs(design_id)",
		"CREATE INDEX IF NOT EXISTS idx_jobs_bit_serial ON jobs(bit_serial)",
		"CREATE INDEX IF NOT EXISTS idx_cutter_maps_job_id ON cutter_maps(job_id)",
		"CREATE INDEX IF NOT EXISTS idx_map_cells_map_id ON map_cells(map_id)",
		"CREATE INDEX IF NOT EXISTS idx_cutter_transactions_type ON cutter_transactions(cutter_type)",
		"CREATE INDEX IF NOT EXISTS idx_cutter_transactions_created_at ON cutter_transactions(created_at)",
		"CREATE INDEX IF NOT EXISTS idx_cutter_transactions_type_cat ON cutter_transactions(cutter_type, category)",
		"CREATE INDEX IF NOT EXISTS idx_purchase_orders_vendor_id ON purchase_orders(vendor_id)",
		"CREATE INDEX IF NOT EXISTS idx_purchase_orders_status ON purchase_orders(status)",
		"CREATE INDEX IF NOT EXISTS idx_po_lines_po_id ON po_lines(po_id)",
		"CREATE INDEX IF NOT EXISTS idx_po_lines_cutter_type ON po_lines(cutter_type)",
		"CREATE INDEX IF NOT EXISTS idx_ncrs_status ON ncrs(status)",
		"CREATE INDEX IF NOT EXISTS idx_ncrs_job_id ON ncrs(job_id)",
		"CREATE INDEX IF NOT EXISTS idx_notifications_read_at ON notifications(read_at)",
		"CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at)",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("index creation: %w\nSQL: %s", err, idx)
		}
	}
	return nil
}

func seedDB() {
	// Always ensure admin user exists
	var userCount int
	db.QueryRow("SELECT COUNT(*) FROM users WHERE username = 'admin'").Scan(&userCount)
	if userCount == 0 {
		hash, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("Failed to hash admin password: %v", err)
		} else {
			db.Exec("INSERT INTO users (username, password_hash, display_name, role) VALUES (?, ?, ?, ?)",
				"admin", string(hash), "Administrator", "admin")
		}
	}

	// Check if already seeded
	var count int
	db.QueryRow("SELECT COUNT(*) FROM bit_designs").Scan(&count)
	if count > 0 {
		return
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	year := time.Now().Format("2006")

	// Designs
	db.Exec(`INSERT INTO bit_designs (id,name,size_in,blade_count,max_pockets,ordering_scheme,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		"DSN-"+year+"-001", "FX65 8.5in", 8.5, 6, 8, "continuous", now, now)
	db.Exec(`INSERT INTO bit_designs (id,name,size_in,blade_count,max_pockets,ordering_scheme,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		"DSN-"+year+"-002", "GT54 12.25in", 12.25, 5, 7, "engagement", now, now)

	// A small grid for the first design
	db.Exec(`INSERT INTO grid_cells (design_id,blade,pocket,is_primary,cutter_type,seq) VALUES (?,?,?,?,?,?)`,
		"DSN-"+year+"-001", 1, 1, 1, "PDC-1308", 1)
	db.Exec(`INSERT INTO grid_cells (design_id,blade,pocket,is_primary,cutter_type,seq) VALUES (?,?,?,?,?,?)`,
		"DSN-"+year+"-001", 1, 2, 1, "PDC-1308", 2)
	db.Exec(`INSERT INTO grid_cells (design_id,blade,pocket,is_primary,cutter_type,seq) VALUES (?,?,?,?,?,?)`,
		"DSN-"+year+"-001", 2, 1, 1, "PDC-1613", 3)

	// Cutter types
	db.Exec(`INSERT INTO cutter_types (id,description,diameter_mm,length_mm,substrate) VALUES (?,?,?,?,?)`,
		"PDC-1308", "13mm round, 8mm tall", 13, 8, "carbide")
	db.Exec(`INSERT INTO cutter_types (id,description,diameter_mm,length_mm,substrate) VALUES (?,?,?,?,?)`,
		"PDC-1613", "16mm round, 13mm tall", 16, 13, "carbide")

	// Opening ledger balances
	db.Exec(`INSERT INTO cutter_transactions (cutter_type,category,type,qty,reference,notes,created_at) VALUES (?,?,?,?,?,?,?)`,
		"PDC-1308", "new", "receive", 200, "PO-"+year+"-0001", "Opening stock", now)
	db.Exec(`INSERT INTO cutter_transactions (cutter_type,category,type,qty,reference,created_at) VALUES (?,?,?,?,?,?)`,
		"PDC-1308", "reclaimed", "receive", 40, "RECLAIM", now)
	db.Exec(`INSERT INTO cutter_transactions (cutter_type,category,type,qty,reference,created_at) VALUES (?,?,?,?,?,?)`,
		"PDC-1613", "new", "receive", 80, "PO-"+year+"-0001", now)

	// Vendors
	db.Exec(`INSERT INTO vendors (id,name,contact_name,contact_email,status,lead_time_days) VALUES (?,?,?,?,?,?)`,
		"VEN-"+year+"-001", "US Synthetic", "Sales Team", "sales@ussynthetic.example", "preferred", 21)
	db.Exec(`INSERT INTO vendors (id,name,status,lead_time_days) VALUES (?,?,?,?)`,
		"VEN-"+year+"-002", "Element Six", "active", 28)

	// Employees
	db.Exec(`INSERT INTO employees (id,badge,name,craft,active,hired_on) VALUES (?,?,?,?,?,?)`,
		"EMP-"+year+"-001", "1001", "R. Alvarez", "braze", 1, "2022-03-14")
	db.Exec(`INSERT INTO employees (id,badge,name,craft,active,hired_on) VALUES (?,?,?,?,?,?)`,
		"EMP-"+year+"-002", "1002", "K. Osei", "qc", 1, "2023-08-01")
	db.Exec(`INSERT INTO certifications (employee_id,kind,issued_on,expires_on) VALUES (?,?,?,?)`,
		"EMP-"+year+"-001", "braze-l2", "2025-01-10", "2027-01-10")
}

// ID generation helpers
func nextID(prefix string, table string, digits int) string {
	year := time.Now().Format("2006")
	pattern := prefix + "-" + year + "-%"
	var maxID sql.NullString
	db.QueryRow("SELECT id FROM "+table+" WHERE id LIKE ? ORDER BY id DESC LIMIT 1", pattern).Scan(&maxID)

	next := 1
	if maxID.Valid {
		parts := strings.Split(maxID.String, "-")
		if len(parts) >= 3 {
			if n, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
				next = n + 1
			}
		}
	}
	return fmt.Sprintf("%s-%s-%0*d", prefix, year, digits, next)
}
