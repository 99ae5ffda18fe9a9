package models

// APIResponse is the standard JSON envelope for all API responses.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Total int `json:"total,omitempty"`
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

type Employee struct {
	ID        string  `json:"id"`
	Badge     string  `json:"badge"`
	Name      string  `json:"name"`
	Craft     string  `json:"craft"`
	Email     string  `json:"email"`
	Active    bool    `json:"active"`
	HiredOn   string  `json:"hired_on"`
	CreatedAt string  `json:"created_at"`
	Certs     []Certification `json:"certs,omitempty"`
}

type Certification struct {
	ID         int    `json:"id"`
	EmployeeID string `json:"employee_id"`
	Kind       string `json:"kind"`
	IssuedOn   string `json:"issued_on"`
	ExpiresOn  string `json:"expires_on"`
	Notes      string `json:"notes"`
}

type BitDesign struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	SizeIn         float64 `json:"size_in"`
	BladeCount     int    `json:"blade_count"`
	MaxPockets     int    `json:"max_pockets"`
	OrderingScheme string `json:"ordering_scheme"`
	Notes          string `json:"notes"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type GridCell struct {
	ID         int    `json:"id"`
	DesignID   string `json:"design_id"`
	Blade      int    `json:"blade"`
	Pocket     int    `json:"pocket"`
	IsPrimary  bool   `json:"is_primary"`
	CutterType string `json:"cutter_type"`
	Seq        int    `json:"seq"`
}

type Bit struct {
	SerialNumber string `json:"serial_number"`
	DesignID     string `json:"design_id"`
	Customer     string `json:"customer"`
	Status       string `json:"status"`
	Notes        string `json:"notes"`
	CreatedAt    string `json:"created_at"`
}

type Job struct {
	ID           string  `json:"id"`
	BitSerial    string  `json:"bit_serial"`
	DesignID     string  `json:"design_id"`
	Customer     string  `json:"customer"`
	Status       string  `json:"status"`
	Priority     string  `json:"priority"`
	Notes        string  `json:"notes"`
	PromisedDate string  `json:"promised_date"`
	ReceivedAt   string  `json:"received_at"`
	ShippedAt    *string `json:"shipped_at"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

type CutterMap struct {
	ID        int       `json:"id"`
	JobID     string    `json:"job_id"`
	Stage     string    `json:"stage"`
	CreatedBy string    `json:"created_by"`
	CreatedAt string    `json:"created_at"`
	Cells     []MapCell `json:"cells,omitempty"`
}

type MapCell struct {
	ID             int    `json:"id"`
	MapID          int    `json:"map_id"`
	Blade          int    `json:"blade"`
	Pocket         int    `json:"pocket"`
	IsPrimary      bool   `json:"is_primary"`
	RequiredCutter string `json:"required_cutter"`
	ActualCutter   string `json:"actual_cutter"`
	Status         string `json:"status"`
}

// MapSummary reports per-status cell counts for one cutter map.
type MapSummary struct {
	MapID      int     `json:"map_id"`
	Stage      string  `json:"stage"`
	Match      int     `json:"match"`
	Substitute int     `json:"substitute"`
	Missing    int     `json:"missing"`
	Extra      int     `json:"extra"`
	Empty      int     `json:"empty"`
	Completion float64 `json:"completion"`
}

type CutterType struct {
	ID         string  `json:"id"`
	Description string `json:"description"`
	DiameterMM float64 `json:"diameter_mm"`
	LengthMM   float64 `json:"length_mm"`
	Substrate  string  `json:"substrate"`
	Active     bool    `json:"active"`
	CreatedAt  string  `json:"created_at"`
}

type CutterTransaction struct {
	ID         int    `json:"id"`
	CutterType string `json:"cutter_type"`
	Category   string `json:"category"`
	Type       string `json:"type"`
	Qty        int    `json:"qty"`
	Reference  string `json:"reference"`
	Notes      string `json:"notes"`
	CreatedBy  string `json:"created_by"`
	CreatedAt  string `json:"created_at"`
}

// CutterBalance is a derived ledger balance for one cutter type.
type CutterBalance struct {
	CutterType string         `json:"cutter_type"`
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"by_category"`
}

type Vendor struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
	LeadTimeDays int    `json:"lead_time_days"`
	Status       string `json:"status"`
	Notes        string `json:"notes"`
	CreatedAt    string `json:"created_at"`
}

type PurchaseOrder struct {
	ID           string   `json:"id"`
	VendorID     string   `json:"vendor_id"`
	Status       string   `json:"status"`
	Notes        string   `json:"notes"`
	Total        string   `json:"total"`
	CreatedBy    string   `json:"created_by"`
	CreatedAt    string   `json:"created_at"`
	ExpectedDate string   `json:"expected_date"`
	ReceivedAt   *string  `json:"received_at"`
	Lines        []POLine `json:"lines,omitempty"`
}

type POLine struct {
	ID          int    `json:"id"`
	POID        string `json:"po_id"`
	CutterType  string `json:"cutter_type"`
	QtyOrdered  int    `json:"qty_ordered"`
	QtyReceived int    `json:"qty_received"`
	UnitPrice   string `json:"unit_price"`
	Notes       string `json:"notes"`
}

type NCR struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	JobID            string  `json:"job_id"`
	CutterType       string  `json:"cutter_type"`
	Severity         string  `json:"severity"`
	Status           string  `json:"status"`
	Disposition      string  `json:"disposition"`
	RootCause        string  `json:"root_cause"`
	CorrectiveAction string  `json:"corrective_action"`
	CreatedBy        string  `json:"created_by"`
	CreatedAt        string  `json:"created_at"`
	ResolvedAt       *string `json:"resolved_at"`
}

type Notification struct {
	ID        int     `json:"id"`
	Type      string  `json:"type"`
	Severity  string  `json:"severity"`
	Title     string  `json:"title"`
	Message   string  `json:"message"`
	RecordID  string  `json:"record_id"`
	Module    string  `json:"module"`
	ReadAt    *string `json:"read_at"`
	CreatedAt string  `json:"created_at"`
}

// AuditEntry represents a single audit log record.
type AuditEntry struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Action    string `json:"action"`
	Module    string `json:"module"`
	RecordID  string `json:"record_id"`
	Summary   string `json:"summary"`
	CreatedAt string `json:"created_at"`
}

// ForecastLine is one row of the shortage forecast.
type ForecastLine struct {
	CutterType     string `json:"cutter_type"`
	OnHand         int    `json:"on_hand"`
	Required       int    `json:"required"`
	OnOrder        int    `json:"on_order"`
	Consumption6M  int    `json:"consumption_6m"`
	SafetyStock    int    `json:"safety_stock"`
	Projected      int    `json:"projected"`
	Shortage       int    `json:"shortage"`
	SuggestedOrder int    `json:"suggested_order"`
}

type DashboardData struct {
	OpenJobs      int `json:"open_jobs"`
	JobsInQC      int `json:"jobs_in_qc"`
	OpenNCRs      int `json:"open_ncrs"`
	OpenPOs       int `json:"open_pos"`
	Shortages     int `json:"shortages"`
	ActiveCutters int `json:"active_cutters"`
	Employees     int `json:"employees"`
	BitsInShop    int `json:"bits_in_shop"`
}
