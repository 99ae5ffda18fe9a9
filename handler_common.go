package main

import (
	"net/http"

	"fms/internal/forecast"
	"fms/internal/grid"
	"fms/internal/validation"
)

// Validation aliases so handlers stay terse.
type ValidationErrors = validation.ValidationErrors

func requireField(ve *ValidationErrors, field, value string) {
	validation.RequireField(ve, field, value)
}

func validateEnum(ve *ValidationErrors, field, value string, allowed []string) {
	validation.ValidateEnum(ve, field, value, allowed)
}

func validateDate(ve *ValidationErrors, field, value string) {
	validation.ValidateDate(ve, field, value)
}

func validateMaxLength(ve *ValidationErrors, field, value string, max int) {
	validation.ValidateMaxLength(ve, field, value, max)
}

func validatePositiveInt(ve *ValidationErrors, field string, value int) {
	validation.ValidatePositiveInt(ve, field, value)
}

func validateIntRange(ve *ValidationErrors, field string, value, min, max int) {
	validation.ValidateIntRange(ve, field, value, min, max)
}

// Enum values shared across handlers.
var (
	validJobStatuses   = []string{"received", "evaluation", "repair", "qc", "shipped", "on_hold", "cancelled"}
	validJobPriorities = []string{"low", "normal", "high", "critical"}
	validMapStages     = []string{"as_received", "as_built", "post_eval", "final"}
	validBitStatuses   = []string{"in_service", "in_shop", "scrapped"}
	validPOStatuses    = []string{"draft", "sent", "confirmed", "partial", "received", "cancelled"}
	validVendorStatuses = []string{"active", "preferred", "inactive", "blocked"}
	validNCRSeverities = []string{"minor", "major", "critical"}
	validNCRStatuses   = []string{"open", "investigating", "resolved", "closed"}
	validDispositions  = []string{"use_as_is", "rework", "scrap", "return_to_vendor"}
	validTxnTypes      = []string{"receive", "issue", "adjust", "scrap", "return"}
	validCrafts        = []string{"braze", "eval", "grind", "qc", "office"}
	validSchemes       = grid.Schemes
	validCategories    = forecast.Categories
)

// jobStatusTransitions is the workflow state machine. on_hold is
// reachable from any open state and resumes to evaluation.
var jobStatusTransitions = map[string][]string{
	"received":   {"evaluation", "on_hold", "cancelled"},
	"evaluation": {"repair", "on_hold", "cancelled"},
	"repair":     {"qc", "on_hold", "cancelled"},
	"qc":         {"repair", "shipped", "on_hold", "cancelled"},
	"on_hold":    {"evaluation", "cancelled"},
	"shipped":    {},
	"cancelled":  {},
}

func isValidJobTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, s := range jobStatusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func handleDashboard(w http.ResponseWriter, r *http.Request) {
	var d DashboardData
	db.QueryRow("SELECT COUNT(*) FROM jobs WHERE status NOT IN ('shipped','cancelled')").Scan(&d.OpenJobs)
	db.QueryRow("SELECT COUNT(*) FROM jobs WHERE status = 'qc'").Scan(&d.JobsInQC)
	db.QueryRow("SELECT COUNT(*) FROM ncrs WHERE status IN ('open','investigating')").Scan(&d.OpenNCRs)
	db.QueryRow("SELECT COUNT(*) FROM purchase_orders WHERE status IN ('sent','confirmed','partial')").Scan(&d.OpenPOs)
	db.QueryRow("SELECT COUNT(*) FROM cutter_types WHERE active = 1").Scan(&d.ActiveCutters)
	db.QueryRow("SELECT COUNT(*) FROM employees WHERE active = 1").Scan(&d.Employees)
	db.QueryRow("SELECT COUNT(*) FROM bits WHERE status = 'in_shop'").Scan(&d.BitsInShop)

	lines, err := buildForecast()
	if err == nil {
		for _, l := range lines {
			if l.Shortage > 0 {
				d.Shortages++
			}
		}
	}
	jsonResp(w, d)
}
