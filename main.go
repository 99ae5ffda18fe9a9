package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"strings"
	"time"

	"fms/internal/config"
)

var cfg *config.Config

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	var err error
	cfg, err = config.Load(*configPath)
	if err != nil {
		log.Fatal("config load failed:", err)
	}

	if err := initDB(cfg.DBPath); err != nil {
		log.Fatal("DB init failed:", err)
	}
	seedDB()

	// Background notification generator (run once after short delay, then on an interval)
	go func() {
		time.Sleep(5 * time.Second)
		generateNotifications()
		for {
			time.Sleep(cfg.NotifyInterval)
			generateNotifications()
		}
	}()

	mux := http.NewServeMux()

	// Auth routes
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			handleLogin(w, r)
		} else {
			http.Error(w, "Method not allowed", 405)
		}
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			handleLogout(w, r)
		} else {
			http.Error(w, "Method not allowed", 405)
		}
	})
	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		handleMe(w, r)
	})

	// Live updates
	mux.HandleFunc("/ws", handleWebSocket)

	// API routes - using a simple router
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/")
		path = strings.TrimSuffix(path, "/")
		parts := strings.Split(path, "/")

		switch {
		// Dashboard
		case path == "dashboard" && r.Method == "GET":
			handleDashboard(w, r)

		// Audit
		case parts[0] == "audit" && len(parts) == 1 && r.Method == "GET":
			handleAuditLog(w, r)

		// Employees
		case parts[0] == "employees" && len(parts) == 1 && r.Method == "GET":
			handleListEmployees(w, r)
		case parts[0] == "employees" && len(parts) == 1 && r.Method == "POST":
			handleCreateEmployee(w, r)
		case parts[0] == "employees" && len(parts) == 2 && r.Method == "GET":
			handleGetEmployee(w, r, parts[1])
		case parts[0] == "employees" && len(parts) == 2 && r.Method == "PUT":
			handleUpdateEmployee(w, r, parts[1])
		case parts[0] == "employees" && len(parts) == 3 && parts[2] == "certs" && r.Method == "POST":
			handleAddCertification(w, r, parts[1])
		case parts[0] == "employees" && len(parts) == 4 && parts[2] == "certs" && r.Method == "DELETE":
			handleDeleteCertification(w, r, parts[1], parts[3])

		// Bit designs and cutter grids
		case parts[0] == "designs" && len(parts) == 1 && r.Method == "GET":
			handleListDesigns(w, r)
		case parts[0] == "designs" && len(parts) == 1 && r.Method == "POST":
			handleCreateDesign(w, r)
		case parts[0] == "designs" && len(parts) == 2 && r.Method == "GET":
			handleGetDesign(w, r, parts[1])
		case parts[0] == "designs" && len(parts) == 2 && r.Method == "PUT":
			handleUpdateDesign(w, r, parts[1])
		case parts[0] == "designs" && len(parts) == 3 && parts[2] == "grid" && r.Method == "GET":
			handleGetGrid(w, r, parts[1])
		case parts[0] == "designs" && len(parts) == 3 && parts[2] == "grid" && r.Method == "PUT":
			handleUpsertGridCell(w, r, parts[1])
		case parts[0] == "designs" && len(parts) == 4 && parts[2] == "grid" && parts[3] == "import" && r.Method == "POST":
			handleImportGrid(w, r, parts[1])
		case parts[0] == "designs" && len(parts) == 4 && parts[2] == "grid" && parts[3] == "renumber" && r.Method == "POST":
			handleRenumberGrid(w, r, parts[1])
		case parts[0] == "designs" && len(parts) == 3 && parts[2] == "bom" && r.Method == "GET":
			handleDesignBOM(w, r, parts[1])

		// Bit registry
		case parts[0] == "bits" && len(parts) == 1 && r.Method == "GET":
			handleListBits(w, r)
		case parts[0] == "bits" && len(parts) == 1 && r.Method == "POST":
			handleCreateBit(w, r)
		case parts[0] == "bits" && len(parts) == 2 && r.Method == "GET":
			handleGetBit(w, r, parts[1])
		case parts[0] == "bits" && len(parts) == 2 && r.Method == "PUT":
			handleUpdateBit(w, r, parts[1])

		// Repair jobs and cutter maps
		case parts[0] == "jobs" && len(parts) == 1 && r.Method == "GET":
			handleListJobs(w, r)
		case parts[0] == "jobs" && len(parts) == 1 && r.Method == "POST":
			handleCreateJob(w, r)
		case parts[0] == "jobs" && len(parts) == 2 && r.Method == "GET":
			handleGetJob(w, r, parts[1])
		case parts[0] == "jobs" && len(parts) == 2 && r.Method == "PUT":
			handleUpdateJob(w, r, parts[1])
		case parts[0] == "jobs" && len(parts) == 3 && parts[2] == "maps" && r.Method == "GET":
			handleListMaps(w, r, parts[1])
		case parts[0] == "jobs" && len(parts) == 3 && parts[2] == "maps" && r.Method == "POST":
			handleCreateMap(w, r, parts[1])
		case parts[0] == "jobs" && len(parts) == 4 && parts[2] == "maps" && r.Method == "GET":
			handleGetMap(w, r, parts[1], parts[3])
		case parts[0] == "jobs" && len(parts) == 5 && parts[2] == "maps" && parts[4] == "cells" && r.Method == "PUT":
			handleUpdateMapCell(w, r, parts[1], parts[3])
		case parts[0] == "jobs" && len(parts) == 5 && parts[2] == "maps" && parts[4] == "summary" && r.Method == "GET":
			handleMapSummary(w, r, parts[1], parts[3])
		case parts[0] == "jobs" && len(parts) == 3 && parts[2] == "bom" && r.Method == "GET":
			handleJobBOM(w, r, parts[1])
		case parts[0] == "jobs" && len(parts) == 3 && parts[2] == "issue" && r.Method == "POST":
			handleIssueToJob(w, r, parts[1])

		// Cutter inventory
		case parts[0] == "cutters" && len(parts) == 1 && r.Method == "GET":
			handleListCutterTypes(w, r)
		case parts[0] == "cutters" && len(parts) == 1 && r.Method == "POST":
			handleCreateCutterType(w, r)
		case parts[0] == "cutters" && len(parts) == 2 && r.Method == "GET":
			handleGetCutterType(w, r, parts[1])
		case parts[0] == "cutters" && len(parts) == 2 && r.Method == "PUT":
			handleUpdateCutterType(w, r, parts[1])
		case parts[0] == "inventory" && len(parts) == 2 && parts[1] == "transact" && r.Method == "POST":
			handleInventoryTransact(w, r)
		case parts[0] == "inventory" && len(parts) == 2 && parts[1] == "balances" && r.Method == "GET":
			handleListBalances(w, r)
		case parts[0] == "inventory" && len(parts) == 2 && r.Method == "GET":
			handleGetBalance(w, r, parts[1])
		case parts[0] == "inventory" && len(parts) == 3 && parts[2] == "history" && r.Method == "GET":
			handleInventoryHistory(w, r, parts[1])

		// Vendors and purchase orders
		case parts[0] == "vendors" && len(parts) == 1 && r.Method == "GET":
			handleListVendors(w, r)
		case parts[0] == "vendors" && len(parts) == 1 && r.Method == "POST":
			handleCreateVendor(w, r)
		case parts[0] == "vendors" && len(parts) == 2 && r.Method == "GET":
			handleGetVendor(w, r, parts[1])
		case parts[0] == "vendors" && len(parts) == 2 && r.Method == "PUT":
			handleUpdateVendor(w, r, parts[1])
		case parts[0] == "pos" && len(parts) == 1 && r.Method == "GET":
			handleListPOs(w, r)
		case parts[0] == "pos" && len(parts) == 1 && r.Method == "POST":
			handleCreatePO(w, r)
		case parts[0] == "pos" && len(parts) == 2 && r.Method == "GET":
			handleGetPO(w, r, parts[1])
		case parts[0] == "pos" && len(parts) == 2 && r.Method == "PUT":
			handleUpdatePO(w, r, parts[1])
		case parts[0] == "pos" && len(parts) == 3 && parts[2] == "receive" && r.Method == "POST":
			handleReceivePO(w, r, parts[1])

		// Quality
		case parts[0] == "ncrs" && len(parts) == 1 && r.Method == "GET":
			handleListNCRs(w, r)
		case parts[0] == "ncrs" && len(parts) == 1 && r.Method == "POST":
			handleCreateNCR(w, r)
		case parts[0] == "ncrs" && len(parts) == 2 && r.Method == "GET":
			handleGetNCR(w, r, parts[1])
		case parts[0] == "ncrs" && len(parts) == 2 && r.Method == "PUT":
			handleUpdateNCR(w, r, parts[1])

		// Planning / forecast
		case parts[0] == "forecast" && len(parts) == 2 && parts[1] == "safety-stock" && r.Method == "GET":
			handleSafetyStock(w, r)
		case parts[0] == "forecast" && len(parts) == 2 && parts[1] == "requirements" && r.Method == "GET":
			handleRequirements(w, r)
		case parts[0] == "forecast" && len(parts) == 2 && parts[1] == "shortages" && r.Method == "GET":
			handleShortages(w, r)

		// Reports
		case parts[0] == "reports" && len(parts) == 2 && parts[1] == "valuation":
			handleReportValuation(w, r)
		case parts[0] == "reports" && len(parts) == 2 && parts[1] == "shortages":
			handleReportShortages(w, r)
		case parts[0] == "reports" && len(parts) == 2 && parts[1] == "ncr-summary":
			handleReportNCRSummary(w, r)

		// Notifications
		case parts[0] == "notifications" && len(parts) == 1 && r.Method == "GET":
			handleListNotifications(w, r)
		case parts[0] == "notifications" && len(parts) == 3 && parts[2] == "read" && r.Method == "POST":
			handleMarkNotificationRead(w, r, parts[1])

		default:
			json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
		}
	})

	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      logging(requireAuth(requireRBAC(mux))),
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	log.Printf("FMS server starting on http://localhost%s", cfg.Address)
	log.Fatal(srv.ListenAndServe())
}

func jsonResp(w http.ResponseWriter, data interface{}) {
	json.NewEncoder(w).Encode(APIResponse{Data: data})
}

func jsonRespMeta(w http.ResponseWriter, data interface{}, total, page, limit int) {
	json.NewEncoder(w).Encode(APIResponse{Data: data, Meta: &Meta{Total: total, Page: page, Limit: limit}})
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
