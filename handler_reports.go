package main

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"fms/internal/audit"
	"fms/internal/forecast"
)

// writeCSV streams a report as a CSV attachment.
func writeCSV(w http.ResponseWriter, name string, headers []string, rows [][]string) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
	cw := csv.NewWriter(w)
	cw.Write(headers)
	for _, row := range rows {
		cw.Write(row)
	}
	cw.Flush()
}

// writeXLSX streams a report as a single-sheet workbook.
func writeXLSX(w http.ResponseWriter, name string, headers []string, rows [][]string) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, h)
	}
	for i, row := range rows {
		for col, v := range row {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				f.SetCellValue(sheet, cell, n)
			} else {
				f.SetCellValue(sheet, cell, v)
			}
		}
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".xlsx"))
	f.Write(w)
}

// ValuationRow prices one cutter type's on-hand stock at its average
// receipt cost.
type ValuationRow struct {
	CutterType  string `json:"cutter_type"`
	OnHand      int    `json:"on_hand"`
	AvgUnitCost string `json:"avg_unit_cost"`
	Valuation   string `json:"valuation"`
}

func buildValuation() ([]ValuationRow, error) {
	onHand, err := sumByType("SELECT cutter_type, COALESCE(SUM(qty),0) FROM cutter_transactions GROUP BY cutter_type")
	if err != nil {
		return nil, err
	}

	// Priced receipts per cutter type, from received PO lines
	rows, err := db.Query(`SELECT cutter_type, qty_received, unit_price FROM po_lines WHERE qty_received > 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	points := make(map[string][]forecast.CostPoint)
	for rows.Next() {
		var t, price string
		var qty int
		if err := rows.Scan(&t, &qty, &price); err != nil {
			return nil, err
		}
		p, err := decimal.NewFromString(price)
		if err != nil {
			continue
		}
		points[t] = append(points[t], forecast.CostPoint{Qty: qty, UnitPrice: p})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(onHand))
	for t := range onHand {
		names = append(names, t)
	}
	sort.Strings(names)

	out := make([]ValuationRow, 0, len(names))
	for _, t := range names {
		avg := forecast.AverageUnitCost(points[t])
		out = append(out, ValuationRow{
			CutterType:  t,
			OnHand:      onHand[t],
			AvgUnitCost: avg.StringFixed(4),
			Valuation:   forecast.Valuation(onHand[t], avg).StringFixed(2),
		})
	}
	return out, nil
}

func handleReportValuation(w http.ResponseWriter, r *http.Request) {
	rows, err := buildValuation()
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" || format == "json" {
		jsonResp(w, rows)
		return
	}

	headers := []string{"cutter_type", "on_hand", "avg_unit_cost", "valuation"}
	data := make([][]string, len(rows))
	for i, row := range rows {
		data[i] = []string{row.CutterType, strconv.Itoa(row.OnHand), row.AvgUnitCost, row.Valuation}
	}
	switch format {
	case "csv":
		writeCSV(w, "valuation", headers, data)
	case "xlsx":
		writeXLSX(w, "valuation", headers, data)
	default:
		jsonErr(w, "unknown format "+format, 400)
		return
	}
	logAudit(getUsername(r), audit.ActionExport, "report", "valuation", "Exported valuation report as "+format)
}

func handleReportShortages(w http.ResponseWriter, r *http.Request) {
	lines, err := buildForecast()
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	short := []ForecastLine{}
	for _, l := range lines {
		if l.Shortage > 0 {
			short = append(short, l)
		}
	}

	format := r.URL.Query().Get("format")
	if format == "" || format == "json" {
		jsonResp(w, short)
		return
	}

	headers := []string{"cutter_type", "on_hand", "required", "on_order", "consumption_6m", "safety_stock", "projected", "shortage", "suggested_order"}
	data := make([][]string, len(short))
	for i, l := range short {
		data[i] = []string{l.CutterType, strconv.Itoa(l.OnHand), strconv.Itoa(l.Required), strconv.Itoa(l.OnOrder),
			strconv.Itoa(l.Consumption6M), strconv.Itoa(l.SafetyStock), strconv.Itoa(l.Projected),
			strconv.Itoa(l.Shortage), strconv.Itoa(l.SuggestedOrder)}
	}
	switch format {
	case "csv":
		writeCSV(w, "shortages", headers, data)
	case "xlsx":
		writeXLSX(w, "shortages", headers, data)
	default:
		jsonErr(w, "unknown format "+format, 400)
		return
	}
	logAudit(getUsername(r), audit.ActionExport, "report", "shortages", "Exported shortages report as "+format)
}

// NCRSummaryRow buckets NCR counts by severity and status.
type NCRSummaryRow struct {
	Severity string `json:"severity"`
	Open     int    `json:"open"`
	Resolved int    `json:"resolved"`
	Total    int    `json:"total"`
}

func buildNCRSummary() ([]NCRSummaryRow, error) {
	rows, err := db.Query("SELECT severity, status, COUNT(*) FROM ncrs GROUP BY severity, status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	bySev := make(map[string]*NCRSummaryRow)
	for rows.Next() {
		var sev, status string
		var n int
		if err := rows.Scan(&sev, &status, &n); err != nil {
			return nil, err
		}
		row, ok := bySev[sev]
		if !ok {
			row = &NCRSummaryRow{Severity: sev}
			bySev[sev] = row
		}
		switch status {
		case "open", "investigating":
			row.Open += n
		case "resolved", "closed":
			row.Resolved += n
		}
		row.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := []NCRSummaryRow{}
	for _, sev := range validNCRSeverities {
		if row, ok := bySev[sev]; ok {
			out = append(out, *row)
		}
	}
	return out, nil
}

func handleReportNCRSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := buildNCRSummary()
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" || format == "json" {
		jsonResp(w, rows)
		return
	}

	headers := []string{"severity", "open", "resolved", "total"}
	data := make([][]string, len(rows))
	for i, row := range rows {
		data[i] = []string{row.Severity, strconv.Itoa(row.Open), strconv.Itoa(row.Resolved), strconv.Itoa(row.Total)}
	}
	switch format {
	case "csv":
		writeCSV(w, "ncr-summary", headers, data)
	case "xlsx":
		writeXLSX(w, "ncr-summary", headers, data)
	default:
		jsonErr(w, "unknown format "+format, 400)
		return
	}
	logAudit(getUsername(r), audit.ActionExport, "report", "ncr-summary", "Exported ncr-summary report as "+format)
}
