package main

import (
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"fms/internal/forecast"
)

// Job statuses that still consume cutters.
const openJobStatuses = "('received','evaluation','repair','qc','on_hold')"

func sumByType(query string, args ...interface{}) (map[string]int, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		out[t] = n
	}
	return out, rows.Err()
}

// buildForecast assembles one forecast line per cutter type from the
// ledger, open-job grid requirements and open purchase orders. The four
// aggregates are independent queries, so they run concurrently.
func buildForecast() ([]ForecastLine, error) {
	days := 182
	if cfg != nil && cfg.ForecastDays > 0 {
		days = cfg.ForecastDays
	}
	cutoff := time.Now().AddDate(0, 0, -days).Format("2006-01-02 15:04:05")

	var onHand, required, onOrder, consumed map[string]int
	var g errgroup.Group
	g.Go(func() (err error) {
		onHand, err = sumByType("SELECT cutter_type, COALESCE(SUM(qty),0) FROM cutter_transactions GROUP BY cutter_type")
		return
	})
	g.Go(func() (err error) {
		required, err = sumByType(`SELECT gc.cutter_type, COUNT(*)
			FROM jobs j JOIN grid_cells gc ON gc.design_id = j.design_id
			WHERE j.status IN ` + openJobStatuses + ` AND gc.cutter_type != ''
			GROUP BY gc.cutter_type`)
		return
	})
	g.Go(func() (err error) {
		onOrder, err = sumByType(`SELECT pl.cutter_type, COALESCE(SUM(pl.qty_ordered - pl.qty_received),0)
			FROM po_lines pl JOIN purchase_orders p ON p.id = pl.po_id
			WHERE p.status IN ('sent','confirmed','partial')
			GROUP BY pl.cutter_type`)
		return
	})
	g.Go(func() (err error) {
		consumed, err = sumByType(`SELECT cutter_type, COALESCE(SUM(-qty),0)
			FROM cutter_transactions
			WHERE type IN ('issue','scrap') AND created_at >= ?
			GROUP BY cutter_type`, cutoff)
		return
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	types := make(map[string]bool)
	for _, m := range []map[string]int{onHand, required, onOrder, consumed} {
		for t := range m {
			types[t] = true
		}
	}
	names := make([]string, 0, len(types))
	for t := range types {
		names = append(names, t)
	}
	sort.Strings(names)

	lines := make([]ForecastLine, 0, len(names))
	for _, t := range names {
		l := forecast.Line{
			CutterType:    t,
			OnHand:        onHand[t],
			Required:      required[t],
			OnOrder:       onOrder[t],
			Consumption6M: consumed[t],
		}
		lines = append(lines, ForecastLine{
			CutterType:     l.CutterType,
			OnHand:         l.OnHand,
			Required:       l.Required,
			OnOrder:        l.OnOrder,
			Consumption6M:  l.Consumption6M,
			SafetyStock:    l.SafetyStock(),
			Projected:      l.Projected(),
			Shortage:       l.Shortage(),
			SuggestedOrder: l.SuggestedOrder(),
		})
	}
	return lines, nil
}

func handleSafetyStock(w http.ResponseWriter, r *http.Request) {
	lines, err := buildForecast()
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	type row struct {
		CutterType    string `json:"cutter_type"`
		Consumption6M int    `json:"consumption_6m"`
		SafetyStock   int    `json:"safety_stock"`
	}
	out := make([]row, len(lines))
	for i, l := range lines {
		out[i] = row{l.CutterType, l.Consumption6M, l.SafetyStock}
	}
	jsonResp(w, out)
}

func handleRequirements(w http.ResponseWriter, r *http.Request) {
	lines, err := buildForecast()
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	type row struct {
		CutterType string `json:"cutter_type"`
		Required   int    `json:"required"`
		OnHand     int    `json:"on_hand"`
		OnOrder    int    `json:"on_order"`
		Projected  int    `json:"projected"`
	}
	out := make([]row, len(lines))
	for i, l := range lines {
		out[i] = row{l.CutterType, l.Required, l.OnHand, l.OnOrder, l.Projected}
	}
	jsonResp(w, out)
}

func handleShortages(w http.ResponseWriter, r *http.Request) {
	lines, err := buildForecast()
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	out := []ForecastLine{}
	for _, l := range lines {
		if l.Shortage > 0 {
			out = append(out, l)
		}
	}
	jsonResp(w, out)
}
