package forecast

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestBufferTiers(t *testing.T) {
	tests := []struct {
		consumption, want int
	}{
		{-5, 0},
		{0, 0},
		{1, 2},
		{49, 2},
		{50, 5},
		{149, 5},
		{150, 8},
		{299, 8},
		{300, 10},
		{1000, 10},
	}
	for _, tc := range tests {
		if got := Buffer(tc.consumption); got != tc.want {
			t.Errorf("Buffer(%d) = %d, want %d", tc.consumption, got, tc.want)
		}
	}
}

func TestSafetyStock(t *testing.T) {
	tests := []struct {
		consumption, want int
	}{
		{0, 0},
		// 60/6 = 10 monthly, +5 buffer = 15
		{60, 15},
		// ceil(100/6) = 17, +5 = 22, round up = 25
		{100, 25},
		// ceil(10/6) = 2, +2 = 4, round up = 5
		{10, 5},
		// ceil(300/6) = 50, +10 = 60
		{300, 60},
	}
	for _, tc := range tests {
		if got := SafetyStock(tc.consumption); got != tc.want {
			t.Errorf("SafetyStock(%d) = %d, want %d", tc.consumption, got, tc.want)
		}
	}
}

func TestRoundUp5(t *testing.T) {
	tests := []struct{ n, want int }{
		{0, 0}, {-3, 0}, {1, 5}, {5, 5}, {6, 10}, {14, 15}, {15, 15},
	}
	for _, tc := range tests {
		if got := RoundUp5(tc.n); got != tc.want {
			t.Errorf("RoundUp5(%d) = %d, want %d", tc.n, got, tc.want)
		}
	}
}

func TestPlanIssueDrawOrder(t *testing.T) {
	balances := map[string]int{
		CategoryNew:       100,
		CategoryReclaimed: 3,
		CategoryGround:    5,
	}
	draws, err := PlanIssue(balances, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	want := []Draw{
		{CategoryReclaimed, 3},
		{CategoryGround, 5},
		{CategoryNew, 2},
	}
	if len(draws) != len(want) {
		t.Fatalf("got %d draws, want %d: %+v", len(draws), len(want), draws)
	}
	for i := range want {
		if draws[i] != want[i] {
			t.Errorf("draw %d = %+v, want %+v", i, draws[i], want[i])
		}
	}
}

func TestPlanIssueSkipsVendorReturn(t *testing.T) {
	balances := map[string]int{
		CategoryVendorReturn: 50,
		CategoryNew:          4,
	}
	if _, err := PlanIssue(balances, 10, ""); err == nil {
		t.Error("vendor_return stock counted toward an unpinned issue")
	}

	draws, err := PlanIssue(balances, 10, CategoryVendorReturn)
	if err != nil {
		t.Fatal(err)
	}
	if len(draws) != 1 || draws[0].Category != CategoryVendorReturn || draws[0].Qty != 10 {
		t.Errorf("pinned draw = %+v", draws)
	}
}

func TestPlanIssueShortfall(t *testing.T) {
	balances := map[string]int{CategoryNew: 5}
	if _, err := PlanIssue(balances, 6, ""); err == nil {
		t.Error("shortfall issue accepted")
	}
	if _, err := PlanIssue(balances, 6, CategoryNew); err == nil {
		t.Error("pinned shortfall issue accepted")
	}
	if _, err := PlanIssue(balances, 0, ""); err == nil {
		t.Error("zero qty accepted")
	}
	if _, err := PlanIssue(balances, 5, "refurbished"); err == nil {
		t.Error("unknown category accepted")
	}
}

func TestLineProjection(t *testing.T) {
	l := Line{CutterType: "PDC-1308", OnHand: 20, Required: 30, OnOrder: 5, Consumption6M: 60}
	if got := l.Projected(); got != -5 {
		t.Errorf("Projected = %d, want -5", got)
	}
	// safety 15, projected -5, shortage 20
	if got := l.Shortage(); got != 20 {
		t.Errorf("Shortage = %d, want 20", got)
	}
	if got := l.SuggestedOrder(); got != 20 {
		t.Errorf("SuggestedOrder = %d, want 20", got)
	}

	healthy := Line{OnHand: 100, Required: 10, Consumption6M: 60}
	if got := healthy.Shortage(); got != 0 {
		t.Errorf("healthy Shortage = %d, want 0", got)
	}
}

func TestAverageUnitCost(t *testing.T) {
	points := []CostPoint{
		{Qty: 10, UnitPrice: decimal.RequireFromString("12.50")},
		{Qty: 30, UnitPrice: decimal.RequireFromString("10.00")},
		{Qty: 0, UnitPrice: decimal.RequireFromString("99.99")},
	}
	got := AverageUnitCost(points)
	want := decimal.RequireFromString("10.625")
	if !got.Equal(want) {
		t.Errorf("AverageUnitCost = %s, want %s", got, want)
	}

	if !AverageUnitCost(nil).IsZero() {
		t.Error("empty points should cost zero")
	}
}

func TestValuation(t *testing.T) {
	cost := decimal.RequireFromString("10.625")
	got := Valuation(7, cost)
	want := decimal.RequireFromString("74.38")
	if !got.Equal(want) {
		t.Errorf("Valuation = %s, want %s", got, want)
	}
	if !Valuation(-3, cost).IsZero() {
		t.Error("negative balance should value at zero")
	}
}
