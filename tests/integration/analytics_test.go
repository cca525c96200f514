//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"
)

func salesSummary(t *testing.T, query string) salesSummaryResponse {
	t.Helper()

	resp := doGet(t, "/api/orderanalytics/summary?"+query)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	return decodeJSON[salesSummaryResponse](t, resp)
}

func TestSalesSummary(t *testing.T) {
	coffee := findProduct(t, "Coffee Maker")
	running := findProduct(t, "Running Shoes")

	delivered := placeOrder(t, customerJohn, orderItemRequest{ProductID: coffee.ID, Quantity: 1})
	setStatus(t, delivered.ID, "Delivered", http.StatusNoContent)
	cancelled := placeOrder(t, customerJohn, orderItemRequest{ProductID: running.ID, Quantity: 1})
	cancelOrder(t, cancelled.ID, http.StatusNoContent)

	// A window around today, wide enough to absorb clock skew between the
	// test host and the container.
	now := time.Now().UTC()
	query := "startDate=" + now.AddDate(0, 0, -1).Format(time.DateOnly) +
		"&endDate=" + now.AddDate(0, 0, 1).Format(time.DateOnly) +
		"&compareWithPrevious=true"

	s := salesSummary(t, query)
	if s.TotalOrders < 2 || s.CompletedOrders < 1 || s.CancelledOrders < 1 {
		t.Fatalf("orders not counted: %+v", s)
	}
	if s.TotalSales < delivered.TotalAmount {
		t.Errorf("total sales %v below delivered order total %v", s.TotalSales, delivered.TotalAmount)
	}
	if s.ConversionRate <= 0 || s.ConversionRate > 100 {
		t.Errorf("conversion rate out of range: %v", s.ConversionRate)
	}
	if s.Period.EndDate.Before(now) {
		t.Errorf("period end %v is before now", s.Period.EndDate)
	}
	if s.Comparison == nil {
		t.Fatal("comparison requested but missing")
	}
	if len(s.TopCategories) == 0 || len(s.TopCategories) > 3 {
		t.Errorf("top categories: got %d", len(s.TopCategories))
	}
	for i := 1; i < len(s.TopCategories); i++ {
		if s.TopCategories[i].SalesAmount > s.TopCategories[i-1].SalesAmount {
			t.Errorf("top categories not sorted by sales: %+v", s.TopCategories)
		}
	}
}

func TestSalesSummary_NoComparison(t *testing.T) {
	s := salesSummary(t, "startDate=2000-01-01&endDate=2000-01-31")
	if s.TotalOrders != 0 || s.TotalSales != 0 {
		t.Errorf("expected an empty period: %+v", s)
	}
	if s.Comparison != nil {
		t.Error("comparison not requested but present")
	}
}

func TestSalesSummary_InvalidRange(t *testing.T) {
	resp := doGet(t, "/api/orderanalytics/summary?startDate=2024-02-01&endDate=2024-01-01")
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusBadRequest)
}
