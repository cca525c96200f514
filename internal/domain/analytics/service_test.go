package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/webstore/internal/domain/order"
)

// --- Mock implementations ---

type periodCall struct {
	start, end time.Time
	opts       order.LoadOptions
}

type mockOrderSource struct {
	orders []order.Order
	err    error

	mu    sync.Mutex
	calls []periodCall
}

func (m *mockOrderSource) ListByPeriod(_ context.Context, start, end time.Time, opts order.LoadOptions) ([]order.Order, error) {
	m.mu.Lock()
	m.calls = append(m.calls, periodCall{start: start, end: end, opts: opts})
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	var out []order.Order
	for _, o := range m.orders {
		if !o.OrderDate.Before(start) && !o.OrderDate.After(end) {
			out = append(out, o)
		}
	}
	return out, nil
}

// --- Helpers ---

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type line struct {
	category int64
	price    string
	qty      int
}

func newOrder(id int64, date time.Time, status order.Status, subtotal, discountAmount string, lines ...line) order.Order {
	o := order.Order{
		ID:             id,
		OrderDate:      date,
		CustomerID:     1,
		Status:         status,
		Subtotal:       dec(subtotal),
		DiscountAmount: dec(discountAmount),
	}
	for _, l := range lines {
		o.Items = append(o.Items, order.Item{
			ProductID:    l.category * 10,
			Quantity:     l.qty,
			UnitPrice:    dec(l.price),
			CategoryID:   l.category,
			CategoryName: categoryNames[l.category],
		})
	}
	return o
}

var categoryNames = map[int64]string{
	1: "Electronics",
	2: "Clothing",
	3: "Books",
	4: "Home & Kitchen",
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

// --- Tests ---

func TestSalesSummary_InvalidRange(t *testing.T) {
	src := &mockOrderSource{}
	svc := NewService(src, 3)

	_, err := svc.SalesSummary(context.Background(), SummaryRequest{
		Start: day(2024, 2, 1),
		End:   day(2024, 1, 1),
	})
	require.ErrorIs(t, err, ErrInvalidRange)
	assert.Empty(t, src.calls)
}

func TestSalesSummary_Empty(t *testing.T) {
	svc := NewService(&mockOrderSource{}, 3)

	s, err := svc.SalesSummary(context.Background(), SummaryRequest{
		Start: day(2024, 1, 1),
		End:   day(2024, 1, 31),
	})
	require.NoError(t, err)

	requireDecimal(t, "0", s.TotalSales)
	assert.Equal(t, 0, s.TotalOrders)
	requireDecimal(t, "0", s.AverageOrderValue)
	requireDecimal(t, "0", s.ConversionRate)
	assert.Empty(t, s.TopCategories)
	assert.Nil(t, s.Comparison)
}

func TestSalesSummary_Metrics(t *testing.T) {
	src := &mockOrderSource{orders: []order.Order{
		newOrder(1, day(2024, 1, 5), order.StatusDelivered, "1000", "50",
			line{category: 1, price: "400", qty: 2},
			line{category: 2, price: "200", qty: 1}),
		newOrder(2, day(2024, 1, 10), order.StatusDelivered, "300", "0",
			line{category: 2, price: "100", qty: 3}),
		newOrder(3, day(2024, 1, 12), order.StatusCancelled, "5000", "0",
			line{category: 3, price: "5000", qty: 1}),
		newOrder(4, day(2024, 1, 31), order.StatusPending, "20", "0",
			line{category: 4, price: "20", qty: 1}),
		// Outside the range.
		newOrder(5, day(2024, 2, 1), order.StatusDelivered, "9999", "0",
			line{category: 3, price: "9999", qty: 1}),
	}}
	svc := NewService(src, 3)

	s, err := svc.SalesSummary(context.Background(), SummaryRequest{
		Start: day(2024, 1, 1),
		End:   day(2024, 1, 31),
	})
	require.NoError(t, err)

	// Delivered totals: (1000-50) + 300.
	requireDecimal(t, "1250", s.TotalSales)
	assert.Equal(t, 4, s.TotalOrders)
	requireDecimal(t, "312.5", s.AverageOrderValue)
	assert.Equal(t, 2, s.CompletedOrders)
	assert.Equal(t, 1, s.CancelledOrders)
	requireDecimal(t, "50", s.ConversionRate)

	require.Len(t, s.TopCategories, 2)
	assert.Equal(t, "Electronics", s.TopCategories[0].CategoryName)
	requireDecimal(t, "800", s.TopCategories[0].SalesAmount)
	assert.Equal(t, 1, s.TopCategories[0].OrdersCount)
	assert.Equal(t, "Clothing", s.TopCategories[1].CategoryName)
	requireDecimal(t, "500", s.TopCategories[1].SalesAmount)
	assert.Equal(t, 2, s.TopCategories[1].OrdersCount)

	require.Len(t, src.calls, 1)
	assert.True(t, src.calls[0].opts.Products)
}

func TestSalesSummary_ComparisonFromZeroBase(t *testing.T) {
	src := &mockOrderSource{orders: []order.Order{
		newOrder(1, day(2024, 1, 15), order.StatusDelivered, "250", "0",
			line{category: 1, price: "250", qty: 1}),
	}}
	svc := NewService(src, 3)

	s, err := svc.SalesSummary(context.Background(), SummaryRequest{
		Start:               day(2024, 1, 1),
		End:                 day(2024, 1, 31),
		CompareWithPrevious: true,
	})
	require.NoError(t, err)
	require.NotNil(t, s.Comparison)

	requireDecimal(t, "100", s.Comparison.SalesGrowth)
	requireDecimal(t, "100", s.Comparison.OrdersGrowth)
	assert.Equal(t, 0, s.Comparison.PreviousPeriod.TotalOrders)
	assert.Equal(t, day(2023, 12, 2), s.Comparison.PreviousPeriod.Period.Start)
	assert.Equal(t, day(2023, 12, 31), s.Comparison.PreviousPeriod.Period.End)
	assert.Len(t, src.calls, 2)
}

func TestSalesSummary_ComparisonGrowth(t *testing.T) {
	src := &mockOrderSource{orders: []order.Order{
		// Previous period [2023-12-02, 2023-12-31].
		newOrder(1, day(2023, 12, 10), order.StatusDelivered, "400", "0"),
		newOrder(2, day(2023, 12, 20), order.StatusPending, "100", "0"),
		// Current period.
		newOrder(3, day(2024, 1, 3), order.StatusDelivered, "500", "0"),
		newOrder(4, day(2024, 1, 4), order.StatusDelivered, "100", "0"),
		newOrder(5, day(2024, 1, 5), order.StatusCancelled, "100", "0"),
	}}
	svc := NewService(src, 3)

	s, err := svc.SalesSummary(context.Background(), SummaryRequest{
		Start:               day(2024, 1, 1),
		End:                 day(2024, 1, 31),
		CompareWithPrevious: true,
	})
	require.NoError(t, err)

	requireDecimal(t, "600", s.TotalSales)
	requireDecimal(t, "400", s.Comparison.PreviousPeriod.TotalSales)
	assert.Equal(t, 2, s.Comparison.PreviousPeriod.TotalOrders)
	requireDecimal(t, "50", s.Comparison.SalesGrowth)
	requireDecimal(t, "50", s.Comparison.OrdersGrowth)
}

func TestSalesSummary_Defaults(t *testing.T) {
	src := &mockOrderSource{}
	svc := NewService(src, 0)
	now := time.Date(2024, 5, 17, 13, 45, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	s, err := svc.SalesSummary(context.Background(), SummaryRequest{})
	require.NoError(t, err)

	assert.Equal(t, day(2024, 5, 1), s.Period.Start)
	assert.Equal(t, now, s.Period.End)
}

func TestSalesSummary_SourceError(t *testing.T) {
	svc := NewService(&mockOrderSource{err: errors.New("db down")}, 3)

	_, err := svc.SalesSummary(context.Background(), SummaryRequest{
		Start: day(2024, 1, 1),
		End:   day(2024, 1, 31),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load current period")
}

func TestTopCategories_LimitAndOrder(t *testing.T) {
	orders := []order.Order{
		newOrder(1, day(2024, 1, 1), order.StatusDelivered, "0", "0",
			line{category: 1, price: "10", qty: 1},
			line{category: 2, price: "30", qty: 1},
			line{category: 3, price: "20", qty: 1},
			line{category: 4, price: "30", qty: 1}),
		newOrder(2, day(2024, 1, 2), order.StatusDelivered, "0", "0",
			line{category: 1, price: "5", qty: 1}),
	}

	top := TopCategories(orders, 3)
	require.Len(t, top, 3)
	assert.Equal(t, int64(2), top[0].CategoryID)
	assert.Equal(t, int64(4), top[1].CategoryID)
	assert.Equal(t, int64(3), top[2].CategoryID)
}
