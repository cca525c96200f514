package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/webstore/internal/domain/analytics"
	"github.com/xenking/webstore/internal/domain/discount"
	"github.com/xenking/webstore/internal/domain/order"
	"github.com/xenking/webstore/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID      map[int64]*product.Product
	created   *product.Product
	updated   *product.Product
	deleted   int64
	searched  string
	createErr error
	listErr   error
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []product.Product
	for id := int64(1); id <= int64(len(m.byID)); id++ {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id int64) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) ListByCategory(_ context.Context, categoryID int64) ([]product.Product, error) {
	var out []product.Product
	for _, p := range m.byID {
		if p.CategoryID == categoryID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) Search(_ context.Context, term string) ([]product.Product, error) {
	m.searched = term
	var out []product.Product
	for _, p := range m.byID {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(term)) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) Create(_ context.Context, p *product.Product) error {
	if m.createErr != nil {
		return m.createErr
	}
	p.ID = 100
	m.created = p
	return nil
}

func (m *mockProductRepo) Update(_ context.Context, p *product.Product) error {
	if _, ok := m.byID[p.ID]; !ok {
		return product.ErrNotFound
	}
	m.updated = p
	return nil
}

func (m *mockProductRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.byID[id]; !ok {
		return product.ErrNotFound
	}
	m.deleted = id
	return nil
}

func (m *mockProductRepo) DecrementStock(context.Context, int64, int) error { return nil }
func (m *mockProductRepo) IncrementStock(context.Context, int64, int) error { return nil }

type mockOrderService struct {
	createReq   order.CreateRequest
	created     *order.Order
	createErr   error
	cancelled   int64
	cancelErr   error
	statusID    int64
	status      string
	statusErr   error
	byID        map[int64]*order.Order
	byCustomer  []order.Order
	discount    discount.Info
	discountOK  bool
	getOrderErr error
}

func (m *mockOrderService) CreateOrder(_ context.Context, req order.CreateRequest) (*order.Order, error) {
	m.createReq = req
	return m.created, m.createErr
}

func (m *mockOrderService) CancelOrder(_ context.Context, id int64) error {
	m.cancelled = id
	return m.cancelErr
}

func (m *mockOrderService) UpdateStatus(_ context.Context, id int64, status string) error {
	m.statusID, m.status = id, status
	return m.statusErr
}

func (m *mockOrderService) GetOrder(_ context.Context, id int64) (*order.Order, error) {
	if m.getOrderErr != nil {
		return nil, m.getOrderErr
	}
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrderService) ListCustomerOrders(context.Context, int64) ([]order.Order, error) {
	return m.byCustomer, nil
}

func (m *mockOrderService) DiscountInfo(context.Context, int64) (discount.Info, bool) {
	return m.discount, m.discountOK
}

type mockAnalytics struct {
	req     analytics.SummaryRequest
	summary *analytics.SalesSummary
	err     error
}

func (m *mockAnalytics) SalesSummary(_ context.Context, req analytics.SummaryRequest) (*analytics.SalesSummary, error) {
	m.req = req
	return m.summary, m.err
}

// --- Helpers ---

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	products  *mockProductRepo
	orders    *mockOrderService
	analytics *mockAnalytics
	router    chi.Router
}

func newFixture() *fixture {
	f := &fixture{
		products: &mockProductRepo{byID: map[int64]*product.Product{
			1: {ID: 1, Name: "Smartphone X", Description: "Phone", Price: dec("999.99"), StockQuantity: 50, CategoryID: 1, CategoryName: "Electronics"},
			2: {ID: 2, Name: "Casual T-Shirt", Price: dec("19.99"), StockQuantity: 200, CategoryID: 2, CategoryName: "Clothing"},
		}},
		orders:    &mockOrderService{byID: map[int64]*order.Order{}},
		analytics: &mockAnalytics{},
		router:    chi.NewRouter(),
	}
	NewHandler(f.products, f.orders, f.analytics).Mount(f.router, nil)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(method, target, rd))

	var decoded map[string]any
	if strings.HasPrefix(strings.TrimSpace(w.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func requireErrorBody(t *testing.T, body map[string]any, code int) {
	t.Helper()
	require.NotNil(t, body)
	assert.Equal(t, float64(code), body["code"])
	assert.NotEmpty(t, body["message"])
}

// --- Products ---

func TestListProducts(t *testing.T) {
	f := newFixture()

	w, _ := f.do(t, http.MethodGet, "/api/products", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "Smartphone X", got[0]["name"])
	assert.Equal(t, 999.99, got[0]["price"])
	assert.Equal(t, float64(50), got[0]["stockQuantity"])
	assert.Equal(t, "Electronics", got[0]["categoryName"])
}

func TestListProducts_InternalError(t *testing.T) {
	f := newFixture()
	f.products.listErr = errors.New("connection reset")

	w, body := f.do(t, http.MethodGet, "/api/products", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	requireErrorBody(t, body, 500)
	assert.NotContains(t, body["message"], "connection reset")
}

func TestGetProduct(t *testing.T) {
	f := newFixture()

	w, body := f.do(t, http.MethodGet, "/api/products/2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Casual T-Shirt", body["name"])

	w, body = f.do(t, http.MethodGet, "/api/products/99", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	requireErrorBody(t, body, 404)

	w, _ = f.do(t, http.MethodGet, "/api/products/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListProductsByCategory(t *testing.T) {
	f := newFixture()

	w, _ := f.do(t, http.MethodGet, "/api/products/category/2", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, float64(2), got[0]["id"])

	w, _ = f.do(t, http.MethodGet, "/api/products/category/9", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestSearchProducts(t *testing.T) {
	f := newFixture()

	w, _ := f.do(t, http.MethodGet, "/api/products/search?term=phone", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "phone", f.products.searched)

	w, body := f.do(t, http.MethodGet, "/api/products/search?term=%20", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Search term cannot be empty", body["message"])
}

func TestCreateProduct(t *testing.T) {
	f := newFixture()

	w, body := f.do(t, http.MethodPost, "/api/products",
		`{"Name":"Yoga Mat","description":"Non-slip","price":24.99,"stockQuantity":120,"categoryId":5}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/api/products/100", w.Header().Get("Location"))
	assert.Equal(t, float64(100), body["id"])

	require.NotNil(t, f.products.created)
	assert.Equal(t, "Yoga Mat", f.products.created.Name)
	assert.True(t, dec("24.99").Equal(f.products.created.Price))
	assert.Equal(t, int64(5), f.products.created.CategoryID)
}

func TestCreateProduct_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "EmptyBody", body: ""},
		{name: "Malformed", body: `{"name":`},
		{name: "EmptyName", body: `{"name":" ","price":1,"stockQuantity":1,"categoryId":1}`},
		{name: "NegativePrice", body: `{"name":"x","price":-1,"stockQuantity":1,"categoryId":1}`},
		{name: "NegativeStock", body: `{"name":"x","price":1,"stockQuantity":-1,"categoryId":1}`},
		{name: "MissingCategory", body: `{"name":"x","price":1,"stockQuantity":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			w, body := f.do(t, http.MethodPost, "/api/products", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			requireErrorBody(t, body, 400)
			assert.Nil(t, f.products.created)
		})
	}
}

func TestCreateProduct_UnknownCategory(t *testing.T) {
	f := newFixture()
	f.products.createErr = product.ErrUnknownCategory

	w, body := f.do(t, http.MethodPost, "/api/products", `{"name":"x","price":1,"stockQuantity":1,"categoryId":42}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, product.ErrUnknownCategory.Error(), body["message"])
}

func TestUpdateAndDeleteProduct(t *testing.T) {
	f := newFixture()

	w, _ := f.do(t, http.MethodPut, "/api/products/1",
		`{"name":"Smartphone X2","price":1099.99,"stockQuantity":10,"categoryId":1}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, f.products.updated)
	assert.Equal(t, int64(1), f.products.updated.ID)
	assert.Equal(t, "Smartphone X2", f.products.updated.Name)

	w, _ = f.do(t, http.MethodPut, "/api/products/77",
		`{"name":"Ghost","price":1,"stockQuantity":1,"categoryId":1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.do(t, http.MethodDelete, "/api/products/2", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, int64(2), f.products.deleted)

	w, _ = f.do(t, http.MethodDelete, "/api/products/2000", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- Orders ---

func sampleOrder() *order.Order {
	return &order.Order{
		ID:              7,
		OrderDate:       time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
		CustomerID:      1,
		CustomerName:    "John Doe",
		Status:          order.StatusPending,
		Subtotal:        dec("2019.97"),
		DiscountPercent: dec("5"),
		DiscountAmount:  dec("101.00"),
		Items: []order.Item{
			{ProductID: 1, ProductName: "Smartphone X", Quantity: 2, UnitPrice: dec("999.99")},
			{ProductID: 2, ProductName: "Casual T-Shirt", Quantity: 1, UnitPrice: dec("19.99")},
		},
	}
}

func TestCreateOrder(t *testing.T) {
	f := newFixture()
	f.orders.created = sampleOrder()

	w, body := f.do(t, http.MethodPost, "/api/orders",
		`{"customerId":1,"orderItems":[{"productId":1,"quantity":2},{"productId":2,"quantity":1}]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/api/orders/7", w.Header().Get("Location"))

	assert.Equal(t, order.CreateRequest{
		CustomerID: 1,
		Items: []order.LineRequest{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 1},
		},
	}, f.orders.createReq)

	assert.Equal(t, float64(7), body["id"])
	assert.Equal(t, "Pending", body["status"])
	assert.Equal(t, "2024-03-01T10:30:00Z", body["orderDate"])
	assert.Equal(t, 2019.97, body["subtotalAmount"])
	assert.Equal(t, float64(5), body["discountPercentage"])
	assert.Equal(t, float64(101), body["discountAmount"])
	assert.Equal(t, 1918.97, body["totalAmount"])

	items, ok := body["orderItems"].([]any)
	require.True(t, ok)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, "Smartphone X", first["productName"])
	assert.Equal(t, 1999.98, first["lineTotal"])
}

func TestCreateOrder_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "EmptyItems", err: order.ErrEmptyItems, code: http.StatusBadRequest},
		{name: "InvalidQuantity", err: &order.InvalidQuantityError{ProductID: 1}, code: http.StatusBadRequest},
		{name: "UnknownProduct", err: &order.ProductNotFoundError{ProductID: 9}, code: http.StatusBadRequest},
		{name: "UnknownCustomer", err: &order.CustomerNotFoundError{CustomerID: 9}, code: http.StatusBadRequest},
		{name: "InsufficientStock", err: &order.InsufficientStockError{ProductID: 1, ProductName: "Smartphone X", Requested: 60, Available: 50}, code: http.StatusBadRequest},
		{name: "Internal", err: errors.Wrap(errors.New("deadlock detected"), "create order"), code: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.orders.createErr = tt.err

			w, body := f.do(t, http.MethodPost, "/api/orders", `{"customerId":1,"orderItems":[]}`)
			assert.Equal(t, tt.code, w.Code)
			requireErrorBody(t, body, tt.code)
		})
	}
}

func TestCreateOrder_MalformedBody(t *testing.T) {
	f := newFixture()

	w, body := f.do(t, http.MethodPost, "/api/orders", `{"customerId":"one"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	requireErrorBody(t, body, 400)
}

func TestGetOrder(t *testing.T) {
	f := newFixture()
	f.orders.byID[7] = sampleOrder()

	w, body := f.do(t, http.MethodGet, "/api/orders/7", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "John Doe", body["customerName"])
	assert.Len(t, body["orderItems"], 2)

	w, body = f.do(t, http.MethodGet, "/api/orders/8", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	requireErrorBody(t, body, 404)
}

func TestListCustomerOrders(t *testing.T) {
	f := newFixture()
	f.orders.byCustomer = []order.Order{*sampleOrder()}

	w, _ := f.do(t, http.MethodGet, "/api/orders/customer/1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.NotContains(t, got[0], "orderItems")
	assert.Equal(t, 1918.97, got[0]["totalAmount"])
}

func TestUpdateOrderStatus(t *testing.T) {
	for _, body := range []string{`"Shipped"`, `{"status":"Shipped"}`} {
		f := newFixture()

		w, _ := f.do(t, http.MethodPut, "/api/orders/7/status", body)
		require.Equal(t, http.StatusNoContent, w.Code, body)
		assert.Equal(t, int64(7), f.orders.statusID)
		assert.Equal(t, "Shipped", f.orders.status)
	}
}

func TestUpdateOrderStatus_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		code int
	}{
		{name: "InvalidStatus", body: `"Lost"`, err: &order.InvalidStatusError{Value: "Lost"}, code: http.StatusBadRequest},
		{name: "NotFound", body: `"Shipped"`, err: order.ErrNotFound, code: http.StatusNotFound},
		{name: "RevivingCancelled", body: `"Pending"`, err: &order.InvalidTransitionError{OrderID: 7, From: order.StatusCancelled, To: order.StatusPending}, code: http.StatusBadRequest},
		{name: "NumberBody", body: `42`, code: http.StatusBadRequest},
		{name: "ObjectWithoutStatus", body: `{"state":"Shipped"}`, code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.orders.statusErr = tt.err

			w, body := f.do(t, http.MethodPut, "/api/orders/7/status", tt.body)
			assert.Equal(t, tt.code, w.Code)
			requireErrorBody(t, body, tt.code)
		})
	}
}

func TestCancelOrder(t *testing.T) {
	f := newFixture()

	w, _ := f.do(t, http.MethodPost, "/api/orders/7/cancel", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, int64(7), f.orders.cancelled)

	f.orders.cancelErr = &order.InvalidTransitionError{OrderID: 7, From: order.StatusShipped, To: order.StatusCancelled}
	w, body := f.do(t, http.MethodPost, "/api/orders/7/cancel", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "cannot cancel order 7: order is Shipped", body["message"])

	f.orders.cancelErr = order.ErrNotFound
	w, _ = f.do(t, http.MethodPost, "/api/orders/7/cancel", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetDiscountInfo(t *testing.T) {
	f := newFixture()
	f.orders.discount = discount.Describe(dec("12000"))
	f.orders.discountOK = true

	w, body := f.do(t, http.MethodGet, "/api/orders/customers/1/discount-info", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Gold", body["discountTier"])
	assert.Equal(t, float64(15), body["currentDiscountPercent"])
	assert.Equal(t, float64(12000), body["totalSpent"])
	assert.Equal(t, float64(0), body["amountToNextLevel"])
	assert.Equal(t, float64(0), body["nextLevelThreshold"])

	f.orders.discountOK = false
	w, body = f.do(t, http.MethodGet, "/api/orders/customers/1/discount-info", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	requireErrorBody(t, body, 404)
}

// --- Analytics ---

func TestGetSalesSummary(t *testing.T) {
	f := newFixture()
	f.analytics.summary = &analytics.SalesSummary{
		Period: analytics.Period{
			Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 1, 31, 23, 59, 59, 999999000, time.UTC),
		},
		TotalSales:        dec("1250"),
		TotalOrders:       4,
		AverageOrderValue: dec("312.5"),
		CompletedOrders:   2,
		CancelledOrders:   1,
		ConversionRate:    dec("50"),
		Comparison: &analytics.Comparison{
			PreviousPeriod: analytics.PreviousPeriod{TotalSales: dec("0"), TotalOrders: 0},
			SalesGrowth:    dec("100"),
			OrdersGrowth:   dec("100"),
		},
		TopCategories: []analytics.CategorySales{
			{CategoryID: 1, CategoryName: "Electronics", SalesAmount: dec("800"), OrdersCount: 1},
		},
	}

	w, body := f.do(t, http.MethodGet,
		"/api/orderanalytics/summary?startDate=2024-01-01&endDate=2024-01-31&compareWithPrevious=true", "")
	require.Equal(t, http.StatusOK, w.Code)

	req := f.analytics.req
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), req.Start)
	assert.Equal(t, time.Date(2024, 1, 31, 23, 59, 59, 999999000, time.UTC), req.End)
	assert.True(t, req.CompareWithPrevious)

	assert.Equal(t, float64(1250), body["totalSales"])
	assert.Equal(t, float64(4), body["totalOrders"])
	assert.Equal(t, 312.5, body["averageOrderValue"])
	assert.Equal(t, float64(50), body["conversionRate"])
	period := body["period"].(map[string]any)
	assert.Equal(t, "2024-01-01T00:00:00Z", period["startDate"])

	comparison := body["comparison"].(map[string]any)
	assert.Equal(t, float64(100), comparison["salesGrowth"])

	top := body["topCategories"].([]any)
	require.Len(t, top, 1)
	assert.Equal(t, "Electronics", top[0].(map[string]any)["categoryName"])
}

func TestGetSalesSummary_Defaults(t *testing.T) {
	f := newFixture()
	f.analytics.summary = &analytics.SalesSummary{}

	w, body := f.do(t, http.MethodGet, "/api/orderanalytics/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.analytics.req.Start.IsZero())
	assert.True(t, f.analytics.req.End.IsZero())
	assert.False(t, f.analytics.req.CompareWithPrevious)
	assert.Nil(t, body["comparison"])
	assert.Equal(t, []any{}, body["topCategories"])
}

func TestGetSalesSummary_BadInput(t *testing.T) {
	tests := []struct {
		name  string
		query string
		err   error
	}{
		{name: "BadStart", query: "startDate=yesterday"},
		{name: "BadEnd", query: "endDate=2024-13-01"},
		{name: "BadCompare", query: "compareWithPrevious=maybe"},
		{name: "InvalidRange", query: "startDate=2024-02-01&endDate=2024-01-01", err: analytics.ErrInvalidRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.analytics.err = tt.err

			w, body := f.do(t, http.MethodGet, "/api/orderanalytics/summary?"+tt.query, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			requireErrorBody(t, body, 400)
		})
	}
}

func TestParseDate_RFC3339(t *testing.T) {
	got, err := parseDate("2024-01-31T12:00:00+02:00", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC), got)
}
