// Package handler exposes the store over HTTP.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/webstore/internal/domain/analytics"
	"github.com/xenking/webstore/internal/domain/discount"
	"github.com/xenking/webstore/internal/domain/order"
	"github.com/xenking/webstore/internal/domain/product"
)

// OrderService is the order use-case surface needed by the handlers.
type OrderService interface {
	CreateOrder(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	CancelOrder(ctx context.Context, id int64) error
	UpdateStatus(ctx context.Context, id int64, status string) error
	GetOrder(ctx context.Context, id int64) (*order.Order, error)
	ListCustomerOrders(ctx context.Context, customerID int64) ([]order.Order, error)
	DiscountInfo(ctx context.Context, customerID int64) (discount.Info, bool)
}

// AnalyticsService computes sales summaries.
type AnalyticsService interface {
	SalesSummary(ctx context.Context, req analytics.SummaryRequest) (*analytics.SalesSummary, error)
}

var (
	_ OrderService     = (*order.Service)(nil)
	_ AnalyticsService = (*analytics.Service)(nil)
)

// Handler serves the /api routes.
type Handler struct {
	products  product.Repository
	orders    OrderService
	analytics AnalyticsService
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(products product.Repository, orders OrderService, analytics AnalyticsService) *Handler {
	return &Handler{
		products:  products,
		orders:    orders,
		analytics: analytics,
	}
}

// Mount registers the API routes on r under /api. writeLimit, when not nil,
// guards the routes that create or change orders.
func (h *Handler) Mount(r chi.Router, writeLimit func(http.Handler) http.Handler) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.CreateProduct)
		r.Get("/search", h.SearchProducts)
		r.Get("/category/{categoryId}", h.ListProductsByCategory)
		r.Get("/{id}", h.GetProduct)
		r.Put("/{id}", h.UpdateProduct)
		r.Delete("/{id}", h.DeleteProduct)
	})

	r.Route("/api/orders", func(r chi.Router) {
		r.Get("/{id}", h.GetOrder)
		r.Get("/customer/{customerId}", h.ListCustomerOrders)
		r.Get("/customers/{id}/discount-info", h.GetDiscountInfo)

		writes := r.With()
		if writeLimit != nil {
			writes = r.With(writeLimit)
		}
		writes.Post("/", h.CreateOrder)
		writes.Put("/{id}/status", h.UpdateOrderStatus)
		writes.Post("/{id}/cancel", h.CancelOrder)
	})

	r.Get("/api/orderanalytics/summary", h.GetSalesSummary)
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid %s %q", name, raw)
	}
	return id, nil
}
