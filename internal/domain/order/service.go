package order

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/webstore/internal/domain/customer"
	"github.com/xenking/webstore/internal/domain/discount"
	"github.com/xenking/webstore/internal/domain/product"
)

const instrumentationName = "github.com/xenking/webstore/internal/domain/order"

// CreateRequest holds the input for placing an order.
type CreateRequest struct {
	CustomerID int64
	Items      []LineRequest
}

// LineRequest is a requested product and quantity. Prices are never taken
// from the caller.
type LineRequest struct {
	ProductID int64
	Quantity  int
}

// Telemetry carries the OpenTelemetry providers used by the Service. Nil
// providers fall back to no-op implementations.
type Telemetry struct {
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Service encapsulates order lifecycle and discount business logic.
type Service struct {
	tx        Transactor
	products  product.Repository
	customers customer.Repository
	orders    Repository
	now       func() time.Time

	tracer         trace.Tracer
	created        metric.Int64Counter
	cancelled      metric.Int64Counter
	stockConflicts metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	tx Transactor,
	products product.Repository,
	customers customer.Repository,
	orders Repository,
	tel Telemetry,
) (*Service, error) {
	if tel.MeterProvider == nil {
		tel.MeterProvider = metricnoop.NewMeterProvider()
	}
	if tel.TracerProvider == nil {
		tel.TracerProvider = tracenoop.NewTracerProvider()
	}
	meter := tel.MeterProvider.Meter(instrumentationName)

	s := &Service{
		tx:        tx,
		products:  products,
		customers: customers,
		orders:    orders,
		now:       time.Now,
		tracer:    tel.TracerProvider.Tracer(instrumentationName),
	}

	var err error
	if s.created, err = meter.Int64Counter("webstore.orders.created",
		metric.WithDescription("Orders placed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.created counter")
	}
	if s.cancelled, err = meter.Int64Counter("webstore.orders.cancelled",
		metric.WithDescription("Orders cancelled with stock restored"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.cancelled counter")
	}
	if s.stockConflicts, err = meter.Int64Counter("webstore.orders.stock_conflicts",
		metric.WithDescription("Order lines rejected because stock ran out"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.stock_conflicts counter")
	}
	return s, nil
}

// CreateOrder validates the request and, in one transaction, reserves stock
// for every line, snapshots prices, applies the customer's loyalty discount
// and persists the order. On any failure nothing is committed.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrder",
		trace.WithAttributes(attribute.Int64("customer.id", req.CustomerID)),
	)
	defer func() { endSpan(span, rerr) }()

	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: line.ProductID}
		}
	}

	var o *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.customers.GetByID(ctx, req.CustomerID); err != nil {
			if errors.Is(err, customer.ErrNotFound) {
				return &CustomerNotFoundError{CustomerID: req.CustomerID}
			}
			return errors.Wrap(err, "get customer")
		}

		items, subtotal, err := s.reserveStock(ctx, req.Items)
		if err != nil {
			return err
		}

		spend, err := s.orders.CompletedSpend(ctx, req.CustomerID)
		if err != nil {
			return errors.Wrap(err, "customer spend")
		}
		pct := discount.Percent(spend)

		o = &Order{
			OrderDate:       s.now().UTC(),
			CustomerID:      req.CustomerID,
			Status:          StatusPending,
			Subtotal:        subtotal,
			DiscountPercent: pct,
			DiscountAmount:  discount.Amount(subtotal, pct),
			Items:           items,
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.created.Add(ctx, 1)
	zctx.From(ctx).Info("Order created",
		zap.Int64("order_id", o.ID),
		zap.Int64("customer_id", o.CustomerID),
		zap.Stringer("total", o.Total()),
	)
	return o, nil
}

// reserveStock decrements stock for every line and returns the priced items,
// in request order, and their subtotal. Must run inside a transaction.
//
// Rows are locked in ascending product id so that two orders naming the same
// products in a different order cannot deadlock.
func (s *Service) reserveStock(ctx context.Context, lines []LineRequest) ([]Item, decimal.Decimal, error) {
	byProduct := make([]int, len(lines))
	for i := range byProduct {
		byProduct[i] = i
	}
	slices.SortStableFunc(byProduct, func(a, b int) int {
		return cmp.Compare(lines[a].ProductID, lines[b].ProductID)
	})

	items := make([]Item, len(lines))
	subtotal := decimal.Zero

	for _, idx := range byProduct {
		line := lines[idx]
		p, err := s.products.GetByID(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return nil, decimal.Zero, &ProductNotFoundError{ProductID: line.ProductID}
			}
			return nil, decimal.Zero, errors.Wrapf(err, "get product %d", line.ProductID)
		}

		stockErr := &InsufficientStockError{
			ProductID:   p.ID,
			ProductName: p.Name,
			Requested:   line.Quantity,
			Available:   p.StockQuantity,
		}
		if p.StockQuantity < line.Quantity {
			return nil, decimal.Zero, stockErr
		}

		// The conditional decrement catches orders that raced us to the row.
		if err := s.products.DecrementStock(ctx, p.ID, line.Quantity); err != nil {
			switch {
			case errors.Is(err, product.ErrInsufficientStock):
				s.stockConflicts.Add(ctx, 1)
				return nil, decimal.Zero, stockErr
			case errors.Is(err, product.ErrNotFound):
				return nil, decimal.Zero, &ProductNotFoundError{ProductID: line.ProductID}
			default:
				return nil, decimal.Zero, errors.Wrapf(err, "decrement stock of product %d", p.ID)
			}
		}

		items[idx] = Item{
			ProductID:    p.ID,
			Quantity:     line.Quantity,
			UnitPrice:    p.Price,
			ProductName:  p.Name,
			CategoryID:   p.CategoryID,
			CategoryName: p.CategoryName,
		}
		subtotal = subtotal.Add(items[idx].LineTotal())
	}
	return items, subtotal, nil
}

// CancelOrder cancels a Pending order and returns its quantities to stock.
// Lines whose product has since been deleted are skipped.
func (s *Service) CancelOrder(ctx context.Context, id int64) (rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.CancelOrder",
		trace.WithAttributes(attribute.Int64("order.id", id)),
	)
	defer func() { endSpan(span, rerr) }()

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !o.Status.Cancellable() {
			return &InvalidTransitionError{OrderID: id, From: o.Status, To: StatusCancelled}
		}

		// Same lock order as reserveStock.
		restore := slices.Clone(o.Items)
		slices.SortStableFunc(restore, func(a, b Item) int {
			return cmp.Compare(a.ProductID, b.ProductID)
		})
		for _, item := range restore {
			err := s.products.IncrementStock(ctx, item.ProductID, item.Quantity)
			switch {
			case errors.Is(err, product.ErrNotFound):
				zctx.From(ctx).Warn("Skipping stock restore for deleted product",
					zap.Int64("order_id", id),
					zap.Int64("product_id", item.ProductID),
				)
			case err != nil:
				return errors.Wrapf(err, "restore stock of product %d", item.ProductID)
			}
		}

		return s.orders.UpdateStatus(ctx, id, StatusCancelled)
	})
	if err != nil {
		return err
	}

	s.cancelled.Add(ctx, 1)
	zctx.From(ctx).Info("Order cancelled", zap.Int64("order_id", id))
	return nil
}

// UpdateStatus moves an order to the named status. Cancelling goes through
// CancelOrder so that stock is restored; a cancelled order cannot be revived.
func (s *Service) UpdateStatus(ctx context.Context, id int64, statusName string) error {
	status, err := ParseStatus(statusName)
	if err != nil {
		return err
	}
	if status == StatusCancelled {
		return s.CancelOrder(ctx, id)
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if o.Status == StatusCancelled {
			return &InvalidTransitionError{OrderID: id, From: o.Status, To: status}
		}
		if o.Status == status {
			return nil
		}
		return s.orders.UpdateStatus(ctx, id, status)
	})
}

// GetOrder returns an order with items, product names and customer name.
func (s *Service) GetOrder(ctx context.Context, id int64) (*Order, error) {
	return s.orders.GetWithItems(ctx, id)
}

// ListCustomerOrders returns all orders placed by the customer.
func (s *Service) ListCustomerOrders(ctx context.Context, customerID int64) ([]Order, error) {
	return s.orders.ListByCustomer(ctx, customerID)
}

// CustomerSpend returns the sum of the customer's Delivered order totals.
func (s *Service) CustomerSpend(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	return s.orders.CompletedSpend(ctx, customerID)
}

// DiscountInfo reports the customer's loyalty tier. Lookup failures are
// logged and reported as ok=false rather than returned.
func (s *Service) DiscountInfo(ctx context.Context, customerID int64) (discount.Info, bool) {
	lg := zctx.From(ctx).With(zap.Int64("customer_id", customerID))

	if _, err := s.customers.GetByID(ctx, customerID); err != nil {
		lg.Debug("Discount info unavailable", zap.Error(err))
		return discount.Info{}, false
	}
	spend, err := s.orders.CompletedSpend(ctx, customerID)
	if err != nil {
		lg.Warn("Discount info unavailable", zap.Error(err))
		return discount.Info{}, false
	}
	return discount.Describe(spend), true
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
