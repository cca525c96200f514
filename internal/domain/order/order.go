package order

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfilment state of an order.
type Status string

// Order statuses. The string values are stored in the database as-is.
const (
	StatusPending   Status = "Pending"
	StatusShipped   Status = "Shipped"
	StatusDelivered Status = "Delivered"
	StatusCancelled Status = "Cancelled"
)

var statuses = []Status{StatusPending, StatusShipped, StatusDelivered, StatusCancelled}

// ParseStatus converts a case-insensitive status name to a Status.
func ParseStatus(s string) (Status, error) {
	name := strings.TrimSpace(s)
	for _, st := range statuses {
		if strings.EqualFold(name, string(st)) {
			return st, nil
		}
	}
	return "", &InvalidStatusError{Value: s}
}

// Cancellable reports whether an order in this status may still be cancelled.
func (s Status) Cancellable() bool {
	return s == StatusPending
}

// Order is a customer purchase with prices and discount fixed at creation.
type Order struct {
	ID         int64
	OrderDate  time.Time
	CustomerID int64
	// CustomerName is populated only by GetWithItems.
	CustomerName    string
	Status          Status
	Subtotal        decimal.Decimal
	DiscountPercent decimal.Decimal
	DiscountAmount  decimal.Decimal
	Items           []Item
}

// Total is the amount charged: subtotal minus discount. It is always derived
// and never stored.
func (o *Order) Total() decimal.Decimal {
	return o.Subtotal.Sub(o.DiscountAmount)
}

// Item is a single order line. UnitPrice is the product price at the moment
// the order was placed.
type Item struct {
	ID        int64
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal

	// Populated only when items are loaded with products.
	ProductName  string
	CategoryID   int64
	CategoryName string
}

// LineTotal returns unit price times quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// LoadOptions selects which relations a query joins eagerly.
type LoadOptions struct {
	Items bool
	// Products joins product and category names onto items; implies Items.
	Products bool
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create inserts the order and its items, assigning IDs.
	Create(ctx context.Context, o *Order) error
	// GetForUpdate loads the order with its items and locks the order row
	// until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*Order, error)
	// GetWithItems loads the order, its customer name and items joined with
	// products and categories.
	GetWithItems(ctx context.Context, id int64) (*Order, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]Order, error)
	ListByPeriod(ctx context.Context, start, end time.Time, opts LoadOptions) ([]Order, error)
	// CompletedSpend sums the totals of the customer's Delivered orders.
	CompletedSpend(ctx context.Context, customerID int64) (decimal.Decimal, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
}

// Transactor runs fn inside a single database transaction. Repository calls
// made with the context passed to fn take part in that transaction; the
// transaction is rolled back when fn returns an error.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
