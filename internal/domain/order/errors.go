package order

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/webstore/internal/domain/customer"
	"github.com/xenking/webstore/internal/domain/product"
)

// Sentinel errors for order operations.
var (
	ErrEmptyItems = errors.New("order items required")
	ErrNotFound   = errors.New("order not found")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %d", e.ProductID)
}

// ProductNotFoundError indicates an ordered product does not exist.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product with ID %d not found", e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error { return product.ErrNotFound }

// CustomerNotFoundError indicates the ordering customer does not exist.
type CustomerNotFoundError struct {
	CustomerID int64
}

func (e *CustomerNotFoundError) Error() string {
	return fmt.Sprintf("customer with ID %d not found", e.CustomerID)
}

func (e *CustomerNotFoundError) Unwrap() error { return customer.ErrNotFound }

// InsufficientStockError indicates a line asks for more units than are in stock.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for product %s: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return product.ErrInsufficientStock }

// InvalidTransitionError indicates a status change the order lifecycle forbids.
type InvalidTransitionError struct {
	OrderID int64
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	if e.To == StatusCancelled {
		return fmt.Sprintf("cannot cancel order %d: order is %s", e.OrderID, e.From)
	}
	return fmt.Sprintf("cannot change order %d from %s to %s", e.OrderID, e.From, e.To)
}

// InvalidStatusError indicates an unknown order status name.
type InvalidStatusError struct {
	Value string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid order status %q", e.Value)
}
