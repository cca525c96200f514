package product

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientStock is returned by Repository.DecrementStock when the
	// product holds fewer units than requested.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrUnknownCategory is returned by Create and Update when CategoryID
	// references no category.
	ErrUnknownCategory = errors.New("category does not exist")
	// ErrDuplicateName is returned when another product already has the same
	// name, compared case-insensitively.
	ErrDuplicateName = errors.New("product with this name already exists")
)

// Category groups products in the catalog.
type Category struct {
	ID          int64
	Name        string
	Description string
}

// Product represents a catalog item available for purchase.
type Product struct {
	ID            int64
	Name          string
	Description   string
	Price         decimal.Decimal
	StockQuantity int
	CategoryID    int64
	// CategoryName is populated only by queries that join categories.
	CategoryName string
}

// ValidationError describes a product field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

// Validate checks the invariants every stored product must satisfy.
func (p *Product) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return &ValidationError{Field: "name", Reason: "is required"}
	case p.Price.IsNegative():
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	case p.StockQuantity < 0:
		return &ValidationError{Field: "stockQuantity", Reason: "must not be negative"}
	case p.CategoryID <= 0:
		return &ValidationError{Field: "categoryId", Reason: "is required"}
	}
	return nil
}

// Repository defines persistence operations for the product catalog.
//
// DecrementStock and IncrementStock are the only stock mutations; both are
// single conditional statements so they stay consistent under concurrent
// orders when run inside a transaction.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	ListByCategory(ctx context.Context, categoryID int64) ([]Product, error)
	Search(ctx context.Context, term string) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id int64) error

	// DecrementStock removes qty units and returns ErrInsufficientStock when
	// fewer are available, or ErrNotFound when the product is gone.
	DecrementStock(ctx context.Context, id int64, qty int) error
	// IncrementStock returns qty units to stock, or ErrNotFound.
	IncrementStock(ctx context.Context, id int64, qty int) error
}
