package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/webstore/internal/domain/product"
)

const (
	productColumns = `p.id, p.name, p.description, p.price, p.stock_quantity, p.category_id, c.name`

	listProductsSQL = `SELECT ` + productColumns + `
		FROM products p JOIN categories c ON c.id = p.category_id
		ORDER BY p.id`

	getProductByIDSQL = `SELECT ` + productColumns + `
		FROM products p JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1`

	listProductsByCategorySQL = `SELECT ` + productColumns + `
		FROM products p JOIN categories c ON c.id = p.category_id
		WHERE p.category_id = $1
		ORDER BY p.id`

	searchProductsSQL = `SELECT ` + productColumns + `
		FROM products p JOIN categories c ON c.id = p.category_id
		WHERE p.name ILIKE '%' || $1 || '%' OR p.description ILIKE '%' || $1 || '%'
		ORDER BY p.id`

	createProductSQL = `INSERT INTO products (name, description, price, stock_quantity, category_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	updateProductSQL = `UPDATE products
		SET name = $2, description = $3, price = $4, stock_quantity = $5, category_id = $6
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	decrementStockSQL = `UPDATE products
		SET stock_quantity = stock_quantity - $2
		WHERE id = $1 AND stock_quantity >= $2`

	incrementStockSQL = `UPDATE products
		SET stock_quantity = stock_quantity + $2
		WHERE id = $1`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// ListByCategory returns the products of one category.
func (r *ProductRepository) ListByCategory(ctx context.Context, categoryID int64) ([]product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listProductsByCategorySQL, categoryID)
	if err != nil {
		return nil, fmt.Errorf("listing products of category %d: %w", categoryID, err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Search matches term case-insensitively against names and descriptions.
func (r *ProductRepository) Search(ctx context.Context, term string) ([]product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, searchProductsSQL, term)
	if err != nil {
		return nil, fmt.Errorf("searching products for %q: %w", term, err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create inserts a product and sets its ID.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	err := conn(ctx, r.pool).QueryRow(ctx, createProductSQL,
		p.Name, p.Description, p.Price, p.StockQuantity, p.CategoryID,
	).Scan(&p.ID)
	if err != nil {
		if mapped := productConstraintError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("creating product %q: %w", p.Name, err)
	}
	return nil
}

// Update overwrites every mutable field of the product.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateProductSQL,
		p.ID, p.Name, p.Description, p.Price, p.StockQuantity, p.CategoryID,
	)
	if err != nil {
		if mapped := productConstraintError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("updating product %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Delete removes a product. Order items keep referring to its ID.
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// DecrementStock atomically removes qty units when at least qty are in stock.
// The updated row stays locked until the surrounding transaction ends.
func (r *ProductRepository) DecrementStock(ctx context.Context, id int64, qty int) error {
	q := conn(ctx, r.pool)
	tag, err := q.Exec(ctx, decrementStockSQL, id, qty)
	if err != nil {
		return fmt.Errorf("decrementing stock of product %d: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, productExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking product %d: %w", id, err)
	}
	if !exists {
		return product.ErrNotFound
	}
	return product.ErrInsufficientStock
}

// IncrementStock returns qty units to stock.
func (r *ProductRepository) IncrementStock(ctx context.Context, id int64, qty int) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, incrementStockSQL, id, qty)
	if err != nil {
		return fmt.Errorf("incrementing stock of product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// productConstraintError maps constraint violations on products to domain
// errors, or returns nil.
func productConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}
	switch pgErr.Code {
	case pgForeignKeyViolation:
		return product.ErrUnknownCategory
	case pgUniqueViolation:
		return product.ErrDuplicateName
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		price decimal.Decimal
		stock int32
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &price, &stock, &p.CategoryID, &p.CategoryName,
	)
	p.Price = price
	p.StockQuantity = int(stock)
	return p, err
}
