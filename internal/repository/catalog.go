package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/webstore/internal/domain/customer"
	"github.com/xenking/webstore/internal/domain/product"
)

// Upserts used by the seed and catalog-ingest tools. They are keyed on the
// natural keys of each table so repeated runs converge on the same rows.
const (
	upsertCategorySQL = `INSERT INTO categories (name, description)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE
			SET description = CASE WHEN EXCLUDED.description = ''
				THEN categories.description ELSE EXCLUDED.description END
		RETURNING id`

	listCategoriesSQL = `SELECT id, name, description FROM categories ORDER BY id`

	upsertProductSQL = `INSERT INTO products (name, description, price, stock_quantity, category_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ((LOWER(name))) DO UPDATE
			SET description = EXCLUDED.description,
				price = EXCLUDED.price,
				stock_quantity = EXCLUDED.stock_quantity,
				category_id = EXCLUDED.category_id
		RETURNING id`

	upsertCustomerSQL = `INSERT INTO customers (first_name, last_name, email, phone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE
			SET first_name = EXCLUDED.first_name,
				last_name = EXCLUDED.last_name,
				phone = EXCLUDED.phone
		RETURNING id`
)

// CategoryRepository manages product categories.
type CategoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository returns a CategoryRepository that uses the given pool.
func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

// Upsert inserts the category or updates the existing one with the same name.
// An empty description keeps the stored one. The category ID is set on c.
func (r *CategoryRepository) Upsert(ctx context.Context, c *product.Category) error {
	err := conn(ctx, r.pool).QueryRow(ctx, upsertCategorySQL, c.Name, c.Description).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("upserting category %q: %w", c.Name, err)
	}
	return nil
}

// List returns all categories ordered by ID.
func (r *CategoryRepository) List(ctx context.Context) ([]product.Category, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	defer rows.Close()

	var out []product.Category
	for rows.Next() {
		var c product.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return out, nil
}

// Upsert inserts the product or overwrites the one with the same name,
// compared case-insensitively. The product ID is set on p.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	err := conn(ctx, r.pool).QueryRow(ctx, upsertProductSQL,
		p.Name, p.Description, p.Price, p.StockQuantity, p.CategoryID,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.Name, err)
	}
	return nil
}

// Upsert inserts the customer or updates the one with the same email.
func (r *CustomerRepository) Upsert(ctx context.Context, c *customer.Customer) error {
	err := conn(ctx, r.pool).QueryRow(ctx, upsertCustomerSQL,
		c.FirstName, c.LastName, c.Email, c.Phone,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("upserting customer %q: %w", c.Email, err)
	}
	return nil
}
