package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/webstore/internal/domain/customer"
)

const getCustomerByIDSQL = `SELECT id, first_name, last_name, email, phone
	FROM customers WHERE id = $1`

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository provides read-only customer lookups backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GetByID returns customer.ErrNotFound when no customer has the given ID.
func (r *CustomerRepository) GetByID(ctx context.Context, id int64) (*customer.Customer, error) {
	var c customer.Customer
	err := conn(ctx, r.pool).QueryRow(ctx, getCustomerByIDSQL, id).Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %d: %w", id, err)
	}
	return &c, nil
}
