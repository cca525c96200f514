// Package customer holds the read-only customer model used by ordering.
package customer

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested customer does not exist.
var ErrNotFound = errors.New("customer not found")

// Customer is a registered buyer.
type Customer struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// FullName joins first and last name, skipping empty parts.
func (c Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Repository provides read access to customers.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Customer, error)
}
