package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/webstore/internal/domain/order"
)

const (
	orderColumns = `o.id, o.order_date, o.customer_id, o.status,
		o.subtotal_amount, o.discount_percentage, o.discount_amount`

	createOrderSQL = `INSERT INTO orders
		(order_date, customer_id, status, subtotal_amount, discount_percentage, discount_amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	createOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	getOrderForUpdateSQL = `SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.id = $1
		FOR UPDATE`

	getOrderWithCustomerSQL = `SELECT ` + orderColumns + `,
		COALESCE(TRIM(cu.first_name || ' ' || cu.last_name), '')
		FROM orders o
		LEFT JOIN customers cu ON cu.id = o.customer_id
		WHERE o.id = $1`

	listOrdersByCustomerSQL = `SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.customer_id = $1
		ORDER BY o.order_date DESC, o.id DESC`

	listOrdersByPeriodSQL = `SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.order_date >= $1 AND o.order_date <= $2
		ORDER BY o.order_date, o.id`

	listItemsSQL = `SELECT i.order_id, i.id, i.product_id, i.quantity, i.unit_price,
		NULL::TEXT, NULL::BIGINT, NULL::TEXT
		FROM order_items i
		WHERE i.order_id = ANY($1)
		ORDER BY i.order_id, i.id`

	// Products may have been deleted since the order was placed, hence the
	// outer joins.
	listItemsWithProductsSQL = `SELECT i.order_id, i.id, i.product_id, i.quantity, i.unit_price,
		p.name, p.category_id, c.name
		FROM order_items i
		LEFT JOIN products p ON p.id = i.product_id
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE i.order_id = ANY($1)
		ORDER BY i.order_id, i.id`

	completedSpendSQL = `SELECT COALESCE(SUM(subtotal_amount - discount_amount), 0)
		FROM orders
		WHERE customer_id = $1 AND status = 'Delivered'`

	updateOrderStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and its items. Callers are expected to run it
// inside a transaction so a failed item insert leaves no partial order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	q := conn(ctx, r.pool)

	err := q.QueryRow(ctx, createOrderSQL,
		o.OrderDate, o.CustomerID, string(o.Status),
		o.Subtotal, o.DiscountPercent, o.DiscountAmount,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("creating order for customer %d: %w", o.CustomerID, err)
	}

	if len(o.Items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range o.Items {
		item := &o.Items[i]
		batch.Queue(createOrderItemSQL, o.ID, item.ProductID, item.Quantity, item.UnitPrice).
			QueryRow(func(row pgx.Row) error {
				return row.Scan(&item.ID)
			})
	}
	if err := q.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("creating items of order %d: %w", o.ID, err)
	}
	return nil
}

// GetForUpdate loads an order with its items and holds a row lock on the order.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id int64) (*order.Order, error) {
	q := conn(ctx, r.pool)

	rows, err := q.Query(ctx, getOrderForUpdateSQL, id)
	if err != nil {
		return nil, fmt.Errorf("locking order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("locking order %d: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.attachItems(ctx, q, orders, false); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// GetWithItems loads an order with its customer name and items joined with
// their products and categories.
func (r *OrderRepository) GetWithItems(ctx context.Context, id int64) (*order.Order, error) {
	q := conn(ctx, r.pool)

	rows, err := q.Query(ctx, getOrderWithCustomerSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (order.Order, error) {
		var (
			o      order.Order
			status string
		)
		err := row.Scan(
			&o.ID, &o.OrderDate, &o.CustomerID, &status,
			&o.Subtotal, &o.DiscountPercent, &o.DiscountAmount,
			&o.CustomerName,
		)
		o.Status = order.Status(status)
		return o, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.attachItems(ctx, q, orders, true); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListByCustomer returns the customer's orders with items, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID int64) ([]order.Order, error) {
	q := conn(ctx, r.pool)

	rows, err := q.Query(ctx, listOrdersByCustomerSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of customer %d: %w", customerID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders of customer %d: %w", customerID, err)
	}

	if err := r.attachItems(ctx, q, orders, true); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListByPeriod returns orders placed within [start, end], oldest first.
func (r *OrderRepository) ListByPeriod(ctx context.Context, start, end time.Time, opts order.LoadOptions) ([]order.Order, error) {
	q := conn(ctx, r.pool)

	rows, err := q.Query(ctx, listOrdersByPeriodSQL, start, end)
	if err != nil {
		return nil, fmt.Errorf("listing orders between %s and %s: %w",
			start.Format(time.DateOnly), end.Format(time.DateOnly), err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders between %s and %s: %w",
			start.Format(time.DateOnly), end.Format(time.DateOnly), err)
	}

	if opts.Items || opts.Products {
		if err := r.attachItems(ctx, q, orders, opts.Products); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// CompletedSpend sums subtotal minus discount over the customer's Delivered
// orders.
func (r *OrderRepository) CompletedSpend(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	var spend decimal.Decimal
	err := conn(ctx, r.pool).QueryRow(ctx, completedSpendSQL, customerID).Scan(&spend)
	if err != nil {
		return decimal.Zero, fmt.Errorf("summing spend of customer %d: %w", customerID, err)
	}
	return spend, nil
}

// UpdateStatus overwrites the status of an order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status order.Status) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateOrderStatusSQL, id, string(status))
	if err != nil {
		return fmt.Errorf("updating status of order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// attachItems loads the items of all given orders in one query and assigns
// them in place.
func (r *OrderRepository) attachItems(ctx context.Context, q querier, orders []order.Order, withProducts bool) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = i
	}

	sql := listItemsSQL
	if withProducts {
		sql = listItemsWithProductsSQL
	}
	rows, err := q.Query(ctx, sql, ids)
	if err != nil {
		return fmt.Errorf("loading order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID      int64
			item         order.Item
			productName  *string
			categoryID   *int64
			categoryName *string
		)
		if err := rows.Scan(
			&orderID, &item.ID, &item.ProductID, &item.Quantity, &item.UnitPrice,
			&productName, &categoryID, &categoryName,
		); err != nil {
			return fmt.Errorf("scanning order item: %w", err)
		}
		if productName != nil {
			item.ProductName = *productName
		}
		if categoryID != nil {
			item.CategoryID = *categoryID
		}
		if categoryName != nil {
			item.CategoryName = *categoryName
		}

		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("loading order items: %w", err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.OrderDate, &o.CustomerID, &status,
		&o.Subtotal, &o.DiscountPercent, &o.DiscountAmount,
	)
	o.Status = order.Status(status)
	return o, err
}
