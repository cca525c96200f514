// Package analytics builds sales read models over orders in a date range.
package analytics

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/webstore/internal/domain/order"
)

var hundred = decimal.NewFromInt(100)

// Period is an inclusive date range.
type Period struct {
	Start time.Time
	End   time.Time
}

// SalesSummary aggregates sales metrics for one period.
type SalesSummary struct {
	Period            Period
	TotalSales        decimal.Decimal
	TotalOrders       int
	AverageOrderValue decimal.Decimal
	CompletedOrders   int
	CancelledOrders   int
	ConversionRate    decimal.Decimal
	// Comparison is nil unless the previous period was requested.
	Comparison    *Comparison
	TopCategories []CategorySales
}

// Comparison contrasts a summary with the preceding period of equal length.
type Comparison struct {
	PreviousPeriod PreviousPeriod
	SalesGrowth    decimal.Decimal
	OrdersGrowth   decimal.Decimal
}

// PreviousPeriod holds the headline totals of the preceding period.
type PreviousPeriod struct {
	Period      Period
	TotalSales  decimal.Decimal
	TotalOrders int
}

// CategorySales is the Delivered revenue of one product category.
type CategorySales struct {
	CategoryID   int64
	CategoryName string
	SalesAmount  decimal.Decimal
	OrdersCount  int
}

// Summarize computes the per-period metrics. Only Delivered orders count as
// sales; every order counts towards TotalOrders.
func Summarize(p Period, orders []order.Order) SalesSummary {
	s := SalesSummary{
		Period:            p,
		TotalSales:        decimal.Zero,
		TotalOrders:       len(orders),
		AverageOrderValue: decimal.Zero,
		ConversionRate:    decimal.Zero,
	}
	for i := range orders {
		switch orders[i].Status {
		case order.StatusDelivered:
			s.CompletedOrders++
			s.TotalSales = s.TotalSales.Add(orders[i].Total())
		case order.StatusCancelled:
			s.CancelledOrders++
		}
	}
	if s.TotalOrders > 0 {
		n := decimal.NewFromInt(int64(s.TotalOrders))
		s.AverageOrderValue = s.TotalSales.Div(n).Round(2)
		s.ConversionRate = decimal.NewFromInt(int64(s.CompletedOrders)).Mul(hundred).Div(n).Round(2)
	}
	return s
}

// TopCategories groups the items of Delivered orders by category and returns
// the n categories with the highest sales, ties broken by category ID.
func TopCategories(orders []order.Order, n int) []CategorySales {
	type bucket struct {
		sales    CategorySales
		orderIDs map[int64]struct{}
	}
	buckets := make(map[int64]*bucket)

	for i := range orders {
		o := &orders[i]
		if o.Status != order.StatusDelivered {
			continue
		}
		for _, item := range o.Items {
			if item.CategoryID == 0 {
				continue
			}
			b, ok := buckets[item.CategoryID]
			if !ok {
				b = &bucket{
					sales: CategorySales{
						CategoryID:   item.CategoryID,
						CategoryName: item.CategoryName,
						SalesAmount:  decimal.Zero,
					},
					orderIDs: make(map[int64]struct{}),
				}
				buckets[item.CategoryID] = b
			}
			b.sales.SalesAmount = b.sales.SalesAmount.Add(item.LineTotal())
			b.orderIDs[o.ID] = struct{}{}
		}
	}

	out := make([]CategorySales, 0, len(buckets))
	for _, b := range buckets {
		b.sales.OrdersCount = len(b.orderIDs)
		out = append(out, b.sales)
	}
	slices.SortFunc(out, func(a, b CategorySales) int {
		if c := b.SalesAmount.Cmp(a.SalesAmount); c != 0 {
			return c
		}
		return cmp.Compare(a.CategoryID, b.CategoryID)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Compare builds the period-over-period comparison. Growth from a zero base
// is reported as 100.
func Compare(current, previous SalesSummary) *Comparison {
	return &Comparison{
		PreviousPeriod: PreviousPeriod{
			Period:      previous.Period,
			TotalSales:  previous.TotalSales,
			TotalOrders: previous.TotalOrders,
		},
		SalesGrowth: growth(current.TotalSales, previous.TotalSales),
		OrdersGrowth: growth(
			decimal.NewFromInt(int64(current.TotalOrders)),
			decimal.NewFromInt(int64(previous.TotalOrders)),
		),
	}
}

func growth(current, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		return hundred
	}
	return current.Sub(previous).Div(previous).Mul(hundred).Round(2)
}

// Previous returns the range of equal length immediately preceding p:
// [start - (end - start), start - 1 day].
func (p Period) Previous() Period {
	length := p.End.Sub(p.Start)
	return Period{
		Start: p.Start.Add(-length),
		End:   p.Start.AddDate(0, 0, -1),
	}
}
