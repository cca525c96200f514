package analytics

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/webstore/internal/domain/order"
)

// DefaultTopCategories is the number of categories reported when the service
// is configured with a non-positive limit.
const DefaultTopCategories = 3

// ErrInvalidRange is returned when the start date is after the end date.
var ErrInvalidRange = errors.New("invalid date range: start date is after end date")

// OrderSource loads orders placed within an inclusive date range.
type OrderSource interface {
	ListByPeriod(ctx context.Context, start, end time.Time, opts order.LoadOptions) ([]order.Order, error)
}

// SummaryRequest holds the input of SalesSummary. Zero dates are replaced
// with defaults: the first day of the current month and now.
type SummaryRequest struct {
	Start               time.Time
	End                 time.Time
	CompareWithPrevious bool
}

// Service computes sales summaries.
type Service struct {
	orders        OrderSource
	topCategories int
	now           func() time.Time
}

// NewService creates an analytics Service reading orders from the given source.
func NewService(orders OrderSource, topCategories int) *Service {
	if topCategories <= 0 {
		topCategories = DefaultTopCategories
	}
	return &Service{
		orders:        orders,
		topCategories: topCategories,
		now:           time.Now,
	}
}

// SalesSummary aggregates the orders of the requested period and, when asked,
// compares them with the preceding period of equal length. Both periods are
// loaded concurrently.
func (s *Service) SalesSummary(ctx context.Context, req SummaryRequest) (*SalesSummary, error) {
	period := s.resolvePeriod(req)
	if period.Start.After(period.End) {
		return nil, ErrInvalidRange
	}

	var current, previous []order.Order
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = s.orders.ListByPeriod(gctx, period.Start, period.End,
			order.LoadOptions{Items: true, Products: true})
		if err != nil {
			return errors.Wrap(err, "load current period")
		}
		return nil
	})
	if req.CompareWithPrevious {
		prev := period.Previous()
		g.Go(func() error {
			var err error
			previous, err = s.orders.ListByPeriod(gctx, prev.Start, prev.End, order.LoadOptions{})
			if err != nil {
				return errors.Wrap(err, "load previous period")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := Summarize(period, current)
	summary.TopCategories = TopCategories(current, s.topCategories)
	if req.CompareWithPrevious {
		summary.Comparison = Compare(summary, Summarize(period.Previous(), previous))
	}
	return &summary, nil
}

func (s *Service) resolvePeriod(req SummaryRequest) Period {
	p := Period{Start: req.Start, End: req.End}
	if p.Start.IsZero() || p.End.IsZero() {
		now := s.now().UTC()
		if p.Start.IsZero() {
			p.Start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		}
		if p.End.IsZero() {
			p.End = now
		}
	}
	return p
}
