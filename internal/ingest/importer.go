// Package ingest imports large product feeds into the catalog.
//
// Feeds are read three times. The first pass builds one bloom filter per feed
// over normalized product names. The second pass finds names that appear in
// more than one feed, confirming bloom hits exactly with per-feed bitmasks.
// The third pass upserts the records, letting the earliest feed own every
// shared name.
package ingest

import (
	"context"
	"log/slog"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/webstore/internal/domain/product"
)

const (
	defaultCapacity = 1_000_000
	defaultFPR      = 0.001
	progressEvery   = 100_000
)

// CategoryStore upserts categories by name.
type CategoryStore interface {
	Upsert(ctx context.Context, c *product.Category) error
}

// ProductStore upserts products by case-insensitive name.
type ProductStore interface {
	Upsert(ctx context.Context, p *product.Product) error
}

// Options tune the importer.
type Options struct {
	// Capacity is the expected number of distinct names per feed.
	Capacity uint
	// FPR is the false positive rate of each bloom filter.
	FPR float64
	// Workers limits how many feeds are processed concurrently; zero means
	// one per feed.
	Workers int
	Logger  *slog.Logger
}

// Stats reports what an import did.
type Stats struct {
	Records  int64
	Invalid  int64
	Shared   int
	Skipped  int64
	Upserted int64
}

// Importer loads feeds into the catalog.
type Importer struct {
	categories CategoryStore
	products   ProductStore
	opts       Options
	log        *slog.Logger

	mu          sync.Mutex
	categoryIDs map[string]int64
}

// NewImporter creates an Importer writing to the given stores.
func NewImporter(categories CategoryStore, products ProductStore, opts Options) *Importer {
	if opts.Capacity == 0 {
		opts.Capacity = defaultCapacity
	}
	if opts.FPR <= 0 {
		opts.FPR = defaultFPR
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Importer{
		categories:  categories,
		products:    products,
		opts:        opts,
		log:         log,
		categoryIDs: make(map[string]int64),
	}
}

// Import runs all three passes over feeds. Feed order matters: for a name
// present in several feeds only the record of the earliest one is stored.
// Within a single feed a later line for the same name overwrites an earlier one.
func (im *Importer) Import(ctx context.Context, feeds []Feed) (Stats, error) {
	var stats Stats
	if len(feeds) == 0 {
		return stats, nil
	}
	if len(feeds) > bits.UintSize {
		return stats, errors.Errorf("too many feeds: %d, at most %d", len(feeds), bits.UintSize)
	}

	im.log.Info("pass 1: building bloom filters", slog.Int("feeds", len(feeds)))
	filters, err := im.buildFilters(ctx, feeds, &stats)
	if err != nil {
		return stats, errors.Wrap(err, "build bloom filters")
	}

	im.log.Info("pass 2: finding shared names")
	owners, err := im.findShared(ctx, feeds, filters)
	if err != nil {
		return stats, errors.Wrap(err, "find shared names")
	}
	stats.Shared = len(owners)
	im.log.Info("shared names found", slog.Int("count", len(owners)))

	im.log.Info("pass 3: upserting products")
	if err := im.upsertAll(ctx, feeds, owners, &stats); err != nil {
		return stats, errors.Wrap(err, "upsert products")
	}
	return stats, nil
}

func (im *Importer) group(ctx context.Context) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	if im.opts.Workers > 0 {
		g.SetLimit(im.opts.Workers)
	}
	return g, gctx
}

func (im *Importer) buildFilters(ctx context.Context, feeds []Feed, stats *Stats) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(feeds))

	g, gctx := im.group(ctx)
	for i, feed := range feeds {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(im.opts.Capacity, im.opts.FPR)
			var count int64

			err := stream(gctx, feed, func(rec Record) error {
				filter.AddString(rec.Key())
				count++
				if count%progressEvery == 0 {
					im.log.Info("pass 1 progress", slog.String("feed", feed.Name), slog.Int64("records", count))
				}
				return nil
			}, func(line int, err error) {
				atomic.AddInt64(&stats.Invalid, 1)
				im.log.Warn("skipping invalid record",
					slog.String("feed", feed.Name),
					slog.Int("line", line),
					slog.String("error", err.Error()),
				)
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for %s", feed.Name)
			}

			atomic.AddInt64(&stats.Records, count)
			im.log.Info("pass 1 complete", slog.String("feed", feed.Name), slog.Int64("records", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findShared returns the names present in two or more feeds, mapped to the
// index of the earliest feed containing them. Bloom hits only nominate
// candidates; a name is shared when at least two feeds nominated it.
func (im *Importer) findShared(ctx context.Context, feeds []Feed, filters []*bloom.BloomFilter) (map[string]int, error) {
	candidates := make([]map[string]uint, len(feeds))

	g, gctx := im.group(ctx)
	for i, feed := range feeds {
		g.Go(func() error {
			found := make(map[string]uint)
			bit := uint(1) << uint(i)

			err := stream(gctx, feed, func(rec Record) error {
				key := rec.Key()
				for j, f := range filters {
					if j != i && f.TestString(key) {
						found[key] |= bit
						break
					}
				}
				return nil
			}, nil)
			if err != nil {
				return errors.Wrapf(err, "scan %s for shared names", feed.Name)
			}

			candidates[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, found := range candidates {
		for key, mask := range found {
			merged[key] |= mask
		}
	}

	owners := make(map[string]int)
	for key, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			owners[key] = bits.TrailingZeros(mask)
		}
	}
	return owners, nil
}

func (im *Importer) upsertAll(ctx context.Context, feeds []Feed, owners map[string]int, stats *Stats) error {
	g, gctx := im.group(ctx)
	for i, feed := range feeds {
		g.Go(func() error {
			var count int64
			err := stream(gctx, feed, func(rec Record) error {
				if owner, ok := owners[rec.Key()]; ok && owner != i {
					atomic.AddInt64(&stats.Skipped, 1)
					return nil
				}

				categoryID, err := im.categoryID(gctx, rec.Category)
				if err != nil {
					return err
				}
				p := &product.Product{
					Name:          rec.Name,
					Description:   rec.Description,
					Price:         rec.Price,
					StockQuantity: rec.Stock,
					CategoryID:    categoryID,
				}
				if err := im.products.Upsert(gctx, p); err != nil {
					return err
				}

				count++
				if count%progressEvery == 0 {
					im.log.Info("pass 3 progress", slog.String("feed", feed.Name), slog.Int64("upserted", count))
				}
				return nil
			}, nil)
			if err != nil {
				return errors.Wrapf(err, "import %s", feed.Name)
			}

			atomic.AddInt64(&stats.Upserted, count)
			im.log.Info("pass 3 complete", slog.String("feed", feed.Name), slog.Int64("upserted", count))
			return nil
		})
	}
	return g.Wait()
}

// categoryID resolves a category name to its ID, upserting it on first use.
func (im *Importer) categoryID(ctx context.Context, name string) (int64, error) {
	key := NormalizeName(name)

	im.mu.Lock()
	defer im.mu.Unlock()

	if id, ok := im.categoryIDs[key]; ok {
		return id, nil
	}
	c := &product.Category{Name: name}
	if err := im.categories.Upsert(ctx, c); err != nil {
		return 0, err
	}
	im.categoryIDs[key] = c.ID
	return c.ID, nil
}
