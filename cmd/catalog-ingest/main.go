package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"

	"github.com/xenking/webstore/internal/ingest"
	"github.com/xenking/webstore/internal/repository"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		capacity    uint
		workers     int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.ndjson.gz feeds, used when no feed paths are given")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&capacity, "capacity", 1_000_000, "expected distinct product names per feed")
	flag.IntVar(&workers, "workers", 0, "feeds processed concurrently (0 = one per feed)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	paths := flag.Args()
	if err := run(ctx, dataDir, paths, databaseURL, ingest.Options{
		Capacity: capacity,
		Workers:  workers,
		Logger:   slog.Default(),
	}); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

// run imports the feeds in the given order. The first feed wins for a
// product listed in several feeds.
func run(ctx context.Context, dataDir string, paths []string, databaseURL string, opts ingest.Options) error {
	if len(paths) == 0 {
		matches, err := filepath.Glob(filepath.Join(dataDir, "*.ndjson.gz"))
		if err != nil {
			return errors.Wrap(err, "list feeds")
		}
		sort.Strings(matches)
		paths = matches
	}
	if len(paths) == 0 {
		return errors.Errorf("no feeds found in %s", dataDir)
	}

	feeds := make([]ingest.Feed, len(paths))
	for i, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return errors.Wrapf(err, "check feed %s", p)
		}
		feeds[i] = ingest.FileFeed(p)
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	importer := ingest.NewImporter(
		repository.NewCategoryRepository(pool),
		repository.NewProductRepository(pool),
		opts,
	)
	stats, err := importer.Import(ctx, feeds)
	if err != nil {
		return err
	}

	slog.Info("import stats",
		slog.Int("feeds", len(feeds)),
		slog.Int64("records", stats.Records),
		slog.Int64("invalid", stats.Invalid),
		slog.Int("shared_names", stats.Shared),
		slog.Int64("skipped", stats.Skipped),
		slog.Int64("upserted", stats.Upserted),
	)
	return nil
}
