package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/webstore/internal/domain/customer"
	"github.com/xenking/webstore/internal/domain/product"
	"github.com/xenking/webstore/internal/repository"
)

type seedProduct struct {
	name        string
	description string
	price       string
	stock       int
	category    string
}

var categories = []product.Category{
	{Name: "Electronics", Description: "Electronic devices and gadgets"},
	{Name: "Clothing", Description: "Apparel and fashion items"},
	{Name: "Books", Description: "Books and publications"},
	{Name: "Home & Kitchen", Description: "Home appliances and kitchenware"},
	{Name: "Sports & Outdoors", Description: "Sports equipment and outdoor gear"},
}

var products = []seedProduct{
	{"Smartphone X", "Latest smartphone with advanced features", "999.99", 50, "Electronics"},
	{"Laptop Pro", "High-performance laptop for professionals", "1499.99", 30, "Electronics"},
	{"Wireless Headphones", "Noise-cancelling wireless headphones", "249.99", 100, "Electronics"},
	{"Casual T-Shirt", "Comfortable cotton t-shirt", "19.99", 200, "Clothing"},
	{"Denim Jeans", "Classic denim jeans", "49.99", 150, "Clothing"},
	{"Programming in C#", "Comprehensive guide to C# programming", "39.99", 75, "Books"},
	{"Web Development Fundamentals", "Learn the basics of web development", "29.99", 60, "Books"},
	{"Coffee Maker", "Automatic coffee maker with timer", "89.99", 40, "Home & Kitchen"},
	{"Blender", "High-speed blender for smoothies", "69.99", 35, "Home & Kitchen"},
	{"Yoga Mat", "Non-slip yoga mat", "24.99", 120, "Sports & Outdoors"},
	{"Running Shoes", "Lightweight running shoes", "79.99", 80, "Sports & Outdoors"},
}

var customers = []customer.Customer{
	{FirstName: "John", LastName: "Doe", Email: "john.doe@example.com", Phone: "555-123-4567"},
	{FirstName: "Jane", LastName: "Smith", Email: "jane.smith@example.com", Phone: "555-987-6543"},
	{FirstName: "Bob", LastName: "Johnson", Email: "bob.johnson@example.com", Phone: "555-456-7890"},
}

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
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

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	categoryRepo := repository.NewCategoryRepository(pool)
	productRepo := repository.NewProductRepository(pool)
	customerRepo := repository.NewCustomerRepository(pool)

	// Everything or nothing: a partially seeded catalog is worse than none.
	return repository.NewTransactor(pool).WithinTx(ctx, func(ctx context.Context) error {
		categoryIDs, err := seedCategories(ctx, categoryRepo)
		if err != nil {
			return errors.Wrap(err, "seed categories")
		}
		if err := seedProducts(ctx, productRepo, categoryIDs); err != nil {
			return errors.Wrap(err, "seed products")
		}
		if err := seedCustomers(ctx, customerRepo); err != nil {
			return errors.Wrap(err, "seed customers")
		}
		return nil
	})
}

func seedCategories(ctx context.Context, repo *repository.CategoryRepository) (map[string]int64, error) {
	ids := make(map[string]int64, len(categories))
	for _, c := range categories {
		if err := repo.Upsert(ctx, &c); err != nil {
			return nil, err
		}
		ids[c.Name] = c.ID

		slog.Info("upserted category", slog.Int64("id", c.ID), slog.String("name", c.Name))
	}
	return ids, nil
}

func seedProducts(ctx context.Context, repo *repository.ProductRepository, categoryIDs map[string]int64) error {
	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, sp := range products {
		price, err := decimal.NewFromString(sp.price)
		if err != nil {
			return errors.Wrapf(err, "parse price of %s", sp.name)
		}
		p := product.Product{
			Name:          sp.name,
			Description:   sp.description,
			Price:         price,
			StockQuantity: sp.stock,
			CategoryID:    categoryIDs[sp.category],
		}
		if err := p.Validate(); err != nil {
			return errors.Wrapf(err, "product %s", sp.name)
		}
		if err := repo.Upsert(ctx, &p); err != nil {
			return err
		}

		slog.Info("upserted product", slog.Int64("id", p.ID), slog.String("name", p.Name))
	}
	return nil
}

func seedCustomers(ctx context.Context, repo *repository.CustomerRepository) error {
	for _, c := range customers {
		if err := repo.Upsert(ctx, &c); err != nil {
			return err
		}

		slog.Info("upserted customer", slog.Int64("id", c.ID), slog.String("email", c.Email))
	}
	return nil
}
