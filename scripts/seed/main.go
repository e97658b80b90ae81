package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/truckdispatch/internal/app"
	"github.com/odyssey-erp/truckdispatch/internal/delivery"
	"github.com/odyssey-erp/truckdispatch/internal/platform/db"
)

// seedNamespace derives stable ids so the seed can be re-run.
var seedNamespace = uuid.MustParse("8f3c1d52-7a4e-4c8b-9f0e-2d6b5a1c9e47")

func seedID(kind, name string) uuid.UUID {
	return uuid.NewSHA1(seedNamespace, []byte(kind+":"+name))
}

func main() {
	_ = godotenv.Load()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	fmt.Println("→ Ensuring schema...")
	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	steps := []struct {
		label string
		fn    func(context.Context, pgx.Tx) error
	}{
		{"users", seedUsers},
		{"clients and products", seedCatalog},
		{"trucks", seedTrucks},
		{"pending orders", func(ctx context.Context, tx pgx.Tx) error {
			return seedOrders(ctx, tx, tomorrow(cfg.Location()))
		}},
	}
	for _, step := range steps {
		fmt.Printf("→ Seeding %s...\n", step.label)
		if err := db.WithTx(ctx, pool, func(tx pgx.Tx) error { return step.fn(ctx, tx) }); err != nil {
			log.Fatalf("seed %s: %v", step.label, err)
		}
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func tomorrow(loc *time.Location) time.Time {
	now := time.Now().In(loc)
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}

func seedUsers(ctx context.Context, tx pgx.Tx) error {
	users := []struct{ email, name string }{
		{"planner@dispatch.local", "Planificateur"},
		{"driver@dispatch.local", "Chauffeur"},
	}
	for _, u := range users {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, email, name)
			VALUES ($1, $2, $3)
			ON CONFLICT (email) DO NOTHING`, seedID("user", u.email), u.email, u.name)
		if err != nil {
			return err
		}
	}
	return nil
}

var seedClients = []struct {
	name     string
	priority int
}{
	{"Béton Express", 3},
	{"Chantier Nord", 2},
	{"Mairie de Lyon", 5},
	{"Particulier Martin", 1},
}

var seedProducts = []string{"Gravier 0/20", "Sable 0/4", "Béton C25/30"}

func seedCatalog(ctx context.Context, tx pgx.Tx) error {
	for _, c := range seedClients {
		_, err := tx.Exec(ctx, `
			INSERT INTO clients (id, name, priority_level)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET priority_level = EXCLUDED.priority_level`,
			seedID("client", c.name), c.name, c.priority)
		if err != nil {
			return err
		}
	}
	for _, p := range seedProducts {
		_, err := tx.Exec(ctx, `
			INSERT INTO products (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO NOTHING`, seedID("product", p), p)
		if err != nil {
			return err
		}
	}
	return nil
}

func seedTrucks(ctx context.Context, tx pgx.Tx) error {
	trucks := []struct {
		plate    string
		capacity float64
		driver   string
	}{
		{"AB-123-CD", 25, "Paul"},
		{"EF-456-GH", 25, "Nadia"},
		{"IJ-789-KL", 12.5, "Karim"},
		// capacity unknown, never proposed by the planner
		{"MN-000-OP", 0, ""},
	}
	for _, t := range trucks {
		var driver *string
		if t.driver != "" {
			driver = &t.driver
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO trucks (id, plate_number, capacity, driver_name)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (plate_number) DO NOTHING`, seedID("truck", t.plate), t.plate, t.capacity, driver)
		if err != nil {
			return err
		}
	}
	return nil
}

func seedOrders(ctx context.Context, tx pgx.Tx, day time.Time) error {
	orders := []struct {
		ref      string
		client   string
		product  string
		quantity float64
	}{
		{"o-1", "Mairie de Lyon", "Béton C25/30", 18},
		{"o-2", "Béton Express", "Gravier 0/20", 12},
		{"o-3", "Béton Express", "Sable 0/4", 9.5},
		{"o-4", "Chantier Nord", "Gravier 0/20", 20},
		{"o-5", "Particulier Martin", "Sable 0/4", 4},
		{"o-6", "Chantier Nord", "Béton C25/30", 7.25},
	}
	for _, o := range orders {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (id, client_id, product_id, quantity, requested_date, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			seedID("order", o.ref), seedID("client", o.client), seedID("product", o.product),
			o.quantity, day, string(delivery.OrderPending))
		if err != nil {
			return err
		}
	}
	return nil
}
