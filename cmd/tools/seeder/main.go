// Seeder fills an empty database with the default rounding rules, demo
// catalog data, and initial module passwords. Safe to re-run: every
// insert skips rows that already exist.
package main

import (
	"context"
	"log"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mveljko/backend-cenik/internal/config"
	"github.com/mveljko/backend-cenik/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()

	seedRoundingRules(ctx, pool)
	seedModulePasswords(ctx, pool)
	seedSettings(ctx, pool)
	seedCatalog(ctx, pool)

	log.Println("seeding completed")
}

func seedRoundingRules(ctx context.Context, pool *pgxpool.Pool) {
	rules := []struct {
		target string
		limit  string
		step   string
		method string
	}{
		{"price", "1000", "50", "UP"},
		{"price", "10000", "100", "UP"},
		{"price", "30000", "500", "UP"},
		{"price", "999999999", "1000", "UP"},
		{"discount", "10000", "100", "UP"},
		{"discount", "999999999", "500", "UP"},
	}
	for _, r := range rules {
		_, err := pool.Exec(ctx, `
			INSERT INTO rounding_rules (target, limit_value, step_value, method)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (target, limit_value) DO NOTHING`,
			r.target, r.limit, r.step, r.method)
		if err != nil {
			log.Fatalf("seed rounding rule %s/%s: %v", r.target, r.limit, err)
		}
	}
	log.Println("seeded rounding rules")
}

func seedModulePasswords(ctx context.Context, pool *pgxpool.Pool) {
	// Initial password is the same for every module; the admin console
	// rotates them after first login.
	hash, err := argon2id.CreateHash("promeni-me", argon2id.DefaultParams)
	if err != nil {
		log.Fatalf("hash initial password: %v", err)
	}
	for _, module := range []string{"pricing", "offer", "admin"} {
		_, err := pool.Exec(ctx, `
			INSERT INTO module_passwords (module, password_hash)
			VALUES ($1, $2)
			ON CONFLICT (module) DO NOTHING`, module, hash)
		if err != nil {
			log.Fatalf("seed %s password: %v", module, err)
		}
	}
	log.Println("seeded module passwords")
}

func seedSettings(ctx context.Context, pool *pgxpool.Pool) {
	settings := map[string]string{
		"company_name":    "Alati i oprema doo",
		"company_address": "Bulevar oslobođenja 1, Novi Sad",
		"company_phone":   "+381 21 000 000",
		"offer_validity":  "15 dana",
		"default_vat":     "20",

		"default_items_per_page": "50",
		"allow_duplicate_names":  "false",
	}
	for key, value := range settings {
		_, err := pool.Exec(ctx, `
			INSERT INTO global_settings (key, value)
			VALUES ($1, $2)
			ON CONFLICT (key) DO NOTHING`, key, value)
		if err != nil {
			log.Fatalf("seed setting %s: %v", key, err)
		}
	}
	log.Println("seeded global settings")
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool) {
	brands := []string{"Metabo", "Einhell", "Villager"}
	for _, name := range brands {
		_, err := pool.Exec(ctx, `
			INSERT INTO brands (id, name)
			VALUES (gen_random_uuid(), $1)
			ON CONFLICT ((lower(name))) DO NOTHING`, name)
		if err != nil {
			log.Fatalf("seed brand %s: %v", name, err)
		}
	}

	categories := []struct {
		name          string
		importPct     string
		marginPct     string
		transport     string
		defaultExtras string
	}{
		{"Kompresori", "0.07", "0.40", "50", "20"},
		{"Agregati", "0.07", "0.35", "80", "0"},
		{"Ručni alat", "0.05", "0.50", "0", "0"},
	}
	for _, c := range categories {
		_, err := pool.Exec(ctx, `
			INSERT INTO categories (id, name, import_percent, margin_percent, domestic_transport, default_extras)
			VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
			ON CONFLICT ((lower(name))) DO NOTHING`,
			c.name, c.importPct, c.marginPct, c.transport, c.defaultExtras)
		if err != nil {
			log.Fatalf("seed category %s: %v", c.name, err)
		}
	}

	products := []struct {
		name     string
		category string
		brand    string
	}{
		{"Kompresor 50L", "Kompresori", "Einhell"},
		{"Kompresor 100L", "Kompresori", "Metabo"},
		{"Agregat 2.8kW", "Agregati", "Villager"},
		{"Ugaona brusilica 125mm", "Ručni alat", "Metabo"},
	}
	for _, p := range products {
		_, err := pool.Exec(ctx, `
			INSERT INTO products (id, name, category_id, brand_id)
			SELECT gen_random_uuid(), $1,
			       (SELECT id FROM categories WHERE lower(name) = lower($2)),
			       (SELECT id FROM brands WHERE lower(name) = lower($3))
			WHERE NOT EXISTS (SELECT 1 FROM products WHERE lower(name) = lower($1))`,
			p.name, p.category, p.brand)
		if err != nil {
			log.Fatalf("seed product %s: %v", p.name, err)
		}
	}
	log.Println("seeded demo catalog")
}
