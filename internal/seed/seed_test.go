package seed

import (
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/Simplici0/dtf.works/internal/db"
	"github.com/Simplici0/dtf.works/internal/migrations"
	"github.com/Simplici0/dtf.works/internal/pricing"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "seed-test.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := migrations.Up(database, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return database
}

func TestRunIsIdempotent(t *testing.T) {
	database := openTestDB(t)
	defaults := pricing.DefaultSettings()

	for i := 0; i < 10; i++ {
		stats, err := Run(database, defaults)
		if err != nil {
			t.Fatalf("run seed (iteration=%d): %v", i, err)
		}
		if i == 0 {
			if stats.Inserts != 11 {
				t.Fatalf("expected 11 inserts in first run, got %d", stats.Inserts)
			}
			continue
		}
		if stats.Inserts != 0 {
			t.Fatalf("expected 0 inserts in iteration %d, got %d", i, stats.Inserts)
		}
	}

	assertCount(t, database, `SELECT COUNT(*) FROM rate_config WHERE id = 1`, nil, 1)
	assertCount(t, database, `SELECT COUNT(*) FROM discount_tiers WHERE axis = ?`, pricing.AxisQuantity, 3)
	assertCount(t, database, `SELECT COUNT(*) FROM discount_tiers WHERE axis = ?`, pricing.AxisLength, 2)
	assertCount(t, database, `SELECT COUNT(*) FROM print_sizes WHERE name = ?`, "a3+", 1)

	var currency string
	var rollPrice float64
	if err := database.QueryRow(`SELECT currency, roll_price_per_meter FROM rate_config WHERE id = 1`).Scan(&currency, &rollPrice); err != nil {
		t.Fatalf("query rate config: %v", err)
	}
	if currency != "UAH" || rollPrice != 250 {
		t.Fatalf("unexpected rate config: %s %v", currency, rollPrice)
	}
}

func TestRunKeepsOperatorEdits(t *testing.T) {
	database := openTestDB(t)

	if _, err := Run(database, pricing.DefaultSettings()); err != nil {
		t.Fatalf("run seed: %v", err)
	}
	if _, err := database.Exec(`UPDATE rate_config SET roll_price_per_meter = 275 WHERE id = 1`); err != nil {
		t.Fatalf("update rate config: %v", err)
	}
	if _, err := database.Exec(`DELETE FROM discount_tiers WHERE axis = ?`, pricing.AxisLength); err != nil {
		t.Fatalf("delete length tiers: %v", err)
	}

	stats, err := Run(database, pricing.DefaultSettings())
	if err != nil {
		t.Fatalf("run seed again: %v", err)
	}
	if stats.Inserts != 2 || stats.Updates != 0 {
		t.Fatalf("expected only the length tiers to be restored, got %+v", stats)
	}
	assertCount(t, database, `SELECT COUNT(*) FROM rate_config WHERE roll_price_per_meter = 275`, nil, 1)
}

func assertCount(t *testing.T, database *sql.DB, query string, args any, expected int) {
	t.Helper()

	var count int
	var err error
	switch v := args.(type) {
	case nil:
		err = database.QueryRow(query).Scan(&count)
	case []any:
		err = database.QueryRow(query, v...).Scan(&count)
	default:
		err = database.QueryRow(query, v).Scan(&count)
	}
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != expected {
		t.Fatalf("expected count %d, got %d", expected, count)
	}
}
