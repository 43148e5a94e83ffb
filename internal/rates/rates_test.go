package rates

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Simplici0/dtf.works/internal/db"
	"github.com/Simplici0/dtf.works/internal/migrations"
	"github.com/Simplici0/dtf.works/internal/pricing"
	"github.com/Simplici0/dtf.works/internal/seed"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "rates-test.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := migrations.Up(database, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return database
}

func TestStore_SettingsRoundTripsSeed(t *testing.T) {
	database := openTestDB(t)
	if _, err := seed.Run(database, pricing.DefaultSettings()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := NewStore(database).Settings(context.Background())
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if want := pricing.DefaultSettings(); !reflect.DeepEqual(got, want) {
		t.Fatalf("settings mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestStore_NotSeeded(t *testing.T) {
	_, err := NewStore(openTestDB(t)).Settings(context.Background())
	if !errors.Is(err, ErrNotSeeded) {
		t.Fatalf("err = %v, want ErrNotSeeded", err)
	}
}

func TestStore_Replace(t *testing.T) {
	database := openTestDB(t)
	store := NewStore(database)
	if _, err := seed.Run(database, pricing.DefaultSettings()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	next := pricing.DefaultSettings()
	next.Currency = "EUR"
	next.RollPricePerMeter = 9.5
	next.LengthTiers = []pricing.DiscountTier{{Threshold: 20, Percent: 12}}
	next.Sizes = []pricing.Size{{Name: "Badge", WidthCm: 7, HeightCm: 7}, {Name: "A4", WidthCm: 21, HeightCm: 29.7}}

	if err := store.Replace(context.Background(), next); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	got, err := store.Settings(context.Background())
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if !reflect.DeepEqual(got, next) {
		t.Fatalf("settings mismatch:\n got %+v\nwant %+v", got, next)
	}

	sizes, err := store.Sizes(context.Background())
	if err != nil {
		t.Fatalf("Sizes: %v", err)
	}
	if len(sizes) != 2 || sizes[0].Name != "Badge" {
		t.Fatalf("sizes = %+v, want sheet order", sizes)
	}
}

func TestStore_ReplaceOnEmptyDatabase(t *testing.T) {
	store := NewStore(openTestDB(t))

	if err := store.Replace(context.Background(), pricing.DefaultSettings()); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if _, err := store.Settings(context.Background()); err != nil {
		t.Fatalf("Settings: %v", err)
	}
}

func TestStore_ReplaceRejectsInvalidSheet(t *testing.T) {
	database := openTestDB(t)
	store := NewStore(database)
	if _, err := seed.Run(database, pricing.DefaultSettings()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	bad := pricing.DefaultSettings()
	bad.RollWidthCm = -1
	if err := store.Replace(context.Background(), bad); err == nil {
		t.Fatalf("expected validation error")
	}

	got, err := store.Settings(context.Background())
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if got.RollWidthCm != 58 {
		t.Fatalf("invalid sheet must not be stored, roll width = %v", got.RollWidthCm)
	}
}

func TestDecodeYAML_PartialDocumentKeepsDefaults(t *testing.T) {
	doc := `
currency: USD
roll_price_per_meter: 12.5
length_tiers:
  - threshold: 3
    percent: 4
ink_prices:
  white_per_liter: 100
  color_per_liter: 80
`
	got, err := DecodeYAML(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("DecodeYAML: %v", err)
	}

	if got.Currency != "USD" || got.RollPricePerMeter != 12.5 {
		t.Fatalf("unexpected header fields: %+v", got)
	}
	if len(got.LengthTiers) != 1 || got.LengthTiers[0].Percent != 4 {
		t.Fatalf("length tiers = %+v", got.LengthTiers)
	}
	if got.InkPrices.WhitePerLiter != 100 || got.InkRates.White != 45 {
		t.Fatalf("ink settings = %+v %+v", got.InkPrices, got.InkRates)
	}
	if len(got.QuantityTiers) != 3 || len(got.Sizes) != 5 {
		t.Fatalf("defaults should fill omitted sections: %+v", got)
	}
}

func TestDecodeYAML_Rejects(t *testing.T) {
	tests := map[string]string{
		"unknown key":   "currency: UAH\nroll_price: 10\n",
		"invalid sheet": "roll_width_cm: 0\n",
		"empty":         "",
		"wrong type":    "equipment_cost: lots\n",
		"negative rate": "ink_rates:\n  black: -15\n",
		"repeat tier":   "length_tiers:\n  - threshold: 5\n    percent: 5\n  - threshold: 5\n    percent: 8\n",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeYAML(strings.NewReader(doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeYAML(&buf, pricing.DefaultSettings()); err != nil {
		t.Fatalf("EncodeYAML: %v", err)
	}
	if !strings.Contains(buf.String(), "roll_price_per_meter: 250") {
		t.Fatalf("unexpected YAML:\n%s", buf.String())
	}

	path := filepath.Join(t.TempDir(), "prices.yaml")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !reflect.DeepEqual(got, pricing.DefaultSettings()) {
		t.Fatalf("round trip changed the sheet:\n%+v", got)
	}
}
