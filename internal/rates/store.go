package rates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Simplici0/dtf.works/internal/pricing"
)

// ErrNotSeeded is returned when the rate_config singleton is missing.
var ErrNotSeeded = errors.New("price sheet has not been seeded")

// Store reads and replaces the price sheet kept in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore returns a Store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Settings loads the full price sheet.
func (s *Store) Settings(ctx context.Context) (pricing.Settings, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pricing.Settings{}, fmt.Errorf("begin price sheet read: %w", err)
	}
	defer tx.Rollback()

	var out pricing.Settings
	err = tx.QueryRowContext(ctx, `
		SELECT
			currency,
			single_rate_per_cm2,
			roll_price_per_meter,
			competitor_price_per_meter,
			roll_width_cm,
			film_price_per_meter,
			glue_grams_per_m2,
			glue_price_per_kg,
			equipment_cost,
			white_ink_per_liter,
			color_ink_per_liter,
			ink_cyan_ml_per_m2,
			ink_magenta_ml_per_m2,
			ink_yellow_ml_per_m2,
			ink_black_ml_per_m2,
			ink_white_ml_per_m2
		FROM rate_config
		WHERE id = 1
	`).Scan(
		&out.Currency,
		&out.SingleRatePerCm2,
		&out.RollPricePerMeter,
		&out.CompetitorPricePerMeter,
		&out.RollWidthCm,
		&out.FilmPricePerMeter,
		&out.GlueGramsPerM2,
		&out.GluePricePerKg,
		&out.EquipmentCost,
		&out.InkPrices.WhitePerLiter,
		&out.InkPrices.ColorPerLiter,
		&out.InkRates.Cyan,
		&out.InkRates.Magenta,
		&out.InkRates.Yellow,
		&out.InkRates.Black,
		&out.InkRates.White,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return pricing.Settings{}, ErrNotSeeded
	}
	if err != nil {
		return pricing.Settings{}, fmt.Errorf("query rate config: %w", err)
	}

	if out.QuantityTiers, err = queryTiers(ctx, tx, pricing.AxisQuantity); err != nil {
		return pricing.Settings{}, err
	}
	if out.LengthTiers, err = queryTiers(ctx, tx, pricing.AxisLength); err != nil {
		return pricing.Settings{}, err
	}
	if out.Sizes, err = querySizes(ctx, tx); err != nil {
		return pricing.Settings{}, err
	}

	return out, nil
}

// Sizes returns the standard print sizes in display order.
func (s *Store) Sizes(ctx context.Context) ([]pricing.Size, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin size read: %w", err)
	}
	defer tx.Rollback()
	return querySizes(ctx, tx)
}

// Replace validates next and overwrites the stored price sheet atomically.
func (s *Store) Replace(ctx context.Context, next pricing.Settings) error {
	if err := next.Validate(); err != nil {
		return fmt.Errorf("validate price sheet: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin price sheet update: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rate_config (
			id,
			currency,
			single_rate_per_cm2,
			roll_price_per_meter,
			competitor_price_per_meter,
			roll_width_cm,
			film_price_per_meter,
			glue_grams_per_m2,
			glue_price_per_kg,
			equipment_cost,
			white_ink_per_liter,
			color_ink_per_liter,
			ink_cyan_ml_per_m2,
			ink_magenta_ml_per_m2,
			ink_yellow_ml_per_m2,
			ink_black_ml_per_m2,
			ink_white_ml_per_m2,
			updated_at
		)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			currency = excluded.currency,
			single_rate_per_cm2 = excluded.single_rate_per_cm2,
			roll_price_per_meter = excluded.roll_price_per_meter,
			competitor_price_per_meter = excluded.competitor_price_per_meter,
			roll_width_cm = excluded.roll_width_cm,
			film_price_per_meter = excluded.film_price_per_meter,
			glue_grams_per_m2 = excluded.glue_grams_per_m2,
			glue_price_per_kg = excluded.glue_price_per_kg,
			equipment_cost = excluded.equipment_cost,
			white_ink_per_liter = excluded.white_ink_per_liter,
			color_ink_per_liter = excluded.color_ink_per_liter,
			ink_cyan_ml_per_m2 = excluded.ink_cyan_ml_per_m2,
			ink_magenta_ml_per_m2 = excluded.ink_magenta_ml_per_m2,
			ink_yellow_ml_per_m2 = excluded.ink_yellow_ml_per_m2,
			ink_black_ml_per_m2 = excluded.ink_black_ml_per_m2,
			ink_white_ml_per_m2 = excluded.ink_white_ml_per_m2,
			updated_at = excluded.updated_at
	`,
		next.Currency,
		next.SingleRatePerCm2,
		next.RollPricePerMeter,
		next.CompetitorPricePerMeter,
		next.RollWidthCm,
		next.FilmPricePerMeter,
		next.GlueGramsPerM2,
		next.GluePricePerKg,
		next.EquipmentCost,
		next.InkPrices.WhitePerLiter,
		next.InkPrices.ColorPerLiter,
		next.InkRates.Cyan,
		next.InkRates.Magenta,
		next.InkRates.Yellow,
		next.InkRates.Black,
		next.InkRates.White,
	); err != nil {
		return fmt.Errorf("upsert rate config: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM discount_tiers`); err != nil {
		return fmt.Errorf("clear discount tiers: %w", err)
	}
	for axis, tiers := range map[string][]pricing.DiscountTier{
		pricing.AxisQuantity: next.QuantityTiers,
		pricing.AxisLength:   next.LengthTiers,
	} {
		for _, t := range tiers {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO discount_tiers (axis, threshold, percent)
				VALUES (?, ?, ?)
			`, axis, t.Threshold, t.Percent); err != nil {
				return fmt.Errorf("insert %s tier %v: %w", axis, t.Threshold, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM print_sizes`); err != nil {
		return fmt.Errorf("clear print sizes: %w", err)
	}
	for i, sz := range next.Sizes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO print_sizes (name, width_cm, height_cm, sort_order)
			VALUES (?, ?, ?, ?)
		`, sz.Name, sz.WidthCm, sz.HeightCm, i); err != nil {
			return fmt.Errorf("insert print size %s: %w", sz.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit price sheet update: %w", err)
	}
	return nil
}

func queryTiers(ctx context.Context, tx *sql.Tx, axis string) ([]pricing.DiscountTier, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT threshold, percent
		FROM discount_tiers
		WHERE axis = ?
		ORDER BY threshold
	`, axis)
	if err != nil {
		return nil, fmt.Errorf("query %s tiers: %w", axis, err)
	}
	defer rows.Close()

	tiers := []pricing.DiscountTier{}
	for rows.Next() {
		var t pricing.DiscountTier
		if err := rows.Scan(&t.Threshold, &t.Percent); err != nil {
			return nil, fmt.Errorf("scan %s tier: %w", axis, err)
		}
		tiers = append(tiers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s tiers: %w", axis, err)
	}
	return tiers, nil
}

func querySizes(ctx context.Context, tx *sql.Tx) ([]pricing.Size, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT name, width_cm, height_cm
		FROM print_sizes
		ORDER BY sort_order, name
	`)
	if err != nil {
		return nil, fmt.Errorf("query print sizes: %w", err)
	}
	defer rows.Close()

	sizes := []pricing.Size{}
	for rows.Next() {
		var sz pricing.Size
		if err := rows.Scan(&sz.Name, &sz.WidthCm, &sz.HeightCm); err != nil {
			return nil, fmt.Errorf("scan print size: %w", err)
		}
		sizes = append(sizes, sz)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate print sizes: %w", err)
	}
	return sizes, nil
}
