package seed

import (
	"database/sql"
	"fmt"

	"github.com/Simplici0/dtf.works/internal/pricing"
)

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
	Updates int
}

// Run stores defaults for every part of the price sheet that is still empty.
// Existing rows are never changed, so running it repeatedly is safe.
func Run(db *sql.DB, defaults pricing.Settings) (Stats, error) {
	tx, err := db.Begin()
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	stats := Stats{}

	if err := ensureRateConfig(tx, defaults, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	if err := ensureTiers(tx, pricing.AxisQuantity, defaults.QuantityTiers, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	if err := ensureTiers(tx, pricing.AxisLength, defaults.LengthTiers, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	if err := ensureSizes(tx, defaults.Sizes, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return stats, nil
}

func ensureRateConfig(tx *sql.Tx, s pricing.Settings, stats *Stats) error {
	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM rate_config WHERE id = 1)`).Scan(&exists); err != nil {
		return fmt.Errorf("check rate config existence: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := tx.Exec(`
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
			ink_white_ml_per_m2
		)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.Currency,
		s.SingleRatePerCm2,
		s.RollPricePerMeter,
		s.CompetitorPricePerMeter,
		s.RollWidthCm,
		s.FilmPricePerMeter,
		s.GlueGramsPerM2,
		s.GluePricePerKg,
		s.EquipmentCost,
		s.InkPrices.WhitePerLiter,
		s.InkPrices.ColorPerLiter,
		s.InkRates.Cyan,
		s.InkRates.Magenta,
		s.InkRates.Yellow,
		s.InkRates.Black,
		s.InkRates.White,
	); err != nil {
		return fmt.Errorf("insert rate config singleton: %w", err)
	}
	stats.Inserts++
	return nil
}

func ensureTiers(tx *sql.Tx, axis string, tiers []pricing.DiscountTier, stats *Stats) error {
	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM discount_tiers WHERE axis = ? LIMIT 1)`, axis).Scan(&exists); err != nil {
		return fmt.Errorf("check %s tiers existence: %w", axis, err)
	}
	if exists {
		return nil
	}

	for _, t := range tiers {
		if _, err := tx.Exec(`
			INSERT INTO discount_tiers (axis, threshold, percent)
			VALUES (?, ?, ?)
		`, axis, t.Threshold, t.Percent); err != nil {
			return fmt.Errorf("insert %s tier %v: %w", axis, t.Threshold, err)
		}
		stats.Inserts++
	}
	return nil
}

func ensureSizes(tx *sql.Tx, sizes []pricing.Size, stats *Stats) error {
	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM print_sizes LIMIT 1)`).Scan(&exists); err != nil {
		return fmt.Errorf("check print sizes existence: %w", err)
	}
	if exists {
		return nil
	}

	for i, sz := range sizes {
		if _, err := tx.Exec(`
			INSERT INTO print_sizes (name, width_cm, height_cm, sort_order)
			VALUES (?, ?, ?, ?)
		`, sz.Name, sz.WidthCm, sz.HeightCm, i); err != nil {
			return fmt.Errorf("insert print size %s: %w", sz.Name, err)
		}
		stats.Inserts++
	}
	return nil
}
