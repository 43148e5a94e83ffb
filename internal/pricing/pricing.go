package pricing

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Simplici0/dtf.works/internal/ink"
)

// Mode is the print mode of an order.
type Mode string

const (
	// ModeSingle prints each design once at a chosen size and prices by area.
	ModeSingle Mode = "single"
	// ModeRoll prints designs consecutively on roll film and prices by length.
	ModeRoll Mode = "roll"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSingle:
		return ModeSingle, nil
	case ModeRoll:
		return ModeRoll, nil
	}
	return "", fmt.Errorf("unknown print mode %q", s)
}

// Size choice names that are not standard sheet formats.
const (
	SizeAuto   = "auto"
	SizeCustom = "custom"
)

// Discount axes.
const (
	AxisQuantity = "quantity"
	AxisLength   = "length"
)

var (
	// ErrNotReady means the input is incomplete; it is distinct from a zero price.
	ErrNotReady = errors.New("price not yet computable")
	// ErrUnknownSize is returned for a size name that is not on the price sheet.
	ErrUnknownSize = errors.New("unknown size")
)

// Size is a named print format in centimetres.
type Size struct {
	Name     string  `json:"name" yaml:"name"`
	WidthCm  float64 `json:"width_cm" yaml:"width_cm"`
	HeightCm float64 `json:"height_cm" yaml:"height_cm"`
}

// DiscountTier takes Percent off the base price once the axis value reaches Threshold.
type DiscountTier struct {
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Percent   float64 `json:"percent" yaml:"percent"`
}

// Settings is the operator price sheet.
type Settings struct {
	Currency                string         `json:"currency" yaml:"currency"`
	SingleRatePerCm2        float64        `json:"single_rate_per_cm2" yaml:"single_rate_per_cm2"`
	RollPricePerMeter       float64        `json:"roll_price_per_meter" yaml:"roll_price_per_meter"`
	CompetitorPricePerMeter float64        `json:"competitor_price_per_meter" yaml:"competitor_price_per_meter"`
	RollWidthCm             float64        `json:"roll_width_cm" yaml:"roll_width_cm"`
	FilmPricePerMeter       float64        `json:"film_price_per_meter" yaml:"film_price_per_meter"`
	GlueGramsPerM2          float64        `json:"glue_grams_per_m2" yaml:"glue_grams_per_m2"`
	GluePricePerKg          float64        `json:"glue_price_per_kg" yaml:"glue_price_per_kg"`
	EquipmentCost           float64        `json:"equipment_cost" yaml:"equipment_cost"`
	InkPrices               ink.Prices     `json:"ink_prices" yaml:"ink_prices"`
	InkRates                ink.Rates      `json:"ink_rates" yaml:"ink_rates"`
	QuantityTiers           []DiscountTier `json:"quantity_tiers" yaml:"quantity_tiers"`
	LengthTiers             []DiscountTier `json:"length_tiers" yaml:"length_tiers"`
	Sizes                   []Size         `json:"sizes" yaml:"sizes"`
}

// DefaultSettings returns the reference price sheet.
func DefaultSettings() Settings {
	return Settings{
		Currency:                "UAH",
		SingleRatePerCm2:        0.3,
		RollPricePerMeter:       250,
		CompetitorPricePerMeter: 350,
		RollWidthCm:             58,
		FilmPricePerMeter:       33,
		GlueGramsPerM2:          20,
		GluePricePerKg:          588,
		EquipmentCost:           50,
		InkPrices:               ink.DefaultPrices(),
		InkRates:                ink.DefaultRates(),
		QuantityTiers: []DiscountTier{
			{Threshold: 3, Percent: 5},
			{Threshold: 5, Percent: 10},
			{Threshold: 10, Percent: 15},
		},
		LengthTiers: []DiscountTier{
			{Threshold: 5, Percent: 5},
			{Threshold: 10, Percent: 10},
		},
		Sizes: StandardSizes(),
	}
}

// StandardSizes returns the sheet formats offered in single mode.
func StandardSizes() []Size {
	return []Size{
		{Name: "A6", WidthCm: 10.5, HeightCm: 14.8},
		{Name: "A5", WidthCm: 14.8, HeightCm: 21},
		{Name: "A4", WidthCm: 21, HeightCm: 29.7},
		{Name: "A3", WidthCm: 29.7, HeightCm: 42},
		{Name: "A3+", WidthCm: 32.9, HeightCm: 48.3},
	}
}

// Validate reports the first inconsistency in the price sheet.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Currency) == "" {
		return errors.New("currency is required")
	}
	nonNegative := map[string]float64{
		"single_rate_per_cm2":        s.SingleRatePerCm2,
		"roll_price_per_meter":       s.RollPricePerMeter,
		"competitor_price_per_meter": s.CompetitorPricePerMeter,
		"film_price_per_meter":       s.FilmPricePerMeter,
		"glue_grams_per_m2":          s.GlueGramsPerM2,
		"glue_price_per_kg":          s.GluePricePerKg,
		"equipment_cost":             s.EquipmentCost,
		"white_per_liter":            s.InkPrices.WhitePerLiter,
		"color_per_liter":            s.InkPrices.ColorPerLiter,
		"cyan_ml_per_m2":             s.InkRates.Cyan,
		"magenta_ml_per_m2":          s.InkRates.Magenta,
		"yellow_ml_per_m2":           s.InkRates.Yellow,
		"black_ml_per_m2":            s.InkRates.Black,
		"white_ml_per_m2":            s.InkRates.White,
	}
	for name, v := range nonNegative {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be a non-negative number", name)
		}
	}
	if s.RollWidthCm <= 0 {
		return errors.New("roll_width_cm must be positive")
	}
	for _, tiers := range [][]DiscountTier{s.QuantityTiers, s.LengthTiers} {
		thresholds := map[float64]bool{}
		for _, t := range tiers {
			if t.Threshold <= 0 || t.Percent < 0 || t.Percent >= 100 || math.IsNaN(t.Percent) {
				return fmt.Errorf("invalid discount tier %+v", t)
			}
			if thresholds[t.Threshold] {
				return fmt.Errorf("duplicate discount threshold %v", t.Threshold)
			}
			thresholds[t.Threshold] = true
		}
	}
	seen := map[string]bool{}
	for _, sz := range s.Sizes {
		key := strings.ToUpper(sz.Name)
		if key == "" || sz.WidthCm <= 0 || sz.HeightCm <= 0 {
			return fmt.Errorf("invalid size %+v", sz)
		}
		if seen[key] {
			return fmt.Errorf("duplicate size %q", sz.Name)
		}
		seen[key] = true
	}
	return nil
}

// LookupSize finds a size on the sheet by case-insensitive name.
func (s Settings) LookupSize(name string) (Size, bool) {
	for _, sz := range s.Sizes {
		if strings.EqualFold(sz.Name, name) {
			return sz, true
		}
	}
	return Size{}, false
}

func (s Settings) calculator() ink.Calculator {
	return ink.NewCalculator(s.InkRates, s.InkPrices)
}

// Design is one analysed file. A nil Coverage selects the heuristic ink estimate.
type Design struct {
	Name     string
	WidthCm  float64
	HeightCm float64
	Coverage *ink.Coverage
}

// SizeChoice is the customer's size selection for single mode: a standard
// size name, SizeAuto for the detected size, or SizeCustom with explicit dimensions.
type SizeChoice struct {
	Name     string  `json:"size"`
	WidthCm  float64 `json:"width_cm,omitempty"`
	HeightCm float64 `json:"height_cm,omitempty"`
}

// Input is everything an estimate depends on.
type Input struct {
	Mode    Mode
	Designs []Design
	Size    SizeChoice
	Copies  int
}

// Line is the per-design part of an estimate.
type Line struct {
	Name      string    `json:"name"`
	WidthCm   float64   `json:"width_cm"`
	HeightCm  float64   `json:"height_cm"`
	AreaCm2   float64   `json:"area_cm2"`
	LengthM   float64   `json:"length_m,omitempty"`
	Rotated   bool      `json:"rotated,omitempty"`
	Heuristic bool      `json:"heuristic"`
	Ink       ink.Usage `json:"ink"`
	InkCost   float64   `json:"ink_cost"`
	GlueGrams float64   `json:"glue_grams"`
}

// Breakdown contains the line items of one printed set, before copies.
type Breakdown struct {
	Base            float64 `json:"base"`
	DiscountAxis    string  `json:"discount_axis,omitempty"`
	DiscountPercent float64 `json:"discount_percent"`
	Discount        float64 `json:"discount"`
	WhiteInkCost    float64 `json:"white_ink_cost"`
	ColorInkCost    float64 `json:"color_ink_cost"`
	GlueCost        float64 `json:"glue_cost"`
	FilmCost        float64 `json:"film_cost"`
	EquipmentCost   float64 `json:"equipment_cost"`
	PerSet          float64 `json:"per_set"`
	LengthM         float64 `json:"length_m,omitempty"`
	CompetitorPrice float64 `json:"competitor_price,omitempty"`
}

// Totals contains roll-up values of the estimate.
type Totals struct {
	Copies   int       `json:"copies"`
	Ink      ink.Usage `json:"ink"`
	Total    float64   `json:"total"`
	Currency string    `json:"currency"`
}

// Result groups the estimate lines, breakdown and totals.
type Result struct {
	Mode      Mode      `json:"mode"`
	Lines     []Line    `json:"lines"`
	Breakdown Breakdown `json:"breakdown"`
	Totals    Totals    `json:"totals"`
}

// Estimate prices an order. It returns ErrNotReady when the input does not yet
// determine a price. Copies below 1 are treated as 1.
func Estimate(in Input, s Settings) (Result, error) {
	if len(in.Designs) == 0 {
		return Result{}, ErrNotReady
	}
	copies := in.Copies
	if copies < 1 {
		copies = 1
	}

	lines, err := layout(in, s)
	if err != nil {
		return Result{}, err
	}

	calc := s.calculator()
	var (
		usage     ink.Usage
		areaCm2   float64
		lengthM   float64
		glueGrams float64
	)
	for i := range lines {
		l := &lines[i]
		d := in.Designs[i]
		areaM2 := ink.AreaM2(l.WidthCm, l.HeightCm)
		if d.Coverage != nil {
			l.Ink = calc.UsageForArea(*d.Coverage, areaM2)
		} else {
			l.Heuristic = true
			l.Ink = calc.AverageUsage(l.WidthCm, l.HeightCm)
		}
		l.InkCost = calc.Cost(l.Ink)
		l.GlueGrams = areaM2 * s.GlueGramsPerM2

		usage = usage.Add(l.Ink)
		areaCm2 += l.AreaCm2
		lengthM += l.LengthM
		glueGrams += l.GlueGrams
	}

	b := Breakdown{
		WhiteInkCost:  usage.White / 1000 * s.InkPrices.WhitePerLiter,
		ColorInkCost:  usage.ColorML() / 1000 * s.InkPrices.ColorPerLiter,
		GlueCost:      glueGrams / 1000 * s.GluePricePerKg,
		EquipmentCost: s.EquipmentCost,
	}

	switch in.Mode {
	case ModeRoll:
		b.LengthM = lengthM
		b.Base = lengthM * s.RollPricePerMeter
		b.FilmCost = lengthM * s.FilmPricePerMeter
		b.DiscountAxis = AxisLength
		b.DiscountPercent = tierPercent(s.LengthTiers, lengthM*float64(copies))
		b.CompetitorPrice = math.Round(lengthM * float64(copies) * s.CompetitorPricePerMeter)
	default:
		b.Base = areaCm2 * s.SingleRatePerCm2
		b.DiscountAxis = AxisQuantity
		b.DiscountPercent = tierPercent(s.QuantityTiers, float64(copies))
	}
	if b.DiscountPercent == 0 {
		b.DiscountAxis = ""
	}
	b.Discount = b.Base * b.DiscountPercent / 100

	b.PerSet = b.Base - b.Discount + b.WhiteInkCost + b.ColorInkCost + b.GlueCost + b.EquipmentCost + b.FilmCost

	return Result{
		Mode:      in.Mode,
		Lines:     lines,
		Breakdown: b,
		Totals: Totals{
			Copies:   copies,
			Ink:      usage.Scale(float64(copies)),
			Total:    math.Round(b.PerSet * float64(copies)),
			Currency: s.Currency,
		},
	}, nil
}

// layout resolves the printed size of every design for the given mode.
func layout(in Input, s Settings) ([]Line, error) {
	lines := make([]Line, len(in.Designs))

	switch in.Mode {
	case ModeSingle:
		w, h, auto, err := resolveSize(in.Size, s)
		if err != nil {
			return nil, err
		}
		for i, d := range in.Designs {
			if auto {
				w, h = d.WidthCm, d.HeightCm
			}
			if w <= 0 || h <= 0 {
				return nil, ErrNotReady
			}
			lines[i] = Line{Name: d.Name, WidthCm: w, HeightCm: h, AreaCm2: w * h}
		}
	case ModeRoll:
		for i, d := range in.Designs {
			if d.WidthCm <= 0 || d.HeightCm <= 0 {
				return nil, ErrNotReady
			}
			lengthCm, rotated := rollLength(d.WidthCm, d.HeightCm, s.RollWidthCm)
			lines[i] = Line{
				Name:     d.Name,
				WidthCm:  d.WidthCm,
				HeightCm: d.HeightCm,
				AreaCm2:  d.WidthCm * d.HeightCm,
				LengthM:  lengthCm / 100,
				Rotated:  rotated,
			}
		}
	default:
		return nil, ErrNotReady
	}
	return lines, nil
}

// resolveSize returns the chosen size, or auto=true when detected sizes apply.
func resolveSize(c SizeChoice, s Settings) (w, h float64, auto bool, err error) {
	name := strings.TrimSpace(c.Name)
	switch {
	case name == "":
		return 0, 0, false, ErrNotReady
	case strings.EqualFold(name, SizeAuto):
		return 0, 0, true, nil
	case strings.EqualFold(name, SizeCustom):
		if c.WidthCm <= 0 || c.HeightCm <= 0 {
			return 0, 0, false, ErrNotReady
		}
		return c.WidthCm, c.HeightCm, false, nil
	}
	sz, ok := s.LookupSize(name)
	if !ok {
		return 0, 0, false, fmt.Errorf("%w %q", ErrUnknownSize, name)
	}
	return sz.WidthCm, sz.HeightCm, false, nil
}

// rollLength returns the film length a design consumes. A design wider than the
// roll is turned when its height fits across; otherwise it is printed in strips.
func rollLength(widthCm, heightCm, rollWidthCm float64) (float64, bool) {
	if widthCm <= rollWidthCm {
		return heightCm, false
	}
	if heightCm <= rollWidthCm {
		return widthCm, true
	}
	strips := math.Ceil(widthCm / rollWidthCm)
	return heightCm * strips, false
}

// tierPercent returns the discount of the highest tier reached by v.
func tierPercent(tiers []DiscountTier, v float64) float64 {
	best, pct := 0.0, 0.0
	for _, t := range tiers {
		if v >= t.Threshold && t.Threshold >= best {
			best, pct = t.Threshold, t.Percent
		}
	}
	return pct
}
