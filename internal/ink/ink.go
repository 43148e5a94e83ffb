package ink

import "math"

// SampleStride is the pixel step used along both axes when sampling a buffer.
const SampleStride = 10

const (
	transparentAlpha = 10
	whiteThreshold   = 240
	channelThreshold = 200
	blackThreshold   = 100
)

// Coverage is the fraction of sampled pixels that need each ink channel.
type Coverage struct {
	Cyan    float64 `json:"cyan" yaml:"cyan"`
	Magenta float64 `json:"magenta" yaml:"magenta"`
	Yellow  float64 `json:"yellow" yaml:"yellow"`
	Black   float64 `json:"black" yaml:"black"`
	White   float64 `json:"white" yaml:"white"`
}

// Usage is ink volume per channel in millilitres.
type Usage struct {
	Cyan    float64 `json:"cyan_ml"`
	Magenta float64 `json:"magenta_ml"`
	Yellow  float64 `json:"yellow_ml"`
	Black   float64 `json:"black_ml"`
	White   float64 `json:"white_ml"`
}

// ColorML returns the combined CMYK volume.
func (u Usage) ColorML() float64 {
	return u.Cyan + u.Magenta + u.Yellow + u.Black
}

// Add returns the channel-wise sum of two usages.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		Cyan:    u.Cyan + o.Cyan,
		Magenta: u.Magenta + o.Magenta,
		Yellow:  u.Yellow + o.Yellow,
		Black:   u.Black + o.Black,
		White:   u.White + o.White,
	}
}

// Scale multiplies every channel by f.
func (u Usage) Scale(f float64) Usage {
	return Usage{
		Cyan:    u.Cyan * f,
		Magenta: u.Magenta * f,
		Yellow:  u.Yellow * f,
		Black:   u.Black * f,
		White:   u.White * f,
	}
}

// Rates holds the ink deposited per square metre at full coverage, in mL/m².
type Rates struct {
	Cyan    float64 `json:"cyan" yaml:"cyan"`
	Magenta float64 `json:"magenta" yaml:"magenta"`
	Yellow  float64 `json:"yellow" yaml:"yellow"`
	Black   float64 `json:"black" yaml:"black"`
	White   float64 `json:"white" yaml:"white"`
}

// DefaultRates are calibrated for a two-head 3200 dpi DTF printer. White is
// roughly three times a colour channel because it is an opaque backing layer.
func DefaultRates() Rates {
	return Rates{Cyan: 15, Magenta: 15, Yellow: 15, Black: 15, White: 45}
}

// Prices are ink prices per litre in the configured currency.
type Prices struct {
	WhitePerLiter float64 `json:"white_per_liter" yaml:"white_per_liter"`
	ColorPerLiter float64 `json:"color_per_liter" yaml:"color_per_liter"`
}

// DefaultPrices returns the reference ink cost sheet.
func DefaultPrices() Prices {
	return Prices{WhitePerLiter: 1890, ColorPerLiter: 1680}
}

// AnalyzeColors samples an interleaved RGBA buffer and returns per-channel coverage.
//
// A pixel with alpha below 10 is counted but needs no ink. A near-white pixel needs
// white ink only. Any other pixel needs the white backing plus each colour channel
// its RGB value calls for, so one pixel can count toward several channels.
// A buffer shorter than width*height*4 yields zero coverage.
func AnalyzeColors(pix []byte, width, height int) Coverage {
	if width <= 0 || height <= 0 || len(pix) < width*height*4 {
		return Coverage{}
	}

	var cyan, magenta, yellow, black, white, total int
	for y := 0; y < height; y += SampleStride {
		row := y * width
		for x := 0; x < width; x += SampleStride {
			i := (row + x) * 4
			r, g, b, a := pix[i], pix[i+1], pix[i+2], pix[i+3]
			total++

			if a < transparentAlpha {
				continue
			}

			white++
			if r >= whiteThreshold && g >= whiteThreshold && b >= whiteThreshold {
				continue
			}
			if r < channelThreshold {
				cyan++
			}
			if g < channelThreshold {
				magenta++
			}
			if b < channelThreshold {
				yellow++
			}
			if r < blackThreshold && g < blackThreshold && b < blackThreshold {
				black++
			}
		}
	}

	if total == 0 {
		return Coverage{}
	}

	n := float64(total)
	return Coverage{
		Cyan:    float64(cyan) / n,
		Magenta: float64(magenta) / n,
		Yellow:  float64(yellow) / n,
		Black:   float64(black) / n,
		White:   float64(white) / n,
	}
}

// AverageCoverage is the coverage assumed for a typical design when no pixels
// are available.
func AverageCoverage() Coverage {
	return Coverage{Cyan: 0.3, Magenta: 0.3, Yellow: 0.3, Black: 0.2, White: 0.8}
}

// Calculator turns coverage into ink volume and cost.
type Calculator struct {
	Rates  Rates
	Prices Prices
}

// NewCalculator returns a Calculator with the given rates and prices.
func NewCalculator(rates Rates, prices Prices) Calculator {
	return Calculator{Rates: rates, Prices: prices}
}

// UsageForArea returns the volume each channel needs to cover areaM2 square metres.
// Values are rounded to 0.01 mL.
func (c Calculator) UsageForArea(cov Coverage, areaM2 float64) Usage {
	return Usage{
		Cyan:    round2(cov.Cyan * areaM2 * c.Rates.Cyan),
		Magenta: round2(cov.Magenta * areaM2 * c.Rates.Magenta),
		Yellow:  round2(cov.Yellow * areaM2 * c.Rates.Yellow),
		Black:   round2(cov.Black * areaM2 * c.Rates.Black),
		White:   round2(cov.White * areaM2 * c.Rates.White),
	}
}

// AverageUsage estimates usage for a print of the given size using AverageCoverage.
func (c Calculator) AverageUsage(widthCm, heightCm float64) Usage {
	return c.UsageForArea(AverageCoverage(), AreaM2(widthCm, heightCm))
}

// Cost prices a usage: white ink and CMYK ink are billed per litre separately.
func (c Calculator) Cost(u Usage) float64 {
	white := (u.White / 1000) * c.Prices.WhitePerLiter
	color := (u.ColorML() / 1000) * c.Prices.ColorPerLiter
	return white + color
}

// AreaM2 converts a print size in centimetres to square metres.
func AreaM2(widthCm, heightCm float64) float64 {
	return widthCm * heightCm / 10000
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
