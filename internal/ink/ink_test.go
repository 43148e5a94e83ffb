package ink

import (
	"math"
	"testing"
)

func nearlyEqual(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func solidBuffer(width, height int, r, g, b, a byte) []byte {
	pix := make([]byte, width*height*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = r, g, b, a
	}
	return pix
}

func TestAnalyzeColors_AllWhiteOpaque(t *testing.T) {
	cov := AnalyzeColors(solidBuffer(100, 100, 255, 255, 255, 255), 100, 100)

	want := Coverage{White: 1}
	if cov != want {
		t.Fatalf("coverage = %+v, want %+v", cov, want)
	}
}

func TestAnalyzeColors_AllTransparent(t *testing.T) {
	cov := AnalyzeColors(solidBuffer(100, 100, 0, 0, 0, 0), 100, 100)

	if cov != (Coverage{}) {
		t.Fatalf("coverage = %+v, want all zero", cov)
	}
}

func TestAnalyzeColors_SolidBlackNeedsBackingAndEveryChannel(t *testing.T) {
	cov := AnalyzeColors(solidBuffer(1000, 1000, 0, 0, 0, 255), 1000, 1000)

	nearlyEqual(t, "black", cov.Black, 1)
	nearlyEqual(t, "white", cov.White, 1)
	nearlyEqual(t, "cyan", cov.Cyan, 1)
	nearlyEqual(t, "magenta", cov.Magenta, 1)
	nearlyEqual(t, "yellow", cov.Yellow, 1)
}

func TestAnalyzeColors_PixelClassification(t *testing.T) {
	tests := []struct {
		name       string
		r, g, b, a byte
		want       Coverage
	}{
		{name: "near transparent", r: 10, g: 10, b: 10, a: 9, want: Coverage{}},
		{name: "near white", r: 240, g: 241, b: 250, a: 255, want: Coverage{White: 1}},
		{name: "pure red", r: 255, g: 0, b: 0, a: 255, want: Coverage{Magenta: 1, Yellow: 1, White: 1}},
		{name: "pure blue", r: 0, g: 0, b: 255, a: 255, want: Coverage{Cyan: 1, Magenta: 1, White: 1}},
		{name: "light grey", r: 220, g: 220, b: 220, a: 255, want: Coverage{White: 1}},
		{name: "dark grey", r: 99, g: 99, b: 99, a: 128, want: Coverage{Cyan: 1, Magenta: 1, Yellow: 1, Black: 1, White: 1}},
		{name: "mid grey", r: 150, g: 150, b: 150, a: 255, want: Coverage{Cyan: 1, Magenta: 1, Yellow: 1, White: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cov := AnalyzeColors(solidBuffer(20, 20, tt.r, tt.g, tt.b, tt.a), 20, 20)
			if cov != tt.want {
				t.Fatalf("coverage = %+v, want %+v", cov, tt.want)
			}
		})
	}
}

func TestAnalyzeColors_SamplesEveryTenthPixel(t *testing.T) {
	// 20x20 samples (0,0) (10,0) (0,10) (10,10). Only (0,0) is black.
	width, height := 20, 20
	pix := solidBuffer(width, height, 255, 255, 255, 0)
	pix[0], pix[1], pix[2], pix[3] = 0, 0, 0, 255
	// An unsampled black pixel must not count.
	i := (1*width + 1) * 4
	pix[i], pix[i+1], pix[i+2], pix[i+3] = 0, 0, 0, 255

	cov := AnalyzeColors(pix, width, height)

	nearlyEqual(t, "black", cov.Black, 0.25)
	nearlyEqual(t, "white", cov.White, 0.25)
}

func TestAnalyzeColors_MalformedBuffers(t *testing.T) {
	tests := []struct {
		name          string
		pix           []byte
		width, height int
	}{
		{name: "empty", pix: nil, width: 0, height: 0},
		{name: "zero width", pix: make([]byte, 16), width: 0, height: 4},
		{name: "short buffer", pix: make([]byte, 10), width: 10, height: 10},
		{name: "negative height", pix: make([]byte, 40), width: 10, height: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if cov := AnalyzeColors(tt.pix, tt.width, tt.height); cov != (Coverage{}) {
				t.Fatalf("coverage = %+v, want zero", cov)
			}
		})
	}
}

func TestUsageForArea_A4SolidBlack(t *testing.T) {
	calc := NewCalculator(DefaultRates(), DefaultPrices())
	cov := Coverage{Black: 1, White: 1}

	usage := calc.UsageForArea(cov, AreaM2(21, 29.7))

	nearlyEqual(t, "black", usage.Black, 0.94)
	nearlyEqual(t, "white", usage.White, 2.81)
	nearlyEqual(t, "cyan", usage.Cyan, 0)
}

func TestUsageForArea_LinearInArea(t *testing.T) {
	calc := NewCalculator(DefaultRates(), DefaultPrices())
	cov := Coverage{Cyan: 0.5, Magenta: 0.25, Yellow: 0.1, Black: 0.2, White: 1}

	single := calc.UsageForArea(cov, 2)
	double := calc.UsageForArea(cov, 4)

	nearlyEqual(t, "cyan", double.Cyan, 2*single.Cyan)
	nearlyEqual(t, "magenta", double.Magenta, 2*single.Magenta)
	nearlyEqual(t, "yellow", double.Yellow, 2*single.Yellow)
	nearlyEqual(t, "black", double.Black, 2*single.Black)
	nearlyEqual(t, "white", double.White, 2*single.White)
}

func TestAverageUsage_OneSquareMetre(t *testing.T) {
	calc := NewCalculator(DefaultRates(), DefaultPrices())

	usage := calc.AverageUsage(100, 100)

	want := Usage{Cyan: 4.5, Magenta: 4.5, Yellow: 4.5, Black: 3, White: 36}
	if usage != want {
		t.Fatalf("usage = %+v, want %+v", usage, want)
	}
}

func TestCost_SplitsWhiteAndColor(t *testing.T) {
	calc := NewCalculator(DefaultRates(), DefaultPrices())

	nearlyEqual(t, "white only", calc.Cost(Usage{White: 1000}), 1890)
	nearlyEqual(t, "color only", calc.Cost(Usage{Cyan: 250, Magenta: 250, Yellow: 250, Black: 250}), 1680)
	nearlyEqual(t, "mixed", calc.Cost(Usage{Cyan: 10, White: 20}), 16.8+37.8)
}

func TestCost_LinearPerChannel(t *testing.T) {
	calc := NewCalculator(DefaultRates(), DefaultPrices())
	base := Usage{Cyan: 3, Magenta: 4, Yellow: 5, Black: 6, White: 7}

	for _, tt := range []struct {
		name  string
		extra Usage
	}{
		{name: "cyan", extra: Usage{Cyan: 5}},
		{name: "magenta", extra: Usage{Magenta: 5}},
		{name: "yellow", extra: Usage{Yellow: 5}},
		{name: "black", extra: Usage{Black: 5}},
		{name: "white", extra: Usage{White: 5}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.Cost(base.Add(tt.extra))
			want := calc.Cost(base) + calc.Cost(tt.extra)
			if math.Abs(got-want) > 1e-9 {
				t.Fatalf("cost = %v, want %v", got, want)
			}
		})
	}
}

func TestPipeline_Deterministic(t *testing.T) {
	calc := NewCalculator(DefaultRates(), DefaultPrices())
	pix := solidBuffer(300, 200, 30, 160, 220, 255)

	run := func() float64 {
		cov := AnalyzeColors(pix, 300, 200)
		return calc.Cost(calc.UsageForArea(cov, AreaM2(25.4, 16.9)))
	}

	first := run()
	if second := run(); first != second {
		t.Fatalf("pipeline not deterministic: %v != %v", first, second)
	}
}
