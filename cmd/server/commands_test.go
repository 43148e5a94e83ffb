package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Simplici0/dtf.works/internal/analyzer"
	"github.com/Simplici0/dtf.works/internal/pricing"
)

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return path
}

func testAnalyzer() *analyzer.Analyzer {
	return analyzer.New(analyzer.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
}

func TestRunAnalyze_MeasuresAndQuotes(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, dir, "logo.png", 600, 300)

	report, err := runAnalyze(context.Background(), testAnalyzer(), pricing.DefaultSettings(), []string{path}, analyzeOptions{
		mode:   "single",
		size:   "auto",
		copies: 2,
	})
	if err != nil {
		t.Fatalf("runAnalyze: %v", err)
	}

	if len(report.Files) != 1 {
		t.Fatalf("files = %d, want 1", len(report.Files))
	}
	f := report.Files[0]
	if f.Name != "logo.png" || f.Analysis.Dimensions.WidthCm != 5.1 || f.Analysis.Dimensions.HeightCm != 2.5 {
		t.Fatalf("unexpected analysis: %+v", f.Analysis)
	}
	if f.Coverage == nil || f.Coverage.Black != 1 {
		t.Fatalf("expected measured black coverage, got %+v", f.Coverage)
	}
	if report.Quote == nil || report.Quote.Totals.Copies != 2 || report.Quote.Totals.Total <= 0 {
		t.Fatalf("unexpected quote: %+v", report.Quote)
	}

	var out bytes.Buffer
	if err := printReport(&out, report, "UAH"); err != nil {
		t.Fatalf("printReport: %v", err)
	}
	for _, want := range []string{"logo.png", "5.1 x 2.5", "coverage", "Total (2 copies)", "Per set"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("report missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunAnalyze_WithoutSizeSkipsQuote(t *testing.T) {
	path := writePNG(t, t.TempDir(), "a.png", 30, 30)

	report, err := runAnalyze(context.Background(), testAnalyzer(), pricing.DefaultSettings(), []string{path}, analyzeOptions{mode: "roll", copies: 1})
	if err != nil {
		t.Fatalf("runAnalyze: %v", err)
	}
	if report.Quote != nil {
		t.Fatalf("unexpected quote: %+v", report.Quote)
	}
}

func TestRunAnalyze_Errors(t *testing.T) {
	path := writePNG(t, t.TempDir(), "a.png", 10, 10)

	tests := []struct {
		name  string
		paths []string
		opts  analyzeOptions
	}{
		{name: "bad mode", paths: []string{path}, opts: analyzeOptions{mode: "sheet", copies: 1}},
		{name: "no copies", paths: []string{path}, opts: analyzeOptions{mode: "single", copies: 0}},
		{name: "missing file", paths: []string{filepath.Join(t.TempDir(), "absent.png")}, opts: analyzeOptions{mode: "single", copies: 1}},
		{name: "unknown size", paths: []string{path}, opts: analyzeOptions{mode: "single", size: "B2", copies: 1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := runAnalyze(context.Background(), testAnalyzer(), pricing.DefaultSettings(), tc.paths, tc.opts); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func execute(t *testing.T, args ...string) string {
	t.Helper()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func TestRatesCommands(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DB_PATH", filepath.Join(dir, "data", "dtf.db"))
	t.Setenv("LOG_LEVEL", "error")

	if out := execute(t, "migrate"); !strings.Contains(out, "schema version 1") {
		t.Fatalf("migrate output = %q", out)
	}

	if out := execute(t, "rates", "show"); !strings.Contains(out, "currency: UAH") || !strings.Contains(out, "roll_width_cm: 58") {
		t.Fatalf("rates show output = %q", out)
	}

	sheet := filepath.Join(dir, "prices.yaml")
	if err := os.WriteFile(sheet, []byte("currency: EUR\nsizes:\n  - name: Pocket\n    width_cm: 9\n    height_cm: 9\n"), 0o600); err != nil {
		t.Fatalf("write sheet: %v", err)
	}
	if out := execute(t, "rates", "import", sheet); !strings.Contains(out, "1 sizes") {
		t.Fatalf("rates import output = %q", out)
	}

	out := execute(t, "rates", "show")
	if !strings.Contains(out, "currency: EUR") || !strings.Contains(out, "name: Pocket") || strings.Contains(out, "name: A4") {
		t.Fatalf("rates show after import = %q", out)
	}
}

func TestAnalyzeCommandJSON(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writePNG(t, dir, "badge.png", 300, 300)

	out := execute(t, "analyze", "--json", "--size", "A6", path)

	var report analyzeReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(report.Files) != 1 || report.Quote == nil || report.Quote.Lines[0].WidthCm != 10.5 {
		t.Fatalf("unexpected report: %+v", report)
	}
}
