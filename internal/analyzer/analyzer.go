package analyzer

import (
	"context"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

const (
	// DefaultDPI is the resolution assumed for raster and layered images.
	DefaultDPI = 300

	// DefaultRenderScale is the upscale factor applied when rasterizing a PDF page.
	DefaultRenderScale = 1.5

	// DefaultPixelExtractionLimit bounds the size of documents that get rasterized.
	DefaultPixelExtractionLimit = 5 * 1024 * 1024

	// DefaultMaxRasterPixels bounds how many pixels a raster image may decode to.
	DefaultMaxRasterPixels = 64_000_000
)

const (
	cmPerInch     = 2.54
	pointsPerInch = 72
)

// NoteSizeEstimated is reported when pixel extraction was skipped on purpose.
const NoteSizeEstimated = "preview unavailable, size estimated"

// Format identifies which analysis path handled a file.
type Format string

const (
	FormatRaster  Format = "raster"
	FormatPDF     Format = "pdf"
	FormatPSD     Format = "psd"
	FormatUnknown Format = "unknown"
)

// Fallback sizes, in centimetres.
var (
	fallbackUnknown = Dimensions{WidthCm: 10, HeightCm: 10}
	fallbackRaster  = Dimensions{WidthCm: 10, HeightCm: 10}
	fallbackPDF     = Dimensions{WidthCm: 21, HeightCm: 29.7}
	fallbackPSD     = Dimensions{WidthCm: 15, HeightCm: 15}
)

// File is an uploaded design file.
type File struct {
	Name     string
	MIMEType string
	Size     int64
	Data     []byte
}

func (f File) size() int64 {
	if f.Size > 0 {
		return f.Size
	}
	return int64(len(f.Data))
}

// Dimensions is the physical print size of a file. Pixel fields are zero
// unless a raster decode succeeded.
type Dimensions struct {
	WidthCm     float64 `json:"width_cm"`
	HeightCm    float64 `json:"height_cm"`
	PixelWidth  int     `json:"pixel_width,omitempty"`
	PixelHeight int     `json:"pixel_height,omitempty"`
	DPI         int     `json:"dpi,omitempty"`
}

// AreaCm2 returns the print area in square centimetres.
func (d Dimensions) AreaCm2() float64 {
	return d.WidthCm * d.HeightCm
}

// PixelBuffer is a non-premultiplied RGBA buffer, 4 bytes per pixel, row major.
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []byte
}

// Result is the outcome of analysing one file.
type Result struct {
	Dimensions   Dimensions   `json:"dimensions"`
	Pixels       *PixelBuffer `json:"-"`
	HasPixelData bool         `json:"has_pixel_data"`
	FileSize     int64        `json:"file_size"`
	Format       Format       `json:"format"`
	Note         string       `json:"note,omitempty"`
}

// Release drops the pixel buffer so it can be collected.
func (r *Result) Release() {
	r.Pixels = nil
}

// Config controls an Analyzer. It is set once and read-only afterwards.
type Config struct {
	DPI                  int
	RenderScale          float64
	PixelExtractionLimit int64
	MaxRasterPixels      int
	Renderer             PageRenderer
	Logger               *slog.Logger
}

// Analyzer determines print dimensions and extracts pixels from uploaded files.
// Analyze is safe for concurrent use.
type Analyzer struct {
	cfg Config
	log *slog.Logger
}

// New returns an Analyzer, filling unset Config fields with defaults.
func New(cfg Config) *Analyzer {
	if cfg.DPI <= 0 {
		cfg.DPI = DefaultDPI
	}
	if cfg.RenderScale <= 0 {
		cfg.RenderScale = DefaultRenderScale
	}
	if cfg.PixelExtractionLimit <= 0 {
		cfg.PixelExtractionLimit = DefaultPixelExtractionLimit
	}
	if cfg.MaxRasterPixels <= 0 {
		cfg.MaxRasterPixels = DefaultMaxRasterPixels
	}
	if cfg.Renderer == nil {
		cfg.Renderer = EmbeddedImageRenderer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Analyzer{cfg: cfg, log: cfg.Logger}
}

// Analyze inspects f and never fails: every decode problem maps to a fallback size.
func (a *Analyzer) Analyze(ctx context.Context, f File) Result {
	logCtx := a.log.With("file", f.Name, "mime", f.MIMEType, "size", f.size())
	logCtx.Debug("Analyzing file.")

	switch DetectFormat(f) {
	case FormatPSD:
		return a.analyzePSD(logCtx, f)
	case FormatPDF:
		return a.analyzePDF(ctx, logCtx, f)
	case FormatRaster:
		return a.analyzeRaster(logCtx, f)
	}

	logCtx.Warn("Unsupported file format, using fallback size.")
	return Result{Dimensions: fallbackUnknown, FileSize: f.size(), Format: FormatUnknown}
}

// DetectFormat chooses the analysis path for f. Layered images are checked
// first because they often carry an image/* MIME type.
func DetectFormat(f File) Format {
	name := strings.ToLower(f.Name)
	ext := filepath.Ext(name)
	mimeType := resolveMIME(f)

	switch {
	case ext == ".psd" || isPSDMIME(mimeType):
		return FormatPSD
	case mimeType == "application/pdf" || ext == ".pdf":
		return FormatPDF
	case strings.HasPrefix(mimeType, "image/"):
		return FormatRaster
	}
	return FormatUnknown
}

func resolveMIME(f File) string {
	declared := strings.ToLower(strings.TrimSpace(f.MIMEType))
	if declared, _, _ = strings.Cut(declared, ";"); declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name))); byExt != "" {
		byExt, _, _ = strings.Cut(byExt, ";")
		return byExt
	}
	if len(f.Data) > 0 {
		sniffed, _, _ := strings.Cut(http.DetectContentType(f.Data), ";")
		return sniffed
	}
	return declared
}

func isPSDMIME(m string) bool {
	switch m {
	case "image/vnd.adobe.photoshop", "application/x-photoshop", "application/photoshop", "application/psd", "image/psd":
		return true
	}
	return false
}

// ShouldShowPreview reports whether a preview is worth rendering for f:
// always for raster images, and for documents only below the extraction limit.
func (a *Analyzer) ShouldShowPreview(f File) bool {
	switch DetectFormat(f) {
	case FormatRaster:
		return true
	case FormatPDF, FormatPSD:
		return f.size() <= a.cfg.PixelExtractionLimit
	}
	return false
}

var acceptedExtensions = map[string]bool{
	".pdf":  true,
	".psd":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// Accepts is the upload filter: PDF, PSD, JPEG, PNG, GIF or any image/* type.
func Accepts(name, mimeType string) bool {
	if acceptedExtensions[strings.ToLower(filepath.Ext(name))] {
		return true
	}
	m, _, _ := strings.Cut(strings.ToLower(mimeType), ";")
	return m == "application/pdf" || strings.HasPrefix(m, "image/")
}

// minCm is the smallest printable edge; tiny sources round up to it.
const minCm = 0.1

func pixelsToCm(px, dpi int) float64 {
	return max(round1(float64(px)/float64(dpi)*cmPerInch), minCm)
}

func pointsToCm(pt float64) float64 {
	return max(round1(pt/pointsPerInch*cmPerInch), minCm)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
