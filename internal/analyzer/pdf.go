package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/image/draw"
)

// PageRenderer rasterizes the first page of a PDF to an RGBA buffer of
// widthPt*scale by heightPt*scale pixels.
type PageRenderer interface {
	RenderFirstPage(ctx context.Context, data []byte, widthPt, heightPt, scale float64) (*PixelBuffer, error)
}

var errNoPageImage = errors.New("page has no raster content")

var disableConfigDir sync.Once

// pdfConfig returns a relaxed pdfcpu configuration that never touches the
// user config directory.
func pdfConfig() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// firstPageSize returns the media box of page 1 in points.
func firstPageSize(data []byte) (float64, float64, error) {
	dims, err := api.PageDims(bytes.NewReader(data), pdfConfig())
	if err != nil {
		return 0, 0, fmt.Errorf("read page dimensions: %w", err)
	}
	if len(dims) == 0 {
		return 0, 0, errors.New("document has no pages")
	}
	w, h := dims[0].Width, dims[0].Height
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid page size %.1fx%.1f", w, h)
	}
	return w, h, nil
}

func (a *Analyzer) analyzePDF(ctx context.Context, logCtx *slog.Logger, f File) Result {
	widthPt, heightPt, err := firstPageSize(f.Data)
	if err != nil {
		logCtx.Warn("Failed to parse PDF, using A4 fallback.", "error", err)
		return Result{Dimensions: fallbackPDF, FileSize: f.size(), Format: FormatPDF}
	}

	result := Result{
		Dimensions: Dimensions{WidthCm: pointsToCm(widthPt), HeightCm: pointsToCm(heightPt)},
		FileSize:   f.size(),
		Format:     FormatPDF,
	}
	logCtx = logCtx.With("widthPt", widthPt, "heightPt", heightPt)

	if f.size() > a.cfg.PixelExtractionLimit {
		logCtx.Info("PDF above extraction limit, size taken from page geometry.", "limit", a.cfg.PixelExtractionLimit)
		result.Note = NoteSizeEstimated
		return result
	}

	scale := a.cfg.RenderScale
	if widthPt*scale*heightPt*scale > float64(a.cfg.MaxRasterPixels) {
		logCtx.Info("Rendered page would be too large, size taken from page geometry.")
		result.Note = NoteSizeEstimated
		return result
	}

	pixels, err := a.cfg.Renderer.RenderFirstPage(ctx, f.Data, widthPt, heightPt, scale)
	if err != nil {
		logCtx.Warn("Failed to render PDF page for color analysis.", "error", err)
		result.Note = NoteSizeEstimated
		return result
	}

	result.Pixels = pixels
	result.HasPixelData = true
	result.Dimensions.PixelWidth = pixels.Width
	result.Dimensions.PixelHeight = pixels.Height
	logCtx.Debug("PDF page rendered.", "width", pixels.Width, "height", pixels.Height)
	return result
}

// EmbeddedImageRenderer approximates a page raster without a PDF graphics
// engine: the largest image embedded in page 1 is scaled to fit a white page
// canvas. Pages without a decodable image fail to render, which sends the
// caller to the heuristic ink estimate.
type EmbeddedImageRenderer struct{}

// RenderFirstPage implements PageRenderer.
func (EmbeddedImageRenderer) RenderFirstPage(ctx context.Context, data []byte, widthPt, heightPt, scale float64) (*PixelBuffer, error) {
	var largest image.Image
	digest := func(img model.Image, _ bool, _ int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		decoded, _, err := image.Decode(img)
		if err != nil {
			// Colour spaces the stdlib decoders do not handle are skipped.
			return nil
		}
		if largest == nil || area(decoded.Bounds()) > area(largest.Bounds()) {
			largest = decoded
		}
		return nil
	}

	if err := api.ExtractImages(bytes.NewReader(data), []string{"1"}, digest, pdfConfig()); err != nil {
		return nil, fmt.Errorf("extract page images: %w", err)
	}
	if largest == nil {
		return nil, errNoPageImage
	}

	cw := int(math.Round(widthPt * scale))
	ch := int(math.Round(heightPt * scale))
	if cw <= 0 || ch <= 0 {
		return nil, fmt.Errorf("invalid canvas %dx%d", cw, ch)
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, cw, ch))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	draw.ApproxBiLinear.Scale(canvas, fitCentered(largest.Bounds(), canvas.Bounds()), largest, largest.Bounds(), draw.Over, nil)

	return toPixelBuffer(canvas), nil
}

// fitCentered returns the largest rectangle with src's aspect ratio centred in dst.
func fitCentered(src, dst image.Rectangle) image.Rectangle {
	sw, sh := float64(src.Dx()), float64(src.Dy())
	dw, dh := float64(dst.Dx()), float64(dst.Dy())
	if sw <= 0 || sh <= 0 {
		return dst
	}
	s := math.Min(dw/sw, dh/sh)
	w, h := int(math.Round(sw*s)), int(math.Round(sh*s))
	x0 := dst.Min.X + (dst.Dx()-w)/2
	y0 := dst.Min.Y + (dst.Dy()-h)/2
	return image.Rect(x0, y0, x0+w, y0+h)
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}
