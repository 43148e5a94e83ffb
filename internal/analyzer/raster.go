package analyzer

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

func (a *Analyzer) analyzeRaster(logCtx *slog.Logger, f File) Result {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		logCtx.Warn("Failed to read image header, using fallback size.", "error", err)
		return Result{Dimensions: fallbackRaster, FileSize: f.size(), Format: FormatRaster}
	}

	result := Result{
		Dimensions: a.rasterDimensions(cfg.Width, cfg.Height),
		FileSize:   f.size(),
		Format:     FormatRaster,
	}

	if cfg.Width*cfg.Height > a.cfg.MaxRasterPixels {
		logCtx.Info("Image too large to sample, size estimated from header.", "width", cfg.Width, "height", cfg.Height)
		result.Note = NoteSizeEstimated
		return result
	}

	pixels, err := decodeRGBA(f.Data)
	if err != nil {
		logCtx.Warn("Failed to decode image, using fallback size.", "format", format, "error", err)
		return Result{Dimensions: fallbackRaster, FileSize: f.size(), Format: FormatRaster}
	}

	result.Pixels = pixels
	result.HasPixelData = true
	logCtx.Debug("Image decoded.", "format", format, "width", pixels.Width, "height", pixels.Height)
	return result
}

func (a *Analyzer) rasterDimensions(width, height int) Dimensions {
	return Dimensions{
		WidthCm:     pixelsToCm(width, a.cfg.DPI),
		HeightCm:    pixelsToCm(height, a.cfg.DPI),
		PixelWidth:  width,
		PixelHeight: height,
		DPI:         a.cfg.DPI,
	}
}

func decodeRGBA(data []byte) (*PixelBuffer, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return toPixelBuffer(img), nil
}

// toPixelBuffer copies img into a zero-origin straight-alpha RGBA buffer.
func toPixelBuffer(img image.Image) *PixelBuffer {
	b := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || b.Min != (image.Point{}) || nrgba.Stride != 4*b.Dx() {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}
	return &PixelBuffer{Width: b.Dx(), Height: b.Dy(), Pix: nrgba.Pix}
}
