package analyzer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"log/slog"
)

// PSD file header: signature(4) version(2) reserved(6) channels(2) height(4) width(4) depth(2) mode(2).
const (
	psdHeaderLen    = 26
	psdHeightOffset = 14
	psdWidthOffset  = 18
)

var psdSignature = []byte("8BPS")

var errBadPSDHeader = errors.New("not a photoshop document")

// analyzePSD reads the size from the file header only. Layer data is never decoded.
func (a *Analyzer) analyzePSD(logCtx *slog.Logger, f File) Result {
	width, height, err := readPSDSize(f.Data)
	if err != nil {
		logCtx.Warn("Failed to read PSD header, using fallback size.", "error", err)
		return Result{Dimensions: fallbackPSD, FileSize: f.size(), Format: FormatPSD}
	}

	result := Result{
		Dimensions: a.rasterDimensions(width, height),
		FileSize:   f.size(),
		Format:     FormatPSD,
		Note:       NoteSizeEstimated,
	}
	if f.size() > a.cfg.PixelExtractionLimit {
		logCtx.Info("PSD file above preview limit.", "limit", a.cfg.PixelExtractionLimit)
	}
	return result
}

func readPSDSize(data []byte) (int, int, error) {
	if len(data) < psdHeaderLen || !bytes.Equal(data[:4], psdSignature) {
		return 0, 0, errBadPSDHeader
	}
	height := binary.BigEndian.Uint32(data[psdHeightOffset:])
	width := binary.BigEndian.Uint32(data[psdWidthOffset:])
	if width == 0 || height == 0 {
		return 0, 0, errBadPSDHeader
	}
	return int(width), int(height), nil
}
