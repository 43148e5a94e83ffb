package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Simplici0/dtf.works/internal/analyzer"
	"github.com/Simplici0/dtf.works/internal/ink"
	"github.com/Simplici0/dtf.works/internal/order"
	"github.com/Simplici0/dtf.works/internal/pricing"
	"github.com/Simplici0/dtf.works/internal/wizard"
)

const (
	maxFilesPerUpload = 10
	multipartMemory   = 32 << 20
)

type server struct {
	log            *slog.Logger
	analyzer       wizard.FileAnalyzer
	prices         wizard.SettingsSource
	sessions       *wizard.Store
	maxUploadBytes int64
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type estimateRequest struct {
	Size     string  `json:"size"`
	WidthCm  float64 `json:"width_cm"`
	HeightCm float64 `json:"height_cm"`
	Copies   *int    `json:"copies"`
}

type sizesResponse struct {
	Sizes   []pricing.Size `json:"sizes"`
	Choices []string       `json:"choices"`
}

type estimateResponse struct {
	Session wizard.Snapshot `json:"session"`
	Result  pricing.Result  `json:"result"`
}

type orderResponse struct {
	Session    wizard.Snapshot  `json:"session"`
	Submission order.Submission `json:"submission"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthcheck", s.handleHealthcheck)
	r.Route("/api", func(r chi.Router) {
		r.Get("/rates", s.handleRates)
		r.Get("/sizes", s.handleSizes)
		r.Post("/analyze", s.handleAnalyze)

		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/mode", s.handleSelectMode)
			r.Post("/files", s.handleUpload)
			r.Post("/estimate", s.handleEstimate)
			r.Post("/checkout", s.handleCheckout)
			r.Post("/order", s.handleOrder)
			r.Post("/back", s.handleBack)
		})
	})
	return r
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("Request served.",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"requestID", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	if _, err := w.Write([]byte("OK")); err != nil {
		s.log.Error("Unable to write healthcheck", "err", err)
	}
}

func (s *server) handleRates(w http.ResponseWriter, r *http.Request) {
	settings, err := s.prices.Settings(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load price sheet", err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

func (s *server) handleSizes(w http.ResponseWriter, r *http.Request) {
	settings, err := s.prices.Settings(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load price sheet", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sizesResponse{
		Sizes:   settings.Sizes,
		Choices: []string{pricing.SizeAuto, pricing.SizeCustom},
	})
}

// handleAnalyze reports dimensions and an ink estimate for the uploaded files
// without touching any session.
func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	files, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	settings, err := s.prices.Settings(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load price sheet", err)
		return
	}
	calc := ink.NewCalculator(settings.InkRates, settings.InkPrices)

	out := make([]wizard.AnalyzedFile, len(files))
	for i, f := range files {
		out[i] = wizard.AnalyzeFile(r.Context(), s.analyzer, calc, f)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"files": out})
}

func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	w.Header().Set("Location", "/api/sessions/"+sess.ID())
	s.writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionOrError(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.sessionOrError(w, r); !ok {
		return
	}
	s.sessions.Delete(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSelectMode(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionOrError(w, r)
	if !ok {
		return
	}

	var req modeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	mode, err := pricing.ParseMode(req.Mode)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := sess.SelectMode(mode); err != nil {
		s.writeWizardError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionOrError(w, r)
	if !ok {
		return
	}
	files, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	if _, err := sess.Upload(r.Context(), files); err != nil {
		s.writeWizardError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionOrError(w, r)
	if !ok {
		return
	}

	var req estimateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	copies, err := parseCopies(req.Copies)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if req.WidthCm < 0 || req.HeightCm < 0 {
		s.writeError(w, http.StatusBadRequest, "width_cm and height_cm must not be negative", nil)
		return
	}

	choice := pricing.SizeChoice{Name: req.Size, WidthCm: req.WidthCm, HeightCm: req.HeightCm}
	result, err := sess.Estimate(r.Context(), choice, copies)
	if err != nil {
		s.writeWizardError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, estimateResponse{Session: sess.Snapshot(), Result: result})
}

func (s *server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionOrError(w, r)
	if !ok {
		return
	}
	if err := sess.Checkout(); err != nil {
		s.writeWizardError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *server) handleOrder(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionOrError(w, r)
	if !ok {
		return
	}

	var details order.Details
	if !s.decodeJSON(w, r, &details) {
		return
	}

	sub, err := sess.SubmitDetails(r.Context(), details)
	if err != nil {
		s.writeWizardError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, orderResponse{Session: sess.Snapshot(), Submission: sub})
}

func (s *server) handleBack(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionOrError(w, r)
	if !ok {
		return
	}
	if err := sess.Back(); err != nil {
		s.writeWizardError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *server) sessionOrError(w http.ResponseWriter, r *http.Request) (*wizard.Session, bool) {
	sess, ok := s.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found", nil)
		return nil, false
	}
	return sess, true
}

// readUpload reads the multipart "files" field (or a single "file") into memory,
// applying the accept list and the per-file size cap.
func (s *server) readUpload(w http.ResponseWriter, r *http.Request) ([]analyzer.File, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes*maxFilesPerUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "upload is too large", nil)
			return nil, false
		}
		s.writeError(w, http.StatusBadRequest, "invalid multipart form", nil)
		return nil, false
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	headers = append(headers, r.MultipartForm.File["file"]...)
	if len(headers) == 0 {
		s.writeError(w, http.StatusBadRequest, "no files uploaded", nil)
		return nil, false
	}
	if len(headers) > maxFilesPerUpload {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d files per upload", maxFilesPerUpload), nil)
		return nil, false
	}

	files := make([]analyzer.File, 0, len(headers))
	for _, fh := range headers {
		mimeType := fh.Header.Get("Content-Type")
		if !analyzer.Accepts(fh.Filename, mimeType) {
			s.writeError(w, http.StatusUnsupportedMediaType, fmt.Sprintf("%s: unsupported file type", fh.Filename), nil)
			return nil, false
		}
		if fh.Size > s.maxUploadBytes {
			s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("%s: file exceeds %d MB", fh.Filename, s.maxUploadBytes>>20), nil)
			return nil, false
		}

		f, err := fh.Open()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "failed to read upload", err)
			return nil, false
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "failed to read upload", err)
			return nil, false
		}

		files = append(files, analyzer.File{
			Name:     fh.Filename,
			MIMEType: mimeType,
			Size:     int64(len(data)),
			Data:     data,
		})
	}
	return files, true
}

func (s *server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+strings.TrimPrefix(err.Error(), "json: "), nil)
		return false
	}
	return true
}

func parseCopies(raw *int) (int, error) {
	if raw == nil {
		return 1, nil
	}
	if *raw < 1 {
		return 0, errors.New("copies must be at least 1")
	}
	return *raw, nil
}
