package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Simplici0/dtf.works/internal/analyzer"
	"github.com/Simplici0/dtf.works/internal/ink"
	"github.com/Simplici0/dtf.works/internal/order"
	"github.com/Simplici0/dtf.works/internal/pricing"
)

// State is a step of the ordering wizard.
type State int

const (
	SelectPrintMode State = iota
	UploadFiles
	EstimatePrice
	CollectOrderDetails
	Confirmed
)

func (s State) String() string {
	switch s {
	case SelectPrintMode:
		return "select_print_mode"
	case UploadFiles:
		return "upload_files"
	case EstimatePrice:
		return "estimate_price"
	case CollectOrderDetails:
		return "collect_order_details"
	case Confirmed:
		return "confirmed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for st := SelectPrintMode; st <= Confirmed; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown wizard state %q", b)
}

var (
	// ErrInvalidTransition is returned when an action does not apply to the current step.
	ErrInvalidTransition = errors.New("invalid wizard transition")
	// ErrStaleBatch is returned when an upload or order submission finished
	// after being superseded by a newer upload, a back action or a reset.
	ErrStaleBatch = errors.New("upload batch superseded")
)

// DefaultWorkers bounds concurrent file analyses per upload.
const DefaultWorkers = 4

// FileAnalyzer is implemented by *analyzer.Analyzer.
type FileAnalyzer interface {
	Analyze(ctx context.Context, f analyzer.File) analyzer.Result
	ShouldShowPreview(f analyzer.File) bool
}

// SettingsSource supplies the current price sheet.
type SettingsSource interface {
	Settings(ctx context.Context) (pricing.Settings, error)
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Analyzer  FileAnalyzer
	Prices    SettingsSource
	Submitter order.Submitter
	Workers   int
	Logger    *slog.Logger
	Now       func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Workers <= 0 {
		d.Workers = DefaultWorkers
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// AnalyzedFile is an uploaded file reduced to what pricing needs. Pixels are
// never retained; Coverage is set when they were sampled.
type AnalyzedFile struct {
	Name        string          `json:"name"`
	MIMEType    string          `json:"mime_type,omitempty"`
	Size        int64           `json:"size"`
	Analysis    analyzer.Result `json:"analysis"`
	Coverage    *ink.Coverage   `json:"coverage,omitempty"`
	Preview     bool            `json:"preview"`
	InkEstimate ink.Usage       `json:"ink_estimate"`
	InkCost     float64         `json:"ink_cost"`
}

// Quote is the last successful estimate and the choices it was made with.
type Quote struct {
	Size   pricing.SizeChoice `json:"size"`
	Copies int                `json:"copies"`
	Result pricing.Result     `json:"result"`
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	ID         string            `json:"id"`
	State      State             `json:"state"`
	Mode       pricing.Mode      `json:"mode,omitempty"`
	Files      []AnalyzedFile    `json:"files"`
	Quote      *Quote            `json:"quote,omitempty"`
	Submission *order.Submission `json:"submission,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Session is one customer's pass through the wizard. Its methods are safe for
// concurrent use.
type Session struct {
	id   string
	deps Deps

	mu         sync.Mutex
	state      State
	mode       pricing.Mode
	files      []AnalyzedFile
	quote      *Quote
	submission *order.Submission
	generation uint64
	submitting bool
	updatedAt  time.Time
}

// NewSession starts a session at SelectPrintMode.
func NewSession(deps Deps) *Session {
	deps = deps.withDefaults()
	return &Session{
		id:        uuid.NewString(),
		deps:      deps,
		state:     SelectPrintMode,
		updatedAt: deps.Now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// SelectMode records the print mode and moves on to uploading.
func (s *Session) SelectMode(mode pricing.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SelectPrintMode {
		return fmt.Errorf("%w: select mode in %s", ErrInvalidTransition, s.state)
	}
	m, err := pricing.ParseMode(string(mode))
	if err != nil {
		return err
	}
	s.mode = m
	s.state = UploadFiles
	s.touch()
	return nil
}

// Upload analyses a batch of files concurrently and, once all are done,
// replaces the session's files and moves on to pricing. A batch overtaken by
// another upload, Back or Reset while it was running returns ErrStaleBatch
// and changes nothing.
func (s *Session) Upload(ctx context.Context, files []analyzer.File) ([]AnalyzedFile, error) {
	if len(files) == 0 {
		return nil, errors.New("no files to upload")
	}

	s.mu.Lock()
	if s.state != UploadFiles {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: upload in %s", ErrInvalidTransition, state)
	}
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	logCtx := s.deps.Logger.With("session", s.id, "batch", gen, "files", len(files))
	logCtx.Info("Analyzing upload batch.")

	prices, err := s.deps.Prices.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load price sheet: %w", err)
	}
	calc := ink.NewCalculator(prices.InkRates, prices.InkPrices)

	results := make([]AnalyzedFile, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.deps.Workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = AnalyzeFile(gctx, s.deps.Analyzer, calc, f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyze upload batch: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.state != UploadFiles {
		logCtx.Info("Discarding superseded upload batch.", "current", s.generation)
		return nil, ErrStaleBatch
	}
	s.files = results
	s.quote = nil
	s.state = EstimatePrice
	s.touch()

	logCtx.Info("Upload batch applied.")
	return cloneFiles(results), nil
}

// AnalyzeFile reduces one file to its dimensions, coverage and ink estimate.
// The decoded pixels are dropped before it returns.
func AnalyzeFile(ctx context.Context, an FileAnalyzer, calc ink.Calculator, f analyzer.File) AnalyzedFile {
	res := an.Analyze(ctx, f)

	af := AnalyzedFile{
		Name:     f.Name,
		MIMEType: f.MIMEType,
		Size:     res.FileSize,
		Preview:  an.ShouldShowPreview(f),
	}
	if res.HasPixelData && res.Pixels != nil {
		cov := ink.AnalyzeColors(res.Pixels.Pix, res.Pixels.Width, res.Pixels.Height)
		af.Coverage = &cov
		af.InkEstimate = calc.UsageForArea(cov, ink.AreaM2(res.Dimensions.WidthCm, res.Dimensions.HeightCm))
	} else {
		af.InkEstimate = calc.AverageUsage(res.Dimensions.WidthCm, res.Dimensions.HeightCm)
	}
	af.InkCost = calc.Cost(af.InkEstimate)

	res.Release()
	af.Analysis = res
	return af
}

// Estimate prices the uploaded files. It may be called repeatedly while the
// session is at EstimatePrice; a failed estimate clears the previous quote.
func (s *Session) Estimate(ctx context.Context, size pricing.SizeChoice, copies int) (pricing.Result, error) {
	prices, err := s.deps.Prices.Settings(ctx)
	if err != nil {
		return pricing.Result{}, fmt.Errorf("load price sheet: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != EstimatePrice {
		return pricing.Result{}, fmt.Errorf("%w: estimate in %s", ErrInvalidTransition, s.state)
	}

	designs := make([]pricing.Design, len(s.files))
	for i, f := range s.files {
		designs[i] = pricing.Design{
			Name:     f.Name,
			WidthCm:  f.Analysis.Dimensions.WidthCm,
			HeightCm: f.Analysis.Dimensions.HeightCm,
			Coverage: f.Coverage,
		}
	}

	result, err := pricing.Estimate(pricing.Input{Mode: s.mode, Designs: designs, Size: size, Copies: copies}, prices)
	if err != nil {
		s.quote = nil
		s.touch()
		return pricing.Result{}, err
	}
	s.quote = &Quote{Size: size, Copies: result.Totals.Copies, Result: result}
	s.touch()
	return result, nil
}

// Checkout moves from a computed quote to collecting order details.
func (s *Session) Checkout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != EstimatePrice {
		return fmt.Errorf("%w: checkout in %s", ErrInvalidTransition, s.state)
	}
	if s.quote == nil {
		return pricing.ErrNotReady
	}
	s.state = CollectOrderDetails
	s.touch()
	return nil
}

// SubmitDetails validates the contact details, hands the order to the
// submitter and confirms the session. On any error the session stays put.
// The lock is not held while the submitter runs. A Reset in that window leaves
// the session unconfirmed and returns ErrStaleBatch.
func (s *Session) SubmitDetails(ctx context.Context, d order.Details) (order.Submission, error) {
	if err := d.Validate(); err != nil {
		return order.Submission{}, err
	}

	s.mu.Lock()
	if s.state != CollectOrderDetails || s.quote == nil || s.submitting {
		state := s.state
		s.mu.Unlock()
		return order.Submission{}, fmt.Errorf("%w: submit in %s", ErrInvalidTransition, state)
	}
	files := make([]order.FileMetadata, len(s.files))
	for i, f := range s.files {
		files[i] = order.FileMetadata{
			Name:         f.Name,
			MIMEType:     f.MIMEType,
			Size:         f.Size,
			WidthCm:      f.Analysis.Dimensions.WidthCm,
			HeightCm:     f.Analysis.Dimensions.HeightCm,
			HasPixelData: f.Analysis.HasPixelData,
		}
	}
	totals := s.quote.Result.Totals
	sub := order.NewSubmission(d, files, string(s.mode), totals.Copies, totals.Total, totals.Currency, s.deps.Now())
	gen := s.generation
	s.submitting = true
	s.mu.Unlock()

	err := s.deps.Submitter.Submit(ctx, sub)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if err != nil {
		return order.Submission{}, fmt.Errorf("submit order: %w", err)
	}
	if gen != s.generation || s.state != CollectOrderDetails {
		s.deps.Logger.Warn("Order submitted for a session reset meanwhile.", "session", s.id, "order", sub.ID)
		return order.Submission{}, ErrStaleBatch
	}

	s.submission = &sub
	s.state = Confirmed
	s.touch()
	s.deps.Logger.Info("Order confirmed.", "session", s.id, "order", sub.ID, "total", sub.TotalPrice)
	return sub, nil
}

// Back returns to the previous step and discards what was collected after it.
func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case UploadFiles:
		s.files = nil
		s.state = SelectPrintMode
	case EstimatePrice:
		s.quote = nil
		s.state = UploadFiles
	case CollectOrderDetails:
		if s.submitting {
			return fmt.Errorf("%w: back while submitting", ErrInvalidTransition)
		}
		s.state = EstimatePrice
	default:
		return fmt.Errorf("%w: back from %s", ErrInvalidTransition, s.state)
	}
	s.generation++
	s.touch()
	return nil
}

// Reset clears the session and returns it to the first step.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = SelectPrintMode
	s.mode = ""
	s.files = nil
	s.quote = nil
	s.submission = nil
	s.generation++
	s.touch()
}

// Snapshot returns a copy of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:        s.id,
		State:     s.state,
		Mode:      s.mode,
		Files:     cloneFiles(s.files),
		UpdatedAt: s.updatedAt,
	}
	if s.quote != nil {
		q := *s.quote
		snap.Quote = &q
	}
	if s.submission != nil {
		sub := *s.submission
		snap.Submission = &sub
	}
	return snap
}

func (s *Session) lastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

func (s *Session) touch() {
	s.updatedAt = s.deps.Now()
}

func cloneFiles(files []AnalyzedFile) []AnalyzedFile {
	if files == nil {
		return []AnalyzedFile{}
	}
	out := make([]AnalyzedFile, len(files))
	copy(out, files)
	return out
}
