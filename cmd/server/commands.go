package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Simplici0/dtf.works/internal/analyzer"
	"github.com/Simplici0/dtf.works/internal/config"
	"github.com/Simplici0/dtf.works/internal/db"
	"github.com/Simplici0/dtf.works/internal/ink"
	"github.com/Simplici0/dtf.works/internal/migrations"
	"github.com/Simplici0/dtf.works/internal/order"
	"github.com/Simplici0/dtf.works/internal/pricing"
	"github.com/Simplici0/dtf.works/internal/rates"
	"github.com/Simplici0/dtf.works/internal/seed"
	"github.com/Simplici0/dtf.works/internal/wizard"
)

// app carries what PersistentPreRunE prepared for the subcommands.
type app struct {
	cfg config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "dtfworks",
		Short: "DTF print storefront: file analysis, ink estimates and price quotes",
		Long: `dtfworks serves the ordering wizard of a DTF print shop.

Uploaded designs are measured, their ink usage is estimated from pixel coverage,
and a quote is computed from the price sheet stored in SQLite.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.cfg = config.Load()
			a.log = a.cfg.NewLogger(cmd.ErrOrStderr())
			slog.SetDefault(a.log)
			return nil
		},
	}

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newAnalyzeCmd(a))
	cmd.AddCommand(newMigrateCmd(a))
	cmd.AddCommand(newRatesCmd(a))

	return cmd
}

// openDatabase opens the price sheet database, applies migrations and seeds
// whatever part of the price sheet is still empty.
func (a *app) openDatabase() (*sql.DB, error) {
	database, err := db.Open(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrations.Up(database, a.log); err != nil {
		database.Close()
		return nil, fmt.Errorf("run database migrations: %w", err)
	}
	stats, err := seed.Run(database, pricing.DefaultSettings())
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("seed price sheet: %w", err)
	}
	if stats.Inserts > 0 {
		a.log.Info("Price sheet seeded with defaults.", "inserts", stats.Inserts)
	}
	return database, nil
}

func (a *app) newAnalyzer() *analyzer.Analyzer {
	return analyzer.New(analyzer.Config{
		PixelExtractionLimit: a.cfg.PixelLimitBytes,
		Logger:               a.log,
	})
}

func newServeCmd(a *app) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ordering API",
		Example: `  # Start on the port from $PORT (default 8080)
  dtfworks serve

  # Load a price sheet before serving
  PRICES_FILE=prices.yaml dtfworks serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if port == "" {
				port = a.cfg.Port
			}

			database, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer database.Close()

			store := rates.NewStore(database)
			if a.cfg.PricesFile != "" {
				sheet, err := rates.LoadFile(a.cfg.PricesFile)
				if err != nil {
					return err
				}
				if err := store.Replace(ctx, sheet); err != nil {
					return fmt.Errorf("import %s: %w", a.cfg.PricesFile, err)
				}
				a.log.Info("Price sheet imported.", "path", a.cfg.PricesFile)
			}

			var submitter order.Submitter = order.LogSubmitter{Logger: a.log}
			if len(a.cfg.KafkaBrokers) > 0 {
				ks := order.NewKafkaSubmitter(order.NewKafkaWriter(a.cfg.KafkaBrokers, a.cfg.KafkaTopic), a.log)
				defer func() {
					if err := ks.Close(); err != nil {
						a.log.Error("Failed to close Kafka writer.", "err", err)
					}
				}()
				submitter = ks
			}

			an := a.newAnalyzer()
			sessions := wizard.NewStore(wizard.Deps{
				Analyzer:  an,
				Prices:    store,
				Submitter: submitter,
				Workers:   a.cfg.AnalysisWorkers,
				Logger:    a.log,
			}, a.cfg.SessionTTL)
			go sessions.Run(ctx, 0)

			srv := &server{
				log:            a.log,
				analyzer:       an,
				prices:         store,
				sessions:       sessions,
				maxUploadBytes: a.cfg.MaxUploadBytes,
			}

			addr := ":" + port
			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv.routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				a.log.Info("Ordering API available.", "addr", addr, "env", a.cfg.Env)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-ctx.Done():
				a.log.Info("Shutting down server.")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					a.log.Error("Server shutdown failed.", "err", err)
					return err
				}
				a.log.Info("Server stopped.")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides $PORT)")

	return cmd
}

type analyzeOptions struct {
	mode       string
	size       string
	widthCm    float64
	heightCm   float64
	copies     int
	pricesFile string
	asJSON     bool
}

type analyzeReport struct {
	Files []wizard.AnalyzedFile `json:"files"`
	Quote *pricing.Result       `json:"quote,omitempty"`
}

func newAnalyzeCmd(a *app) *cobra.Command {
	opts := analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Measure files, estimate ink and optionally quote them",
		Long: `Analyze reads PNG, JPEG, WEBP, PDF and PSD files from disk and reports
their print size and ink estimate. With --size it also prices the batch.

Prices come from --prices (YAML) or the built-in defaults; the database is not used.`,
		Example: `  dtfworks analyze logo.png
  dtfworks analyze --mode roll --size auto --copies 3 a.pdf b.png
  dtfworks analyze --size A4 --json art.psd`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := pricing.DefaultSettings()
			if opts.pricesFile != "" {
				var err error
				if settings, err = rates.LoadFile(opts.pricesFile); err != nil {
					return err
				}
			}

			report, err := runAnalyze(cmd.Context(), a.newAnalyzer(), settings, args, opts)
			if err != nil {
				return err
			}
			if opts.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return printReport(cmd.OutOrStdout(), report, settings.Currency)
		},
	}

	cmd.Flags().StringVar(&opts.mode, "mode", string(pricing.ModeSingle), "Print mode: single or roll")
	cmd.Flags().StringVar(&opts.size, "size", "", "Size to quote: auto, custom or a named size (A4, A3, ...)")
	cmd.Flags().Float64Var(&opts.widthCm, "width", 0, "Custom width in cm (with --size custom)")
	cmd.Flags().Float64Var(&opts.heightCm, "height", 0, "Custom height in cm (with --size custom)")
	cmd.Flags().IntVar(&opts.copies, "copies", 1, "Number of copies")
	cmd.Flags().StringVar(&opts.pricesFile, "prices", "", "YAML price sheet to use instead of the defaults")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the report as JSON")

	return cmd
}

func runAnalyze(ctx context.Context, an wizard.FileAnalyzer, settings pricing.Settings, paths []string, opts analyzeOptions) (analyzeReport, error) {
	mode, err := pricing.ParseMode(opts.mode)
	if err != nil {
		return analyzeReport{}, err
	}
	if opts.copies < 1 {
		return analyzeReport{}, errors.New("--copies must be at least 1")
	}

	calc := ink.NewCalculator(settings.InkRates, settings.InkPrices)
	out := make([]wizard.AnalyzedFile, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(wizard.DefaultWorkers)
	for i, path := range paths {
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			name := filepath.Base(path)
			f := analyzer.File{
				Name:     name,
				MIMEType: mime.TypeByExtension(filepath.Ext(name)),
				Size:     int64(len(data)),
				Data:     data,
			}
			out[i] = wizard.AnalyzeFile(gctx, an, calc, f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return analyzeReport{}, err
	}

	report := analyzeReport{Files: out}
	if opts.size == "" {
		return report, nil
	}

	designs := make([]pricing.Design, len(out))
	for i, f := range out {
		designs[i] = pricing.Design{
			Name:     f.Name,
			WidthCm:  f.Analysis.Dimensions.WidthCm,
			HeightCm: f.Analysis.Dimensions.HeightCm,
			Coverage: f.Coverage,
		}
	}
	result, err := pricing.Estimate(pricing.Input{
		Mode:    mode,
		Designs: designs,
		Size:    pricing.SizeChoice{Name: opts.size, WidthCm: opts.widthCm, HeightCm: opts.heightCm},
		Copies:  opts.copies,
	}, settings)
	if err != nil {
		return analyzeReport{}, fmt.Errorf("estimate: %w", err)
	}
	report.Quote = &result
	return report, nil
}

func printReport(w io.Writer, report analyzeReport, currency string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tFORMAT\tSIZE (cm)\tCMYK (mL)\tWHITE (mL)\tINK COST\tNOTE")
	for _, f := range report.Files {
		source := "coverage"
		if f.Coverage == nil {
			source = "average"
		}
		note := f.Analysis.Note
		if note == "" {
			note = source
		}
		fmt.Fprintf(tw, "%s\t%s\t%.1f x %.1f\t%.2f\t%.2f\t%.2f %s\t%s\n",
			f.Name,
			f.Analysis.Format,
			f.Analysis.Dimensions.WidthCm,
			f.Analysis.Dimensions.HeightCm,
			f.InkEstimate.ColorML(),
			f.InkEstimate.White,
			f.InkCost,
			currency,
			note,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	q := report.Quote
	if q == nil {
		return nil
	}
	b := q.Breakdown
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Mode\t%s\n", q.Mode)
	if q.Mode == pricing.ModeRoll {
		fmt.Fprintf(tw, "Length per set\t%.2f m\n", b.LengthM)
	}
	fmt.Fprintf(tw, "Base\t%.2f\n", b.Base)
	if b.Discount > 0 {
		fmt.Fprintf(tw, "Discount (%s, %.0f%%)\t-%.2f\n", b.DiscountAxis, b.DiscountPercent, b.Discount)
	}
	fmt.Fprintf(tw, "White ink\t%.2f\n", b.WhiteInkCost)
	fmt.Fprintf(tw, "Colour ink\t%.2f\n", b.ColorInkCost)
	fmt.Fprintf(tw, "Glue\t%.2f\n", b.GlueCost)
	if b.FilmCost > 0 {
		fmt.Fprintf(tw, "Film\t%.2f\n", b.FilmCost)
	}
	fmt.Fprintf(tw, "Equipment\t%.2f\n", b.EquipmentCost)
	fmt.Fprintf(tw, "Per set\t%.2f\n", b.PerSet)
	fmt.Fprintf(tw, "Total (%d copies)\t%.0f %s\n", q.Totals.Copies, q.Totals.Total, q.Totals.Currency)
	if b.CompetitorPrice > 0 {
		fmt.Fprintf(tw, "Competitor price\t%.0f %s\n", b.CompetitorPrice, q.Totals.Currency)
	}
	return tw.Flush()
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and seed the default price sheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer database.Close()

			v, err := migrations.Version(database, a.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
			return nil
		},
	}
}

func newRatesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Inspect or replace the stored price sheet",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored price sheet as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer database.Close()

			settings, err := rates.NewStore(database).Settings(cmd.Context())
			if err != nil {
				return err
			}
			return rates.EncodeYAML(cmd.OutOrStdout(), settings)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Replace the stored price sheet with a YAML file",
		Long: `Import validates the YAML price sheet and replaces the stored one in a single
transaction. Keys missing from the file keep their built-in defaults.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sheet, err := rates.LoadFile(args[0])
			if err != nil {
				return err
			}

			database, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer database.Close()

			if err := rates.NewStore(database).Replace(cmd.Context(), sheet); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s: %d sizes, %d quantity tiers, %d length tiers\n",
				args[0], len(sheet.Sizes), len(sheet.QuantityTiers), len(sheet.LengthTiers))
			return nil
		},
	})

	return cmd
}
