package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/expense-tracker/internal/app"
	"github.com/dvloznov/expense-tracker/internal/config"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/ledger"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/dvloznov/expense-tracker/internal/notionsync"
	"github.com/dvloznov/expense-tracker/internal/pipeline"
	"github.com/dvloznov/expense-tracker/internal/receipts"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.LoadLedger()
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Invalid configuration")
	}
	log := logger.NewWithLevel(cfg.LogLevel)

	switch os.Args[1] {
	case "add":
		runAdd(cfg, log)
	case "parse":
		runParse(log)
	case "extract":
		runExtract(cfg, log)
	case "list":
		runList(cfg, log)
	case "total":
		runTotal(cfg, log)
	case "remove":
		runRemove(cfg, log)
	case "insights":
		runInsights(cfg, log)
	case "export":
		runExport(cfg, log)
	case "sync-notion":
		runSyncNotion(cfg, log)
	case "sync-bigquery":
		runSyncBigQuery(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Expense Tracker CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  add            Record a transaction")
	fmt.Println("  parse          Parse a one-line CSV into a draft transaction")
	fmt.Println("  extract        Read a receipt image with Gemini")
	fmt.Println("  list           List recorded transactions")
	fmt.Println("  total          Show the total against the alert threshold")
	fmt.Println("  remove         Remove a transaction by id")
	fmt.Println("  insights       Ask Gemini for spending insights")
	fmt.Println("  export         Write the ledger as CSV")
	fmt.Println("  sync-notion    Mirror the ledger into the Notion database")
	fmt.Println("  sync-bigquery  Mirror the ledger into BigQuery")
	fmt.Println("  help           Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// session holds what ledger commands share. close must be deferred.
type session struct {
	ctx      context.Context
	recorder *pipeline.Recorder
	closers  app.Closers
}

func (s *session) close(log zerolog.Logger) {
	if err := s.closers.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to release resources")
	}
}

// openSession opens the ledger and, when withSinks is set, the configured mirrors.
func openSession(cfg *config.Config, log zerolog.Logger, withSinks bool) *session {
	ctx := logger.WithContext(context.Background(), log)
	s := &session{ctx: ctx}

	store, err := app.OpenLedger(ctx, cfg, log, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	s.closers.Add(store.Close)

	monitor, err := app.NewMonitor(cfg, log, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure alert")
	}

	var sinks []pipeline.Sink
	if withSinks {
		sinks = app.NewSinks(ctx, cfg, log, &s.closers)
	}
	s.recorder = app.NewRecorder(cfg, store, monitor, sinks, log, nil)
	return s
}

func runAdd(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	date := fs.String("date", time.Now().Format(domain.DateLayout), "Transaction date (YYYY-MM-DD)")
	amount := fs.String("amount", "", "Amount spent")
	name := fs.String("name", "", "Business name")
	category := fs.String("category", string(domain.DefaultCategory), "Category: "+categoryList())
	line := fs.String("line", "", "One-line CSV (date,amount,business name,category) instead of the field flags")
	fs.Parse(os.Args[2:])

	var tx domain.Transaction
	var err error
	if *line != "" {
		tx, err = domain.FromLine(*line)
	} else {
		tx, err = domain.NewTransaction(*date, *amount, *name, *category, "")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid transaction")
	}

	s := openSession(cfg, log, true)
	defer s.close(log)

	recordAndPrint(s, cfg, tx, log)
}

func recordAndPrint(s *session, cfg *config.Config, tx domain.Transaction, log zerolog.Logger) {
	res, err := s.recorder.Record(s.ctx, tx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to record transaction")
	}

	fmt.Printf("Recorded %s\n", res.Transaction.ID)
	fmt.Println(res.Transaction)
	fmt.Printf("Total: %s%s\n", cfg.Currency, res.Total.StringFixed(2))
	if res.Alert != nil {
		fmt.Println(res.Alert.Text)
	}
}

func runParse(log zerolog.Logger) {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	if fs.NArg() != 1 {
		log.Fatal().Msg(`Usage: cli parse "2024-03-15,25.90,Restaurant ABC,Food"`)
	}

	tx, err := domain.FromLine(fs.Arg(0))
	if err != nil {
		log.Fatal().Err(err).Msg("Parse failed")
	}
	printDraft(os.Stdout, tx)
}

func printDraft(w io.Writer, tx domain.Transaction) {
	fmt.Fprintf(w, "Date:     %s\n", tx.Date)
	fmt.Fprintf(w, "Amount:   %s\n", tx.AmountString())
	fmt.Fprintf(w, "Business: %s\n", tx.BusinessName)
	fmt.Fprintf(w, "Category: %s\n", tx.Category)
}

func runExtract(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to a receipt image (png, jpg, jpeg)")
	record := fs.Bool("record", false, "Record the extracted transaction")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Usage: cli extract -file PATH [-record]")
	}
	if cfg.GeminiAPIKey == "" {
		log.Fatal().Msg("GEMINI_API_KEY is required for extract")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read receipt")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.ExtractTimeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	extractor, err := app.NewExtractor(ctx, cfg, log, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create extractor")
	}

	line, err := extractor.ExtractLine(ctx, data, receipts.MIMETypeFor(*filePath, data))
	if err != nil {
		log.Fatal().Err(err).Msg("Extraction failed")
	}
	fmt.Println(line)

	tx, err := domain.FromLine(line)
	if err != nil {
		log.Fatal().Err(err).Msg("The model answer is not a valid transaction; fix it and use 'cli add -line'")
	}
	printDraft(os.Stdout, tx)

	if !*record {
		return
	}
	s := openSession(cfg, log, true)
	defer s.close(log)
	recordAndPrint(s, cfg, tx, log)
}

func runList(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	showIDs := fs.Bool("ids", false, "Show transaction ids")
	fs.Parse(os.Args[2:])

	s := openSession(cfg, log, false)
	defer s.close(log)

	txs := s.recorder.Transactions()
	for _, tx := range txs {
		if *showIDs {
			fmt.Printf("%s  %s\n", tx.ID, tx)
		} else {
			fmt.Println(tx)
		}
	}
	fmt.Printf("\n%d transactions, total %s%s\n", len(txs), cfg.Currency, s.recorder.Total().StringFixed(2))
}

func runTotal(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("total", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	s := openSession(cfg, log, false)
	defer s.close(log)

	sum := s.recorder.Summary()
	for _, c := range sum.ByCategory {
		fmt.Printf("%-26s %4d  %s%s\n", c.Category, c.Count, cfg.Currency, c.Total.StringFixed(2))
	}
	fmt.Printf("\nTotal:     %s%s\n", cfg.Currency, sum.Total.StringFixed(2))
	fmt.Printf("Threshold: %s%s\n", cfg.Currency, sum.Threshold.StringFixed(2))
	if sum.OverThreshold {
		fmt.Println("Spending is over the threshold.")
	}
}

func runRemove(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	id := fs.String("id", "", "Transaction id (see 'cli list -ids')")
	fs.Parse(os.Args[2:])

	if *id == "" {
		log.Fatal().Msg("Usage: cli remove -id ID")
	}

	s := openSession(cfg, log, false)
	defer s.close(log)

	removed, err := s.recorder.Remove(s.ctx, *id)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to remove transaction")
	}
	if !removed {
		fmt.Printf("No transaction with id %s\n", *id)
		return
	}
	fmt.Printf("Removed %s. Total: %s%s\n", *id, cfg.Currency, s.recorder.Total().StringFixed(2))
}

func runInsights(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("insights", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	if cfg.GeminiAPIKey == "" {
		log.Fatal().Msg("GEMINI_API_KEY is required for insights")
	}

	s := openSession(cfg, log, false)
	defer s.close(log)

	insights, err := app.NewInsights(s.ctx, cfg, log, nil, &s.closers)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create insights")
	}

	text, err := insights.Summarize(s.ctx, s.recorder.Transactions())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to generate insights")
	}
	fmt.Println(text)
}

func runExport(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("out", "", "Output file (default stdout)")
	fs.Parse(os.Args[2:])

	s := openSession(cfg, log, false)
	defer s.close(log)

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create output file")
		}
		defer f.Close()
		w = f
	}

	txs := s.recorder.Transactions()
	if err := writeCSV(w, txs); err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}
	if *out != "" {
		log.Info().Str("file", *out).Int("transactions", len(txs)).Msg("Ledger exported")
	}
}

// writeCSV writes txs with the workbook header.
func writeCSV(w io.Writer, txs []domain.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ledger.Header); err != nil {
		return err
	}
	for _, tx := range txs {
		record := []string{tx.ID, tx.Date.String(), tx.AmountString(), tx.BusinessName, tx.Category.String()}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func runSyncNotion(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("sync-notion", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "Show what would change without writing")
	prune := fs.Bool("prune", false, "Archive pages whose transaction was removed")
	fs.Parse(os.Args[2:])

	if !cfg.NotionConfigured() {
		log.Fatal().Msg("NOTION_TOKEN and NOTION_DB_ID are required")
	}

	s := openSession(cfg, log, false)
	defer s.close(log)

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Minute)
	defer cancel()

	res, err := app.NewNotionSyncer(cfg).SyncLedger(ctx, s.recorder.Transactions(), notionsync.SyncOptions{
		DryRun: *dryRun,
		Prune:  *prune,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Notion sync failed")
	}

	prefix := ""
	if *dryRun {
		prefix = "[DRY RUN] "
	}
	fmt.Printf("%sCreated: %d, Skipped: %d, Archived: %d, Failed: %d\n", prefix, res.Created, res.Skipped, res.Archived, res.Failed)
	if res.Failed > 0 {
		log.Warn().Int("failed", res.Failed).Msg("Some pages were not synced; run again to retry")
	}
}

func runSyncBigQuery(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("sync-bigquery", flag.ExitOnError)
	totals := fs.Bool("totals", false, "Print per-category totals from BigQuery after syncing")
	fs.Parse(os.Args[2:])

	if !cfg.BigQueryConfigured() {
		log.Fatal().Msg("BIGQUERY_PROJECT is required")
	}

	s := openSession(cfg, log, false)
	defer s.close(log)

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	mirror, err := app.NewBigQueryMirror(ctx, cfg, &s.closers)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to BigQuery")
	}

	res, err := mirror.SyncAll(ctx, s.recorder.Transactions())
	if err != nil {
		log.Fatal().Err(err).Msg("BigQuery sync failed")
	}
	fmt.Printf("Inserted: %d, Skipped: %d\n", res.Inserted, res.Skipped)

	if !*totals {
		return
	}
	rows, err := mirror.CategoryTotals(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query totals")
	}
	for _, row := range rows {
		total := "0.00"
		if row.Total != nil {
			total = row.Total.FloatString(2)
		}
		fmt.Printf("%-26s %4d  %s%s\n", row.CategoryName, row.Count, cfg.Currency, total)
	}
}

func categoryList() string {
	cats := domain.Categories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.String()
	}
	return strings.Join(names, ", ")
}
