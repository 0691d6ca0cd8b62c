package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/jomei/notionapi"
)

// BatchSize is how many ledger rows are logged as one progress step.
const BatchSize = 50

// Syncer writes transactions to one Notion database.
// It implements pipeline.Sink.
type Syncer struct {
	client     NotionService
	databaseID string
}

// NewSyncer creates a Syncer for databaseID.
func NewSyncer(client NotionService, databaseID string) *Syncer {
	return &Syncer{client: client, databaseID: databaseID}
}

// Name identifies the sink in logs and metrics.
func (s *Syncer) Name() string { return "notion" }

// Push creates the page for a newly recorded transaction.
func (s *Syncer) Push(ctx context.Context, tx domain.Transaction) error {
	if _, err := s.client.CreatePage(ctx, s.databaseID, TransactionToNotionProperties(tx)); err != nil {
		return fmt.Errorf("notion push %s: %w", tx.ID, err)
	}
	return nil
}

// SyncOptions controls SyncLedger.
type SyncOptions struct {
	// DryRun logs what would change without writing.
	DryRun bool
	// Prune archives pages whose transaction is no longer in the ledger.
	Prune bool
}

// SyncResult counts what SyncLedger did.
type SyncResult struct {
	Created  int
	Skipped  int
	Archived int
	Failed   int
}

// SyncLedger makes the database match txs: pages are created for missing
// transactions and, with Prune, pages for removed ones are archived.
// Individual page failures are logged and counted, not returned.
func (s *Syncer) SyncLedger(ctx context.Context, txs []domain.Transaction, opts SyncOptions) (SyncResult, error) {
	log := logger.FromContext(ctx)

	log.Info().
		Int("transaction_count", len(txs)).
		Bool("dry_run", opts.DryRun).
		Bool("prune", opts.Prune).
		Msg("Starting ledger sync to Notion")

	pages, err := queryAllNotionPages(ctx, s.client, s.databaseID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("failed to query Notion pages: %w", err)
	}
	log.Info().Int("notion_page_count", len(pages)).Msg("Retrieved existing Notion pages")

	existing := make(map[string]bool, len(pages))
	for _, page := range pages {
		if id := extractTransactionID(page); id != "" {
			existing[id] = true
		}
	}

	var res SyncResult

	if opts.Prune {
		valid := make(map[string]bool, len(txs))
		for _, tx := range txs {
			valid[tx.ID] = true
		}
		for _, page := range pages {
			id := extractTransactionID(page)
			if valid[id] {
				continue
			}
			if opts.DryRun {
				log.Info().Str("transaction_id", id).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive stale Notion page")
				res.Archived++
				continue
			}
			if err := s.client.ArchivePage(ctx, string(page.ID)); err != nil {
				log.Warn().Err(err).Str("transaction_id", id).Str("page_id", string(page.ID)).Msg("Failed to archive stale Notion page")
				res.Failed++
				continue
			}
			res.Archived++
		}
	}

	for i := 0; i < len(txs); i += BatchSize {
		end := i + BatchSize
		if end > len(txs) {
			end = len(txs)
		}
		log.Debug().Int("batch_start", i).Int("batch_end", end).Msg("Processing batch")

		for _, tx := range txs[i:end] {
			if existing[tx.ID] {
				res.Skipped++
				continue
			}
			if opts.DryRun {
				log.Info().Str("transaction_id", tx.ID).Msg("[DRY RUN] Would create Notion page")
				res.Created++
				continue
			}
			page, err := s.client.CreatePage(ctx, s.databaseID, TransactionToNotionProperties(tx))
			if err != nil {
				log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Failed to create Notion page")
				res.Failed++
				continue
			}
			log.Debug().Str("transaction_id", tx.ID).Str("page_id", string(page.ID)).Msg("Created Notion page")
			res.Created++
		}
	}

	log.Info().
		Int("created", res.Created).
		Int("skipped", res.Skipped).
		Int("archived", res.Archived).
		Int("failed", res.Failed).
		Msg("Ledger sync completed")

	return res, nil
}

// queryAllNotionPages follows the cursor until every page is read.
func queryAllNotionPages(ctx context.Context, client NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := client.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
