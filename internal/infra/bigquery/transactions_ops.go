package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// TableRef names the mirror table.
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

// String renders the backquoted fully qualified name used in SQL.
func (t TableRef) String() string {
	return fmt.Sprintf("`%s.%s.%s`", t.Project, t.Dataset, t.Table)
}

func (t TableRef) handle(client *bigquery.Client) *bigquery.Table {
	return client.DatasetInProject(t.Project, t.Dataset).Table(t.Table)
}

// EnsureTableWithClient creates the mirror table with the ExpenseRow schema
// when it does not exist yet.
func EnsureTableWithClient(ctx context.Context, client *bigquery.Client, ref TableRef) error {
	table := ref.handle(client)
	_, err := table.Metadata(ctx)
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Code != http.StatusNotFound {
		return fmt.Errorf("EnsureTable: reading metadata: %w", err)
	}

	schema, err := bigquery.InferSchema(ExpenseRow{})
	if err != nil {
		return fmt.Errorf("EnsureTable: inferring schema: %w", err)
	}
	if err := table.Create(ctx, &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.MonthPartitioningType,
			Field: "transaction_date",
		},
	}); err != nil {
		return fmt.Errorf("EnsureTable: creating %s: %w", ref, err)
	}
	return nil
}

// InsertExpensesWithClient streams rows into the mirror table.
func InsertExpensesWithClient(ctx context.Context, client *bigquery.Client, ref TableRef, rows []*ExpenseRow) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := ref.handle(client).Inserter()
	if err := inserter.Put(ctx, savers(rows)); err != nil {
		return fmt.Errorf("InsertExpenses: inserting rows: %w", err)
	}
	return nil
}

// ListExpenseIDsWithClient returns the set of transaction ids already mirrored.
func ListExpenseIDsWithClient(ctx context.Context, client *bigquery.Client, ref TableRef) (map[string]struct{}, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT transaction_id
		FROM %s
	`, ref))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListExpenseIDs: query read: %w", err)
	}

	ids := make(map[string]struct{})
	for {
		var row struct {
			TransactionID string `bigquery:"transaction_id"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListExpenseIDs: iter next: %w", err)
		}
		ids[row.TransactionID] = struct{}{}
	}
	return ids, nil
}

// QueryCategoryTotalsWithClient sums mirrored spending per category, largest first.
func QueryCategoryTotalsWithClient(ctx context.Context, client *bigquery.Client, ref TableRef) ([]CategoryTotalRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			category_name,
			SUM(amount) AS total,
			COUNT(*) AS n
		FROM %s
		GROUP BY category_name
		ORDER BY total DESC
	`, ref))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryCategoryTotals: query read: %w", err)
	}

	var rows []CategoryTotalRow
	for {
		var r CategoryTotalRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryCategoryTotals: iter next: %w", err)
		}
		rows = append(rows, r)
	}
	return rows, nil
}
