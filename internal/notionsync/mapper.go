package notionsync

import (
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the expenses database. They mirror the workbook header.
const (
	PropTxnID        = "Txn ID"
	PropDate         = "Date"
	PropAmount       = "Amount"
	PropBusinessName = "Business Name"
	PropCategory     = "Transaction Category"
)

func textContent(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: s,
			},
		},
	}
}

// TransactionToNotionProperties maps a transaction to page properties.
// The id is the title so pages can be matched back to ledger rows.
func TransactionToNotionProperties(tx domain.Transaction) notionapi.Properties {
	date := notionapi.Date(time.Date(tx.Date.Year, tx.Date.Month, tx.Date.Day, 0, 0, 0, 0, time.UTC))

	props := notionapi.Properties{
		PropTxnID: notionapi.TitleProperty{
			Title: textContent(tx.ID),
		},
		PropDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &date},
		},
		PropAmount: notionapi.NumberProperty{
			Number: tx.Amount.InexactFloat64(),
		},
		PropCategory: notionapi.SelectProperty{
			Select: notionapi.Option{Name: tx.Category.String()},
		},
	}

	if tx.BusinessName != "" {
		props[PropBusinessName] = notionapi.RichTextProperty{
			RichText: textContent(tx.BusinessName),
		}
	}
	return props
}

// extractTransactionID reads the title of a queried page.
// Returns empty string if the page has no id.
func extractTransactionID(page notionapi.Page) string {
	prop, ok := page.Properties[PropTxnID]
	if !ok {
		return ""
	}
	title, ok := prop.(*notionapi.TitleProperty)
	if !ok || len(title.Title) == 0 {
		return ""
	}
	if title.Title[0].PlainText != "" {
		return title.Title[0].PlainText
	}
	if title.Title[0].Text != nil {
		return title.Title[0].Text.Content
	}
	return ""
}
