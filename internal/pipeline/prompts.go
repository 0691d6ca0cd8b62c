package pipeline

import (
	"strings"

	"github.com/dvloznov/expense-tracker/internal/domain"
)

// buildExtractionPrompt asks for exactly one CSV line in ledger column order.
func buildExtractionPrompt() string {
	names := make([]string, 0, len(domain.Categories()))
	for _, c := range domain.Categories() {
		names = append(names, c.String())
	}

	var b strings.Builder
	b.WriteString("Extract the following information from this receipt and return it in a single line CSV format with these exact columns in order:\n")
	b.WriteString("1. Date (in YYYY-MM-DD format)\n")
	b.WriteString("2. Amount (in RM, numbers only without 'RM' prefix)\n")
	b.WriteString("3. Business Name\n")
	b.WriteString("4. Transaction Category (choose only one: " + strings.Join(names, ", ") + ")\n\n")
	b.WriteString("Example format: 2024-03-15,25.90,Restaurant ABC,Food\n\n")
	b.WriteString("If the business name contains a comma, wrap it in double quotes.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("*** STRICTLY ONE LINE CSV FORMAT ***")
	return b.String()
}

const insightsSystemPrompt = "You are an expert financial analyst. " +
	"Given a list of personal expenses, summarize the spending habit in a few short paragraphs: " +
	"where most of the money goes, any unusual purchases, and one or two practical suggestions. " +
	"Amounts are in %s. Do not use Markdown tables."

// buildInsightsPrompt lists the ledger rows as CSV lines under a header.
func buildInsightsPrompt(txs []domain.Transaction) string {
	var b strings.Builder
	b.WriteString("Date,Amount,Business Name,Transaction Category\n")
	for _, tx := range txs {
		b.WriteString(tx.ToLine())
		b.WriteString("\n")
	}
	return b.String()
}
