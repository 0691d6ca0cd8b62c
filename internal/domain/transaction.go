package domain

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the only accepted date format for transactions.
const DateLayout = "2006-01-02"

// lineFields is the number of fields in a canonical transaction line.
const lineFields = 4

var newlineReplacer = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// Transaction is a single spending record.
// Amount is never negative and Category is always a declared member.
type Transaction struct {
	ID           string
	Date         civil.Date
	Amount       decimal.Decimal
	BusinessName string
	Category     Category
}

// NewTransaction validates raw field values and builds a Transaction.
// An empty id gets a freshly generated one. The category is classified and
// never causes an error.
func NewTransaction(date, amount, businessName, category, id string) (Transaction, error) {
	d, err := ParseDate(date)
	if err != nil {
		return Transaction{}, err
	}

	a, err := ParseAmount(amount)
	if err != nil {
		return Transaction{}, err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		id = NewID()
	}

	return Transaction{
		ID:           id,
		Date:         d,
		Amount:       a,
		BusinessName: CleanBusinessName(businessName),
		Category:     Classify(category),
	}, nil
}

// ParseDate parses a YYYY-MM-DD string into a calendar date.
// Impossible dates such as 2024-02-30 are rejected.
func ParseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, &ValidationError{Field: "date", Value: s, Message: "must be a real date in YYYY-MM-DD format"}
	}
	return d, nil
}

// ParseAmount parses a non-negative decimal amount.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, &ValidationError{Field: "amount", Value: s, Message: "is required"}
	}
	a, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, &ValidationError{Field: "amount", Value: s, Message: "must be a number"}
	}
	if a.IsNegative() {
		return decimal.Decimal{}, &ValidationError{Field: "amount", Value: s, Message: "must not be negative"}
	}
	return a, nil
}

// CleanBusinessName trims the name and folds line breaks into spaces.
func CleanBusinessName(s string) string {
	return strings.TrimSpace(newlineReplacer.Replace(s))
}

// NewID returns a time-ordered unique transaction id.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Validate re-checks the invariants on a Transaction that was not built
// through NewTransaction, for example a row read back from disk.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return &ValidationError{Field: "id", Value: t.ID, Message: "is required"}
	}
	if !t.Date.IsValid() {
		return &ValidationError{Field: "date", Value: t.Date.String(), Message: "is not a valid date"}
	}
	if t.Amount.IsNegative() {
		return &ValidationError{Field: "amount", Value: t.Amount.String(), Message: "must not be negative"}
	}
	if !t.Category.Valid() {
		return &ValidationError{Field: "category", Value: string(t.Category), Message: "is not a known category"}
	}
	return nil
}

// AmountString renders the amount with exactly two decimals.
func (t Transaction) AmountString() string {
	return t.Amount.StringFixed(2)
}

// ToLine renders the canonical one-line form:
// date,amount,business name,category. Fields containing commas or quotes
// are quoted so FromLine can read them back.
func (t Transaction) ToLine() string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{t.Date.String(), t.AmountString(), t.BusinessName, t.Category.String()})
	w.Flush()
	return strings.TrimRight(buf.String(), "\r\n")
}

// FromLine parses a canonical line into a new Transaction with a fresh id.
func FromLine(text string) (Transaction, error) {
	line := strings.TrimSpace(text)
	if line == "" {
		return Transaction{}, &ParseError{Line: text, Reason: "empty line"}
	}

	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	record, err := r.Read()
	if err != nil {
		return Transaction{}, &ParseError{Line: text, Reason: "malformed line", Err: err}
	}
	if _, err := r.Read(); err != io.EOF {
		return Transaction{}, &ParseError{Line: text, Reason: "expected a single line"}
	}
	if len(record) != lineFields {
		return Transaction{}, &ParseError{
			Line:   text,
			Reason: fmt.Sprintf("expected %d fields, got %d", lineFields, len(record)),
		}
	}

	tx, err := NewTransaction(record[0], record[1], record[2], record[3], "")
	if err != nil {
		return Transaction{}, &ParseError{Line: text, Reason: "invalid field", Err: err}
	}
	return tx, nil
}

// String renders a fixed-width row for terminal listings.
func (t Transaction) String() string {
	return fmt.Sprintf("%s | %10s | %-32s | %s", t.Date, t.AmountString(), t.BusinessName, t.Category)
}

type transactionJSON struct {
	ID           string   `json:"id"`
	Date         string   `json:"date"`
	Amount       string   `json:"amount"`
	BusinessName string   `json:"business_name"`
	Category     Category `json:"category"`
}

// MarshalJSON implements json.Marshaler.
func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(transactionJSON{
		ID:           t.ID,
		Date:         t.Date.String(),
		Amount:       t.AmountString(),
		BusinessName: t.BusinessName,
		Category:     t.Category,
	})
}

// UnmarshalJSON implements json.Unmarshaler and applies the same
// validation as NewTransaction.
func (t *Transaction) UnmarshalJSON(b []byte) error {
	var raw TransactionInput
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	tx, err := raw.Build()
	if err != nil {
		return err
	}
	*t = tx
	return nil
}

// TransactionInput carries unvalidated field values from a form, a JSON body
// or a reviewed draft.
type TransactionInput struct {
	ID           string     `json:"id,omitempty"`
	Date         string     `json:"date"`
	Amount       AmountText `json:"amount"`
	BusinessName string     `json:"business_name"`
	Category     string     `json:"category"`
}

// Build validates the input and returns the Transaction.
func (in TransactionInput) Build() (Transaction, error) {
	return NewTransaction(in.Date, string(in.Amount), in.BusinessName, in.Category, in.ID)
}

// AmountText holds an amount as text. It decodes from either a JSON string
// or a JSON number so validation can report bad values uniformly.
type AmountText string

// UnmarshalJSON implements json.Unmarshaler.
func (a *AmountText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = AmountText(s)
		return nil
	}
	if string(b) == "null" {
		*a = ""
		return nil
	}
	*a = AmountText(b)
	return nil
}
