package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewTransaction_Valid(t *testing.T) {
	tx, err := NewTransaction("2024-03-15", "25.90", "  Restaurant ABC ", "food", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tx.ID == "" {
		t.Error("expected generated id")
	}
	if tx.Date.String() != "2024-03-15" {
		t.Errorf("date = %s, want 2024-03-15", tx.Date)
	}
	if !tx.Amount.Equal(decimal.RequireFromString("25.9")) {
		t.Errorf("amount = %s, want 25.9", tx.Amount)
	}
	if tx.BusinessName != "Restaurant ABC" {
		t.Errorf("business name = %q, want trimmed", tx.BusinessName)
	}
	if tx.Category != CategoryFood {
		t.Errorf("category = %s, want Food", tx.Category)
	}
}

func TestNewTransaction_KeepsGivenID(t *testing.T) {
	tx, err := NewTransaction("2024-03-15", "1", "x", "rent", "abc-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.ID != "abc-123" {
		t.Errorf("id = %q, want abc-123", tx.ID)
	}
}

func TestNewTransaction_GeneratesUniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tx, err := NewTransaction("2024-03-15", "1", "x", "rent", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[tx.ID] {
			t.Fatalf("duplicate id generated: %s", tx.ID)
		}
		seen[tx.ID] = true
	}
}

func TestNewTransaction_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		date   string
		amount string
		field  string
	}{
		{"negative amount", "2024-03-15", "-1", "amount"},
		{"non-numeric amount", "2024-03-15", "abc", "amount"},
		{"currency prefix", "2024-03-15", "RM25.90", "amount"},
		{"empty amount", "2024-03-15", "", "amount"},
		{"impossible date", "2024-02-30", "10", "date"},
		{"wrong date format", "15/03/2024", "10", "date"},
		{"empty date", "", "10", "date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTransaction(tt.date, tt.amount, "Shop", "Food", "")
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestNewTransaction_ZeroAmountAllowed(t *testing.T) {
	tx, err := NewTransaction("2024-01-01", "0", "Free sample", "Others", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tx.Amount.IsZero() {
		t.Errorf("amount = %s, want 0", tx.Amount)
	}
}

func TestNewTransaction_UnknownCategoryFallsBack(t *testing.T) {
	tx, err := NewTransaction("2024-03-15", "5", "Mystery", "unknown-xyz", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.Category != DefaultCategory {
		t.Errorf("category = %s, want %s", tx.Category, DefaultCategory)
	}
}

func TestToLine(t *testing.T) {
	tx, err := NewTransaction("2024-03-15", "25.9", "Restaurant ABC", "food", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "2024-03-15,25.90,Restaurant ABC,Food"
	if got := tx.ToLine(); got != want {
		t.Errorf("ToLine() = %q, want %q", got, want)
	}
}

func TestToLine_LifestyleDisplayName(t *testing.T) {
	tx, err := NewTransaction("2024-03-15", "40", "Cinema", "Lifestyle & Entertainment", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "2024-03-15,40.00,Cinema,Lifestyle & Entertainment"
	if got := tx.ToLine(); got != want {
		t.Errorf("ToLine() = %q, want %q", got, want)
	}
}

func TestFromLine_RoundTrip(t *testing.T) {
	names := []string{
		"Restaurant ABC",
		"",
		"Tom, Dick & Harry",
		`Joe's "Best" Diner`,
	}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			orig, err := NewTransaction("2024-03-15", "25.90", name, "Transport", "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			parsed, err := FromLine(orig.ToLine())
			if err != nil {
				t.Fatalf("FromLine(%q): %v", orig.ToLine(), err)
			}

			if parsed.Date != orig.Date {
				t.Errorf("date = %s, want %s", parsed.Date, orig.Date)
			}
			if parsed.AmountString() != orig.AmountString() {
				t.Errorf("amount = %s, want %s", parsed.AmountString(), orig.AmountString())
			}
			if parsed.BusinessName != orig.BusinessName {
				t.Errorf("business name = %q, want %q", parsed.BusinessName, orig.BusinessName)
			}
			if parsed.Category != orig.Category {
				t.Errorf("category = %s, want %s", parsed.Category, orig.Category)
			}
			if parsed.ID == orig.ID {
				t.Error("expected FromLine to assign a fresh id")
			}
		})
	}
}

func TestFromLine_ModelOutput(t *testing.T) {
	tx, err := FromLine("  2024-03-15, 25.90, Restaurant ABC, food  \n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.BusinessName != "Restaurant ABC" || tx.Category != CategoryFood {
		t.Errorf("unexpected transaction: %+v", tx)
	}
}

func TestFromLine_Errors(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		wantField  string
		wantReason string
	}{
		{"empty", "   ", "", "empty line"},
		{"too few fields", "2024-03-15,25.90,Shop", "", "expected 4 fields, got 3"},
		{"unquoted comma in name", "2024-03-15,25.90,Shop, Inc,Food", "", "expected 4 fields, got 5"},
		{"two lines", "2024-03-15,1,A,Food\n2024-03-16,2,B,Food", "", "expected a single line"},
		{"bad amount", "2024-03-15,abc,Shop,Food", "amount", "invalid field"},
		{"negative amount", "2024-03-15,-3,Shop,Food", "amount", "invalid field"},
		{"bad date", "15/03/2024,3,Shop,Food", "date", "invalid field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromLine(tt.line)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if !strings.Contains(perr.Reason, tt.wantReason) {
				t.Errorf("reason = %q, want %q", perr.Reason, tt.wantReason)
			}

			var verr *ValidationError
			if tt.wantField == "" {
				if errors.As(err, &verr) {
					t.Errorf("unexpected ValidationError: %v", verr)
				}
				return
			}
			if !errors.As(err, &verr) {
				t.Fatalf("expected wrapped ValidationError, got %v", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tx, err := NewTransaction("2024-03-15", "10", "Shop", "Food", "id-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tx.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	bad := tx
	bad.Amount = decimal.NewFromInt(-5)
	if err := bad.Validate(); err == nil {
		t.Error("expected error for negative amount")
	}

	bad = tx
	bad.Category = Category("Groceries")
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown category")
	}

	bad = tx
	bad.ID = ""
	if err := bad.Validate(); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestTransactionJSON(t *testing.T) {
	tx, err := NewTransaction("2024-03-15", "25.9", "Cafe", "food", "id-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":"id-1","date":"2024-03-15","amount":"25.90","business_name":"Cafe","category":"Food"}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}

	var back Transaction
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID != "id-1" || back.ToLine() != tx.ToLine() {
		t.Errorf("unmarshal mismatch: %+v", back)
	}
}

func TestTransactionInput_AcceptsNumberOrString(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"number", `{"date":"2024-03-15","amount":12.5,"business_name":"A","category":"rent"}`, "12.50"},
		{"string", `{"date":"2024-03-15","amount":"12.5","business_name":"A","category":"rent"}`, "12.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in TransactionInput
			if err := json.Unmarshal([]byte(tt.body), &in); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			tx, err := in.Build()
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if tx.AmountString() != tt.want {
				t.Errorf("amount = %s, want %s", tx.AmountString(), tt.want)
			}
		})
	}
}

func TestCleanBusinessName(t *testing.T) {
	if got := CleanBusinessName(" Line\r\nBreak\nShop "); got != "Line Break Shop" {
		t.Errorf("CleanBusinessName() = %q", got)
	}
}
