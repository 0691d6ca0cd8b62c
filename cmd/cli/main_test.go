package main

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/dvloznov/expense-tracker/internal/domain"
)

func TestWriteCSV(t *testing.T) {
	tx1, err := domain.NewTransaction("2024-03-15", "25.9", "Kopi, Tiam", "food", "t1")
	if err != nil {
		t.Fatal(err)
	}
	tx2, err := domain.NewTransaction("2024-03-16", "3000", "Landlord", "rent", "t2")
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := writeCSV(&buf, []domain.Transaction{tx1, tx2}); err != nil {
		t.Fatalf("writeCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records", len(records))
	}
	if strings.Join(records[0], "|") != "Txn ID|Date|Amount (RM)|Business Name|Transaction Category" {
		t.Errorf("header = %v", records[0])
	}
	if got := strings.Join(records[1], "|"); got != "t1|2024-03-15|25.90|Kopi, Tiam|Food" {
		t.Errorf("row 1 = %s", got)
	}
	if records[2][4] != "Rent" {
		t.Errorf("row 2 category = %s", records[2][4])
	}
}

func TestWriteCSV_EmptyLedgerHasHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := writeCSV(&buf, nil); err != nil {
		t.Fatalf("writeCSV: %v", err)
	}
	if strings.Count(buf.String(), "\n") != 1 {
		t.Errorf("output = %q", buf.String())
	}
}

func TestPrintDraft(t *testing.T) {
	tx, err := domain.FromLine("2024-03-15,25.90,Restaurant ABC,Food")
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	printDraft(&buf, tx)

	want := "Date:     2024-03-15\nAmount:   25.90\nBusiness: Restaurant ABC\nCategory: Food\n"
	if buf.String() != want {
		t.Errorf("got %q", buf.String())
	}
}

func TestCategoryList(t *testing.T) {
	if got := categoryList(); got != "Food, Transport, Lifestyle & Entertainment, Rent, Utilities, Others" {
		t.Errorf("categoryList() = %q", got)
	}
}
