package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet that holds transactions.
const SheetName = "Spent"

// Header is the first row of the sheet. Columns are positional.
var Header = []string{"Txn ID", "Date", "Amount (RM)", "Business Name", "Transaction Category"}

const (
	colID = iota
	colDate
	colAmount
	colBusinessName
	colCategory
)

func newWorkbook() (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeHeader(f); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func writeHeader(f *excelize.File) error {
	row := make([]interface{}, len(Header))
	for i, h := range Header {
		row[i] = h
	}
	return setRow(f, 1, row)
}

func setRow(f *excelize.File, rowNum int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	return f.SetSheetRow(SheetName, cell, &values)
}

// maxNumericAmount bounds amounts written as number cells. Larger amounts,
// or amounts with more than two decimal places, are written as text so they
// reload exactly.
var maxNumericAmount = decimal.NewFromInt(1_000_000_000)

// transactionToRow lays a transaction out in header order. The date is
// written as text so the sheet reads the same in any spreadsheet locale.
func transactionToRow(tx domain.Transaction) []interface{} {
	return []interface{}{
		tx.ID,
		tx.Date.String(),
		amountCell(tx.Amount),
		tx.BusinessName,
		tx.Category.String(),
	}
}

func amountCell(a decimal.Decimal) interface{} {
	if a.LessThan(maxNumericAmount) && a.Equal(a.Round(2)) {
		if f, exact := a.Float64(); exact || decimal.NewFromFloat(f).Equal(a) {
			return f
		}
	}
	return a.String()
}

// rowToTransaction converts a raw sheet row. A blank id cell gets a new id;
// the second return value reports that.
func rowToTransaction(row []string) (domain.Transaction, bool, error) {
	date, err := parseCellDate(cellString(row, colDate))
	if err != nil {
		return domain.Transaction{}, false, err
	}

	id := cellString(row, colID)
	generated := id == ""

	tx, err := domain.NewTransaction(
		date,
		cellString(row, colAmount),
		cellString(row, colBusinessName),
		cellString(row, colCategory),
		id,
	)
	if err != nil {
		return domain.Transaction{}, false, err
	}
	return tx, generated, nil
}

// parseCellDate accepts either YYYY-MM-DD text or a raw Excel date serial,
// which is what a native date cell holds.
func parseCellDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if d, err := civil.ParseDate(raw); err == nil {
		return d.String(), nil
	}
	// Text cells sometimes carry a time part, e.g. "2024-03-15 00:00:00".
	if len(raw) > len(domain.DateLayout) {
		if d, err := civil.ParseDate(raw[:len(domain.DateLayout)]); err == nil {
			return d.String(), nil
		}
	}

	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return "", &domain.ValidationError{Field: "date", Value: raw, Message: "must be a date cell or YYYY-MM-DD text"}
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return "", &domain.ValidationError{Field: "date", Value: raw, Message: fmt.Sprintf("invalid date serial: %v", err)}
	}
	return civil.DateOf(t).String(), nil
}

func cellString(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
