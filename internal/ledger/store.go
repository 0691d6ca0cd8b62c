// Package ledger persists transactions to an xlsx workbook.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// RecoveryReason says why Open had to reinitialize the workbook.
type RecoveryReason string

const (
	RecoveryNone    RecoveryReason = ""
	RecoveryMissing RecoveryReason = "missing"
	RecoveryCorrupt RecoveryReason = "corrupt"
	RecoveryNoSheet RecoveryReason = "no_sheet"
)

// Recovery describes what Open found on disk.
type Recovery struct {
	Reason RecoveryReason `json:"reason,omitempty"`
	// BackupPath is where a corrupt workbook was moved before reinitializing.
	BackupPath string `json:"backup_path,omitempty"`
	// SkippedRows counts rows that failed validation or repeated an id.
	SkippedRows int `json:"skipped_rows"`
	// Err is a *domain.StorageRecoveryError when Reason is set.
	Err error `json:"-"`
}

// Recovered reports whether the workbook was reinitialized.
func (r Recovery) Recovered() bool {
	return r.Reason != RecoveryNone
}

// RecoveryObserver is told about every reinitialization. The metrics
// registry implements it.
type RecoveryObserver interface {
	ObserveLedgerRecovery(reason string)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for load and recovery events.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithRecoveryObserver registers an observer for recovery events.
func WithRecoveryObserver(o RecoveryObserver) Option {
	return func(s *Store) { s.observer = o }
}

// WithClock overrides the clock used to name corrupt-file backups.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the ledger of recorded transactions, backed by one workbook.
// All mutations write the whole workbook through to disk before the
// in-memory view changes.
type Store struct {
	mu       sync.RWMutex
	path     string
	file     *excelize.File
	txs      []domain.Transaction
	ids      map[string]struct{}
	recovery Recovery

	log      zerolog.Logger
	observer RecoveryObserver
	now      func() time.Time
}

// Open loads the workbook at path. A missing or unreadable workbook is
// replaced by an empty one; that is reported through Recovery, not as an
// error. Open fails only when the fresh workbook cannot be written.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{
		path: path,
		ids:  make(map[string]struct{}),
		log:  zerolog.Nop(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("path", s.path).
		Int("transactions", len(s.txs)).
		Int("skipped_rows", s.recovery.SkippedRows).
		Str("recovery", string(s.recovery.Reason)).
		Msg("Ledger opened")

	return s, nil
}

func (s *Store) load() error {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return s.reinitialize(RecoveryMissing, err)
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		backup := fmt.Sprintf("%s.corrupt-%s", s.path, s.now().Format("20060102150405"))
		if rerr := os.Rename(s.path, backup); rerr != nil {
			return fmt.Errorf("ledger.Open: moving unreadable workbook aside: %w", rerr)
		}
		s.recovery.BackupPath = backup
		return s.reinitialize(RecoveryCorrupt, err)
	}
	s.file = f

	idx, err := f.GetSheetIndex(SheetName)
	if err != nil || idx < 0 {
		if _, err := f.NewSheet(SheetName); err != nil {
			return fmt.Errorf("ledger.Open: creating sheet: %w", err)
		}
		if err := writeHeader(f); err != nil {
			return fmt.Errorf("ledger.Open: writing header: %w", err)
		}
		s.markRecovered(RecoveryNoSheet, nil)
		if err := s.persist(); err != nil {
			return fmt.Errorf("ledger.Open: saving workbook: %w", err)
		}
		return nil
	}

	dirty, err := s.readRows()
	if err != nil {
		return err
	}
	if dirty {
		if err := s.persist(); err != nil {
			s.log.Warn().Err(err).Str("path", s.path).Msg("Could not write back generated transaction ids")
		}
	}
	return nil
}

// reinitialize replaces the workbook with an empty one and saves it.
func (s *Store) reinitialize(reason RecoveryReason, cause error) error {
	f, err := newWorkbook()
	if err != nil {
		return fmt.Errorf("ledger.Open: creating workbook: %w", err)
	}
	s.file = f
	s.markRecovered(reason, cause)

	if err := s.persist(); err != nil {
		return fmt.Errorf("ledger.Open: saving fresh workbook: %w", err)
	}
	return nil
}

func (s *Store) markRecovered(reason RecoveryReason, cause error) {
	s.recovery.Reason = reason
	s.recovery.Err = &domain.StorageRecoveryError{Path: s.path, Reason: string(reason), Err: cause}

	event := s.log.Warn()
	if reason == RecoveryMissing {
		event = s.log.Info()
	}
	event.
		Str("event", "ledger_recovered").
		Str("reason", string(reason)).
		Str("path", s.path).
		Str("backup_path", s.recovery.BackupPath).
		AnErr("cause", cause).
		Msg("Ledger reinitialized")

	if s.observer != nil {
		s.observer.ObserveLedgerRecovery(string(reason))
	}
}

// readRows loads every data row. It reports whether generated ids were
// written into the workbook and need saving.
func (s *Store) readRows() (bool, error) {
	rows, err := s.file.GetRows(SheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return false, fmt.Errorf("ledger.Open: reading rows: %w", err)
	}

	if len(rows) == 0 {
		if err := writeHeader(s.file); err != nil {
			return false, fmt.Errorf("ledger.Open: writing header: %w", err)
		}
		return true, nil
	}

	dirty := false
	for i, row := range rows[1:] {
		rowNum := i + 2
		if isBlank(row) {
			continue
		}

		tx, generated, err := rowToTransaction(row)
		if err != nil {
			s.recovery.SkippedRows++
			s.log.Warn().Err(err).Int("row", rowNum).Msg("Skipping invalid ledger row")
			continue
		}
		if _, dup := s.ids[tx.ID]; dup {
			s.recovery.SkippedRows++
			s.log.Warn().Str("txn_id", tx.ID).Int("row", rowNum).Msg("Skipping ledger row with duplicate id")
			continue
		}
		if generated {
			cell, _ := excelize.CoordinatesToCellName(1, rowNum)
			if err := s.file.SetCellValue(SheetName, cell, tx.ID); err != nil {
				return false, fmt.Errorf("ledger.Open: writing generated id: %w", err)
			}
			dirty = true
		}

		s.txs = append(s.txs, tx)
		s.ids[tx.ID] = struct{}{}
	}
	return dirty, nil
}

// Append validates tx, writes it as the last row and saves the workbook.
// The in-memory view changes only after the save succeeded.
func (s *Store) Append(ctx context.Context, tx domain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.ids[tx.ID]; dup {
		return fmt.Errorf("ledger.Append %s: %w", tx.ID, domain.ErrDuplicateID)
	}

	rows, err := s.file.GetRows(SheetName)
	if err != nil {
		return fmt.Errorf("ledger.Append: reading rows: %w", err)
	}
	rowNum := len(rows) + 1

	if err := setRow(s.file, rowNum, transactionToRow(tx)); err != nil {
		return fmt.Errorf("ledger.Append: writing row: %w", err)
	}

	if err := s.persist(); err != nil {
		if rerr := s.file.RemoveRow(SheetName, rowNum); rerr != nil {
			s.log.Error().Err(rerr).Int("row", rowNum).Msg("Failed to roll back ledger row")
		}
		return fmt.Errorf("ledger.Append: saving workbook: %w", err)
	}

	s.txs = append(s.txs, tx)
	s.ids[tx.ID] = struct{}{}
	return nil
}

// Remove deletes the transaction with the given id. It returns false when
// no such transaction exists.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; !ok {
		return false, nil
	}

	rows, err := s.file.GetRows(SheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return false, fmt.Errorf("ledger.Remove: reading rows: %w", err)
	}

	rowNum := 0
	var saved []string
	for i := 1; i < len(rows); i++ {
		if len(rows[i]) > 0 && cellString(rows[i], colID) == id {
			rowNum = i + 1
			saved = rows[i]
			break
		}
	}
	if rowNum == 0 {
		return false, fmt.Errorf("ledger.Remove %s: row missing from workbook", id)
	}

	if err := s.file.RemoveRow(SheetName, rowNum); err != nil {
		return false, fmt.Errorf("ledger.Remove: removing row: %w", err)
	}

	if err := s.persist(); err != nil {
		s.restoreRow(rowNum, saved)
		return false, fmt.Errorf("ledger.Remove: saving workbook: %w", err)
	}

	for i, tx := range s.txs {
		if tx.ID == id {
			s.txs = append(s.txs[:i:i], s.txs[i+1:]...)
			break
		}
	}
	delete(s.ids, id)
	return true, nil
}

func (s *Store) restoreRow(rowNum int, values []string) {
	if err := s.file.InsertRows(SheetName, rowNum, 1); err != nil {
		s.log.Error().Err(err).Int("row", rowNum).Msg("Failed to restore ledger row")
		return
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := setRow(s.file, rowNum, row); err != nil {
		s.log.Error().Err(err).Int("row", rowNum).Msg("Failed to restore ledger row")
	}
}

// All returns a copy of every transaction, oldest first.
func (s *Store) All() []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, len(s.txs))
	copy(out, s.txs)
	return out
}

// Get returns the transaction with the given id.
func (s *Store) Get(id string) (domain.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tx := range s.txs {
		if tx.ID == id {
			return tx, true
		}
	}
	return domain.Transaction{}, false
}

// Total returns the sum of all amounts.
func (s *Store) Total() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, tx := range s.txs {
		total = total.Add(tx.Amount)
	}
	return total
}

// Len returns the number of transactions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.txs)
}

// Path returns the workbook location.
func (s *Store) Path() string {
	return s.path
}

// Recovery reports what Open found on disk.
func (s *Store) Recovery() Recovery {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recovery
}

// Close releases the workbook.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// persist writes the workbook to a temp file next to the target and renames
// it into place, so readers never see a half-written file. The existing
// file's permissions carry over; a new workbook gets 0644.
func (s *Store) persist() error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".ledger-*.xlsx")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := s.file.WriteTo(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write workbook: %w", err)
	}
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(s.path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod workbook: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close workbook: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace workbook: %w", err)
	}
	return nil
}
