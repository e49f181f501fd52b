package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"example.com/calendarapi/internal/journal"
)

const journalColCount = 7

// maxVariables is SQLite's default SQLITE_MAX_VARIABLE_NUMBER.
const maxVariables = 32766

var maxRowsPerInsert = maxVariables / journalColCount

// InsertBatch inserts entries in one transaction; rows whose idempotency key
// already exists are skipped. Batches too large for one statement are split.
func (s *DB) InsertBatch(ctx context.Context, items []journal.Entry) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin journal batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, chunk := range journal.Chunks(items, maxRowsPerInsert) {
		query, args := buildInsert(chunk)
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("insert journal batch: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit journal batch: %w", err)
	}
	return total, nil
}

func buildInsert(items []journal.Entry) (string, []any) {
	rows := make([]string, 0, len(items))
	args := make([]any, 0, len(items)*journalColCount)
	for _, e := range items {
		rows = append(rows, "(?,?,?,?,?,?,?)")
		args = append(args, e.EntryID, e.Key, string(e.Op), e.Date.String(), e.EventID, e.Payload, e.At.Unix())
	}
	query := "INSERT INTO calendar_journal (entry_id,idem_key,op,event_date,event_id,payload,ts_epoch) VALUES " +
		strings.Join(rows, ",") +
		" ON CONFLICT DO NOTHING"
	return query, args
}

func (s *DB) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM calendar_journal WHERE ts_epoch < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete journal: %w", err)
	}
	return res.RowsAffected()
}
