package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/calendarapi/internal/journal"
)

var journalCols = []string{"entry_id", "idem_key", "op", "event_date", "event_id", "payload", "ts_epoch"}

// maxBindParams is the wire protocol's limit on parameters per statement.
const maxBindParams = 65535

var maxRowsPerInsert = maxBindParams / len(journalCols)

// InsertBatch inserts entries with ON CONFLICT DO NOTHING so a replayed
// idempotency key is ignored. Large batches are split into several
// statements inside one transaction.
func (db *DB) InsertBatch(ctx context.Context, items []journal.Entry) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	var total int64
	err := pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		for _, chunk := range journal.Chunks(items, maxRowsPerInsert) {
			sql, args := buildInsert(chunk)
			ct, err := tx.Exec(ctx, sql, args...)
			if err != nil {
				return err
			}
			total += ct.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("insert journal batch: %w", err)
	}
	return total, nil
}

func buildInsert(items []journal.Entry) (string, []any) {
	placeholders := make([]string, 0, len(items))
	args := make([]any, 0, len(items)*len(journalCols))

	argi := 1
	for _, e := range items {
		ph := make([]string, 0, len(journalCols))
		for _, cast := range []string{"::uuid", "", "", "::date", "", "", ""} {
			ph = append(ph, fmt.Sprintf("$%d%s", argi, cast))
			argi++
		}
		args = append(args, e.EntryID, e.Key, string(e.Op), e.Date.String(), e.EventID, e.Payload, e.At.Unix())
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
	}

	sql := "INSERT INTO calendar_journal (" + strings.Join(journalCols, ",") + ") VALUES " +
		strings.Join(placeholders, ",") +
		" ON CONFLICT DO NOTHING"
	return sql, args
}

// DeleteBefore removes entries committed before cutoff.
func (db *DB) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := db.Pool.Exec(ctx, "DELETE FROM calendar_journal WHERE ts_epoch < $1", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete journal: %w", err)
	}
	return ct.RowsAffected(), nil
}
