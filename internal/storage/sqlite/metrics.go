package sqlite

import (
	"context"
	"fmt"

	"example.com/calendarapi/internal/journal"
)

func where(q journal.Query) (string, []any) {
	cond := "WHERE ts_epoch >= ? AND ts_epoch <= ?"
	args := []any{q.From, q.To}
	if q.Op != "" {
		cond += " AND op = ?"
		args = append(args, q.Op)
	}
	return cond, args
}

func (s *DB) QueryTotals(ctx context.Context, q journal.Query) (journal.Totals, error) {
	var res journal.Totals
	cond, args := where(q)
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT event_date), COUNT(DISTINCT event_id) FROM calendar_journal "+cond, args...)
	if err := row.Scan(&res.Count, &res.UniqueDates, &res.UniqueEvents); err != nil {
		return res, fmt.Errorf("scan totals: %w", err)
	}
	return res, nil
}

func (s *DB) QueryBucketsDaily(ctx context.Context, q journal.Query) ([]journal.Bucket, error) {
	cond, args := where(q)
	rows, err := s.db.QueryContext(ctx, `
SELECT (ts_epoch / 86400) * 86400 AS bucket_start,
       COUNT(*), COUNT(DISTINCT event_date), COUNT(DISTINCT event_id)
FROM calendar_journal
`+cond+`
GROUP BY 1
ORDER BY 1 ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []journal.Bucket
	for rows.Next() {
		var b journal.Bucket
		if err := rows.Scan(&b.BucketStart, &b.Count, &b.UniqueDates, &b.UniqueEvents); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
