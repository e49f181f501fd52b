package postgres

import (
	"context"
	"fmt"

	"example.com/calendarapi/internal/journal"
)

func where(q journal.Query) (string, []any) {
	cond := "WHERE ts_epoch >= $1 AND ts_epoch <= $2"
	args := []any{q.From, q.To}
	if q.Op != "" {
		cond += " AND op=$3"
		args = append(args, q.Op)
	}
	return cond, args
}

func (db *DB) QueryTotals(ctx context.Context, q journal.Query) (journal.Totals, error) {
	var res journal.Totals
	cond, args := where(q)

	sql := "SELECT COUNT(*)::bigint, COUNT(DISTINCT event_date)::bigint, COUNT(DISTINCT event_id)::bigint FROM calendar_journal " + cond
	row := db.Pool.QueryRow(ctx, sql, args...)
	if err := row.Scan(&res.Count, &res.UniqueDates, &res.UniqueEvents); err != nil {
		return res, fmt.Errorf("scan totals: %w", err)
	}
	return res, nil
}

func (db *DB) QueryBucketsDaily(ctx context.Context, q journal.Query) ([]journal.Bucket, error) {
	cond, args := where(q)

	sql := fmt.Sprintf(`
SELECT
  EXTRACT(EPOCH FROM date_trunc('day', to_timestamp(ts_epoch) AT TIME ZONE 'UTC'))::bigint AS bucket_start,
  COUNT(*)::bigint AS cnt,
  COUNT(DISTINCT event_date)::bigint AS uniq_dates,
  COUNT(DISTINCT event_id)::bigint AS uniq_events
FROM calendar_journal
%s
GROUP BY 1
ORDER BY 1 ASC`, cond)

	rows, err := db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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
