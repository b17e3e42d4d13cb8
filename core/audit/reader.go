package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"
)

// RunSummary describes one run stored in an audit database.
type RunSummary struct {
	RunID   string
	Network string
	Events  int
	First   time.Time
	Last    time.Time
}

// Reader queries an existing audit database without writing to it.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audit database: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error {
	return r.db.Close()
}

// Runs lists the stored runs, oldest first.
func (r *Reader) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, network, COUNT(*), MIN(id)
		FROM change_events
		GROUP BY run_id, network
		ORDER BY MIN(id)`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var s RunSummary
		var firstID int64
		if err := rows.Scan(&s.RunID, &s.Network, &s.Events, &firstID); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		events, err := queryRecords(ctx, r.db, `WHERE run_id = ?`, runs[i].RunID)
		if err != nil {
			return nil, err
		}
		if len(events) > 0 {
			runs[i].First = events[0].At
			runs[i].Last = events[len(events)-1].At
		}
	}
	return runs, nil
}

// Filter narrows Events. Empty fields match everything; set Untagged to
// select only events with no variant.
type Filter struct {
	RunID     string
	VariantID string
	Untagged  bool
	EntityID  string
	Limit     int
}

func (r *Reader) Events(ctx context.Context, f Filter) ([]Record, error) {
	where := "WHERE 1=1"
	var args []any
	if f.RunID != "" {
		where += " AND run_id = ?"
		args = append(args, f.RunID)
	}
	switch {
	case f.Untagged:
		where += " AND variant_id = ''"
	case f.VariantID != "":
		where += " AND variant_id = ?"
		args = append(args, f.VariantID)
	}
	if f.EntityID != "" {
		where += " AND entity_id = ?"
		args = append(args, f.EntityID)
	}

	records, err := queryRecords(ctx, r.db, where, args...)
	if err != nil {
		return nil, err
	}
	if f.Limit > 0 && len(records) > f.Limit {
		records = records[len(records)-f.Limit:]
	}
	return records, nil
}
