package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BiliTheKid/dolpyitcs/internal/metrics"
	"github.com/BiliTheKid/dolpyitcs/internal/models"
	"github.com/BiliTheKid/dolpyitcs/internal/rollup"
)

// PostgresStore is the durable event store: an append-only events table plus
// a rollups bucket table, both written in one transaction per event. Append
// returns only after commit, so an acknowledged event survives a crash.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const insertEventSQL = `INSERT INTO events (
        event_type, ts, visitor_id, session_id, url, path, hostname,
        referrer, title, browser, os, device_type, ip, data
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
    RETURNING id`

const upsertRollupSQL = `INSERT INTO rollups (day, event_type, dimension, label, count, total)
    VALUES ($1,$2,$3,$4,$5,$6)
    ON CONFLICT (day, event_type, dimension, label)
    DO UPDATE SET count = rollups.count + EXCLUDED.count,
                  total = rollups.total + EXCLUDED.total`

func (s *PostgresStore) Append(ctx context.Context, ev *models.Event) error {
	start := time.Now()

	var data []byte
	if len(ev.Data) > 0 {
		var err error
		data, err = json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("%w: marshal event data: %v", ErrWriteFailed, err)
		}
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, insertEventSQL,
			string(ev.Type), ev.Timestamp, ev.VisitorID, ev.SessionID,
			ev.URL, ev.Path, ev.Hostname, ev.Referrer, ev.Title,
			ev.Browser, ev.OS, ev.DeviceType, ev.IP, data,
		).Scan(&ev.ID); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}

		batch := &pgx.Batch{}
		for _, d := range rollup.Deltas(ev) {
			batch.Queue(upsertRollupSQL, d.Day, string(d.EventType), d.Dimension, d.Label, d.Count, d.Total)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert rollups: %w", err)
		}
		return nil
	})
	if err != nil {
		metrics.StoreErrors.Inc()
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	metrics.AppendDuration.Observe(time.Since(start).Seconds())
	return nil
}

func (s *PostgresStore) Scan(ctx context.Context, from, to time.Time, fn func(*models.Event) error) error {
	const q = `SELECT id, event_type, ts, visitor_id, session_id, url, path,
                      hostname, referrer, title, browser, os, device_type, ip, data
               FROM events
               WHERE ts >= $1 AND ts < $2
               ORDER BY ts, id`

	rows, err := s.pool.Query(ctx, q, from, to)
	if err != nil {
		return fmt.Errorf("scan events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev models.Event
		var typ string
		var data []byte
		if err := rows.Scan(&ev.ID, &typ, &ev.Timestamp, &ev.VisitorID, &ev.SessionID,
			&ev.URL, &ev.Path, &ev.Hostname, &ev.Referrer, &ev.Title,
			&ev.Browser, &ev.OS, &ev.DeviceType, &ev.IP, &data); err != nil {
			return fmt.Errorf("scan event row: %w", err)
		}
		ev.Type = models.EventType(typ)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &ev.Data); err != nil {
				return fmt.Errorf("decode event data %d: %w", ev.ID, err)
			}
		}
		if err := fn(&ev); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *PostgresStore) Buckets(ctx context.Context, from, to time.Time) ([]rollup.Bucket, error) {
	const q = `SELECT day, event_type, dimension, label, count, total
               FROM rollups
               WHERE day >= $1 AND day < $2
               ORDER BY day, event_type, dimension, label`

	rows, err := s.pool.Query(ctx, q, from, to)
	if err != nil {
		return nil, fmt.Errorf("query rollups: %w", err)
	}
	defer rows.Close()

	var out []rollup.Bucket
	for rows.Next() {
		var b rollup.Bucket
		var typ string
		if err := rows.Scan(&b.Day, &typ, &b.Dimension, &b.Label, &b.Count, &b.Total); err != nil {
			return nil, fmt.Errorf("scan rollup row: %w", err)
		}
		b.EventType = models.EventType(typ)
		b.Day = b.Day.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Uniques(ctx context.Context, from, to time.Time) (int64, int64, error) {
	const q = `SELECT COUNT(DISTINCT visitor_id), COUNT(DISTINCT session_id)
               FROM events WHERE ts >= $1 AND ts < $2`

	var visitors, sessions int64
	if err := s.pool.QueryRow(ctx, q, from, to).Scan(&visitors, &sessions); err != nil {
		return 0, 0, fmt.Errorf("count uniques: %w", err)
	}
	return visitors, sessions, nil
}

func (s *PostgresStore) RecentErrors(ctx context.Context, from, to time.Time, limit int) ([]models.ErrorSample, error) {
	const q = `SELECT ts, COALESCE(NULLIF(data->>'message', ''), 'Unknown error'), path, browser
               FROM events
               WHERE event_type = 'error' AND ts >= $1 AND ts < $2
               ORDER BY ts DESC, id DESC
               LIMIT $3`

	rows, err := s.pool.Query(ctx, q, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent errors: %w", err)
	}
	defer rows.Close()

	var out []models.ErrorSample
	for rows.Next() {
		var e models.ErrorSample
		if err := rows.Scan(&e.Timestamp, &e.Message, &e.Path, &e.Browser); err != nil {
			return nil, fmt.Errorf("scan error row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RecentEvents(ctx context.Context, from, to time.Time, limit int) ([]models.EventSummary, error) {
	const q = `SELECT event_type, path, ts, left(visitor_id, 10), browser, device_type
               FROM events
               WHERE ts >= $1 AND ts < $2
               ORDER BY ts DESC, id DESC
               LIMIT $3`

	rows, err := s.pool.Query(ctx, q, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	var out []models.EventSummary
	for rows.Next() {
		var e models.EventSummary
		var typ string
		if err := rows.Scan(&typ, &e.Path, &e.Timestamp, &e.VisitorID, &e.Browser, &e.DeviceType); err != nil {
			return nil, fmt.Errorf("scan event summary: %w", err)
		}
		e.Type = models.EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Totals(ctx context.Context) (int64, int64, int64, error) {
	const q = `SELECT COUNT(*), COUNT(DISTINCT visitor_id), COUNT(DISTINCT session_id) FROM events`

	var events, visitors, sessions int64
	if err := s.pool.QueryRow(ctx, q).Scan(&events, &visitors, &sessions); err != nil {
		return 0, 0, 0, fmt.Errorf("count totals: %w", err)
	}
	return events, visitors, sessions, nil
}
