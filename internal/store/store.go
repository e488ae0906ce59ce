// Package store persists events in SQLite through bun.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	appLog "clickcal/internal/log"
	"clickcal/internal/model"
)

type eventRow struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID           string    `bun:"id,pk"`
	Date         string    `bun:"date,notnull"`
	Title        string    `bun:"title,notnull"`
	StartTime    string    `bun:"start_time,notnull"`
	EndTime      string    `bun:"end_time,notnull"`
	Description  string    `bun:"description,notnull"`
	Location     string    `bun:"location,notnull"`
	Category     string    `bun:"category,notnull"`
	NotifyBefore int       `bun:"notify_before,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
	UpdatedAt    time.Time `bun:"updated_at,notnull"`
}

func toRow(e *model.Event) *eventRow {
	return &eventRow{
		ID:           e.ID,
		Date:         e.Date.String(),
		Title:        e.Title,
		StartTime:    e.StartTime.String(),
		EndTime:      e.EndTime.String(),
		Description:  e.Description,
		Location:     e.Location,
		Category:     e.Category,
		NotifyBefore: e.NotifyBefore,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func (r *eventRow) event() (model.Event, error) {
	d, err := model.ParseDate(r.Date)
	if err != nil {
		return model.Event{}, fmt.Errorf("event %s: %w", r.ID, err)
	}
	start, err := model.ParseClock(r.StartTime)
	if err != nil {
		return model.Event{}, fmt.Errorf("event %s: %w", r.ID, err)
	}
	end, err := model.ParseClock(r.EndTime)
	if err != nil {
		return model.Event{}, fmt.Errorf("event %s: %w", r.ID, err)
	}
	return model.Event{
		ID:           r.ID,
		Date:         d,
		Title:        r.Title,
		StartTime:    start,
		EndTime:      end,
		Description:  r.Description,
		Location:     r.Location,
		Category:     r.Category,
		NotifyBefore: r.NotifyBefore,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

func toEvents(rows []eventRow) ([]model.Event, error) {
	out := make([]model.Event, 0, len(rows))
	for i := range rows {
		e, err := rows[i].event()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// queries implements model.EventRepository on either the database or a
// transaction.
type queries struct {
	db bun.IDB
}

func (q queries) ListByDate(ctx context.Context, d model.Date) ([]model.Event, error) {
	return q.List(ctx, d, d)
}

// List returns events with from <= date <= to ordered by date and start.
func (q queries) List(ctx context.Context, from, to model.Date) ([]model.Event, error) {
	rows := make([]eventRow, 0)
	if err := q.db.NewSelect().
		Model(&rows).
		Where("date >= ?", from.String()).
		Where("date <= ?", to.String()).
		Order("date ASC", "start_time ASC", "end_time ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return toEvents(rows)
}

// Search matches q case-insensitively against title, description and
// location. An empty q returns every event.
func (q queries) Search(ctx context.Context, term string) ([]model.Event, error) {
	rows := make([]eventRow, 0)
	query := q.db.NewSelect().Model(&rows)

	term = strings.TrimSpace(term)
	if term != "" {
		like := "%" + escapeLike(strings.ToLower(term)) + "%"
		query = query.WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.
				Where("lower(title) LIKE ? ESCAPE '\\'", like).
				WhereOr("lower(description) LIKE ? ESCAPE '\\'", like).
				WhereOr("lower(location) LIKE ? ESCAPE '\\'", like)
		})
	}

	if err := query.
		Order("date ASC", "start_time ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	return toEvents(rows)
}

func (q queries) Get(ctx context.Context, id string) (model.Event, error) {
	row := new(eventRow)
	err := q.db.NewSelect().
		Model(row).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return row.event()
}

func (q queries) Create(ctx context.Context, e *model.Event) error {
	if e.ID == "" {
		return errors.New("create event: empty id")
	}
	if _, err := q.db.NewInsert().
		Model(toRow(e)).
		Exec(ctx); err != nil {
		return fmt.Errorf("create event %s: %w", e.ID, err)
	}
	return nil
}

func (q queries) Update(ctx context.Context, e *model.Event) error {
	res, err := q.db.NewUpdate().
		Model(toRow(e)).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update event %s: %w", e.ID, err)
	}
	return expectOne(res, e.ID)
}

func (q queries) Delete(ctx context.Context, id string) error {
	res, err := q.db.NewDelete().
		Model((*eventRow)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return expectOne(res, id)
}

// Clear wipes every event.
func (q queries) Clear(ctx context.Context) error {
	if _, err := q.db.NewDelete().
		Model((*eventRow)(nil)).
		Where("1 = 1").
		Exec(ctx); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}
	return nil
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Store is the SQLite-backed event store.
type Store struct {
	queries
	conn *bun.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: database path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY
	// between the request path and background jobs.
	sqldb.SetMaxOpenConns(1)
	if _, err := sqldb.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	s := &Store{queries: queries{db: db}, conn: db}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	appLog.Info("event store opened", "path", path)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	return s.conn.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewCreateTable().
			Model((*eventRow)(nil)).
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewCreateIndex().
			Model((*eventRow)(nil)).
			Index("idx_events_date").
			Column("date", "start_time").
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}
		return nil
	})
}

// Atomic runs fn in one transaction.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, repo model.EventRepository) error) error {
	return s.conn.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, queries{db: tx})
	})
}

// Ping measures the latency of an empty read.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := s.conn.NewSelect().
		Model((*eventRow)(nil)).
		Where("id = ?", "").
		Exists(ctx); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}
