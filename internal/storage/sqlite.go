package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "tickbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// unavailable tags backend errors so callers can errors.Is() for transience.
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (s *sqliteStore) InsertTimer(ctx context.Context, rec TimerRecord) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	tz := strings.TrimSpace(rec.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	payload := rec.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO timers(event, expires_at, created_at, timezone, payload)
		 VALUES(?,?,?,?,?)`,
		rec.Event, rec.ExpiresAt.UTC().UnixMilli(), rec.CreatedAt.UTC().UnixMilli(), tz, string(payload),
	)
	if err != nil {
		return 0, unavailable(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, unavailable(err)
	}
	return id, nil
}

func (s *sqliteStore) DeleteTimer(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM timers WHERE id = ?`, id)
	if err != nil {
		return false, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

func (s *sqliteStore) EarliestTimer(ctx context.Context) (*TimerRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, event, expires_at, created_at, timezone, payload
		 FROM timers
		 ORDER BY expires_at ASC, id ASC
		 LIMIT 1`)
	rec, err := scanTimer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return rec, nil
}

func (s *sqliteStore) ListTimers(ctx context.Context, event string, limit int) ([]TimerRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event, expires_at, created_at, timezone, payload
		 FROM timers
		 WHERE event = ?
		 ORDER BY expires_at ASC, id ASC
		 LIMIT ?`, event, limit)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []TimerRecord
	for rows.Next() {
		rec, err := scanTimer(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTimer(r rowScanner) (*TimerRecord, error) {
	var (
		rec        TimerRecord
		expiresMS  int64
		createdMS  int64
		payloadStr string
	)
	if err := r.Scan(&rec.ID, &rec.Event, &expiresMS, &createdMS, &rec.Timezone, &payloadStr); err != nil {
		return nil, err
	}
	rec.ExpiresAt = time.UnixMilli(expiresMS).UTC()
	rec.CreatedAt = time.UnixMilli(createdMS).UTC()
	rec.Payload = []byte(payloadStr)
	return &rec, nil
}

func (s *sqliteStore) AppendFired(ctx context.Context, e FiredEntry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	ok := 0
	if e.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fired_audit(at, timer_id, event, dispatch_id, ok, err, took_ms)
		 VALUES(?,?,?,?,?,?,?)`,
		e.At.UTC().UnixMilli(), e.TimerID, e.Event, e.DispatchID, ok, nullStr(e.Error), e.TookMS,
	)
	return unavailable(err)
}

func (s *sqliteStore) PruneFired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM fired_audit WHERE at < ?`, before.UTC().UnixMilli())
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (s *sqliteStore) Checkpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	return unavailable(err)
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
