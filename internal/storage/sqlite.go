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

	"signboard/pkg/logx"
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

// ---- birthdays ----

func (s *sqliteStore) AddBirthday(ctx context.Context, name, dob string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO birthdays(name, dob) VALUES(?,?)`, name, dob)
	return err
}

func (s *sqliteStore) ListBirthdays(ctx context.Context) ([]Birthday, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, dob FROM birthdays ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Birthday
	for rows.Next() {
		var b Birthday
		if err := rows.Scan(&b.ID, &b.Name, &b.DOB); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *sqliteStore) BirthdaysOn(ctx context.Context, monthDay string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	// dob is "YYYY-MM-DD"; compare the month-day suffix so the birth year
	// doesn't matter.
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM birthdays WHERE substr(dob, 6) = ? ORDER BY id`, monthDay)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ---- dispatch log ----

func (s *sqliteStore) AppendDispatch(ctx context.Context, rec DispatchRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dispatches(id, message, at, category) VALUES(?,?,?,?)`,
		rec.ID, rec.Message, rec.At.Format(time.RFC3339Nano), rec.Category)
	return err
}

func (s *sqliteStore) RecentDispatches(ctx context.Context, limit int) ([]DispatchRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message, at, category FROM dispatches ORDER BY at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DispatchRecord
	for rows.Next() {
		var (
			rec DispatchRecord
			at  string
		)
		if err := rows.Scan(&rec.ID, &rec.Message, &at, &rec.Category); err != nil {
			return nil, err
		}
		if t, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			rec.At = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ---- schedules ----

func (s *sqliteStore) CreateSchedule(ctx context.Context, at, message string, active bool) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules(at, message, active) VALUES(?,?,?)`,
		at, message, boolInt(active))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) ListSchedules(ctx context.Context) ([]Schedule, error) {
	return s.querySchedules(ctx, `SELECT id, at, message, active FROM schedules ORDER BY id`)
}

func (s *sqliteStore) ActiveSchedules(ctx context.Context) ([]Schedule, error) {
	return s.querySchedules(ctx, `SELECT id, at, message, active FROM schedules WHERE active = 1 ORDER BY id`)
}

func (s *sqliteStore) querySchedules(ctx context.Context, query string) ([]Schedule, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		var (
			sc     Schedule
			active int
		)
		if err := rows.Scan(&sc.ID, &sc.At, &sc.Message, &active); err != nil {
			return nil, err
		}
		sc.Active = active != 0
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SetScheduleActive(ctx context.Context, id int64, active bool) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET active = ? WHERE id = ?`, boolInt(active), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *sqliteStore) DeleteSchedule(ctx context.Context, id int64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---- settings ----

func (s *sqliteStore) BoardSettings(ctx context.Context) (BoardSettings, error) {
	var bs BoardSettings
	if s == nil || s.db == nil {
		return bs, ErrDisabled
	}
	err := s.db.QueryRowContext(ctx,
		`SELECT ip, port, protocol, brightness, font_size, color, effect
		 FROM board_settings WHERE id = 1`).
		Scan(&bs.IP, &bs.Port, &bs.Protocol, &bs.Brightness, &bs.FontSize, &bs.Color, &bs.Effect)
	return bs, err
}

func (s *sqliteStore) SaveBoardSettings(ctx context.Context, bs BoardSettings) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE board_settings
		 SET ip = ?, port = ?, protocol = ?, brightness = ?, font_size = ?, color = ?, effect = ?
		 WHERE id = 1`,
		bs.IP, bs.Port, bs.Protocol, bs.Brightness, bs.FontSize, bs.Color, bs.Effect)
	return err
}

func (s *sqliteStore) AISettings(ctx context.Context) (AISettings, error) {
	var as AISettings
	if s == nil || s.db == nil {
		return as, ErrDisabled
	}
	err := s.db.QueryRowContext(ctx,
		`SELECT style, language, tone FROM ai_settings WHERE id = 1`).
		Scan(&as.Style, &as.Language, &as.Tone)
	return as, err
}

func (s *sqliteStore) SaveAISettings(ctx context.Context, as AISettings) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE ai_settings SET style = ?, language = ?, tone = ? WHERE id = 1`,
		as.Style, as.Language, as.Tone)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
