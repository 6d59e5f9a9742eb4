package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	logx "github.com/unk-user/upwork-sniper/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := cfg.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

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
	st.log.Debug("feed store ready", logx.String("path", path))
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

func (s *sqliteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feeds`).Scan(&n)
	return n, err
}

func (s *sqliteStore) Get(ctx context.Context, chatID int64) (Feed, bool, error) {
	var f Feed
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id, skills FROM feeds WHERE chat_id = ?`, chatID,
	).Scan(&f.ChatID, &f.Skills)
	if errors.Is(err, sql.ErrNoRows) {
		return Feed{}, false, nil
	}
	if err != nil {
		return Feed{}, false, err
	}
	return f, true, nil
}

func (s *sqliteStore) Upsert(ctx context.Context, chatID int64, skills string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feeds(chat_id, skills) VALUES(?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET skills=excluded.skills`,
		chatID, skills,
	)
	return err
}

func (s *sqliteStore) UpsertWithCap(ctx context.Context, chatID int64, skills string, cap int) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT skills FROM feeds WHERE chat_id = ?`, chatID).Scan(&existing)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, `UPDATE feeds SET skills = ? WHERE chat_id = ?`, skills, chatID); err != nil {
			return false, err
		}
		return false, tx.Commit()
	case errors.Is(err, sql.ErrNoRows):
		// fall through to insert
	default:
		return false, err
	}

	if cap > 0 {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM feeds`).Scan(&n); err != nil {
			return false, err
		}
		if n >= cap {
			return false, ErrCapReached
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO feeds(chat_id, skills) VALUES(?,?)`, chatID, skills); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *sqliteStore) All(ctx context.Context) ([]Feed, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, skills FROM feeds ORDER BY chat_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Feed
	for rows.Next() {
		var f Feed
		if err := rows.Scan(&f.ChatID, &f.Skills); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
