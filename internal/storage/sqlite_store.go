package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Fixed-width so that text comparison orders the same as time.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// OpenSQLite opens the database at path and applies migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	if err := MigrateUp(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, mustTime(time.Now()),
	)
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// Keys lists stored keys with the given prefix in lexical order.
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv WHERE key LIKE ? ESCAPE '\' ORDER BY key ASC`, escapeLike(prefix)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendFiring(ctx context.Context, in FiringRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO firings (id, automation_id, automation_name, action_type, delivered, sms_status, detail, fired_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.AutomationID, in.AutomationName, in.ActionType, boolInt(in.Delivered), in.SMSStatus, in.Detail, mustTime(in.FiredAt),
	)
	return err
}

func (s *SQLiteStore) ListFirings(ctx context.Context, filter FiringListFilter) ([]FiringRecord, error) {
	query := `SELECT id, automation_id, automation_name, action_type, delivered, sms_status, detail, fired_at FROM firings`
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 4)
	if filter.AutomationID != "" {
		clauses = append(clauses, "automation_id = ?")
		args = append(args, filter.AutomationID)
	}
	if filter.Since != nil {
		clauses = append(clauses, "fired_at >= ?")
		args = append(args, mustTime(*filter.Since))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY fired_at DESC`
	query += applyPagination(&args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]FiringRecord, 0)
	for rows.Next() {
		item, scanErr := scanFiring(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFiring(s scanner) (FiringRecord, error) {
	var out FiringRecord
	var delivered int
	var fired string
	if err := s.Scan(&out.ID, &out.AutomationID, &out.AutomationName, &out.ActionType, &delivered, &out.SMSStatus, &out.Detail, &fired); err != nil {
		return FiringRecord{}, err
	}
	firedAt, err := time.Parse(sqliteTimeLayout, fired)
	if err != nil {
		return FiringRecord{}, err
	}
	out.Delivered = delivered == 1
	out.FiredAt = firedAt
	return out, nil
}

func mustTime(v time.Time) string {
	return v.UTC().Format(sqliteTimeLayout)
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func escapeLike(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(v)
}

func applyPagination(args *[]any, limit, offset int) string {
	sql := ""
	if limit > 0 {
		sql += " LIMIT ?"
		*args = append(*args, limit)
	} else if offset > 0 {
		sql += " LIMIT -1"
	}
	if offset > 0 {
		sql += " OFFSET ?"
		*args = append(*args, offset)
	}
	return sql
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
