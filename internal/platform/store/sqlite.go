package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "uvfleet/internal/platform/errors"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db      *sql.DB
	catalog catalog
}

func OpenSQLite(dbPath string, collections ...Collection) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create db dir: %v", apperrors.ErrPersistence, err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", apperrors.ErrPersistence, err)
	}
	// one writer at a time; sqlite serializes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db, catalog: newCatalog(collections)}
	if err := s.ensureSchema(context.Background(), collections); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func columnName(field string) string {
	return "idx_" + field
}

func sortedFields(col Collection) []string {
	fields := make([]string, 0, len(col.Indexes))
	for field := range col.Indexes {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

func (s *SQLiteStore) ensureSchema(ctx context.Context, collections []Collection) error {
	for _, col := range collections {
		columns := []string{"id TEXT PRIMARY KEY", "body TEXT NOT NULL"}
		for _, field := range sortedFields(col) {
			typ := "TEXT"
			if col.Indexes[field] == IndexTime {
				typ = "INTEGER"
			}
			columns = append(columns, fmt.Sprintf("%s %s", columnName(field), typ))
		}
		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", col.Name, strings.Join(columns, ",\n  "))
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("%w: create %s table: %v", apperrors.ErrPersistence, col.Name, err)
		}
		for _, field := range sortedFields(col) {
			stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_%s ON %s (%s);", col.Name, columnName(field), col.Name, columnName(field))
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("%w: create %s index: %v", apperrors.ErrPersistence, col.Name, err)
			}
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) upsert(ctx context.Context, db execer, col Collection, record Record) error {
	doc, err := decodeDoc(record)
	if err != nil {
		return err
	}
	fields := sortedFields(col)
	names := []string{"id", "body"}
	marks := []string{"?", "?"}
	updates := []string{"body=excluded.body"}
	args := []any{record.ID, string(record.Data)}
	for _, field := range fields {
		kind := col.Indexes[field]
		key := indexValue(doc, field, kind)
		names = append(names, columnName(field))
		marks = append(marks, "?")
		updates = append(updates, fmt.Sprintf("%s=excluded.%s", columnName(field), columnName(field)))
		if kind == IndexTime {
			args = append(args, key.num)
		} else {
			args = append(args, key.str)
		}
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)\nON CONFLICT(id) DO UPDATE SET\n  %s;",
		col.Name, strings.Join(names, ", "), strings.Join(marks, ", "), strings.Join(updates, ",\n  "))
	if _, err := db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("%w: upsert %s/%s: %v", apperrors.ErrPersistence, col.Name, record.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, collection string, record Record) error {
	col, err := s.catalog.lookup(collection)
	if err != nil {
		return err
	}
	if err := validRecord(record); err != nil {
		return err
	}
	return s.upsert(ctx, s.db, col, record)
}

func (s *SQLiteStore) query(ctx context.Context, stmt string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", apperrors.ErrPersistence, err)
	}
	defer rows.Close()
	out := []Record{}
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", apperrors.ErrPersistence, err)
		}
		out = append(out, Record{ID: id, Data: []byte(body)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate: %v", apperrors.ErrPersistence, err)
	}
	return out, nil
}

func (s *SQLiteStore) GetAll(ctx context.Context, collection string) ([]Record, error) {
	col, err := s.catalog.lookup(collection)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, fmt.Sprintf("SELECT id, body FROM %s ORDER BY id ASC", col.Name))
}

func (s *SQLiteStore) GetAllSortedBy(ctx context.Context, collection, field string) ([]Record, error) {
	col, _, err := s.catalog.index(collection, field)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, fmt.Sprintf("SELECT id, body FROM %s ORDER BY %s ASC, id ASC", col.Name, columnName(field)))
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	col, err := s.catalog.lookup(collection)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", col.Name), id)
	if err != nil {
		return fmt.Errorf("%w: delete %s/%s: %v", apperrors.ErrPersistence, col.Name, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: delete %s/%s: %v", apperrors.ErrPersistence, col.Name, id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s/%s", apperrors.ErrNotFound, col.Name, id)
	}
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	col, err := s.catalog.lookup(collection)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", apperrors.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	var body string
	row := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT body FROM %s WHERE id = ?", col.Name), id)
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s/%s", apperrors.ErrNotFound, col.Name, id)
		}
		return fmt.Errorf("%w: read %s/%s: %v", apperrors.ErrPersistence, col.Name, id, err)
	}
	merged, err := merge(Record{ID: id, Data: []byte(body)}, partial)
	if err != nil {
		return err
	}
	if err := s.upsert(ctx, tx, col, merged); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", apperrors.ErrPersistence, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, collection string) error {
	col, err := s.catalog.lookup(collection)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", col.Name)); err != nil {
		return fmt.Errorf("%w: clear %s: %v", apperrors.ErrPersistence, col.Name, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
