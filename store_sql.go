package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"gotodo/internal/todo"
)

// SQL drivers accepted by OpenSQLStore.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
)

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

const todoColumns = "id, title, description, completed, created_at, updated_at"

// SQLStore persists todos in a relational table through database/sql.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQLStore opens dsn with the named driver and creates the schema. With
// enforceUnique set, the normalized title column gets a unique index.
func OpenSQLStore(ctx context.Context, driver, dsn string, enforceUnique bool) (*SQLStore, error) {
	switch driver {
	case DriverSQLite, DriverPostgres, DriverPgx:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// an in-memory database lives and dies with its connection
		db.SetMaxOpenConns(1)
	}
	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(ctx, enforceUnique); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context, enforceUnique bool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS todos (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			title_key TEXT NOT NULL,
			description TEXT,
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_todos_created_at ON todos(created_at)`,
	}
	if enforceUnique {
		stmts = append(stmts, `CREATE UNIQUE INDEX IF NOT EXISTS uq_todos_title_key ON todos(title_key)`)
	} else {
		stmts = append(stmts, `CREATE INDEX IF NOT EXISTS idx_todos_title_key ON todos(title_key)`)
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ... for the PostgreSQL drivers.
func (s *SQLStore) rebind(query string) string {
	if s.driver == DriverSQLite {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CreateTodo inserts a new todo.
func (s *SQLStore) CreateTodo(ctx context.Context, t *todo.Todo) error {
	query := s.rebind(`INSERT INTO todos (id, title, title_key, description, completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.Title, todo.NormalizeTitle(t.Title), t.Description, t.Completed, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateTitle
		}
		return fmt.Errorf("insert todo: %w", err)
	}
	return nil
}

// GetTodo retrieves a todo by ID.
func (s *SQLStore) GetTodo(ctx context.Context, id string) (*todo.Todo, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+todoColumns+` FROM todos WHERE id = ?`), id)
	t, err := scanTodo(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get todo: %w", err)
	}
	return t, nil
}

// UpdateTodo replaces the title and, when present in req, the description
// and completed flag of an existing todo.
func (s *SQLStore) UpdateTodo(ctx context.Context, id string, req todo.UpdateRequest, now time.Time) (*todo.Todo, error) {
	query := s.rebind(`UPDATE todos SET
			title = ?,
			title_key = ?,
			description = COALESCE(?, description),
			completed = COALESCE(?, completed),
			updated_at = ?
		WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query,
		req.Title, todo.NormalizeTitle(req.Title), req.Description, req.Completed, now, id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateTitle
		}
		return nil, fmt.Errorf("update todo: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update todo: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.GetTodo(ctx, id)
}

// DeleteTodo removes a todo by ID.
func (s *SQLStore) DeleteTodo(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM todos WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTodos returns all todos, newest first.
func (s *SQLStore) ListTodos(ctx context.Context) ([]*todo.Todo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+todoColumns+` FROM todos ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	todos := []*todo.Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	return todos, nil
}

// TitleExists reports whether any todo has the given normalized title.
func (s *SQLStore) TitleExists(ctx context.Context, normalized string) (bool, error) {
	var exists bool
	query := s.rebind(`SELECT EXISTS (SELECT 1 FROM todos WHERE title_key = ?)`)
	if err := s.db.QueryRowContext(ctx, query, normalized).Scan(&exists); err != nil {
		return false, fmt.Errorf("check title: %w", err)
	}
	return exists, nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTodo(row rowScanner) (*todo.Todo, error) {
	var (
		t    todo.Todo
		desc sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Title, &desc, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if desc.Valid {
		t.Description = &desc.String
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

// isUniqueViolation recognises unique constraint failures from each
// supported driver.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
