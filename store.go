package main

import (
	"context"
	"fmt"
	"time"

	"gotodo/internal/todo"
)

// Store persists todos. Each call maps to one statement or pipeline; there
// is no coordination between calls beyond what the backend provides.
type Store interface {
	CreateTodo(ctx context.Context, t *todo.Todo) error
	GetTodo(ctx context.Context, id string) (*todo.Todo, error)
	UpdateTodo(ctx context.Context, id string, req todo.UpdateRequest, now time.Time) (*todo.Todo, error)
	DeleteTodo(ctx context.Context, id string) error
	ListTodos(ctx context.Context) ([]*todo.Todo, error)
	TitleExists(ctx context.Context, normalized string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// Store backends.
const (
	BackendSQL   = "sql"
	BackendRedis = "redis"
)

// openStore builds the store selected by cfg and verifies it is reachable.
func openStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case BackendSQL:
		s, err = OpenSQLStore(ctx, cfg.Driver, cfg.DSN, cfg.EnforceUniqueTitles)
	case BackendRedis:
		s = NewRedisStore(newRedisClient(cfg), cfg.EnforceUniqueTitles)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Ping(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("ping %s store: %w", cfg.Backend, err)
	}
	return s, nil
}
