package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"gotodo/internal/todo"
)

const (
	// todosKey is a sorted set of todo ids scored by creation time.
	todosKey = "todos"
	// maxTxRetries bounds optimistic transaction retries when unique
	// titles are enforced.
	maxTxRetries = 3
)

func todoKey(id string) string { return fmt.Sprintf("todo:%s", id) }

// titleSetKey is the set of ids whose normalized title equals key.
func titleSetKey(key string) string { return fmt.Sprintf("todos:title:%s", key) }

// RedisStore provides todo persistence in Redis.
type RedisStore struct {
	client        *redis.Client
	enforceUnique bool
}

// NewRedisStore creates a new RedisStore. With enforceUnique set, writes
// that would give two todos the same normalized title fail with
// ErrDuplicateTitle.
func NewRedisStore(client *redis.Client, enforceUnique bool) *RedisStore {
	return &RedisStore{client: client, enforceUnique: enforceUnique}
}

func newRedisClient(cfg StoreConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// CreateTodo stores a new todo.
func (s *RedisStore) CreateTodo(ctx context.Context, t *todo.Todo) error {
	return s.write(ctx, t, "", true)
}

// GetTodo retrieves a todo by ID.
func (s *RedisStore) GetTodo(ctx context.Context, id string) (*todo.Todo, error) {
	data, err := s.client.Get(ctx, todoKey(id)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var t todo.Todo
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("decode todo %s: %w", id, err)
	}
	return &t, nil
}

// UpdateTodo replaces the title and, when present in req, the description
// and completed flag of an existing todo.
func (s *RedisStore) UpdateTodo(ctx context.Context, id string, req todo.UpdateRequest, now time.Time) (*todo.Todo, error) {
	t, err := s.GetTodo(ctx, id)
	if err != nil {
		return nil, err
	}
	prevTitleSet := titleSetKey(todo.NormalizeTitle(t.Title))

	t.Title = req.Title
	if req.Description != nil {
		t.Description = req.Description
	}
	if req.Completed != nil {
		t.Completed = *req.Completed
	}
	t.UpdatedAt = now

	if err := s.write(ctx, t, prevTitleSet, false); err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteTodo removes a todo by ID.
func (s *RedisStore) DeleteTodo(ctx context.Context, id string) error {
	// the stored title is needed to clean up the title index
	t, err := s.GetTodo(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, todoKey(id))
		pipe.ZRem(ctx, todosKey, id)
		pipe.SRem(ctx, titleSetKey(todo.NormalizeTitle(t.Title)), id)
		return nil
	})
	return err
}

// ListTodos returns all todos, newest first.
func (s *RedisStore) ListTodos(ctx context.Context) ([]*todo.Todo, error) {
	ids, err := s.client.ZRevRange(ctx, todosKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*todo.Todo{}, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, todoKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}
	todos := make([]*todo.Todo, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, err
		}
		var t todo.Todo
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, err
		}
		todos = append(todos, &t)
	}
	return todos, nil
}

// TitleExists reports whether any todo has the given normalized title.
func (s *RedisStore) TitleExists(ctx context.Context, normalized string) (bool, error) {
	n, err := s.client.SCard(ctx, titleSetKey(normalized)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Ping checks the connection to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// write stores t and keeps the ordering and title indexes in step.
// prevTitleSet is the title set t belonged to before an update.
func (s *RedisStore) write(ctx context.Context, t *todo.Todo, prevTitleSet string, isNew bool) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	titleSet := titleSetKey(todo.NormalizeTitle(t.Title))
	apply := func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, todoKey(t.ID), data, 0)
		if isNew {
			pipe.ZAdd(ctx, todosKey, &redis.Z{Score: float64(t.CreatedAt.UnixMicro()), Member: t.ID})
		}
		if prevTitleSet != "" && prevTitleSet != titleSet {
			pipe.SRem(ctx, prevTitleSet, t.ID)
		}
		pipe.SAdd(ctx, titleSet, t.ID)
		return nil
	}

	if !s.enforceUnique {
		_, err = s.client.TxPipelined(ctx, apply)
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err = s.client.Watch(ctx, func(tx *redis.Tx) error {
			ids, err := tx.SMembers(ctx, titleSet).Result()
			if err != nil {
				return err
			}
			for _, id := range ids {
				if id != t.ID {
					return ErrDuplicateTitle
				}
			}
			_, err = tx.TxPipelined(ctx, apply)
			return err
		}, titleSet)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}
