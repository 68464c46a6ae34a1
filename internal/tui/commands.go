package tui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"gotodo/internal/client"
	"gotodo/internal/todo"
)

const (
	requestTimeout = 10 * time.Second
	titleCheckWait = 500 * time.Millisecond
)

type todosLoadedMsg struct {
	todos []*todo.Todo
	err   error
}

type savedMsg struct {
	editing bool
	err     error
}

type deletedMsg struct {
	err error
}

type toggledMsg struct {
	err error
}

// titleCheckDueMsg fires when the debounce delay for a title check ends.
type titleCheckDueMsg struct {
	seq   int
	title string
}

type titleCheckedMsg struct {
	seq    int
	title  string
	exists bool
}

func (m Model) fetchTodos() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		todos, err := api.List(ctx)
		return todosLoadedMsg{todos: todos, err: err}
	}
}

func (m Model) createTodo(req todo.CreateRequest) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_, err := api.Create(ctx, req)
		return savedMsg{editing: false, err: err}
	}
}

func (m Model) updateTodo(id string, req todo.UpdateRequest) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_, err := api.Update(ctx, id, req)
		return savedMsg{editing: true, err: err}
	}
}

func (m Model) toggleTodo(t *todo.Todo) tea.Cmd {
	api := m.api
	req := todo.UpdateRequest{
		Title:       t.Title,
		Description: t.Description,
		Completed:   todo.BoolPtr(!t.Completed),
	}
	id := t.ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_, err := api.Update(ctx, id, req)
		return toggledMsg{err: err}
	}
}

func (m Model) deleteTodo(id string) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_, err := api.Delete(ctx, id)
		return deletedMsg{err: err}
	}
}

// scheduleTitleCheck waits out the debounce delay before the check runs.
func scheduleTitleCheck(seq int, title string) tea.Cmd {
	return tea.Tick(titleCheckWait, func(time.Time) tea.Msg {
		return titleCheckDueMsg{seq: seq, title: title}
	})
}

// checkTitle asks the server about title. A failed check counts as "not
// taken" so that it never blocks the form.
func (m Model) checkTitle(seq int, title string) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		exists, err := api.Exists(ctx, todo.NormalizeTitle(title))
		return titleCheckedMsg{seq: seq, title: title, exists: err == nil && exists}
	}
}

// serverMessage returns the message carried by an API error response,
// fallback when the server sent none, and transport when the request never
// got a response.
func serverMessage(err error, fallback, transport string) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fallback
	}
	return transport
}
