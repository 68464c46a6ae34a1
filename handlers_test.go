package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"gotodo/internal/todo"
)

// newTestSQLStore opens an in-memory sqlite store.
func newTestSQLStore(t *testing.T, enforceUnique bool) *SQLStore {
	t.Helper()
	s, err := OpenSQLStore(context.Background(), DriverSQLite, ":memory:", enforceUnique)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// newTestAPI starts an httptest server for the todo routes over store.
func newTestAPI(t *testing.T, store Store) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewHandler(store, log.New(io.Discard), NewMetrics()).Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status %d, want %d, body: %s",
			resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body)
	}
}

func createTodo(t *testing.T, baseURL, title string) todo.Todo {
	t.Helper()
	resp := doJSON(t, http.MethodPost, baseURL+"/api/todos", todo.CreateRequest{Title: title})
	expectStatus(t, resp, http.StatusCreated)
	var out todo.Todo
	decodeBody(t, resp, &out)
	return out
}

func TestCreateTodo(t *testing.T) {
	srv := newTestAPI(t, newTestSQLStore(t, false))

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/todos", map[string]interface{}{
		"title":       "  Buy milk ",
		"description": "2 litres",
	})
	expectStatus(t, resp, http.StatusCreated)
	var got todo.Todo
	decodeBody(t, resp, &got)

	if got.ID == "" {
		t.Fatal("empty ID")
	}
	if got.Title != "Buy milk" {
		t.Errorf("title = %q, want %q", got.Title, "Buy milk")
	}
	if got.DescriptionText() != "2 litres" {
		t.Errorf("description = %q", got.DescriptionText())
	}
	if got.Completed {
		t.Error("new todo should not be completed")
	}
	if got.CreatedAt.IsZero() || !got.CreatedAt.Equal(got.UpdatedAt) {
		t.Errorf("timestamps not set: created %s, updated %s", got.CreatedAt, got.UpdatedAt)
	}
	if loc := resp.Header.Get("Location"); loc != "/api/todos/"+got.ID {
		t.Errorf("Location = %q", loc)
	}
}

func TestCreateTodoWithoutDescription(t *testing.T) {
	srv := newTestAPI(t, newTestSQLStore(t, false))
	got := createTodo(t, srv.URL, "No details")
	if got.Description != nil {
		t.Errorf("description = %q, want null", *got.Description)
	}
}

func TestCreateTodoValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"missing title", `{"description":"x"}`, http.StatusBadRequest, msgTitleRequired},
		{"empty title", `{"title":""}`, http.StatusBadRequest, msgTitleRequired},
		{"blank title", `{"title":"   "}`, http.StatusBadRequest, msgTitleRequired},
		{"null title", `{"title":null}`, http.StatusBadRequest, msgTitleRequired},
		{"numeric title", `{"title":42}`, http.StatusBadRequest, msgInvalidPayload + ": /title: "},
		{"malformed json", `{"title":`, http.StatusBadRequest, msgInvalidPayload},
		{"two objects", `{"title":"a"}{"title":"b"}`, http.StatusBadRequest, msgInvalidPayload},
		{"empty body", ``, http.StatusBadRequest, msgInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestSQLStore(t, false)
			srv := newTestAPI(t, store)

			resp := doJSON(t, http.MethodPost, srv.URL+"/api/todos", tt.body)
			expectStatus(t, resp, tt.status)
			var msg todo.MessageResponse
			decodeBody(t, resp, &msg)
			if !strings.HasPrefix(msg.Message, tt.message) {
				t.Errorf("message = %q, want prefix %q", msg.Message, tt.message)
			}

			todos, err := store.ListTodos(context.Background())
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(todos) != 0 {
				t.Errorf("expected no rows persisted, got %d", len(todos))
			}
		})
	}
}

func TestListTodosNewestFirst(t *testing.T) {
	srv := newTestAPI(t, newTestSQLStore(t, false))

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/todos", nil)
	expectStatus(t, resp, http.StatusOK)
	var empty todo.ListResponse
	decodeBody(t, resp, &empty)
	if empty.Todos == nil || len(empty.Todos) != 0 {
		t.Fatalf("expected empty todos array, got %#v", empty.Todos)
	}

	first := createTodo(t, srv.URL, "Review PRs")
	second := createTodo(t, srv.URL, "Buy milk")

	// limit is accepted and ignored
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/todos?limit=1", nil)
	expectStatus(t, resp, http.StatusOK)
	var list todo.ListResponse
	decodeBody(t, resp, &list)
	if len(list.Todos) != 2 {
		t.Fatalf("expected 2 todos, got %d", len(list.Todos))
	}
	if list.Todos[0].ID != second.ID || list.Todos[1].ID != first.ID {
		t.Errorf("unexpected order: %s, %s", list.Todos[0].Title, list.Todos[1].Title)
	}
}

func TestGetTodo(t *testing.T) {
	srv := newTestAPI(t, newTestSQLStore(t, false))
	created := createTodo(t, srv.URL, "Buy milk")

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/todos/"+created.ID, nil)
	expectStatus(t, resp, http.StatusOK)
	var got todo.Todo
	decodeBody(t, resp, &got)
	if got.ID != created.ID || got.Title != created.Title {
		t.Errorf("got %+v, want %+v", got, created)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/todos/does-not-exist", nil)
	expectStatus(t, resp, http.StatusNotFound)
	var msg todo.MessageResponse
	decodeBody(t, resp, &msg)
	if msg.Message != msgTodoNotFound {
		t.Errorf("message = %q", msg.Message)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/todos/", nil)
	expectStatus(t, resp, http.StatusBadRequest)
	decodeBody(t, resp, &msg)
	if msg.Message != msgIDRequired {
		t.Errorf("message = %q", msg.Message)
	}
}

func TestUpdateTodo(t *testing.T) {
	srv := newTestAPI(t, newTestSQLStore(t, false))
	created := createTodo(t, srv.URL, "Buy milk")

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/todos/"+created.ID, todo.UpdateRequest{
		Title:       "Buy oat milk",
		Description: todo.StringPtr("the barista one"),
		Completed:   todo.BoolPtr(true),
	})
	expectStatus(t, resp, http.StatusOK)
	var updated todo.Todo
	decodeBody(t, resp, &updated)
	if updated.Title != "Buy oat milk" || updated.DescriptionText() != "the barista one" || !updated.Completed {
		t.Errorf("update not applied: %+v", updated)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("createdAt changed: %s -> %s", created.CreatedAt, updated.CreatedAt)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Errorf("updatedAt not refreshed: %s -> %s", created.UpdatedAt, updated.UpdatedAt)
	}

	resp = doJSON(t, http.MethodPut, srv.URL+"/api/todos/"+created.ID, `{"title":""}`)
	expectStatus(t, resp, http.StatusBadRequest)
	var msg todo.MessageResponse
	decodeBody(t, resp, &msg)
	if msg.Message != msgTitleRequired {
		t.Errorf("message = %q", msg.Message)
	}
}

func TestToggleCompletedRoundTrip(t *testing.T) {
	srv := newTestAPI(t, newTestSQLStore(t, false))
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/todos", map[string]string{
		"title":       "Review PRs",
		"description": "Check pending pull requests",
	})
	expectStatus(t, resp, http.StatusCreated)
	var created todo.Todo
	decodeBody(t, resp, &created)

	// clients echo the whole todo back with completed flipped
	flipped := created
	flipped.Completed = !created.Completed
	resp = doJSON(t, http.MethodPut, srv.URL+"/api/todos/"+created.ID, flipped)
	expectStatus(t, resp, http.StatusOK)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/todos/"+created.ID, nil)
	expectStatus(t, resp, http.StatusOK)
	var got todo.Todo
	decodeBody(t, resp, &got)
	if got.Completed == created.Completed {
		t.Error("completed was not flipped")
	}
	if got.ID != created.ID || got.Title != created.Title ||
		got.DescriptionText() != created.DescriptionText() || !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("other fields changed: before %+v, after %+v", created, got)
	}
}

func TestUpdateKeepsOmittedFields(t *testing.T) {
	srv := newTestAPI(t, newTestSQLStore(t, false))
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/todos", map[string]string{
		"title":       "Update dependencies",
		"description": "Run the audit",
	})
	expectStatus(t, resp, http.StatusCreated)
	var created todo.Todo
	decodeBody(t, resp, &created)

	resp = doJSON(t, http.MethodPut, srv.URL+"/api/todos/"+created.ID, `{"title":"Update deps"}`)
	expectStatus(t, resp, http.StatusOK)
	var got todo.Todo
	decodeBody(t, resp, &got)
	if got.Title != "Update deps" || got.DescriptionText() != "Run the audit" || got.Completed {
		t.Errorf("unexpected todo after partial update: %+v", got)
	}
}

func TestMissingTodoUpdateAndDeleteAreServerErrors(t *testing.T) {
	srv := newTestAPI(t, newTestSQLStore(t, false))

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/todos/missing", todo.UpdateRequest{Title: "x"})
	expectStatus(t, resp, http.StatusInternalServerError)
	var msg todo.MessageResponse
	decodeBody(t, resp, &msg)
	if msg.Message != msgErrUpdating {
		t.Errorf("message = %q", msg.Message)
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/todos/missing", nil)
	expectStatus(t, resp, http.StatusInternalServerError)
	decodeBody(t, resp, &msg)
	if msg.Message != msgErrDeleting {
		t.Errorf("message = %q", msg.Message)
	}
}

func TestDeleteTodo(t *testing.T) {
	store := newTestSQLStore(t, false)
	srv := newTestAPI(t, store)
	created := createTodo(t, srv.URL, "Buy milk")

	resp := doJSON(t, http.MethodDelete, srv.URL+"/api/todos/"+created.ID, nil)
	expectStatus(t, resp, http.StatusOK)
	var msg todo.MessageResponse
	decodeBody(t, resp, &msg)
	if msg.Message != msgTodoDeleted {
		t.Errorf("message = %q", msg.Message)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/todos/"+created.ID, nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestExists(t *testing.T) {
	srv := newTestAPI(t, newTestSQLStore(t, false))

	check := func(query string) bool {
		t.Helper()
		resp := doJSON(t, http.MethodGet, srv.URL+"/api/todos/exists"+query, nil)
		expectStatus(t, resp, http.StatusOK)
		var out todo.ExistsResponse
		decodeBody(t, resp, &out)
		return out.Exists
	}

	if check("?title=buy%20milk") {
		t.Error("exists before create")
	}
	createTodo(t, srv.URL, "buy milk")

	for _, q := range []string{"?title=BUY%20MILK", "?title=%20%20Buy%20%20%20Milk%20", "?title=buy%09milk"} {
		if !check(q) {
			t.Errorf("exists%s = false, want true", q)
		}
	}
	for _, q := range []string{"", "?title=", "?title=%20%20", "?other=buy%20milk"} {
		if check(q) {
			t.Errorf("exists%s = true, want false", q)
		}
	}
	if check("?title=buy%20milk%20today") {
		t.Error("partial match reported as existing")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestAPI(t, newTestSQLStore(t, false))
	tests := []struct {
		method, path, allow string
	}{
		{http.MethodDelete, "/api/todos", "GET, POST"},
		{http.MethodPost, "/api/todos/abc", "GET, PUT, DELETE"},
		{http.MethodPost, "/api/todos/exists", "GET"},
	}
	for _, tt := range tests {
		resp := doJSON(t, tt.method, srv.URL+tt.path, nil)
		expectStatus(t, resp, http.StatusMethodNotAllowed)
		if got := resp.Header.Get("Allow"); got != tt.allow {
			t.Errorf("%s %s Allow = %q, want %q", tt.method, tt.path, got, tt.allow)
		}
	}
}

func TestConcurrentDuplicateCreates(t *testing.T) {
	tests := []struct {
		name          string
		enforceUnique bool
		wantCreated   int
	}{
		// the existence check is advisory: both creates go through
		{"advisory", false, 2},
		{"enforced", true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestSQLStore(t, tt.enforceUnique)
			srv := newTestAPI(t, store)

			titles := []string{"Buy milk", "  BUY   milk "}
			statuses := make([]int, len(titles))
			var wg sync.WaitGroup
			for i, title := range titles {
				wg.Add(1)
				go func(i int, title string) {
					defer wg.Done()
					data, _ := json.Marshal(todo.CreateRequest{Title: title})
					resp, err := http.Post(srv.URL+"/api/todos", "application/json", bytes.NewReader(data))
					if err != nil {
						t.Errorf("POST: %v", err)
						return
					}
					resp.Body.Close()
					statuses[i] = resp.StatusCode
				}(i, title)
			}
			wg.Wait()

			created := 0
			for _, s := range statuses {
				switch s {
				case http.StatusCreated:
					created++
				case http.StatusConflict:
					if !tt.enforceUnique {
						t.Errorf("unexpected conflict in advisory mode")
					}
				default:
					t.Errorf("unexpected status %d", s)
				}
			}
			if created != tt.wantCreated {
				t.Errorf("created %d todos, want %d", created, tt.wantCreated)
			}
			todos, err := store.ListTodos(context.Background())
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(todos) != tt.wantCreated {
				t.Errorf("stored %d todos, want %d", len(todos), tt.wantCreated)
			}
		})
	}
}

func TestUpdateToDuplicateTitleEnforced(t *testing.T) {
	srv := newTestAPI(t, newTestSQLStore(t, true))
	createTodo(t, srv.URL, "Buy milk")
	other := createTodo(t, srv.URL, "Review PRs")

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/todos/"+other.ID, todo.UpdateRequest{Title: "buy MILK"})
	expectStatus(t, resp, http.StatusConflict)
	var msg todo.MessageResponse
	decodeBody(t, resp, &msg)
	if msg.Message != msgDuplicateTitle {
		t.Errorf("message = %q", msg.Message)
	}

	// renaming a todo to a different spelling of its own title is allowed
	resp = doJSON(t, http.MethodPut, srv.URL+"/api/todos/"+other.ID, todo.UpdateRequest{Title: "REVIEW prs"})
	expectStatus(t, resp, http.StatusOK)
}

// failingStore fails every call.
type failingStore struct{ err error }

func (s failingStore) CreateTodo(context.Context, *todo.Todo) error { return s.err }
func (s failingStore) GetTodo(context.Context, string) (*todo.Todo, error) {
	return nil, s.err
}
func (s failingStore) UpdateTodo(context.Context, string, todo.UpdateRequest, time.Time) (*todo.Todo, error) {
	return nil, s.err
}
func (s failingStore) DeleteTodo(context.Context, string) error { return s.err }
func (s failingStore) ListTodos(context.Context) ([]*todo.Todo, error) { return nil, s.err }
func (s failingStore) TitleExists(context.Context, string) (bool, error) { return false, s.err }
func (s failingStore) Ping(context.Context) error { return s.err }
func (s failingStore) Close() error { return nil }

func TestStoreFailuresMapToServerErrors(t *testing.T) {
	srv := newTestAPI(t, failingStore{err: errors.New("connection refused")})

	tests := []struct {
		method, path string
		body         interface{}
		want         todo.MessageResponse
	}{
		{http.MethodGet, "/api/todos", nil, todo.MessageResponse{Error: msgErrFetchingAll}},
		{http.MethodPost, "/api/todos", todo.CreateRequest{Title: "x"}, todo.MessageResponse{Error: msgErrCreating}},
		{http.MethodGet, "/api/todos/abc", nil, todo.MessageResponse{Message: msgErrFetchingOne}},
		{http.MethodPut, "/api/todos/abc", todo.UpdateRequest{Title: "x"}, todo.MessageResponse{Message: msgErrUpdating}},
		{http.MethodDelete, "/api/todos/abc", nil, todo.MessageResponse{Message: msgErrDeleting}},
		{http.MethodGet, "/api/todos/exists?title=x", nil, todo.MessageResponse{Error: msgErrCheckingName}},
	}
	for _, tt := range tests {
		resp := doJSON(t, tt.method, srv.URL+tt.path, tt.body)
		expectStatus(t, resp, http.StatusInternalServerError)
		var got todo.MessageResponse
		decodeBody(t, resp, &got)
		if got != tt.want {
			t.Errorf("%s %s: body %+v, want %+v", tt.method, tt.path, got, tt.want)
		}
	}
}
