package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"gotodo/internal/todo"
)

// Handler handles HTTP requests for todos.
type Handler struct {
	store   Store
	logger  *log.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewHandler creates a Handler with dependencies. metrics may be nil.
func NewHandler(store Store, logger *log.Logger, metrics *Metrics) *Handler {
	return &Handler{
		store:   store,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Routes registers the todo endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/todos", h.todosHandler)
	mux.HandleFunc("/api/todos/exists", h.existsHandler)
	mux.HandleFunc("/api/todos/", h.todoHandler)
}

// todosHandler routes requests without ID: GET for list, POST for create.
func (h *Handler) todosHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleListTodos(w, r)
	case http.MethodPost:
		h.handleCreateTodo(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeMessage(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	}
}

// todoHandler routes requests with ID: GET, PUT, DELETE.
func (h *Handler) todoHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/todos/"), "/")
	if id == "" {
		writeMessage(w, http.StatusBadRequest, msgIDRequired)
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.handleGetTodo(w, r, id)
	case http.MethodPut:
		h.handleUpdateTodo(w, r, id)
	case http.MethodDelete:
		h.handleDeleteTodo(w, r, id)
	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		writeMessage(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	}
}

// existsHandler processes GET /api/todos/exists?title=.
func (h *Handler) existsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeMessage(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
		return
	}
	key := todo.NormalizeTitle(r.URL.Query().Get("title"))
	if key == "" {
		writeJSON(w, http.StatusOK, todo.ExistsResponse{Exists: false})
		return
	}
	exists, err := h.store.TitleExists(r.Context(), key)
	h.metrics.RecordStoreOp("exists", err)
	if err != nil {
		h.logger.Error("error checking title", "title", key, "err", err)
		writeError(w, http.StatusInternalServerError, msgErrCheckingName)
		return
	}
	writeJSON(w, http.StatusOK, todo.ExistsResponse{Exists: exists})
}

// handleListTodos processes GET /api/todos. The limit query parameter is
// accepted but not applied; clients paginate locally.
func (h *Handler) handleListTodos(w http.ResponseWriter, r *http.Request) {
	todos, err := h.store.ListTodos(r.Context())
	h.metrics.RecordStoreOp("list", err)
	if err != nil {
		h.logger.Error("error listing todos", "err", err)
		writeError(w, http.StatusInternalServerError, msgErrFetchingAll)
		return
	}
	writeJSON(w, http.StatusOK, todo.ListResponse{Todos: todos})
}

// handleCreateTodo processes POST /api/todos.
func (h *Handler) handleCreateTodo(w http.ResponseWriter, r *http.Request) {
	var req todo.CreateRequest
	if err := decodePayload(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, payloadMessage(err))
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeMessage(w, http.StatusBadRequest, msgTitleRequired)
		return
	}

	now := h.now()
	t := &todo.Todo{
		ID:          uuid.NewString(),
		Title:       title,
		Description: req.Description,
		Completed:   false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := h.store.CreateTodo(r.Context(), t)
	h.metrics.RecordStoreOp("create", err)
	if err != nil {
		if errors.Is(err, ErrDuplicateTitle) {
			writeMessage(w, http.StatusConflict, msgDuplicateTitle)
			return
		}
		h.logger.Error("error creating todo", "err", err)
		writeError(w, http.StatusInternalServerError, msgErrCreating)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/todos/%s", t.ID))
	writeJSON(w, http.StatusCreated, t)
}

// handleGetTodo processes GET /api/todos/{id}.
func (h *Handler) handleGetTodo(w http.ResponseWriter, r *http.Request, id string) {
	t, err := h.store.GetTodo(r.Context(), id)
	h.metrics.RecordStoreOp("get", err)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeMessage(w, http.StatusNotFound, msgTodoNotFound)
		} else {
			h.logger.Error("error getting todo", "id", id, "err", err)
			writeMessage(w, http.StatusInternalServerError, msgErrFetchingOne)
		}
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleUpdateTodo processes PUT /api/todos/{id}. A missing todo is reported
// as a store failure, not as 404.
func (h *Handler) handleUpdateTodo(w http.ResponseWriter, r *http.Request, id string) {
	var req todo.UpdateRequest
	if err := decodePayload(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, payloadMessage(err))
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeMessage(w, http.StatusBadRequest, msgTitleRequired)
		return
	}

	t, err := h.store.UpdateTodo(r.Context(), id, req, h.now())
	h.metrics.RecordStoreOp("update", err)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateTitle):
			writeMessage(w, http.StatusConflict, msgDuplicateTitle)
		case errors.Is(err, ErrNotFound):
			h.logger.Warn("update of missing todo", "id", id, "not_found", true)
			writeMessage(w, http.StatusInternalServerError, msgErrUpdating)
		default:
			h.logger.Error("error updating todo", "id", id, "err", err)
			writeMessage(w, http.StatusInternalServerError, msgErrUpdating)
		}
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleDeleteTodo processes DELETE /api/todos/{id}. Like update, a missing
// todo is reported as a store failure.
func (h *Handler) handleDeleteTodo(w http.ResponseWriter, r *http.Request, id string) {
	err := h.store.DeleteTodo(r.Context(), id)
	h.metrics.RecordStoreOp("delete", err)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.logger.Warn("delete of missing todo", "id", id, "not_found", true)
		} else {
			h.logger.Error("error deleting todo", "id", id, "err", err)
		}
		writeMessage(w, http.StatusInternalServerError, msgErrDeleting)
		return
	}
	writeMessage(w, http.StatusOK, msgTodoDeleted)
}

// payloadMessage renders a decodePayload error for the client.
func payloadMessage(err error) string {
	detail := strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": ")
	return msgInvalidPayload + ": " + detail
}
