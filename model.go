package main

import (
	"encoding/json"
	"net/http"

	"gotodo/internal/todo"
)

// Response messages returned to clients.
const (
	msgTitleRequired   = "Title is required"
	msgIDRequired      = "Id is required"
	msgInvalidPayload  = "Invalid request payload"
	msgTodoNotFound    = "Todo not found"
	msgTodoDeleted     = "Todo deleted"
	msgDuplicateTitle  = "A todo with this title already exists."
	msgErrFetchingAll  = "Error fetching todos"
	msgErrCreating     = "Error creating todo"
	msgErrFetchingOne  = "Error fetching todo"
	msgErrUpdating     = "Error updating todo"
	msgErrDeleting     = "Error deleting todo"
	msgErrCheckingName = "Error checking title"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeMessage answers with a {"message": ...} envelope.
func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, todo.MessageResponse{Message: msg})
}

// writeError answers with an {"error": ...} envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, todo.MessageResponse{Error: msg})
}
