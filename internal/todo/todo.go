// Package todo holds the Todo entity and the JSON payloads shared by the
// API server and its clients.
package todo

import (
	"strings"
	"time"
)

// Todo is a single to-do entry.
type Todo struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// DescriptionText returns the description or "" when it is unset.
func (t Todo) DescriptionText() string {
	if t.Description == nil {
		return ""
	}
	return *t.Description
}

// CreateRequest is the payload for creating a todo.
type CreateRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
}

// UpdateRequest is the payload for updating a todo. Nil fields keep their
// stored value.
type UpdateRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

// ListResponse wraps the list endpoint's result.
type ListResponse struct {
	Todos []*Todo `json:"todos"`
}

// ExistsResponse is returned by the title existence check.
type ExistsResponse struct {
	Exists bool `json:"exists"`
}

// MessageResponse is the envelope for status messages and errors. Older
// endpoints report failures under "error", the rest under "message".
type MessageResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Text returns whichever of Message or Error is set.
func (m MessageResponse) Text() string {
	if m.Message != "" {
		return m.Message
	}
	return m.Error
}

// NormalizeTitle trims s, lower-cases it and collapses runs of whitespace to
// a single space. Two titles are duplicates when their normalized forms match.
func NormalizeTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }
