package main

import "errors"

// ErrNotFound is returned when a todo is not found in the store.
var ErrNotFound = errors.New("todo not found")

// ErrInvalidInput is returned when the input payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// ErrDuplicateTitle is returned when a store enforcing unique titles already
// holds a todo with the same normalized title.
var ErrDuplicateTitle = errors.New("duplicate title")
