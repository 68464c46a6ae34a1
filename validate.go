package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// payloadSchemaJSON checks field types of create and update bodies. The
// title rule itself is enforced by the handlers so that a missing title
// gets its own message.
const payloadSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"title": {"type": ["string", "null"], "maxLength": 500},
		"description": {"type": ["string", "null"], "maxLength": 10000},
		"completed": {"type": ["boolean", "null"]}
	}
}`

var payloadSchema = jsonschema.MustCompileString("todo-payload.json", payloadSchemaJSON)

// decodePayload reads a single JSON object from the request body, checks
// it against payloadSchema and decodes it into dst. Failures wrap
// ErrInvalidInput.
func decodePayload(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := ensureSingleJSON(dec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := payloadSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, schemaErrorMessage(err))
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// ensureSingleJSON ensures only a single JSON object is in the request body.
func ensureSingleJSON(dec *json.Decoder) error {
	if t, err := dec.Token(); err != io.EOF || t != nil {
		return fmt.Errorf("request body must only contain a single JSON object")
	}
	return nil
}

// schemaErrorMessage reduces a schema validation error to its first leaf
// cause, e.g. "/title: expected string or null, but got number".
func schemaErrorMessage(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return strings.TrimSpace(loc + ": " + ve.Message)
}
