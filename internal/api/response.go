// Package api implements the HTTP API server for Cascadia.
package api

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the standard error envelope. Error carries the machine
// kind, Details the human-readable cause. RequiredAnchor is set only when a
// prepare call is rejected because the scenario needs an anchor.
type ErrorResponse struct {
	Error          string `json:"error"`
	Details        string `json:"details,omitempty"`
	RequiredAnchor string `json:"required_anchor,omitempty"`
}

// WriteError writes a standard error response.
func WriteError(w http.ResponseWriter, status int, kind, details string) {
	WriteJSON(w, status, ErrorResponse{Error: kind, Details: details})
}

// ListResponse is the standard list envelope.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

// WriteList writes a list response.
func WriteList[T any](w http.ResponseWriter, status int, items []T) {
	if items == nil {
		items = []T{}
	}
	WriteJSON(w, status, ListResponse[T]{Items: items, Count: len(items)})
}
