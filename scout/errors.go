package scout

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuery rejects malformed caller input. Not retryable.
	ErrInvalidQuery = errors.New("scout: invalid query")

	// ErrPoolExhausted is returned, together with the ResultSet, when every
	// source failed only because no session freed up in time. Retryable.
	ErrPoolExhausted = errors.New("scout: session pool exhausted")

	// ErrSessionUnavailable is returned when no session could be created at
	// all (browser missing or crashed on start).
	ErrSessionUnavailable = errors.New("scout: no browser session available")

	// ErrNoSources is returned when configuration leaves no site enabled.
	ErrNoSources = errors.New("scout: no sources enabled")
)

// QueryError explains why a query was rejected. It matches ErrInvalidQuery.
type QueryError struct {
	Field  string
	Reason string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("scout: invalid query: %s: %s", e.Field, e.Reason)
}

func (e *QueryError) Unwrap() error { return ErrInvalidQuery }

// ToolMessage is the text shown to MCP clients.
func (e *QueryError) ToolMessage() string {
	return fmt.Sprintf("invalid query: %s %s", e.Field, e.Reason)
}
