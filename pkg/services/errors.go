package services

import (
	"fmt"
	"strings"
)

// SchemaError is returned when a column needed by a cleaning step is absent from the header.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: required columns not found: %s", strings.Join(e.Missing, ", "))
}

// MalformedTreeError reports a tree that references itself, an ancestor, or an index out of range.
type MalformedTreeError struct {
	Node   int
	Reason string
}

func (e *MalformedTreeError) Error() string {
	return fmt.Sprintf("malformed tree at node %d: %s", e.Node, e.Reason)
}

// NotFoundError is returned when no rows match the requested entity.
// Available lists every known entity name so the caller can self-correct.
type NotFoundError struct {
	Entity    string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("No sales data found for store: %s", e.Entity)
}

// InsufficientDataError is returned when an entity has fewer than two historical months.
type InsufficientDataError struct {
	Entity string
	Points int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("Not enough data to forecast for store: %s (%d month(s), need at least %d)", e.Entity, e.Points, MinForecastPoints)
}

// ConfigurationError reports an invalid caller-supplied parameter such as the cluster count.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// EncodingError is returned by a label encoder for a value it was not fitted on.
type EncodingError struct {
	Column string
	Value  string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("column %q contains previously unseen label %q", e.Column, e.Value)
}
