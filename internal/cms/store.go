package cms

import (
	"context"
	"fmt"
	"net/http"
)

// Query selects objects of one kind.
type Query struct {
	Type   Kind
	Filter Filter
	// Props limits the returned fields. Empty means all fields.
	Props []string
	// Depth expands referenced objects inline when greater than zero.
	Depth int
	// Limit caps the number of objects. Zero means the store default.
	Limit int
	// Sort is a field path, prefixed with "-" for descending order.
	Sort string
}

// Document returns the full filter document including the type condition.
func (q Query) Document() Filter {
	return Eq("type", string(q.Type)).And(q.Filter)
}

// Store is the read-only content repository.
type Store interface {
	// Find returns matching objects. An empty match is reported as ErrNotFound.
	Find(ctx context.Context, q Query) ([]Object, error)
	// FindOne returns the first matching object or ErrNotFound.
	FindOne(ctx context.Context, q Query) (Object, error)
}

// StoreError reports a non-NotFound failure from the content API.
type StoreError struct {
	Op     string
	Status int
	Err    error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("cms: %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("cms: %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

// IsUnavailable reports whether retrying later may succeed.
func (e *StoreError) IsUnavailable() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}
