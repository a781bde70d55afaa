// Package repository holds the SQL data access of the booking service and
// the quote token store.  The sentinel errors below let handlers tell
// failure kinds apart with errors.Is; repositories wrap them with %w.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist.
// Handlers translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.  Handlers translate it into an HTTP 403
// response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when the row exists but its state does not allow
// the operation, such as cancelling a booking twice.  Handlers translate it
// into an HTTP 409 response.
var ErrConflict = errors.New("conflict")
