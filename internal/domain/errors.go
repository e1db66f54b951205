// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrBudgetBlocked indicates the budget ledger refused an operation for an
// agent that is over its daily spending cap.
var ErrBudgetBlocked = errors.New("operation blocked by budget policy")
