// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios without
// inspecting driver-specific errors. For example, ErrNotFound covers a
// device or job that is absent or not owned by the caller, while
// ErrEmailExists signals a duplicate signup.
package repository

import "errors"

// ErrEmailExists is returned when a signup collides with an existing
// email address. Handlers translate this into an HTTP 400 response.
var ErrEmailExists = errors.New("email already exists")

// ErrNotFound is returned when a row is absent or not visible to the
// caller (e.g. a device owned by someone else). Handlers translate this
// into an HTTP 404 response.
var ErrNotFound = errors.New("not found")
