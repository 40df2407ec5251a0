package database

import "errors"

var (
	// ErrNoHistory is returned by Open when the database does not exist
	// and CreateIfNotExists is false.
	ErrNoHistory = errors.New("no run history found")

	// ErrRunNotFound is returned when a run ID is not in the database.
	ErrRunNotFound = errors.New("run not found")
)
