package store

import "errors"

var (
	// ErrEmptyRunID indicates a run ID parameter is missing or empty
	ErrEmptyRunID = errors.New("empty_run_id")

	// ErrEmptyPath indicates a path parameter is missing or empty
	ErrEmptyPath = errors.New("empty_path")

	// ErrRunNotFound indicates no run row matched
	ErrRunNotFound = errors.New("run_not_found")

	// ErrPathNotFound indicates no image row matched the run and path
	ErrPathNotFound = errors.New("path_not_found")
)
