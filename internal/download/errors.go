package download

import "errors"

var (
	// ErrNotFound indicates the image service answered 404
	ErrNotFound = errors.New("not_found")

	// ErrForbidden indicates the image service answered 403
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthorized indicates the image service answered 401
	ErrUnauthorized = errors.New("unauthorized")

	// ErrServerError indicates a 5xx answer from the image service
	ErrServerError = errors.New("server_error")

	// ErrUnexpectedStatus covers any other non-2xx answer
	ErrUnexpectedStatus = errors.New("unexpected_status")

	// ErrStopped indicates a stop was requested before the image was registered
	ErrStopped = errors.New("stopped")
)
