package services

import "errors"

var (
	// ErrValidation marks input rejected before anything is written.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing offer, conversion or setting.
	ErrNotFound = errors.New("not found")
	// ErrPersistence marks a failed insert or update.
	ErrPersistence = errors.New("persistence failed")
	// ErrQueueUnavailable is returned when redelivery is requested without a queue.
	ErrQueueUnavailable = errors.New("redelivery queue not configured")
)
