package publish

import "errors"

var (
	ErrVideoNotFound = errors.New("video not found")
	ErrNoPublisher   = errors.New("no publisher configured")
)
