package types

import "errors"

var (
	ErrEmptyName    = errors.New("name must not be blank")
	ErrEmptyRoom    = errors.New("room must not be blank")
	ErrUnknownEvent = errors.New("unknown event")
	ErrNoPayload    = errors.New("event requires a data payload")
)
