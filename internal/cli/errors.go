package cli

import "errors"

var (
	ErrInvalidID = errors.New("device id must be integer")
	ErrMissingID = errors.New("missing device id argument")
	ErrNoInput   = errors.New("no input provided")
)
