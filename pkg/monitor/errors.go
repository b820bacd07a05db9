package monitor

import "errors"

var (
    ErrInvalidOptions = errors.New("monitor: invalid options")
    ErrClosed         = errors.New("monitor: closed")
)
