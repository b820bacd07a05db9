package aggregator

import "errors"

var (
    ErrUnknownObserver = errors.New("aggregator: unknown observer")
    ErrNodeOutOfRange  = errors.New("aggregator: node id out of range")
    ErrDuplicateNode   = errors.New("aggregator: duplicate node in report")
    ErrTooManyNodes    = errors.New("aggregator: report has too many nodes")
)
