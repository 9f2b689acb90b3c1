package filter

import "errors"

var (
	ErrBadName   = errors.New("filter: bad filter name")
	ErrDeleted   = errors.New("filter: filter is being deleted")
	ErrNotClosed = errors.New("filter: filter is not closed")
	ErrStorage   = errors.New("filter: storage failure")
	ErrAlive     = errors.New("filter: filter is not being deleted")
)
