package registry

import (
	"errors"

	"bloomd/pkg/filter"
)

var (
	ErrNotFound         = errors.New("registry: filter does not exist")
	ErrExists           = errors.New("registry: filter exists")
	ErrDeleteInProgress = errors.New("registry: delete in progress")
	ErrNotProxied       = errors.New("registry: filter is not proxied")
	ErrShutdown         = errors.New("registry: shut down")
)

// translate maps filter level errors onto registry errors.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, filter.ErrDeleted):
		return ErrNotFound
	case errors.Is(err, filter.ErrNotClosed):
		return ErrNotProxied
	}
	return err
}
