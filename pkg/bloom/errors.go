package bloom

import "errors"

var (
	ErrBadParams   = errors.New("bloom: bad params")
	ErrCorruptData = errors.New("bloom: corrupt generation data")
)
