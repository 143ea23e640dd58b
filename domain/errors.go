package domain

import "errors"

var (
	ErrRunNotFound          = errors.New("optimizer run not found")
	ErrDistributionNotFound = errors.New("distributions not found")
)
