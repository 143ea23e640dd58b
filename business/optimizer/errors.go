package optimizer

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid optimizer config")
	ErrInvalidWindow = errors.New("invalid optimizer window")
	ErrNoSamples     = errors.New("no reward samples for action")
)
