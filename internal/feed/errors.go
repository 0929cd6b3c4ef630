package feed

import "errors"

var (
	ErrServerAlreadyRunning = errors.New("feed is already running")
	ErrServerNotRunning     = errors.New("feed is not running")
)
