package dispatcher

import "errors"

var (
	ErrInvalidPeriod = errors.New("period must be a positive number of seconds")
	// ErrWorkerLimit is returned by Register when the configured maximum number
	// of concurrently running workers has been reached.
	ErrWorkerLimit = errors.New("worker limit reached")
	// ErrDispatcherClosed is returned by Register once shutdown has completed
	// and the endpoint has been released.
	ErrDispatcherClosed = errors.New("dispatcher is shut down")
)
