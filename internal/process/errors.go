package process

import "errors"

var (
	// ErrAlreadyRunning is returned by Start on a running manager.
	ErrAlreadyRunning = errors.New("process: already running")

	// ErrNotReady is returned by WaitReady when the process never became healthy.
	ErrNotReady = errors.New("process: not ready")
)

// RecoverableError is implemented by errors that know whether a restart
// can help. A health check returning a non-recoverable error stops the
// restart loop.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// IsRecoverable reports whether a restart should be attempted after err.
// Errors that do not implement RecoverableError are recoverable.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	var re RecoverableError
	if errors.As(err, &re) {
		return re.IsRecoverable()
	}
	return true
}
