package scan

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration     = errors.New("scan: invalid configuration")
	ErrUnknownKey        = errors.New("scan: unknown configuration key")
	ErrNotInitialized    = errors.New("scan: scan not initialized")
	ErrScanRunning       = errors.New("scan: scan already running")
	ErrRecoveryExhausted = errors.New("scan: position recovery failed")
	ErrNilController     = errors.New("scan: controller is nil")
)

// ConfigError reports a rejected configuration key or value. It matches
// ErrConfiguration.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("scan: config %q: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() []error {
	return []error{ErrConfiguration, e.Err}
}

// PointError reports a grid point the scan could not complete.
type PointError struct {
	Point GridPoint
	Err   error
}

func (e *PointError) Error() string {
	return fmt.Sprintf("scan: point %s at (%d, %d): %v", e.Point.Index(), e.Point.X, e.Point.Y, e.Err)
}

func (e *PointError) Unwrap() error { return e.Err }
