package rmsdk

import (
	"errors"
	"fmt"

	"github.com/imroc/req/v3"
)

var (
	ErrFileNotFound = errors.New("rmsdk: file not found")
	ErrNoAddress    = errors.New("rmsdk: device address missing")
)

// Kind classifies a failed device call.
type Kind int

const (
	// KindUnreachable covers connection refused, timeouts and routing
	// failures. The device is simply not there.
	KindUnreachable Kind = iota + 1

	// KindHTTP means the device answered with a non-success status.
	KindHTTP
)

func (k Kind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindHTTP:
		return "http"
	default:
		return "unknown"
	}
}

// DeviceError is the error type for every failed device call.
type DeviceError struct {
	Kind   Kind
	Op     string
	Status int // HTTP status, set for KindHTTP
	Err    error
}

func (e *DeviceError) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("device error: %s: http %d", e.Op, e.Status)
	default:
		return fmt.Sprintf("device error: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *DeviceError) Unwrap() error { return e.Err }

// IsUnreachable reports whether err means the device could not be reached.
func IsUnreachable(err error) bool {
	var de *DeviceError
	return errors.As(err, &de) && de.Kind == KindUnreachable
}

// HTTPStatus extracts the status code when err is a device HTTP error.
func HTTPStatus(err error) (int, bool) {
	var de *DeviceError
	if errors.As(err, &de) && de.Kind == KindHTTP {
		return de.Status, true
	}
	return 0, false
}

// handleDeviceError maps a req response/error pair to a *DeviceError.
// Transport failures of any flavor count as unreachable; a served response
// with an error status keeps its code. No retries happen at this layer.
func handleDeviceError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return &DeviceError{Kind: KindUnreachable, Op: operation, Err: requestErr}
	}

	if resp.IsErrorState() {
		return &DeviceError{Kind: KindHTTP, Op: operation, Status: resp.GetStatusCode()}
	}

	return nil
}
