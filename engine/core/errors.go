package core

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
)

var (
	ErrDeviceLost         = errors.New("device lost")
	ErrOutOfMemory        = errors.New("out of memory")
	ErrInvalidDimensions  = errors.New("invalid dimensions")
	ErrAssetMissing       = errors.New("asset missing")
	ErrSwapchainResizing  = errors.New("swapchain is being resized")
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")
	ErrUnknown            = errors.New("unknown")
)

// DeviceError identifies a failed graphics call together with the place it
// was issued from.
type DeviceError struct {
	// Name of the failing call, e.g. "CreateCommittedResource".
	Call string
	File string
	Line int
	// Backend specific result code, zero when the backend has none.
	Code int64
	Err  error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s failed in %s; line %d; error: %s", e.Call, e.File, e.Line, e.description())
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

func (e *DeviceError) description() string {
	if e.Err == nil {
		return ErrUnknown.Error()
	}
	return e.Err.Error()
}

// NewDeviceError records the caller of NewDeviceError as the failing site.
func NewDeviceError(call string, code int64, err error) *DeviceError {
	return newDeviceError(call, code, err, 2)
}

// NewDeviceErrorAt is NewDeviceError for helpers which check results on
// behalf of their caller. skip counts the frames between the helper and the
// site to record, 1 records the helper's caller.
func NewDeviceErrorAt(call string, code int64, err error, skip int) *DeviceError {
	return newDeviceError(call, code, err, skip+2)
}

// Check wraps a non-nil err returned by call into a *DeviceError carrying the
// caller location. A nil err yields nil. Errors which already are a
// *DeviceError are returned as they are.
func Check(call string, err error) error {
	if err == nil {
		return nil
	}
	var de *DeviceError
	if errors.As(err, &de) {
		return err
	}
	return newDeviceError(call, 0, err, 2)
}

func newDeviceError(call string, code int64, err error, skip int) *DeviceError {
	de := &DeviceError{
		Call: call,
		Code: code,
		Err:  err,
	}
	if _, file, line, ok := runtime.Caller(skip); ok {
		de.File = filepath.Base(file)
		de.Line = line
	}
	return de
}
