package core

import (
	"errors"
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckNil(t *testing.T) {
	assert.NoError(t, Check("Signal", nil))
}

func TestCheckWrapsWithLocation(t *testing.T) {
	err := Check("CreateFence", ErrOutOfMemory)
	require.Error(t, err)

	var de *DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "CreateFence", de.Call)
	assert.Equal(t, "errors_test.go", de.File)
	assert.NotZero(t, de.Line)
	assert.ErrorIs(t, err, ErrOutOfMemory)
	assert.Equal(t,
		fmt.Sprintf("CreateFence failed in errors_test.go; line %d; error: out of memory", de.Line),
		err.Error())
}

func TestCheckKeepsExistingDeviceError(t *testing.T) {
	inner := NewDeviceError("ResizeBuffers", 7, ErrDeviceLost)
	err := Check("Resize", fmt.Errorf("resize: %w", inner))

	var de *DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "ResizeBuffers", de.Call)
	assert.Equal(t, int64(7), de.Code)
	assert.ErrorIs(t, err, ErrDeviceLost)
}

func TestDeviceErrorWithoutCause(t *testing.T) {
	de := &DeviceError{Call: "Present", File: "swapchain.go", Line: 12}
	assert.Equal(t, "Present failed in swapchain.go; line 12; error: unknown", de.Error())
}

// checkResult stands in for a backend helper reporting on behalf of its caller.
func checkResult(call string, code int64) *DeviceError {
	return NewDeviceErrorAt(call, code, ErrDeviceLost, 1)
}

func TestNewDeviceErrorAtSkipsHelpers(t *testing.T) {
	de := checkResult("vkQueueSubmit", -4)
	_, _, line, _ := runtime.Caller(0)
	assert.Equal(t, "errors_test.go", de.File)
	assert.Equal(t, line-1, de.Line)
	assert.Equal(t, int64(-4), de.Code)
	assert.ErrorIs(t, de, ErrDeviceLost)

	direct := NewDeviceErrorAt("Present", 0, nil, 0)
	_, _, line, _ = runtime.Caller(0)
	assert.Equal(t, line-1, direct.Line)
}
