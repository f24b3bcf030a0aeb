package bridge

import (
	"errors"
	"fmt"
	"strings"
)

// InsufficientStorageMarker is the package-manager output emitted when
// the device has no room left for an install.
const InsufficientStorageMarker = "INSTALL_FAILED_INSUFFICIENT_STORAGE"

// ErrInsufficientStorage classifies install failures caused by a full
// device. Match with errors.Is against a *CommandError.
var ErrInsufficientStorage = errors.New("insufficient storage on device")

// CommandError reports a remote command that exited unsuccessfully.
type CommandError struct {
	Args     []string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("remote command %q failed with exit code %d: %s",
		strings.Join(e.Args, " "), e.ExitCode, e.Output)
}

// Is matches ErrInsufficientStorage when the captured output carries the
// package manager's storage marker.
func (e *CommandError) Is(target error) bool {
	return target == ErrInsufficientStorage && strings.Contains(e.Output, InsufficientStorageMarker)
}
