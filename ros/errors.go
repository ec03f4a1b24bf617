package ros

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/brokenrobotz/viam-ros-bridge/pkg/msgs"
)

// Errors shared by every layer of the bridge.
var (
	// ErrConfigMissing means a consumer lacks required configuration. Fatal to that consumer only.
	ErrConfigMissing = errors.New("required configuration missing")

	// ErrAlreadyExists means a live resource already holds the (node, name, kind) slot.
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrNotAvailable means the remote counterpart is not currently discoverable.
	ErrNotAvailable = errors.New("remote counterpart not available")

	// ErrAlreadyTerminal means the operation reached a terminal state before the request.
	ErrAlreadyTerminal = errors.New("operation already terminal")

	// ErrInitializationFailed means the underlying node could not be created.
	ErrInitializationFailed = errors.New("node initialization failed")

	// ErrUnknownResource means the resource id is not (or no longer) registered.
	ErrUnknownResource = errors.New("unknown resource")

	// ErrUnknownOperation means the correlation id is unknown.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrWrongKind means the requested operation does not apply to the resource kind.
	ErrWrongKind = errors.New("operation not supported by resource kind")

	// ErrUnknownType means the message, service or action type is not registered.
	ErrUnknownType = msgs.ErrUnknownType

	// ErrClosed means the owner was shut down.
	ErrClosed = errors.New("closed")
)

// TeardownError records a failure while releasing a resource. It is logged and
// never propagated to the caller that requested the teardown.
type TeardownError struct {
	Subject string
	Err     error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("teardown of %s: %v", e.Subject, e.Err)
}

func (e *TeardownError) Unwrap() error {
	return e.Err
}
