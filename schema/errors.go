package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrTabNotFound indicates an operation referenced a tab that is no longer tracked.
	ErrTabNotFound = errors.New("tab not found")
	// ErrWindowNotFound indicates an unknown window.
	ErrWindowNotFound = errors.New("window not found")
	// ErrInvalidStructure indicates a rejected structural change.
	ErrInvalidStructure = errors.New("invalid tree structure")
	// ErrCycle indicates an attach would make a tab its own ancestor.
	ErrCycle = fmt.Errorf("%w: tab would become its own ancestor", ErrInvalidStructure)
	// ErrPinned indicates a pinned tab was used as parent or child.
	ErrPinned = fmt.Errorf("%w: pinned tabs cannot be attached", ErrInvalidStructure)
	// ErrCrossWindow indicates parent and child live in different windows.
	ErrCrossWindow = fmt.Errorf("%w: parent is in a different window", ErrInvalidStructure)
	// ErrMissingTab is returned by the external service when a tab is already gone.
	ErrMissingTab = errors.New("missing tab")
	// ErrConfirmTimeout indicates the external service did not confirm in time.
	ErrConfirmTimeout = errors.New("confirmation timed out")
	// ErrTabRemovedDuringMove indicates the root of a subtree move disappeared.
	ErrTabRemovedDuringMove = errors.New("tab was removed before moving descendants")
	// ErrInvalidCommand indicates a malformed broadcast command.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrInvalidConfig indicates an invalid tree configuration value.
	ErrInvalidConfig = errors.New("invalid config")
)
