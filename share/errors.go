package share

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateMember      = errors.New("member already present")
	ErrPendingRemoval       = errors.New("member is pending removal, restore it instead")
	ErrNotFound             = errors.New("member not found")
	ErrInvalidState         = errors.New("member is not pending removal")
	ErrConcurrentSubmission = errors.New("submission already in progress")
	ErrClosed               = errors.New("edit session closed")
)

// MemberError records the member a working set operation failed on.
type MemberError struct {
	Op   string
	Name string
	Err  error
}

func (e *MemberError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Name, e.Err)
}

func (e *MemberError) Unwrap() error {
	return e.Err
}
