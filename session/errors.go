package session

import "fmt"

// InvalidStateError reports an operation that the current state does not
// permit.
type InvalidStateError struct {
	State     string
	Operation string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("stomp session: %s is not allowed in state %s", e.Operation, e.State)
}

// DrainingMessageError reports an operation that must wait until the
// buffered consumer frames are drained.
type DrainingMessageError struct {
	State     string
	Operation string
}

func (e *DrainingMessageError) Error() string {
	return fmt.Sprintf("stomp session: %s is not allowed while draining buffered messages (%s)", e.Operation, e.State)
}
