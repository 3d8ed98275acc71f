package acl

import "fmt"

// TransportError means a message could not be delivered to its recipient.
// It is fatal to the initiating agent.
type TransportError struct {
	Recipient Endpoint
	Cause     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: cannot deliver to %s: %v", e.Recipient, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// MalformedContentError covers a missing ontology, unknown action, or
// deserialization failure during content extraction.
type MalformedContentError struct {
	Reason string
}

func (e *MalformedContentError) Error() string {
	return fmt.Sprintf("malformed content: %s", e.Reason)
}

// StateViolationError covers capacity exceeded, duplicate container id, or
// self-deallocation of an unknown id.
type StateViolationError struct {
	Reason string
}

func (e *StateViolationError) Error() string {
	return fmt.Sprintf("state violation: %s", e.Reason)
}

// ContractViolationError covers a counterparty returning an unexpected
// performative. Treated as a bug; it terminates the affected agent.
type ContractViolationError struct {
	Expected string
	Got      Performative
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("contract violation: expected %s, got %s", e.Expected, e.Got)
}

// TimeoutError describes an expired AwaitResponses/AwaitResults deadline.
// The behavior runners apply no such deadline, so no code in this module
// returns it.
type TimeoutError struct {
	Phase string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for %s", e.Phase)
}
