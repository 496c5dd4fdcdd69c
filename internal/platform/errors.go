package platform

import "errors"

// Error taxonomy shared across the framework. Services wrap these with
// fmt.Errorf("...: %w", err) so callers can match with errors.Is.
var (
	// ErrValidation marks a malformed room id, email or parameter
	ErrValidation = errors.New("validation failed")
	// ErrPolicyDenied marks an action refused by preconditions or rules
	ErrPolicyDenied = errors.New("policy denied")
	// ErrNotFound marks a room/membership/message/person lookup miss
	ErrNotFound = errors.New("not found")
	// ErrTransport marks a failed platform or storage call
	ErrTransport = errors.New("transport failure")
)
