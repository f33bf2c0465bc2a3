package connections

import "errors"

var (
	// ErrTargetNotFound indicates the request receiver could not be resolved to a user.
	ErrTargetNotFound = errors.New("target user not found")
	// ErrDuplicateRequest indicates a request already exists for the (sender, receiver) pair.
	ErrDuplicateRequest = errors.New("connection request already exists")
	// ErrRequestNotFound indicates no pending request matches the operation.
	ErrRequestNotFound = errors.New("connection request not found")
	// ErrSelfRequest indicates a user attempted to send a request to themselves.
	ErrSelfRequest = errors.New("cannot send a connection request to yourself")
)
