package relay

import "errors"

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a frame failed shape or schema validation.
	ErrValidation = errors.New("validation error")

	// ErrUnknownRole indicates a join named a role other than plugin or
	// agent.
	ErrUnknownRole = errors.New("unknown role")

	// ErrRoleConflict indicates the requested role slot of a channel is
	// already occupied.
	ErrRoleConflict = errors.New("role already connected")

	// ErrAlreadyJoined indicates a connection tried to join while it is
	// already a member of a channel under a different key or role.
	ErrAlreadyJoined = errors.New("connection already joined")

	// ErrNotJoined indicates a frame arrived from a connection that has not
	// joined any channel.
	ErrNotJoined = errors.New("connection not joined")

	// ErrNoCounterpart indicates the other role of a channel is not
	// connected.
	ErrNoCounterpart = errors.New("no counterpart connected")

	// ErrPersistence indicates no log candidate path accepted a write.
	ErrPersistence = errors.New("persistence error")
)
