package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed daemon request frame.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidUser indicates a request frame without a usable user identity.
	ErrInvalidUser = errors.New("invalid user")
	// ErrUserMismatch indicates a request frame sent by a user other than the daemon owner.
	ErrUserMismatch = errors.New("user does not own daemon")
	// ErrInvalidJob indicates a job reference without a jobname or jobid.
	ErrInvalidJob = errors.New("invalid job")
	// ErrNoProfile indicates no z/OSMF connection details could be resolved.
	ErrNoProfile = errors.New("no zosmf profile")
)
