package coordinator

import "errors"

// Authorization and validation failures short-circuit before any dispatch:
// no transaction row is written because nothing was sent to the hardware.
var (
	// ErrInvalidDuration is returned when durationSeconds falls outside the
	// role-dependent [min, max] bounds.
	ErrInvalidDuration = errors.New("duration out of range")

	// ErrTokenInvalid is returned when a token is unknown, expired, already
	// consumed, or bound to a different locker.
	ErrTokenInvalid = errors.New("token invalid, expired or already used")

	// ErrPermissionDenied is returned when the permission resolver denies
	// the (user, locker) pair.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrForbidden is returned when a force operation is requested without
	// an admin role.
	ErrForbidden = errors.New("force requires an administrator role")

	// ErrLockerNotFound is returned for unknown locker ids.
	ErrLockerNotFound = errors.New("locker not found")

	// ErrLockerUnavailable is returned when the locker's cached status is
	// maintenance or offline and the caller holds no force capability.
	ErrLockerUnavailable = errors.New("locker unavailable")
)
