package account

import "errors"

// Sentinel errors returned by Manager operations. Callers match them with
// errors.Is; the transport layer maps them to user-facing messages.
var (
	// ErrValidation means the input was rejected before anything was
	// touched. Safe to retry with corrected input.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateUser means the username already exists in the document.
	ErrDuplicateUser = errors.New("user already exists")

	// ErrUserNotFound means no record matched the username.
	ErrUserNotFound = errors.New("user not found")

	// ErrStorage means the user document could not be read or written.
	// When it occurs before provisioning, no system account was touched.
	ErrStorage = errors.New("user database error")

	// ErrProvisioning means the system-login step failed; for create, the
	// compensating document rollback succeeded.
	ErrProvisioning = errors.New("system account provisioning failed")

	// ErrRollbackFailed means a provisioning failure was followed by a
	// failed compensating save: the document still lists a user that has
	// no system login. Operators must reconcile manually.
	ErrRollbackFailed = errors.New("rollback after provisioning failure failed")
)
