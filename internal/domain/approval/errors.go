package approval

import "errors"

// Sentinel errors for the approval domain. Handlers translate these into
// HTTP status codes; everything else surfaces as a 500.
var (
	// ErrNotFound means the document, approval, or workflow does not exist,
	// or an approval was addressed under the wrong document.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the caller is not allowed to perform the operation
	// on this resource.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState means the document's current status does not permit
	// the requested transition.
	ErrInvalidState = errors.New("invalid state for operation")

	// ErrNoApprovers means an approval request named no approvers and the
	// document type has no workflow to fall back on.
	ErrNoApprovers = errors.New("no approvers configured")
)
