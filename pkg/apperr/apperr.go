// Package apperr classifies domain errors into HTTP-facing kinds.
//
// Service packages return sentinel errors from pkg/models; HTTP handlers
// call KindOf to pick a status and error code without switching on every
// sentinel themselves.
package apperr

import (
	"errors"
	"net/http"

	"github.com/inkvault/inkvault/pkg/models"
)

// Kind is the coarse classification of a failed operation.
type Kind int

const (
	Internal Kind = iota
	Unauthorized
	Forbidden
	NotFound
	Conflict
	BadRequest
	RateLimited
)

// CodeSyncHeld is the vendor error code for a sync lease held by another
// equipment. Clients key their retry behavior on it.
const CodeSyncHeld = "E0078"

// KindOf maps an error to its Kind. Unknown errors are Internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return Internal
	case errors.Is(err, models.ErrTokenInvalid),
		errors.Is(err, models.ErrInvalidCredentials):
		return Unauthorized
	case errors.Is(err, models.ErrSystemDirectory),
		errors.Is(err, models.ErrBadSignature),
		errors.Is(err, models.ErrURLExpired),
		errors.Is(err, models.ErrNonceConsumed),
		errors.Is(err, models.ErrUserDisabled):
		return Forbidden
	case errors.Is(err, models.ErrNodeNotFound),
		errors.Is(err, models.ErrBlobNotFound),
		errors.Is(err, models.ErrRecycleNotFound),
		errors.Is(err, models.ErrUserNotFound),
		errors.Is(err, models.ErrUploadNotFound),
		errors.Is(err, models.ErrKeyNotFound):
		return NotFound
	case errors.Is(err, models.ErrNameConflict),
		errors.Is(err, models.ErrSyncHeld),
		errors.Is(err, models.ErrLockHeld),
		errors.Is(err, models.ErrDuplicateUser):
		return Conflict
	case errors.Is(err, models.ErrCyclicMove),
		errors.Is(err, models.ErrNotAFolder),
		errors.Is(err, models.ErrHashMismatch):
		return BadRequest
	case errors.Is(err, models.ErrRateLimited):
		return RateLimited
	default:
		return Internal
	}
}

// HTTPStatus returns the HTTP status code for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case BadRequest:
		return http.StatusBadRequest
	case RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the vendor error code for the error, or "" if none applies.
func Code(err error) string {
	if errors.Is(err, models.ErrSyncHeld) {
		return CodeSyncHeld
	}
	return ""
}
