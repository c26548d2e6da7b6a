package relval

import (
	"errors"
	"net/http"

	"github.com/jacentio/relval/controller"
	"github.com/jacentio/relval/locker"
	"github.com/jacentio/relval/model"
	"github.com/jacentio/relval/store"
	"github.com/jacentio/relval/submission"
)

// HTTPStatus maps an error returned by the core to an HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, locker.ErrLockTimeout), errors.Is(err, submission.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, controller.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, controller.ErrEditNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, controller.ErrAlreadyExists),
		errors.Is(err, controller.ErrSerialExhausted),
		errors.Is(err, submission.ErrAlreadyQueued),
		errors.Is(err, submission.ErrAlreadyRunning),
		errors.Is(err, store.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, controller.ErrDomainVeto):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrValidationFailed),
		errors.Is(err, model.ErrTypeMismatch),
		errors.Is(err, model.ErrInvalidKey),
		errors.Is(err, model.ErrUnknownAttribute),
		errors.Is(err, model.ErrImmutableAttribute),
		errors.Is(err, store.ErrInvalidFilter),
		errors.Is(err, store.ErrInvalidDocument):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
