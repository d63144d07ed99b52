package httpapi

import (
	"errors"
	"net/http"

	"sfucore/internal/core/domain"
	apperrors "sfucore/pkg/errors"
)

// mapRoomError classifies a Room method's error into one of spec.md §7's
// six error kinds. Domain sentinel errors are matched first since they
// carry unambiguous kind information; anything else falls back to
// ServerError, the designated bucket for "other engine failure".
func mapRoomError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrPeerNotFound),
		errors.Is(err, domain.ErrTransportNotFound),
		errors.Is(err, domain.ErrProducerNotFound),
		errors.Is(err, domain.ErrConsumerNotFound),
		errors.Is(err, domain.ErrDataProducerNotFound),
		errors.Is(err, domain.ErrDataConsumerNotFound):
		return apperrors.WrapError(err, apperrors.ErrCodeNotFound, err.Error(), http.StatusNotFound)

	case errors.Is(err, domain.ErrForbiddenOrigin),
		errors.Is(err, domain.ErrForbiddenSecret):
		return apperrors.WrapError(err, apperrors.ErrCodeForbidden, err.Error(), http.StatusForbidden)

	case errors.Is(err, domain.ErrRoomClosed),
		errors.Is(err, domain.ErrPeerAlreadyJoined),
		errors.Is(err, domain.ErrPeerNotJoined),
		errors.Is(err, domain.ErrPipeModeNeedsWorkers):
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidState, err.Error(), http.StatusConflict)

	case errors.Is(err, domain.ErrUnsupportedCapability):
		return apperrors.WrapError(err, apperrors.ErrCodeUnsupported, err.Error(), http.StatusConflict)

	case errors.Is(err, domain.ErrMalformedRequest):
		return apperrors.WrapError(err, apperrors.ErrCodeTypeError, err.Error(), http.StatusBadRequest)

	default:
		return apperrors.WrapError(err, apperrors.ErrCodeServerError, err.Error(), http.StatusInternalServerError)
	}
}
