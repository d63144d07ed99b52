package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"sfucore/internal/core/domain"
	apperrors "sfucore/pkg/errors"

	"github.com/stretchr/testify/assert"
)

func TestMapRoomError_NotFoundKinds(t *testing.T) {
	for _, err := range []error{
		domain.ErrRoomNotFound,
		domain.ErrPeerNotFound,
		domain.ErrTransportNotFound,
		domain.ErrProducerNotFound,
		domain.ErrConsumerNotFound,
		domain.ErrDataProducerNotFound,
		domain.ErrDataConsumerNotFound,
	} {
		mapped := mapRoomError(err)
		assert.Equal(t, apperrors.ErrCodeNotFound, mapped.Code)
		assert.Equal(t, http.StatusNotFound, mapped.HTTPStatus)
	}
}

func TestMapRoomError_ForbiddenKinds(t *testing.T) {
	for _, err := range []error{domain.ErrForbiddenOrigin, domain.ErrForbiddenSecret} {
		mapped := mapRoomError(err)
		assert.Equal(t, apperrors.ErrCodeForbidden, mapped.Code)
		assert.Equal(t, http.StatusForbidden, mapped.HTTPStatus)
	}
}

func TestMapRoomError_InvalidStateKinds(t *testing.T) {
	for _, err := range []error{
		domain.ErrRoomClosed,
		domain.ErrPeerAlreadyJoined,
		domain.ErrPeerNotJoined,
		domain.ErrPipeModeNeedsWorkers,
	} {
		mapped := mapRoomError(err)
		assert.Equal(t, apperrors.ErrCodeInvalidState, mapped.Code)
		assert.Equal(t, http.StatusConflict, mapped.HTTPStatus)
	}
}

func TestMapRoomError_UnsupportedCapability(t *testing.T) {
	mapped := mapRoomError(domain.ErrUnsupportedCapability)
	assert.Equal(t, apperrors.ErrCodeUnsupported, mapped.Code)
	assert.Equal(t, http.StatusConflict, mapped.HTTPStatus)
}

func TestMapRoomError_MalformedRequest(t *testing.T) {
	mapped := mapRoomError(domain.ErrMalformedRequest)
	assert.Equal(t, apperrors.ErrCodeTypeError, mapped.Code)
	assert.Equal(t, http.StatusBadRequest, mapped.HTTPStatus)
}

func TestMapRoomError_UnknownErrorFallsBackToServerError(t *testing.T) {
	mapped := mapRoomError(errors.New("engine exploded"))
	assert.Equal(t, apperrors.ErrCodeServerError, mapped.Code)
	assert.Equal(t, http.StatusInternalServerError, mapped.HTTPStatus)
}

func TestMapRoomError_WrappedSentinelStillMatches(t *testing.T) {
	wrapped := fmt.Errorf("join broadcaster: %w", domain.ErrPeerAlreadyJoined)
	mapped := mapRoomError(wrapped)
	assert.Equal(t, apperrors.ErrCodeInvalidState, mapped.Code)
}
