package errutil

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errSentinel = errors.New("sentinel")

func TestBaseErrorUnwrapsSentinel(t *testing.T) {
	err := Conflict("kid already exists", errSentinel)

	require.ErrorIs(t, err, errSentinel)
	require.Equal(t, StatusConflict, StatusOf(err))
	require.Equal(t, "[conflict] kid already exists: sentinel", err.Error())
}

func TestStatusOf(t *testing.T) {
	require.Equal(t, StatusOK, StatusOf(nil))
	require.Equal(t, StatusInternal, StatusOf(errors.New("boom")))
	require.Equal(t, StatusNotFound, StatusOf(NotFound("missing", nil)))
}

func TestHTTPStatus(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, StatusValidationFailed.HTTPStatus())
	require.Equal(t, http.StatusConflict, StatusConflict.HTTPStatus())
	require.Equal(t, http.StatusNotFound, StatusNotFound.HTTPStatus())
	require.Equal(t, http.StatusInternalServerError, StatusUnknown.HTTPStatus())
}

func TestToGRPCError(t *testing.T) {
	require.NoError(t, ToGRPCError(nil))
	require.Equal(t, codes.AlreadyExists, status.Code(ToGRPCError(Conflict("dup", nil))))
	require.Equal(t, codes.Canceled, status.Code(ToGRPCError(context.Canceled)))
	require.Equal(t, codes.Internal, status.Code(ToGRPCError(errors.New("boom"))))
}

func TestWithDetails(t *testing.T) {
	err := BadRequest("invalid request", nil, WithDetails(Detail{Field: "seats", Message: "must be >= 1"}))

	var be BaseError
	require.True(t, errors.As(err, &be))
	require.Len(t, be.Details, 1)
	require.Equal(t, "seats", be.Details[0].Field)
}
