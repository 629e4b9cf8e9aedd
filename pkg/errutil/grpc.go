package errutil

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCCode converts the CoreStatus to its closest gRPC status code equivalent.
func (s CoreStatus) GRPCCode() codes.Code {
	switch s {
	case StatusOK:
		return codes.OK
	case StatusUnauthorized:
		return codes.Unauthenticated
	case StatusForbidden:
		return codes.PermissionDenied
	case StatusNotFound:
		return codes.NotFound
	case StatusTimeout, StatusGatewayTimeout:
		return codes.DeadlineExceeded
	case StatusUnprocessableEntity:
		return codes.FailedPrecondition
	case StatusUnsupportedMediaType, StatusBadRequest, StatusValidationFailed:
		return codes.InvalidArgument
	case StatusConflict:
		return codes.AlreadyExists
	case StatusTooManyRequests:
		return codes.ResourceExhausted
	case StatusClientClosedRequest:
		return codes.Canceled
	case StatusNotImplemented:
		return codes.Unimplemented
	case StatusBadGateway, StatusServiceUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// ToGRPCError normalises a domain error into a gRPC status error.
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	var base BaseError
	if errors.As(err, &base) {
		return status.Error(base.Code.GRPCCode(), base.Message)
	}

	return status.Error(StatusOf(err).GRPCCode(), err.Error())
}

// UnaryServerInterceptor converts handler errors with ToGRPCError.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		return resp, ToGRPCError(err)
	}
}
