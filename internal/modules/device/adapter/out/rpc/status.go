package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "uvfleet/internal/platform/errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var codeBySentinel = []struct {
	err  error
	code codes.Code
}{
	{apperrors.ErrDeviceNotFound, codes.NotFound},
	{apperrors.ErrConnectFailed, codes.Unavailable},
	{apperrors.ErrNotConnected, codes.FailedPrecondition},
	{apperrors.ErrCommandFailed, codes.Aborted},
	{apperrors.ErrInvalidInput, codes.InvalidArgument},
}

// ToStatus encodes a driver error so the host can recover its sentinel.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	for _, entry := range codeBySentinel {
		if errors.Is(err, entry.err) {
			return status.Error(entry.code, err.Error())
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// FromStatus maps a gRPC status back onto the transport sentinels.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", apperrors.ErrCommandFailed, err)
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	}
	for _, entry := range codeBySentinel {
		if st.Code() == entry.code {
			msg := strings.TrimPrefix(st.Message(), entry.err.Error()+": ")
			return fmt.Errorf("%w: %s", entry.err, msg)
		}
	}
	return fmt.Errorf("%w: driver: %s", apperrors.ErrCommandFailed, st.Message())
}
