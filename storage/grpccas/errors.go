package grpccas

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/proofs/storage"
)

// ErrNotConnected is returned by a Client that has no connection.
var ErrNotConnected = errors.New("grpccas: client not connected")

func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.InvalidArgument:
		// Server uses InvalidArgument for malformed/undefined identities.
		return storage.ErrInvalidIdentity
	case codes.DataLoss:
		// Server uses DataLoss when bytes do not match the requested identity.
		return storage.ErrMismatch
	case codes.AlreadyExists:
		return storage.ErrImmutable
	case codes.Unimplemented:
		return storage.ErrUnsupported
	case codes.Unavailable, codes.DeadlineExceeded:
		// Unreachable store: fail fast as not found rather than hang or retry.
		return errors.Join(storage.ErrNotFound, err)
	default:
		// Best-effort: if the server sent a known storage error message, preserve it.
		switch st.Message() {
		case storage.ErrNotFound.Error():
			return storage.ErrNotFound
		case storage.ErrInvalidIdentity.Error():
			return storage.ErrInvalidIdentity
		case storage.ErrMismatch.Error():
			return storage.ErrMismatch
		default:
			return err
		}
	}
}
