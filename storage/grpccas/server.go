package grpccas

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/storage"
)

// Server exposes a storage.CAS over the CAS gRPC service.
type Server struct {
	UnimplementedCASServer
	CAS storage.CAS
}

func (s *Server) Put(ctx context.Context, in *PutRequest) (*wrapperspb.StringValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	alg, err := in.GetAlgorithm()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	b := in.GetData()
	// Enforce the identity contract on the server side too.
	expected, err := identity.Identify(b, alg)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	id, err := s.CAS.Put(ctx, b, alg)
	if err != nil {
		return nil, mapErr(err)
	}
	if id != expected {
		return nil, status.Error(codes.DataLoss, storage.ErrMismatch.Error())
	}
	zerolog.Ctx(ctx).Debug().Str("identity", id.String()).Int("size", len(b)).Msg("put")
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := identity.Parse(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidIdentity.Error())
	}
	b, err := s.CAS.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if !id.Matches(b) {
		return nil, status.Error(codes.DataLoss, storage.ErrMismatch.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := identity.Parse(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidIdentity.Error())
	}
	return wrapperspb.Bool(s.CAS.Has(ctx, id)), nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, storage.ErrNotFound.Error())
	case errors.Is(err, storage.ErrInvalidIdentity):
		return status.Error(codes.InvalidArgument, storage.ErrInvalidIdentity.Error())
	case errors.Is(err, storage.ErrMismatch):
		return status.Error(codes.DataLoss, storage.ErrMismatch.Error())
	case errors.Is(err, storage.ErrImmutable):
		return status.Error(codes.AlreadyExists, storage.ErrImmutable.Error())
	case errors.Is(err, storage.ErrUnsupported):
		return status.Error(codes.Unimplemented, storage.ErrUnsupported.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
