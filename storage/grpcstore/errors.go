package grpcstore

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/consign/storage"
)

// mapErr converts a storage error into a gRPC status.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, storage.ErrNotFound.Error())
	case errors.Is(err, storage.ErrInvalidID):
		return status.Error(codes.InvalidArgument, storage.ErrInvalidID.Error())
	case errors.Is(err, storage.ErrInvalidContent):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrIDMismatch):
		return status.Error(codes.DataLoss, storage.ErrIDMismatch.Error())
	case errors.Is(err, storage.ErrImmutable):
		return status.Error(codes.AlreadyExists, storage.ErrImmutable.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// mapRPC converts a gRPC status back into the storage sentinel it stands for.
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
	case codes.DataLoss:
		return storage.ErrIDMismatch
	case codes.AlreadyExists:
		return storage.ErrImmutable
	case codes.InvalidArgument:
		if st.Message() == storage.ErrInvalidID.Error() {
			return storage.ErrInvalidID
		}
		return errors.Join(storage.ErrInvalidContent, errors.New(st.Message()))
	default:
		return err
	}
}
