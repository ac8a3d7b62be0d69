package grpcsvc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// CodeForKind сопоставляет категорию доменной ошибки с кодом gRPC.
func CodeForKind(kind domain.ErrorKind) codes.Code {
	switch kind {
	case domain.KindNone:
		return codes.OK
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindInvalidInput:
		return codes.InvalidArgument
	case domain.KindPrecondition:
		return codes.FailedPrecondition
	case domain.KindAlreadyExists:
		return codes.AlreadyExists
	case domain.KindConflict:
		return codes.Aborted
	case domain.KindForbidden:
		return codes.PermissionDenied
	default:
		return codes.Internal
	}
}

// StatusFromError переводит ошибку операции в gRPC статус.
// Готовые статусы и ошибки контекста сохраняют свой код; текст внутренних ошибок наружу не отдаётся.
func StatusFromError(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	if st, ok := status.FromError(err); ok {
		return st
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.New(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.New(codes.DeadlineExceeded, err.Error())
	}

	code := CodeForKind(domain.Kind(err))
	if code == codes.Internal {
		return status.New(codes.Internal, "internal error")
	}
	return status.New(code, err.Error())
}
