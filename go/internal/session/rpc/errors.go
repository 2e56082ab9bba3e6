package rpc

import (
	"errors"

	"connectrpc.com/connect"
	"github.com/mcdev12/livequiz/go/internal/apperr"
	"github.com/rs/zerolog/log"
)

var codes = []struct {
	kind error
	code connect.Code
}{
	{apperr.ErrValidation, connect.CodeInvalidArgument},
	{apperr.ErrState, connect.CodeFailedPrecondition},
	{apperr.ErrNotFound, connect.CodeNotFound},
	{apperr.ErrForbidden, connect.CodePermissionDenied},
	{apperr.ErrConflict, connect.CodeAlreadyExists},
	{apperr.ErrTransient, connect.CodeUnavailable},
}

// toConnectError maps an engine error to its connect code
func toConnectError(procedure string, err error) error {
	if err == nil {
		return nil
	}
	kind := apperr.Kind(err)
	for _, c := range codes {
		if c.kind == kind {
			return connect.NewError(c.code, err)
		}
	}
	log.Error().Err(err).Str("procedure", procedure).Msg("session rpc failed")
	return connect.NewError(connect.CodeInternal, err)
}

// FromConnectError maps a connect error received by a client back to an engine
// error kind so callers can test it with errors.Is. Network failures become
// apperr.ErrTransient.
func FromConnectError(err error) error {
	if err == nil {
		return nil
	}
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return apperr.Transient("%v", err)
	}
	switch cerr.Code() {
	case connect.CodeUnauthenticated:
		return errors.Join(ErrUnauthenticated, err)
	case connect.CodeUnavailable, connect.CodeDeadlineExceeded, connect.CodeCanceled, connect.CodeUnknown:
		return apperr.Transient("%s", cerr.Message())
	}
	for _, c := range codes {
		if c.code == cerr.Code() {
			return errors.Join(c.kind, errors.New(cerr.Message()))
		}
	}
	return err
}
