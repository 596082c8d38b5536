package router

import (
	"errors"

	"github.com/mcoot/wordgroups/internal/model"
	"github.com/mcoot/wordgroups/internal/protocol"
)

// Status codes carried in error responses
const (
	StatusBadRequest      = 400
	StatusUnauthenticated = 401
	StatusForbidden       = 403
	StatusNotFound        = 404
	StatusTimeout         = 408
	StatusConflict        = 409
	StatusUnprocessable   = 422
	StatusInternal        = 500
)

// toErrorResponse converts a handler error into its wire form
func toErrorResponse(err error) *protocol.ErrorResponse {
	var unknown *protocol.UnknownOperationError
	if errors.As(err, &unknown) {
		return protocol.NewError(StatusBadRequest, protocol.CodeBadRequest, err.Error())
	}

	switch {
	case errors.Is(err, model.ErrMalformedPayload),
		errors.Is(err, model.ErrBadRequest),
		errors.Is(err, model.ErrInvalidRound):
		return protocol.NewError(StatusBadRequest, protocol.CodeBadRequest, err.Error())

	case errors.Is(err, model.ErrUnauthenticated),
		errors.Is(err, model.ErrAlreadyLoggedIn),
		errors.Is(err, model.ErrInvalidCredentials):
		return protocol.NewError(StatusUnauthenticated, protocol.CodeUnauthenticated, err.Error())

	case errors.Is(err, model.ErrForbidden):
		return protocol.NewError(StatusForbidden, protocol.CodeForbidden, err.Error())

	case errors.Is(err, model.ErrRoundNotFound),
		errors.Is(err, model.ErrUserNotFound):
		return protocol.NewError(StatusNotFound, protocol.CodeNotFound, err.Error())

	case errors.Is(err, model.ErrUsernameExists),
		errors.Is(err, model.ErrAlreadyOnline),
		errors.Is(err, model.ErrAlreadyFinished):
		return protocol.NewError(StatusConflict, protocol.CodeConflict, err.Error())

	case errors.Is(err, model.ErrInvalidWords):
		return protocol.NewError(StatusUnprocessable, protocol.CodeInvalidWords, err.Error())
	case errors.Is(err, model.ErrDuplicateGuess):
		return protocol.NewError(StatusUnprocessable, protocol.CodeDuplicateGuess, err.Error())

	case errors.Is(err, model.ErrRoundExpired),
		errors.Is(err, model.ErrNoActiveRound):
		return protocol.NewError(StatusTimeout, protocol.CodeTimeout, err.Error())

	default:
		return internalError()
	}
}

func internalError() *protocol.ErrorResponse {
	return protocol.NewError(StatusInternal, protocol.CodeInternal, "internal server error")
}
