package errors

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error is the typed error carried across every package boundary in the
// bridge. The code drives classification (retryability, gRPC mapping,
// categories for metrics); the message is always human-readable.
type Error struct {
	code       ERR
	message    string
	wrappedErr error
}

type Interface interface {
	Error() string
	Is(target error) bool
	As(target interface{}) bool
	Unwrap() error

	Code() ERR
	Message() string
	WrappedErr() error
}

func (e *Error) Error() string {
	// Error() can be called on wrapped errors, which can be nil, for example predefined errors
	if e == nil {
		return "<nil>"
	}

	if e.WrappedErr() == nil {
		return fmt.Sprintf("%s (%d): %s", e.code.Enum(), e.code, e.message)
	}

	return fmt.Sprintf("%s (%d): %s: %v", e.code.Enum(), e.code, e.message, e.wrappedErr)
}

// Is reports whether error codes match, walking the wrap chain.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}

	targetError, ok := target.(*Error)
	if !ok {
		return strings.Contains(e.Error(), target.Error())
	}

	if e.code == targetError.code {
		return true
	}

	if e.wrappedErr == nil {
		return false
	}

	if unwrapped := errors.Unwrap(e); unwrapped != nil {
		if ue, ok := unwrapped.(*Error); ok {
			return ue.Is(target)
		}
	}

	return false
}

func (e *Error) As(target interface{}) bool {
	if e == nil {
		return false
	}

	if targetErr, ok := target.(**Error); ok {
		*targetErr = e
		return true
	}

	if e.wrappedErr != nil {
		// guard against typed-nil wrapped errors
		if reflect.ValueOf(e.wrappedErr).Kind() == reflect.Ptr && reflect.ValueOf(e.wrappedErr).IsNil() {
			return false
		}

		return errors.As(e.wrappedErr, target)
	}

	return false
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.wrappedErr
}

func (e *Error) Code() ERR {
	if e == nil {
		return ERR_UNKNOWN
	}

	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}

	return e.message
}

func (e *Error) WrappedErr() error {
	if e == nil {
		return nil
	}

	return e.wrappedErr
}

// New builds an *Error with the given code. The message may be a format
// string; if the last param is an error it is wrapped rather than formatted.
func New(code ERR, message string, params ...interface{}) *Error {
	var wErr error

	if len(params) > 0 {
		lastParam := params[len(params)-1]

		switch err := lastParam.(type) {
		case *Error:
			wErr = err
			params = params[:len(params)-1]
		case error:
			wErr = err
			params = params[:len(params)-1]
		}
	}

	if len(params) > 0 {
		//nolint:forbidigo
		err := fmt.Errorf(message, params...)
		message = err.Error()
	}

	if _, ok := ERR_name[int32(code)]; !ok {
		returnErr := &Error{
			code:    code,
			message: "invalid error code",
		}
		if wErr != nil {
			returnErr.wrappedErr = wErr
		}

		return returnErr
	}

	returnErr := &Error{
		code:    code,
		message: message,
	}
	if wErr != nil {
		returnErr.wrappedErr = wErr
	}

	return returnErr
}

// WrapGRPC converts an *Error into a gRPC status error so the code survives a
// transport boundary. Non-typed errors map to Unknown.
func WrapGRPC(err error) error {
	if err == nil {
		return nil
	}

	if castedErr, ok := err.(*Error); ok {
		if castedErr.wrappedErr != nil {
			if _, ok := status.FromError(castedErr.wrappedErr); ok {
				return err // already carries a status, skip further wrapping
			}
		}

		return status.New(ErrorCodeToGRPCCode(castedErr.code), castedErr.Error()).Err()
	}

	return status.New(codes.Unknown, err.Error()).Err()
}

// UnwrapGRPC converts a gRPC status error back into an *Error, recovering the
// closest code mapping.
func UnwrapGRPC(err error) *Error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return &Error{
			code:       ERR_ERROR,
			message:    "error unwrapping gRPC details",
			wrappedErr: err,
		}
	}

	return &Error{
		code:    GRPCCodeToErrorCode(st.Code()),
		message: st.Message(),
	}
}

// ErrorCodeToGRPCCode maps bridge error codes to gRPC status codes.
func ErrorCodeToGRPCCode(code ERR) codes.Code {
	switch code {
	case ERR_UNKNOWN:
		return codes.Unknown
	case ERR_INVALID_ARGUMENT:
		return codes.InvalidArgument
	case ERR_NOT_FOUND, ERR_TX_NOT_FOUND:
		return codes.NotFound
	case ERR_THRESHOLD_EXCEEDED, ERR_FAUCET_RATE_LIMITED:
		return codes.ResourceExhausted
	case ERR_CONTEXT_CANCELED:
		return codes.Canceled
	case ERR_LOCK_TIMEOUT, ERR_NETWORK_TIMEOUT:
		return codes.DeadlineExceeded
	case ERR_SERVICE_UNAVAILABLE, ERR_NETWORK_ERROR, ERR_NETWORK_CONNECTION_REFUSED:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// GRPCCodeToErrorCode is the inverse mapping, lossy by nature.
func GRPCCodeToErrorCode(code codes.Code) ERR {
	switch code {
	case codes.Unknown:
		return ERR_UNKNOWN
	case codes.InvalidArgument:
		return ERR_INVALID_ARGUMENT
	case codes.NotFound:
		return ERR_NOT_FOUND
	case codes.ResourceExhausted:
		return ERR_THRESHOLD_EXCEEDED
	case codes.Canceled:
		return ERR_CONTEXT_CANCELED
	case codes.DeadlineExceeded:
		return ERR_NETWORK_TIMEOUT
	case codes.Unavailable:
		return ERR_SERVICE_UNAVAILABLE
	default:
		return ERR_ERROR
	}
}

func Join(errs ...error) error {
	var messages []string

	for _, err := range errs {
		if err != nil {
			messages = append(messages, err.Error())
		}
	}

	if len(messages) == 0 {
		return nil
	}

	return errors.New(strings.Join(messages, ", "))
}

func Is(err, target error) bool {
	if isGRPCWrappedError(err) {
		err = UnwrapGRPC(err)
	}

	return errors.Is(err, target)
}

func As(err error, target any) bool {
	if isGRPCWrappedError(err) {
		err = UnwrapGRPC(err)
	}

	if castedErr, ok := err.(*Error); ok {
		if castedErr.As(target) {
			return true
		}

		if castedErr.wrappedErr != nil {
			return errors.As(castedErr.wrappedErr, target)
		}
	}

	return errors.As(err, target)
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}

func isGRPCWrappedError(err error) bool {
	if err == nil {
		return false
	}

	if _, ok := err.(*Error); ok {
		return false
	}

	_, ok := status.FromError(err)

	return ok
}
