// Package errors carries the structured error type used at every internal
// boundary. Each error has a bounded code from the ERR enum, an optional
// wrapped cause, and maps to a JSON-RPC code at the external boundary.
package errors

import (
	"errors"
	"fmt"
)

type Error struct {
	Code       ERR
	Message    string
	WrappedErr error
}

func (e *Error) Error() string {
	// Error() can be called on wrapped errors, which can be nil, for example predefined errors
	if e == nil {
		return "<nil>"
	}

	if e.WrappedErr == nil {
		return fmt.Sprintf("%d: %v", e.Code, e.Message)
	}

	return fmt.Sprintf("Error: %s (error code: %d), %v: %v", e.Code.Enum(), e.Code, e.Message, e.WrappedErr)
}

// Is reports whether error codes match.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}

	var ue *Error
	if errors.As(target, &ue) {
		if e.Code == ue.Code {
			return true
		}

		if e.WrappedErr == nil {
			return false
		}
	}

	// Unwrap the current error and recursively call Is on the unwrapped error
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

	if e.WrappedErr != nil {
		return errors.As(e.WrappedErr, target)
	}

	return false
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.WrappedErr
}

// New builds an Error with the given code. The last param, if it is an error,
// becomes the wrapped cause; the remaining params format the message.
func New(code ERR, message string, params ...interface{}) *Error {
	var wErr *Error

	if len(params) > 0 {
		lastParam := params[len(params)-1]

		if err, ok := lastParam.(*Error); ok {
			wErr = err
			params = params[:len(params)-1]
		} else if err, ok := lastParam.(error); ok {
			wErr = &Error{Message: err.Error()}
			params = params[:len(params)-1]
		}
	}

	if len(params) > 0 {
		err := fmt.Errorf(message, params...)
		message = err.Error()
	}

	if _, ok := ERR_name[int32(code)]; !ok {
		return &Error{
			Code:       code,
			Message:    "invalid error code",
			WrappedErr: wErr,
		}
	}

	return &Error{
		Code:       code,
		Message:    message,
		WrappedErr: wErr,
	}
}

func NewInvalidArgumentError(message string, params ...interface{}) *Error {
	return New(ERR_INVALID_ARGUMENT, message, params...)
}

func NewNotFoundError(message string, params ...interface{}) *Error {
	return New(ERR_NOT_FOUND, message, params...)
}

func NewBlockInvalidError(message string, params ...interface{}) *Error {
	return New(ERR_BLOCK_INVALID, message, params...)
}

func NewTxInvalidError(message string, params ...interface{}) *Error {
	return New(ERR_TX_INVALID, message, params...)
}

func NewRingSizeError(message string, params ...interface{}) *Error {
	return New(ERR_RING_SIZE, message, params...)
}

func NewRingSignatureError(message string, params ...interface{}) *Error {
	return New(ERR_RING_SIGNATURE, message, params...)
}

func NewEquivocationError(message string, params ...interface{}) *Error {
	return New(ERR_EQUIVOCATION, message, params...)
}

func NewThresholdError(message string, params ...interface{}) *Error {
	return New(ERR_THRESHOLD_EXCEEDED, message, params...)
}

func NewStorageError(message string, params ...interface{}) *Error {
	return New(ERR_STORAGE, message, params...)
}

func NewProofSetupError(message string, params ...interface{}) *Error {
	return New(ERR_PROOF_SETUP, message, params...)
}

func NewProofGenerationError(message string, params ...interface{}) *Error {
	return New(ERR_PROOF_GENERATION, message, params...)
}

func NewProofVerificationError(message string, params ...interface{}) *Error {
	return New(ERR_PROOF_VERIFICATION, message, params...)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}
