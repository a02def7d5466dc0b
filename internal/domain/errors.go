package domain

import (
	"fmt"
)

type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so a value produced by
// WithError still satisfies errors.Is against the predefined sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "An unexpected error occurred",
	}

	ErrUnknownIdentity = &AppError{
		Code:    "UNKNOWN_IDENTITY",
		Message: "Identity is not enrolled",
	}

	ErrDuplicateIdentity = &AppError{
		Code:    "DUPLICATE_IDENTITY",
		Message: "Identity with this name is already enrolled",
	}

	ErrInvalidImage = &AppError{
		Code:    "INVALID_IMAGE",
		Message: "Invalid image format or corrupted file",
	}

	ErrNoFaceDetected = &AppError{
		Code:    "NO_FACE_DETECTED",
		Message: "No face detected in the image",
	}

	ErrMultipleFaces = &AppError{
		Code:    "MULTIPLE_FACES",
		Message: "Multiple faces detected, please provide image with single face",
	}

	ErrIncompleteEnrollment = &AppError{
		Code:    "INCOMPLETE_ENROLLMENT",
		Message: "Enrollment requires name, PIN and source image",
	}

	ErrMissingPin = &AppError{
		Code:    "CONFIGURATION_ERROR",
		Message: "Registered identity has no PIN configured",
	}

	ErrPersistence = &AppError{
		Code:    "PERSISTENCE_FAILURE",
		Message: "Failed to write durable record",
	}

	ErrPinCancelled = &AppError{
		Code:    "PIN_CANCELLED",
		Message: "PIN entry was cancelled by the operator",
	}
)
