package application

import (
	"context"
	"errors"
	"fmt"
)

type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

// ValidationError marks caller mistakes that transports render as 400.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return "validation: " + e.msg }

func NewValidation(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
