package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrNotMember           = errors.New("not a workspace member")
	ErrForbidden           = errors.New("forbidden")
	ErrValidation          = errors.New("validation failed")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUnsupportedLanguage = errors.New("language not supported")
	ErrExecTimeout         = errors.New("execution timed out")
)
