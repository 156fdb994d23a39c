package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for programmatic checking.
var (
	ErrParse               = errors.New("source parse failed")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrServiceUnavailable  = errors.New("model service unavailable")
	ErrAuthentication      = errors.New("model service authentication failed")
	ErrMalformedRequest    = errors.New("malformed model request")
)

// ParseError reports malformed source found while locating the probe function
type ParseError struct {
	File   string
	Line   int
	Column int
	Detail string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Detail)
}

// Unwrap lets errors.Is match ErrParse
func (e *ParseError) Unwrap() error {
	return ErrParse
}

// ServiceErrorKind classifies remote model failures
type ServiceErrorKind string

const (
	ServiceUnavailable      ServiceErrorKind = "unavailable"
	ServiceAuth             ServiceErrorKind = "auth"
	ServiceMalformedRequest ServiceErrorKind = "malformed_request"
)

// ServiceError wraps a failed call to the remote text-generation service
type ServiceError struct {
	Kind ServiceErrorKind
	Err  error
}

func (e *ServiceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("model service %s", e.Kind)
	}
	return fmt.Sprintf("model service %s: %v", e.Kind, e.Err)
}

// Is matches the sentinel for the error kind
func (e *ServiceError) Is(target error) bool {
	switch e.Kind {
	case ServiceUnavailable:
		return target == ErrServiceUnavailable
	case ServiceAuth:
		return target == ErrAuthentication
	case ServiceMalformedRequest:
		return target == ErrMalformedRequest
	}
	return false
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}
