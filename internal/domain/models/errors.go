package models

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyResponse = errors.New("empty response")
	ErrMissingValue  = errors.New("missing value")
)

// FetchError is the only error kind a source reports. Callers test for it
// with errors.As and never inspect the cause.
type FetchError struct {
	Source string
	Err    error
}

func NewFetchError(source string, err error) *FetchError {
	return &FetchError{Source: source, Err: err}
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
