package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound        = errors.New("not found")
	ErrEmptyPatch      = errors.New("empty task patch")
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)
