package models

import (
	"errors"
	"fmt"
)

// Error codes for structured error handling.
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeMalformed    = "MALFORMED_CONTAINER"
	ErrCodeAuth         = "AUTH_ERROR"
	ErrCodeIO           = "IO_ERROR"
	ErrCodeConfig       = "CONFIG_ERROR"
	ErrCodeCanceled     = "CANCELED"
)

// Sentinel errors
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrNoPassword    = errors.New("no password available")
)

// VaultError describes a failed vault operation. Code tells callers which
// kind of failure occurred so a UI can tell "wrong password" apart from
// "corrupted file" or "disk full".
type VaultError struct {
	Code string
	Op   string
	Path string
	Err  error
}

func (e *VaultError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Op, e.Code, e.Path, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Code, e.Err)
}

func (e *VaultError) Unwrap() error {
	return e.Err
}

// Code returns the error code carried by err, or "" if err is not a
// VaultError.
func Code(err error) string {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return err != nil && Code(err) == code
}
