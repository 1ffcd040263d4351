// Package validate holds the input validation error shared by the services
// and a few field checks.
package validate

import (
	"errors"
	"net/url"
)

// Error names the offending input field.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string { return e.Field + ": " + e.Reason }

func Field(field, reason string) error {
	return &Error{Field: field, Reason: reason}
}

// As reports whether err is a validation error.
func As(err error) (*Error, bool) {
	var ve *Error
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// HTTPURL reports whether raw is an absolute http or https URL.
func HTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
