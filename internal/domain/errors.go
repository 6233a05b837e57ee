package domain

import (
	"errors"
	"fmt"
)

// Code is a stable identifier attached to every surfaced error.
type Code string

const (
	CodeConfiguration  Code = "CONFIGURATION_ERROR"
	CodeStorage        Code = "STORAGE_ERROR"
	CodeFeedFetch      Code = "FEED_FETCH_ERROR"
	CodeSourceMetadata Code = "SOURCE_METADATA_ERROR"
	CodeCredential     Code = "CREDENTIAL_ERROR"
	CodeAuthExpired    Code = "AUTH_EXPIRED_ERROR"
	CodeRewrite        Code = "REWRITE_ERROR"
)

var (
	// ErrAuthExpired is returned by rewrite clients when the bearer
	// credential was rejected.
	ErrAuthExpired = errors.New("authorization expired")

	ErrNotFound = errors.New("not found")
)

// Error is a coded error carrying the cause and the entities involved.
type Error struct {
	Code     Code
	Message  string
	SourceID int64
	PostID   int64
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithSource returns a copy of e scoped to a source.
func (e *Error) WithSource(id int64) *Error {
	c := *e
	c.SourceID = id
	return &c
}

// WithPost returns a copy of e scoped to a post.
func (e *Error) WithPost(id int64) *Error {
	c := *e
	c.PostID = id
	return &c
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// AsError returns err as an *Error, wrapping it with code when it is not one.
func AsError(err error, code Code, message string) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewError(code, message, err)
}
