package article

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable class of a store failure.
type Kind string

const (
	KindValidation    Kind = "VALIDATION_ERROR"
	KindDuplicateName Kind = "DUPLICATE_NAME"
	KindNotFound      Kind = "NOT_FOUND"
	KindIO            Kind = "IO_ERROR"
)

var (
	// ErrProtected is wrapped by the rejection of deleting DefaultID.
	ErrProtected = errors.New("article is protected")
	// ErrArticleAbsent is returned (untyped) by version listing for unknown articles.
	ErrArticleAbsent = errors.New("article does not exist")
)

// Error is a typed store failure.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind, so errors.Is(err, &Error{Kind: KindNotFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Msg == ""
}

func Validationf(format string, a ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, a...)}
}

func DuplicateName(name string) error {
	return &Error{Kind: KindDuplicateName, Msg: fmt.Sprintf("an article named %q already exists", name)}
}

func NotFoundf(format string, a ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, a...)}
}

// IO wraps a storage failure.
func IO(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindIO, Msg: op, Err: err}
}

// KindOf returns the Kind carried by err, or "" for untyped errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsKind reports whether err carries kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
