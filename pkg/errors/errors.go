// Package errors provides the error taxonomy shared by sbomkit packages.
//
// Every error crossing a package boundary carries a Kind. Callers branch on
// the Kind (retry busy transactions, leave unavailable scans uncached) and
// never on message text.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error.
type Kind uint8

const (
	KindUnknown      Kind = iota
	KindInvalidInput      // bad argument or configuration
	KindNotFound
	KindContent     // unreadable file, corrupt archive
	KindConflict    // concurrent insert of the same content identity
	KindUnavailable // provider could not run on a target
	KindConstraint  // duplicate insert outside an idempotent path
	KindConsistency // referenced row missing at read time
	KindBusy        // database locked or serialization failure
	KindTimeout
	KindInternal
)

var kindNames = [...]string{
	KindUnknown:      "unknown",
	KindInvalidInput: "invalid_input",
	KindNotFound:     "not_found",
	KindContent:      "content",
	KindConflict:     "conflict",
	KindUnavailable:  "unavailable",
	KindConstraint:   "constraint",
	KindConsistency:  "consistency",
	KindBusy:         "busy",
	KindTimeout:      "timeout",
	KindInternal:     "internal",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindUnknown]
}

// Error is a classified error. Op names the failing operation as
// "package.Function".
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// Error renders the non-empty parts as "op: message: cause".
func (e *Error) Error() string {
	parts := make([]string, 0, 3)
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrBusy) holds
// for every busy error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Kind == t.Kind
}

// E builds an Error from its arguments in any order: a Kind, an op string
// followed by an optional message string, and a cause. Without an explicit
// Kind the cause's Kind is used.
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Kind:
			e.Kind = a
		case string:
			if e.Op == "" {
				e.Op = a
			} else {
				e.Message = a
			}
		case error:
			e.Err = a
		}
	}
	if e.Kind == KindUnknown {
		e.Kind = GetKind(e.Err)
	}
	return e
}

// New returns an unclassified error.
func New(message string) error {
	return &Error{Message: message}
}

// Errorf returns an error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap adds op to err, keeping its Kind. A nil err stays nil.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: GetKind(err), Op: op, Err: err}
}

// GetKind returns the Kind of the first *Error in err's chain.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsContentError(err error) bool     { return GetKind(err) == KindContent }
func IsUnavailable(err error) bool      { return GetKind(err) == KindUnavailable }
func IsConstraintError(err error) bool  { return GetKind(err) == KindConstraint }
func IsConsistencyError(err error) bool { return GetKind(err) == KindConsistency }
func IsNotFoundError(err error) bool    { return GetKind(err) == KindNotFound }

// IsRetryable reports whether a fresh attempt may succeed.
func IsRetryable(err error) bool {
	k := GetKind(err)
	return k == KindBusy || k == KindTimeout
}

// Sentinels for errors.Is.
var (
	ErrUnavailable = &Error{Kind: KindUnavailable, Message: "provider unavailable"}
	ErrNotFound    = &Error{Kind: KindNotFound, Message: "not found"}
	ErrBusy        = &Error{Kind: KindBusy, Message: "database busy"}
)

// Is and As forward to the standard library.
func Is(err, target error) bool     { return errors.Is(err, target) }
func As(err error, target any) bool { return errors.As(err, target) }
