// Package queryerr defines the error taxonomy surfaced by the model query engine.
//
// Every failure produced while building, validating or executing a model query is
// a *Error carrying one Kind. Resolvers hand these back to graphql-go unchanged;
// the Extensions method exposes the kind as the GraphQL error code.
package queryerr

import (
	"errors"
	"fmt"
)

// Kind classifies a query failure.
type Kind string

const (
	// KindSchemaValidation covers unknown models or fields, illegal operators,
	// bad directions and values that cannot be coerced to a field's kind.
	KindSchemaValidation Kind = "schema_validation"
	// KindCursor covers malformed, tampered or mismatched cursors.
	KindCursor Kind = "cursor"
	// KindStore covers any failure reported by the backing store.
	KindStore Kind = "store"
	// KindConsistency covers broken references between model rows and entities.
	KindConsistency Kind = "consistency"
	// KindNotFound covers lookups of models or entities that do not exist.
	KindNotFound Kind = "not_found"
)

// Error is a classified query failure.
type Error struct {
	Kind    Kind
	Subject string // model, field or input name the error refers to
	Message string
	Code    string // optional backend code (mysql number, sqlstate, sqlite code)
	Err     error
}

func (e *Error) Error() string {
	if e.Subject == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Subject, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Extensions implements the graphql-go extended error interface.
func (e *Error) Extensions() map[string]interface{} {
	ext := map[string]interface{}{
		"code": string(e.Kind),
	}
	if e.Code != "" {
		ext["backend_code"] = e.Code
	}
	return ext
}

// SchemaValidation reports an input that does not fit the registered schema.
func SchemaValidation(subject, format string, args ...any) *Error {
	return &Error{Kind: KindSchemaValidation, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// Cursor reports an unusable cursor. The cause is kept for logging only.
func Cursor(message string, cause error) *Error {
	return &Error{Kind: KindCursor, Subject: "after", Message: message, Err: cause}
}

// Store wraps a backend failure. The driver message is not part of Error();
// callers that need it can unwrap.
func Store(op string, cause error) *Error {
	return &Error{Kind: KindStore, Subject: op, Message: "store query failed", Err: cause}
}

// Consistency reports a model row whose entity could not be resolved.
func Consistency(subject, format string, args ...any) *Error {
	return &Error{Kind: KindConsistency, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing model or entity.
func NotFound(subject, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// Reclassify reports cause under another kind. The original error stays
// reachable through Unwrap.
func Reclassify(kind Kind, subject string, cause error) *Error {
	message := "invalid input"
	var qe *Error
	if errors.As(cause, &qe) {
		message = qe.Message
	}
	return &Error{Kind: kind, Subject: subject, Message: message, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
