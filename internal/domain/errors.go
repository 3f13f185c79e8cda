package domain

import "fmt"

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ForbiddenError is an authorization failure. It is never retried.
type ForbiddenError struct {
	Reason string
}

func (e ForbiddenError) Error() string {
	if e.Reason == "" {
		return "forbidden"
	}
	return "forbidden: " + e.Reason
}

func (e ForbiddenError) Is(target error) bool {
	_, ok := target.(ForbiddenError)
	if ok {
		return true
	}
	_, ok = target.(*ForbiddenError)
	return ok
}

// MalformedInputError is returned for payloads that are not valid JSON.
type MalformedInputError struct {
	Reason string
}

func (e MalformedInputError) Error() string {
	if e.Reason == "" {
		return "malformed input"
	}
	return "malformed input: " + e.Reason
}

func (e MalformedInputError) Is(target error) bool {
	_, ok := target.(MalformedInputError)
	if ok {
		return true
	}
	_, ok = target.(*MalformedInputError)
	return ok
}

// VerificationError is produced by identity verifiers. Unavailable marks
// a verifier that could not be reached or timed out.
type VerificationError struct {
	Unavailable bool
	Err         error
}

func (e VerificationError) Error() string {
	kind := "verification failed"
	if e.Unavailable {
		kind = "verification unavailable"
	}
	if e.Err == nil {
		return kind
	}
	return kind + ": " + e.Err.Error()
}

func (e VerificationError) Unwrap() error {
	return e.Err
}

func (e VerificationError) Is(target error) bool {
	_, ok := target.(VerificationError)
	if ok {
		return true
	}
	_, ok = target.(*VerificationError)
	return ok
}

// PersistenceError wraps a storage failure. Fatal to the current request.
type PersistenceError struct {
	Err error
}

func (e PersistenceError) Error() string {
	if e.Err == nil {
		return "persistence failure"
	}
	return "persistence failure: " + e.Err.Error()
}

func (e PersistenceError) Unwrap() error {
	return e.Err
}

func (e PersistenceError) Is(target error) bool {
	_, ok := target.(PersistenceError)
	if ok {
		return true
	}
	_, ok = target.(*PersistenceError)
	return ok
}

// Sentinels for errors.Is.
var (
	ErrNotFound     = NotFoundError{}
	ErrForbidden    = ForbiddenError{}
	ErrMalformed    = MalformedInputError{}
	ErrVerification = VerificationError{}
	ErrPersistence  = PersistenceError{}
)
