package memberrepo

import "errors"

var (
	// ErrNotFound indicates the requested member does not exist.
	ErrNotFound = errors.New("member not found")

	// ErrSubjectAlreadyBound indicates a member already exists for the provided subject.
	ErrSubjectAlreadyBound = errors.New("member subject already bound")

	// ErrEmailInUse indicates another member already uses the email address (case-insensitive).
	ErrEmailInUse = errors.New("member email already in use")
)
