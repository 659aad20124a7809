// Package repository implements the credential store: lookups and updates of
// accounts and their single active refresh token.  Handlers never see these
// errors directly; the service layer translates them.
package repository // repository error sentinels

import "errors" // error wrapping and matching

// ErrAccountNotFound is returned when no account matches a lookup.
var ErrAccountNotFound = errors.New("account not found")

// ErrUsernameTaken is returned by Create when the username already exists.
var ErrUsernameTaken = errors.New("username already exists")

// ErrInvalidSchema is returned when a schema mapping contains an identifier
// that is not safe to place in SQL text.
var ErrInvalidSchema = errors.New("invalid account schema")
