// Package idgen generates short, URL-safe invocation ids backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// InvocationPrefix is prepended to ids assigned to invocations that arrive
// without one.
const InvocationPrefix = "inv-"

// Alphabet defines the character set used for the random portion of the ID.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
const Length = 12

// InvocationID returns a fresh invocation id.
func InvocationID() (string, error) {
	return WithPrefix(InvocationPrefix)
}

// WithPrefix returns a new unique ID with the given prefix.
func WithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// Ensure returns id unchanged when it is set, and a fresh invocation id
// otherwise.
func Ensure(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	return InvocationID()
}
