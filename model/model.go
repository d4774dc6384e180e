package model

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New() // Generate a new UUID.
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr)
	return idWithSuffix
}

// NewIdempotencyKey mints a fresh idempotency key for one logical booking
// attempt. The same key must be passed on every retry of order creation so
// the upstream provider treats repeated submissions as one attempt.
func NewIdempotencyKey() string {
	return GenerateUUIDWithSuffix("idem")
}
