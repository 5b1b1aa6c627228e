// Package memerr defines the named error kinds used across the tool layer,
// storage layer, and OAuth provider, so that callers can distinguish
// recoverable, tool-level failures from fatal startup failures.
package memerr

import "errors"

var (
	// ErrInvalidParameter marks a tool call with bad or missing inputs.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNotFound marks a missing memory, token, or OAuth state.
	ErrNotFound = errors.New("not found")

	// ErrDecryptionFailure marks an encrypted blob that could not be opened
	// under the currently configured key.
	ErrDecryptionFailure = errors.New("decryption failure")

	// ErrEmbeddingEndpoint wraps a failure talking to the embedding endpoint.
	ErrEmbeddingEndpoint = errors.New("embedding endpoint failure")

	// ErrDimensionMismatch marks a requested embedding dimension that the
	// endpoint did not honor.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrUnauthorized marks a bearer credential that matched neither the
	// static API key nor a live OAuth token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMigration marks a fatal failure while applying schema migrations.
	ErrMigration = errors.New("migration failure")
)
