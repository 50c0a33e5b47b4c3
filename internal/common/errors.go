// Package common defines shared constants and sentinel errors used across
// evomint components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Request validation errors.
	ErrValidation = errors.New("validation error")

	// Admission errors.
	ErrCapacityExhausted = errors.New("combination capacity exhausted")

	// Ledger errors. ErrLedgerUnavailable means every retry attempt was
	// spent on transport or server failures; ErrLedgerRejected means the
	// ledger answered and refused the operation.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	ErrLedgerRejected    = errors.New("ledger rejected operation")

	// Structured-field decoding errors (corrupt data at rest or on the wire).
	ErrSerialization = errors.New("serialization error")

	// Collaborator errors (image synthesis, signal source).
	ErrCollaborator = errors.New("collaborator error")

	// Sweep reentrancy guard.
	ErrSweepActive = errors.New("sweep already running")

	// Auth errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
