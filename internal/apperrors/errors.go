package apperrors

import "errors"

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrInternal indicates an unexpected internal failure.
var ErrInternal = errors.New("internal error")

// ErrUnbalancedEntry indicates that the debit and credit sides of a journal
// entry do not sum to the same amount.
var ErrUnbalancedEntry = errors.New("journal entry debits and credits do not balance")

// ErrInvalidStateTransition indicates an operation that is not permitted from
// the journal entry's current status.
var ErrInvalidStateTransition = errors.New("invalid journal entry state transition")

// ErrCurrencyMismatch indicates arithmetic between two monetary values of
// different currencies, or an entry whose currency differs from its journal's.
var ErrCurrencyMismatch = errors.New("currency mismatch")

// ErrAlreadyActive indicates that a unit of work was begun twice without an
// intervening commit or rollback.
var ErrAlreadyActive = errors.New("unit of work already active")

// ErrNotActive indicates that a unit of work operation requires an open
// transaction but none was begun.
var ErrNotActive = errors.New("unit of work not active")

// ErrConcurrentModification indicates that a persisted journal entry was
// modified by another operation between read and write (version conflict).
var ErrConcurrentModification = errors.New("journal entry was concurrently modified")

// ErrStaleVersion indicates that a read-model write carried an older version
// than the one already stored. Consumers treat it as a successful no-op.
var ErrStaleVersion = errors.New("stale read model version")

// ErrCircuitOpen indicates that a call was rejected because the circuit
// protecting the downstream dependency is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")
