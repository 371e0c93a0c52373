package txn

import (
	"errors"
	"fmt"
)

// Transaction error types, grounded on pkg/multidb/errors.go's flat
// var-block of sentinel errors.
var (
	ErrTransactionClosed             = errors.New("transaction is closed")
	ErrReadOnly                      = errors.New("transaction is read-only")
	ErrReadOnlyCommit                = errors.New("read-only transactions cannot be committed, only closed")
	ErrConcurrentTransactionOnThread = errors.New("owner already has an open transaction on this session")
	ErrAlreadyCommitting             = errors.New("transaction is already committing")
)

// ValidationError reports the accumulated diagnostics produced by
// schema validation (internal/schema) at commit time. Commit fails
// atomically and the transaction remains open for the caller to
// inspect or abandon.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 1 {
		return "validation failed: " + e.Messages[0]
	}
	msg := fmt.Sprintf("validation failed with %d errors:", len(e.Messages))
	for _, m := range e.Messages {
		msg += "\n  - " + m
	}
	return msg
}
