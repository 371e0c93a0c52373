package session

import "errors"

// Session error types, grounded on pkg/multidb/errors.go's flat
// var-block style.
var (
	ErrSessionClosed                 = errors.New("session is closed")
	ErrConcurrentTransactionOnThread = errors.New("owner already has an open transaction on this session")
)
