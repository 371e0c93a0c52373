package server

import "errors"

// Server error types, grounded on pkg/multidb/errors.go's flat
// var-block style.
var (
	ErrKeyspaceExists   = errors.New("keyspace already exists")
	ErrKeyspaceNotFound = errors.New("keyspace not found")
	ErrServerClosed     = errors.New("server is closed")
)
