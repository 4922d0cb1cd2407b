// Copyright 2025 Certen Protocol
//
// Package database provides sentinel errors for repository operations.
// Explicit errors instead of nil, nil returns.

package database

import "errors"

// Sentinel errors for database operations.
var (
	// ErrNotFound is returned when a requested entity is not found.
	ErrNotFound = errors.New("entity not found")

	// ErrBlockHeaderNotFound is returned when a block header is not found.
	ErrBlockHeaderNotFound = errors.New("block header not found")

	// ErrAccountNotFound is returned when an account is not found.
	ErrAccountNotFound = errors.New("account not found")

	// ErrNoteNotFound is returned when a note is not found.
	ErrNoteNotFound = errors.New("note not found")

	// ErrTransactionNotFound is returned when a transaction is not found.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrSettingNotFound is returned when a settings row is not found.
	ErrSettingNotFound = errors.New("setting not found")
)
