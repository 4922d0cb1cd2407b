// Copyright 2025 Certen Protocol
//
// Repositories - convenience wrapper for all database repositories.
// Provides a single point of access to all repository types.

package database

// Repositories holds all repository instances.
type Repositories struct {
	Settings     *SettingsRepository
	BlockHeaders *BlockHeaderRepository
	Accounts     *AccountRepository
	Deltas       *AccountDeltaRepository
	Notes        *NoteRepository
	Nullifiers   *NullifierRepository
	Transactions *TransactionRepository
}

// NewRepositories creates all repositories bound to the given client.
func NewRepositories(client *Client) *Repositories {
	return &Repositories{
		Settings:     NewSettingsRepository(client),
		BlockHeaders: NewBlockHeaderRepository(client),
		Accounts:     NewAccountRepository(client),
		Deltas:       NewAccountDeltaRepository(client),
		Notes:        NewNoteRepository(client),
		Nullifiers:   NewNullifierRepository(client),
		Transactions: NewTransactionRepository(client),
	}
}
