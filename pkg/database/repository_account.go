// Copyright 2025 Certen Protocol
//
// Account Repository - CRUD operations for account state snapshots.

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/miden-node/rollup/pkg/protocol"
)

// AccountRepository handles the accounts table.
type AccountRepository struct {
	client *Client
}

func NewAccountRepository(client *Client) *AccountRepository {
	return &AccountRepository{client: client}
}

// Upsert writes an account's current state, replacing any prior row for
// the same ID.
func (r *AccountRepository) Upsert(ctx context.Context, tx *Tx, acct protocol.Account, blockNum protocol.BlockNumber) error {
	_, err := tx.Raw().ExecContext(ctx, `
		INSERT INTO accounts (account_id_hi, account_id_lo, nonce, vault_root, storage_root, code_root, commitment, block_num)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id_hi, account_id_lo) DO UPDATE SET
			nonce = excluded.nonce,
			vault_root = excluded.vault_root,
			storage_root = excluded.storage_root,
			code_root = excluded.code_root,
			commitment = excluded.commitment,
			block_num = excluded.block_num`,
		acct.ID[0], acct.ID[1], acct.Nonce, acct.VaultRoot.Bytes(), acct.StorageRoot.Bytes(),
		acct.CodeRoot.Bytes(), acct.Commitment.Bytes(), blockNum,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

// All returns every account's current state, the scan the Store replays
// into the account tree on startup.
func (r *AccountRepository) All(ctx context.Context) ([]protocol.Account, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT account_id_hi, account_id_lo, nonce, vault_root, storage_root, code_root, commitment
		FROM accounts ORDER BY account_id_hi, account_id_lo`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []protocol.Account
	for rows.Next() {
		acct, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, rows.Err()
}

// Get returns the current state of account id.
func (r *AccountRepository) Get(ctx context.Context, id protocol.AccountID) (protocol.Account, error) {
	row := r.client.QueryRowContext(ctx, `
		SELECT account_id_hi, account_id_lo, nonce, vault_root, storage_root, code_root, commitment
		FROM accounts WHERE account_id_hi = ? AND account_id_lo = ?`, id[0], id[1])

	acct, err := scanAccount(row.Scan)
	if err == sql.ErrNoRows {
		return protocol.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return protocol.Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return acct, nil
}

func scanAccount(scan func(dest ...any) error) (protocol.Account, error) {
	var acct protocol.Account
	var vaultRoot, storageRoot, codeRoot, commitment []byte
	err := scan(&acct.ID[0], &acct.ID[1], &acct.Nonce, &vaultRoot, &storageRoot, &codeRoot, &commitment)
	if err != nil {
		return protocol.Account{}, err
	}
	if acct.VaultRoot, err = protocol.DigestFromBytes(vaultRoot); err != nil {
		return protocol.Account{}, err
	}
	if acct.StorageRoot, err = protocol.DigestFromBytes(storageRoot); err != nil {
		return protocol.Account{}, err
	}
	if acct.CodeRoot, err = protocol.DigestFromBytes(codeRoot); err != nil {
		return protocol.Account{}, err
	}
	if acct.Commitment, err = protocol.DigestFromBytes(commitment); err != nil {
		return protocol.Account{}, err
	}
	return acct, nil
}
