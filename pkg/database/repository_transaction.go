// Copyright 2025 Certen Protocol
//
// Transaction Repository - durable record of which transactions were
// committed in which block, backing get_transaction_inputs history
// lookups and sync_state's tx_hash reconstruction.

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/miden-node/rollup/pkg/protocol"
)

// TransactionRepository handles the transactions table.
type TransactionRepository struct {
	client *Client
}

func NewTransactionRepository(client *Client) *TransactionRepository {
	return &TransactionRepository{client: client}
}

// Insert records a committed transaction's identity.
func (r *TransactionRepository) Insert(ctx context.Context, tx *Tx, t protocol.Transaction, blockNum protocol.BlockNumber) error {
	_, err := tx.Raw().ExecContext(ctx, `
		INSERT INTO transactions (
			tx_id, block_num, account_id_hi, account_id_lo,
			initial_hash, final_hash, expiration_block, submitted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.Bytes(), blockNum, t.AccountID[0], t.AccountID[1],
		t.InitialAccountHash.Bytes(), t.FinalAccountHash.Bytes(), t.ExpirationBlockNum, t.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// BlockOf returns the block number a transaction was committed in.
func (r *TransactionRepository) BlockOf(ctx context.Context, id protocol.Digest) (protocol.BlockNumber, error) {
	var blockNum protocol.BlockNumber
	err := r.client.QueryRowContext(ctx,
		`SELECT block_num FROM transactions WHERE tx_id = ?`, id.Bytes()).Scan(&blockNum)
	if err == sql.ErrNoRows {
		return 0, ErrTransactionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up transaction: %w", err)
	}
	return blockNum, nil
}
