// Copyright 2025 Certen Protocol
//
// Block Header Repository - CRUD operations for committed block headers.

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/miden-node/rollup/pkg/protocol"
)

// BlockHeaderRepository handles the block_headers table.
type BlockHeaderRepository struct {
	client *Client
}

func NewBlockHeaderRepository(client *Client) *BlockHeaderRepository {
	return &BlockHeaderRepository{client: client}
}

// Insert writes a newly committed header. Callers run this inside the
// same transaction as the rest of apply_block's relational writes.
func (r *BlockHeaderRepository) Insert(ctx context.Context, tx *Tx, h protocol.BlockHeader) error {
	_, err := tx.Raw().ExecContext(ctx, `
		INSERT INTO block_headers (
			block_num, version, prev_hash, chain_root, account_root,
			nullifier_root, note_root, tx_hash, kernel_root, proof_hash, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.BlockNum, h.Version, h.PrevHash.Bytes(), h.ChainRoot.Bytes(), h.AccountRoot.Bytes(),
		h.NullifierRoot.Bytes(), h.NoteRoot.Bytes(), h.TxHash.Bytes(), h.KernelRoot.Bytes(),
		h.ProofHash.Bytes(), h.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert block header %d: %w", h.BlockNum, err)
	}
	return nil
}

// GetByNumber returns the header committed at blockNum.
func (r *BlockHeaderRepository) GetByNumber(ctx context.Context, blockNum protocol.BlockNumber) (protocol.BlockHeader, error) {
	row := r.client.QueryRowContext(ctx, `
		SELECT block_num, version, prev_hash, chain_root, account_root,
		       nullifier_root, note_root, tx_hash, kernel_root, proof_hash, timestamp
		FROM block_headers WHERE block_num = ?`, blockNum)
	h, err := scanBlockHeader(row)
	if err == sql.ErrNoRows {
		return protocol.BlockHeader{}, ErrBlockHeaderNotFound
	}
	if err != nil {
		return protocol.BlockHeader{}, fmt.Errorf("failed to get block header %d: %w", blockNum, err)
	}
	return h, nil
}

// Latest returns the highest-numbered committed header.
func (r *BlockHeaderRepository) Latest(ctx context.Context) (protocol.BlockHeader, error) {
	row := r.client.QueryRowContext(ctx, `
		SELECT block_num, version, prev_hash, chain_root, account_root,
		       nullifier_root, note_root, tx_hash, kernel_root, proof_hash, timestamp
		FROM block_headers ORDER BY block_num DESC LIMIT 1`)
	h, err := scanBlockHeader(row)
	if err == sql.ErrNoRows {
		return protocol.BlockHeader{}, ErrBlockHeaderNotFound
	}
	if err != nil {
		return protocol.BlockHeader{}, fmt.Errorf("failed to get latest block header: %w", err)
	}
	return h, nil
}

// RangeFrom returns headers with block_num > from, ascending, up to
// limit rows (used by sync_state/sync_notes scans).
func (r *BlockHeaderRepository) RangeFrom(ctx context.Context, from protocol.BlockNumber, limit int) ([]protocol.BlockHeader, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT block_num, version, prev_hash, chain_root, account_root,
		       nullifier_root, note_root, tx_hash, kernel_root, proof_hash, timestamp
		FROM block_headers WHERE block_num > ? ORDER BY block_num ASC LIMIT ?`, from, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to range block headers: %w", err)
	}
	defer rows.Close()

	var out []protocol.BlockHeader
	for rows.Next() {
		h, err := scanBlockHeaderRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlockHeader(row rowScanner) (protocol.BlockHeader, error) {
	return scanBlockHeaderRows(row)
}

func scanBlockHeaderRows(row rowScanner) (protocol.BlockHeader, error) {
	var h protocol.BlockHeader
	var prevHash, chainRoot, accountRoot, nullifierRoot, noteRoot, txHash, kernelRoot, proofHash []byte
	if err := row.Scan(&h.BlockNum, &h.Version, &prevHash, &chainRoot, &accountRoot,
		&nullifierRoot, &noteRoot, &txHash, &kernelRoot, &proofHash, &h.Timestamp); err != nil {
		return h, err
	}
	var err error
	if h.PrevHash, err = protocol.DigestFromBytes(prevHash); err != nil {
		return h, err
	}
	if h.ChainRoot, err = protocol.DigestFromBytes(chainRoot); err != nil {
		return h, err
	}
	if h.AccountRoot, err = protocol.DigestFromBytes(accountRoot); err != nil {
		return h, err
	}
	if h.NullifierRoot, err = protocol.DigestFromBytes(nullifierRoot); err != nil {
		return h, err
	}
	if h.NoteRoot, err = protocol.DigestFromBytes(noteRoot); err != nil {
		return h, err
	}
	if h.TxHash, err = protocol.DigestFromBytes(txHash); err != nil {
		return h, err
	}
	if h.KernelRoot, err = protocol.DigestFromBytes(kernelRoot); err != nil {
		return h, err
	}
	if h.ProofHash, err = protocol.DigestFromBytes(proofHash); err != nil {
		return h, err
	}
	return h, nil
}
