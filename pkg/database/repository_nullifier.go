// Copyright 2025 Certen Protocol
//
// Nullifier Repository - durable record of consumed nullifiers, backing
// check_nullifiers/check_nullifiers_by_prefix independent of the in-memory
// accumulator (which is rebuilt from this table on startup).

package database

import (
	"context"
	"fmt"

	"github.com/miden-node/rollup/pkg/protocol"
)

// NullifierRepository handles the nullifiers table.
type NullifierRepository struct {
	client *Client
}

func NewNullifierRepository(client *Client) *NullifierRepository {
	return &NullifierRepository{client: client}
}

// Insert records nullifier as consumed at blockNum.
func (r *NullifierRepository) Insert(ctx context.Context, tx *Tx, nullifier protocol.Nullifier, blockNum protocol.BlockNumber) error {
	_, err := tx.Raw().ExecContext(ctx,
		`INSERT INTO nullifiers (nullifier, block_num) VALUES (?, ?)`,
		nullifier.Bytes(), blockNum)
	if err != nil {
		return fmt.Errorf("failed to insert nullifier: %w", err)
	}
	return nil
}

// Check returns, for each requested nullifier, the block it was consumed
// at (0 if unconsumed).
func (r *NullifierRepository) Check(ctx context.Context, nullifiers []protocol.Nullifier) (map[protocol.Nullifier]protocol.BlockNumber, error) {
	result := make(map[protocol.Nullifier]protocol.BlockNumber, len(nullifiers))
	for _, n := range nullifiers {
		var blockNum protocol.BlockNumber
		err := r.client.QueryRowContext(ctx,
			`SELECT block_num FROM nullifiers WHERE nullifier = ?`, n.Bytes()).Scan(&blockNum)
		if err != nil {
			continue // not found => leave absent from the map (unconsumed)
		}
		result[n] = blockNum
	}
	return result, nil
}

// ConsumedRecord is one row of the nullifiers table, used to rebuild the
// nullifier accumulator at startup.
type ConsumedRecord struct {
	Nullifier protocol.Nullifier
	BlockNum  protocol.BlockNumber
}

// All returns every recorded nullifier in block order, the scan the
// Store replays into the nullifier tree on startup.
func (r *NullifierRepository) All(ctx context.Context) ([]ConsumedRecord, error) {
	rows, err := r.client.QueryContext(ctx,
		`SELECT nullifier, block_num FROM nullifiers ORDER BY block_num ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list nullifiers: %w", err)
	}
	defer rows.Close()

	var out []ConsumedRecord
	for rows.Next() {
		var raw []byte
		var rec ConsumedRecord
		if err := rows.Scan(&raw, &rec.BlockNum); err != nil {
			return nil, fmt.Errorf("failed to scan nullifier: %w", err)
		}
		if rec.Nullifier, err = protocol.DigestFromBytes(raw); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ByPrefixFromBlock returns nullifiers whose leading bits match prefix
// (truncated to prefixBits) and that were consumed after fromBlock, the
// primitive behind sync_state's nullifier-update scan.
func (r *NullifierRepository) ByPrefixFromBlock(ctx context.Context, prefix uint16, prefixBits int, fromBlock protocol.BlockNumber, limit int) ([]protocol.Nullifier, error) {
	rows, err := r.client.QueryContext(ctx,
		`SELECT nullifier FROM nullifiers WHERE block_num > ? ORDER BY block_num ASC LIMIT ?`,
		fromBlock, limit*8) // over-fetch, then filter by prefix in Go since sqlite has no bit-slice-of-blob op
	if err != nil {
		return nil, fmt.Errorf("failed to scan nullifiers: %w", err)
	}
	defer rows.Close()

	var out []protocol.Nullifier
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan nullifier: %w", err)
		}
		d, err := protocol.DigestFromBytes(raw)
		if err != nil {
			return nil, err
		}
		if matchesPrefix(d.Prefix16(), prefixBits, prefix) {
			out = append(out, d)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, rows.Err()
}

func matchesPrefix(value uint16, bits int, target uint16) bool {
	if bits <= 0 || bits > 16 {
		return false
	}
	shift := uint(16 - bits)
	return value>>shift == target>>shift
}
