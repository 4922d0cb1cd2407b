// Copyright 2025 Certen Protocol
//
// Account Delta Repository - per-block records of account state changes,
// split by storage-slot/asset kind so get_account_state_delta can
// reconstruct a range without deserializing an opaque blob.

package database

import (
	"context"
	"fmt"

	"github.com/miden-node/rollup/pkg/protocol"
)

// AccountDeltaRepository handles the account_deltas table.
type AccountDeltaRepository struct {
	client *Client
}

func NewAccountDeltaRepository(client *Client) *AccountDeltaRepository {
	return &AccountDeltaRepository{client: client}
}

// Insert persists one AccountDelta as a set of rows, one per slot/asset
// change it describes.
func (r *AccountDeltaRepository) Insert(ctx context.Context, tx *Tx, d protocol.AccountDelta) error {
	exec := tx.Raw()

	for slot, value := range d.ScalarSlots {
		if _, err := exec.ExecContext(ctx, `
			INSERT INTO account_deltas (account_id_hi, account_id_lo, block_num, kind, slot, value)
			VALUES (?, ?, ?, 'scalar_slot', ?, ?)`,
			d.AccountID[0], d.AccountID[1], d.BlockNum, slot, value.Bytes()); err != nil {
			return fmt.Errorf("failed to insert scalar slot delta: %w", err)
		}
	}
	for slot, updates := range d.MapSlotUpdates {
		for key, value := range updates {
			if _, err := exec.ExecContext(ctx, `
				INSERT INTO account_deltas (account_id_hi, account_id_lo, block_num, kind, slot, map_key, value)
				VALUES (?, ?, ?, 'map_slot', ?, ?, ?)`,
				d.AccountID[0], d.AccountID[1], d.BlockNum, slot, key.Bytes(), value.Bytes()); err != nil {
				return fmt.Errorf("failed to insert map slot delta: %w", err)
			}
		}
	}
	for faucet, delta := range d.FungibleDeltas {
		if _, err := exec.ExecContext(ctx, `
			INSERT INTO account_deltas (account_id_hi, account_id_lo, block_num, kind, faucet_id_hi, faucet_id_lo, amount_delta)
			VALUES (?, ?, ?, 'fungible_asset', ?, ?, ?)`,
			d.AccountID[0], d.AccountID[1], d.BlockNum, faucet[0], faucet[1], delta); err != nil {
			return fmt.Errorf("failed to insert fungible asset delta: %w", err)
		}
	}
	for _, assetDigest := range d.NonFungibleAdds {
		if _, err := exec.ExecContext(ctx, `
			INSERT INTO account_deltas (account_id_hi, account_id_lo, block_num, kind, value, added)
			VALUES (?, ?, ?, 'non_fungible_asset', ?, 1)`,
			d.AccountID[0], d.AccountID[1], d.BlockNum, assetDigest.Bytes()); err != nil {
			return fmt.Errorf("failed to insert non-fungible asset addition: %w", err)
		}
	}
	for _, assetDigest := range d.NonFungibleRems {
		if _, err := exec.ExecContext(ctx, `
			INSERT INTO account_deltas (account_id_hi, account_id_lo, block_num, kind, value, added)
			VALUES (?, ?, ?, 'non_fungible_asset', ?, 0)`,
			d.AccountID[0], d.AccountID[1], d.BlockNum, assetDigest.Bytes()); err != nil {
			return fmt.Errorf("failed to insert non-fungible asset removal: %w", err)
		}
	}
	return nil
}

// RangeForAccount returns every delta row recorded for id within
// (fromBlock, toBlock], used to reconstruct get_account_state_delta.
func (r *AccountDeltaRepository) RangeForAccount(ctx context.Context, id protocol.AccountID, fromBlock, toBlock protocol.BlockNumber) ([]DeltaRow, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT kind, slot, map_key, value, faucet_id_hi, faucet_id_lo, amount_delta, added
		FROM account_deltas
		WHERE account_id_hi = ? AND account_id_lo = ? AND block_num > ? AND block_num <= ?
		ORDER BY id ASC`, id[0], id[1], fromBlock, toBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to range account deltas: %w", err)
	}
	defer rows.Close()

	var out []DeltaRow
	for rows.Next() {
		var d DeltaRow
		var slot, faucetHi, faucetLo, amount, added sqlNullInt64
		var mapKey, value []byte
		if err := rows.Scan(&d.Kind, &slot, &mapKey, &value, &faucetHi, &faucetLo, &amount, &added); err != nil {
			return nil, fmt.Errorf("failed to scan account delta: %w", err)
		}
		d.Slot, d.HasSlot = slot.val, slot.valid
		d.MapKey, d.Value = mapKey, value
		d.FaucetIDHi, d.FaucetIDLo = faucetHi.val, faucetLo.val
		d.AmountDelta = amount.val
		d.Added = added.val != 0
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeltaRow is a single recorded delta, untyped enough to cover every
// `kind` the schema stores; callers in pkg/store interpret Kind to pick
// which fields are meaningful.
type DeltaRow struct {
	Kind        string
	Slot        int64
	HasSlot     bool
	MapKey      []byte
	Value       []byte
	FaucetIDHi  int64
	FaucetIDLo  int64
	AmountDelta int64
	Added       bool
}

// sqlNullInt64 adapts nullable integer columns without importing
// database/sql's NullInt64 into every call site.
type sqlNullInt64 struct {
	val   int64
	valid bool
}

func (n *sqlNullInt64) Scan(src any) error {
	if src == nil {
		n.valid = false
		return nil
	}
	n.valid = true
	switch v := src.(type) {
	case int64:
		n.val = v
	default:
		return fmt.Errorf("unsupported scan type %T for sqlNullInt64", src)
	}
	return nil
}
