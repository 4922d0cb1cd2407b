// Copyright 2025 Certen Protocol
//
// Settings Repository - one-row-per-key key/value persistence for the Store's
// tip bookkeeping (current block number, genesis digest, etc.), with
// explicit sentinel errors instead of nil, nil returns.

package database

import (
	"context"
	"database/sql"
	"fmt"
)

// SettingsRepository handles the settings key/value table.
type SettingsRepository struct {
	client *Client
}

func NewSettingsRepository(client *Client) *SettingsRepository {
	return &SettingsRepository{client: client}
}

// Get returns the value stored under key.
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.client.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrSettingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %q: %w", key, err)
	}
	return value, nil
}

// Set upserts the value stored under key.
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.client.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %q: %w", key, err)
	}
	return nil
}

const settingChainTip = "chain_tip"

// ChainTip returns the highest committed block number, or (0, false) if
// the chain has no blocks yet.
func (r *SettingsRepository) ChainTip(ctx context.Context) (uint32, bool, error) {
	value, err := r.Get(ctx, settingChainTip)
	if err == ErrSettingNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var tip uint32
	if _, err := fmt.Sscanf(value, "%d", &tip); err != nil {
		return 0, false, fmt.Errorf("corrupt chain_tip setting %q: %w", value, err)
	}
	return tip, true, nil
}

// SetChainTip records the highest committed block number.
func (r *SettingsRepository) SetChainTip(ctx context.Context, blockNum uint32) error {
	return r.Set(ctx, settingChainTip, fmt.Sprintf("%d", blockNum))
}
