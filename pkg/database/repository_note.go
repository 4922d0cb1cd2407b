// Copyright 2025 Certen Protocol
//
// Note Repository - CRUD and lookup operations for output notes.

package database

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/miden-node/rollup/pkg/protocol"
)

// NoteRepository handles the notes table.
type NoteRepository struct {
	client *Client
}

func NewNoteRepository(client *Client) *NoteRepository {
	return &NoteRepository{client: client}
}

// Insert persists a newly created note at the block/leaf index it was
// assigned in that block's note tree.
func (r *NoteRepository) Insert(ctx context.Context, tx *Tx, n protocol.Note, nullifier protocol.Nullifier) error {
	var assetsBuf bytes.Buffer
	if err := gob.NewEncoder(&assetsBuf).Encode(n.Assets); err != nil {
		return fmt.Errorf("failed to encode note assets: %w", err)
	}

	_, err := tx.Raw().ExecContext(ctx, `
		INSERT INTO notes (
			note_id, block_num, leaf_index, sender_hi, sender_lo, tag,
			note_type, exec_hint, aux, recipient, nullifier, assets
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID.Bytes(), n.BlockNum, n.LeafIndex, n.Metadata.Sender[0], n.Metadata.Sender[1],
		n.Metadata.Tag, n.Metadata.NoteType, uint64(n.Metadata.ExecutionHint), n.Metadata.Aux,
		n.Recipient.Bytes(), nullifier.Bytes(), assetsBuf.Bytes(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// MarkConsumed records the block at which a note's nullifier was
// consumed.
func (r *NoteRepository) MarkConsumed(ctx context.Context, tx *Tx, nullifier protocol.Nullifier, blockNum protocol.BlockNumber) error {
	_, err := tx.Raw().ExecContext(ctx,
		`UPDATE notes SET consumed_at = ? WHERE nullifier = ?`, blockNum, nullifier.Bytes())
	if err != nil {
		return fmt.Errorf("failed to mark note consumed: %w", err)
	}
	return nil
}

// GetByID returns a single note by its ID.
func (r *NoteRepository) GetByID(ctx context.Context, id protocol.Digest) (protocol.Note, error) {
	row := r.client.QueryRowContext(ctx, `
		SELECT note_id, block_num, leaf_index, sender_hi, sender_lo, tag,
		       note_type, exec_hint, aux, recipient, assets
		FROM notes WHERE note_id = ?`, id.Bytes())
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.Note{}, ErrNoteNotFound
	}
	return n, err
}

// GetByIDs returns every requested note that exists; missing ids are
// simply absent from the result, letting callers diff against the
// requested set to find the unauthenticated notes the Store doesn't know
// about yet.
func (r *NoteRepository) GetByIDs(ctx context.Context, ids []protocol.Digest) ([]protocol.Note, error) {
	var out []protocol.Note
	for _, id := range ids {
		n, err := r.GetByID(ctx, id)
		if err == ErrNoteNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// ByTagFromBlock returns notes tagged with tag committed after fromBlock,
// the primitive behind sync_notes.
func (r *NoteRepository) ByTagFromBlock(ctx context.Context, tag uint32, fromBlock protocol.BlockNumber, limit int) ([]protocol.Note, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT note_id, block_num, leaf_index, sender_hi, sender_lo, tag,
		       note_type, exec_hint, aux, recipient, assets
		FROM notes WHERE tag = ? AND block_num > ? ORDER BY block_num ASC LIMIT ?`, tag, fromBlock, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes by tag: %w", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

// ByTagPrefixFromBlock returns notes committed after fromBlock whose
// tag's leading 16 bits match prefix, the primitive behind
// sync_notes/sync_state's privacy-preserving tag filter: clients send
// only the high 16 bits of a 32-bit tag and refilter locally.
func (r *NoteRepository) ByTagPrefixFromBlock(ctx context.Context, prefix uint16, fromBlock protocol.BlockNumber, limit int) ([]protocol.Note, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT note_id, block_num, leaf_index, sender_hi, sender_lo, tag,
		       note_type, exec_hint, aux, recipient, assets
		FROM notes WHERE block_num > ? ORDER BY block_num ASC LIMIT ?`, fromBlock, limit*8)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes by tag prefix: %w", err)
	}
	defer rows.Close()

	notes, err := scanNotes(rows)
	if err != nil {
		return nil, err
	}
	out := notes[:0]
	for _, n := range notes {
		if uint16(n.Metadata.Tag>>16) == prefix {
			out = append(out, n)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// ByBlock returns every note created in blockNum, ordered by the leaf
// index it was assigned in that block's note tree - the leaf order
// GetNoteAuthenticationInfo needs to rebuild the tree.
func (r *NoteRepository) ByBlock(ctx context.Context, blockNum protocol.BlockNumber) ([]protocol.Note, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT note_id, block_num, leaf_index, sender_hi, sender_lo, tag,
		       note_type, exec_hint, aux, recipient, assets
		FROM notes WHERE block_num = ? ORDER BY leaf_index ASC`, blockNum)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes by block: %w", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

// UnconsumedNetworkNotes returns notes carrying the network execution
// hint that no committed transaction has consumed yet. The predicate on
// the packed hint's low 6 bits is spelled the same way as the partial
// index's WHERE clause so the planner can use it.
func (r *NoteRepository) UnconsumedNetworkNotes(ctx context.Context, limit int) ([]protocol.Note, error) {
	rows, err := r.client.QueryContext(ctx, fmt.Sprintf(`
		SELECT note_id, block_num, leaf_index, sender_hi, sender_lo, tag,
		       note_type, exec_hint, aux, recipient, assets
		FROM notes WHERE consumed_at IS NULL AND (exec_hint & 63) = %d
		ORDER BY block_num ASC LIMIT ?`, protocol.ExecutionHintNetwork), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unconsumed network notes: %w", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

func scanNotes(rows *sql.Rows) ([]protocol.Note, error) {
	var out []protocol.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanNote(row rowScanner) (protocol.Note, error) {
	var n protocol.Note
	var noteID, recipient, assetsBuf []byte
	var execHint uint64
	if err := row.Scan(&noteID, &n.BlockNum, &n.LeafIndex, &n.Metadata.Sender[0], &n.Metadata.Sender[1],
		&n.Metadata.Tag, &n.Metadata.NoteType, &execHint, &n.Metadata.Aux, &recipient, &assetsBuf); err != nil {
		return n, fmt.Errorf("failed to scan note: %w", err)
	}
	n.Metadata.ExecutionHint = protocol.ExecutionHint(execHint)
	var err error
	if n.ID, err = protocol.DigestFromBytes(noteID); err != nil {
		return n, err
	}
	if n.Recipient, err = protocol.DigestFromBytes(recipient); err != nil {
		return n, err
	}
	if len(assetsBuf) > 0 {
		if err := gob.NewDecoder(bytes.NewReader(assetsBuf)).Decode(&n.Assets); err != nil {
			return n, fmt.Errorf("failed to decode note assets: %w", err)
		}
	}
	return n, nil
}
