// Copyright 2025 Certen Protocol
//
// Binary codec for the entities that cross the internal RPC boundary or
// get written to a block blob file. Fixed-width primitives (Digest,
// AccountID, BlockNumber) use the explicit big-endian layouts defined in
// types.go so their round trip is bit-exact; variable-length and nested
// structures (Transaction, Batch, Block, BlockHeader) are encoded with
// encoding/gob, the project's native format for opaque payloads that
// callers outside pkg/protocol never need to inspect field-by-field.
package protocol

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// EncodeBlockHeader serializes a header to its canonical byte form.
func EncodeBlockHeader(h BlockHeader) ([]byte, error) {
	return encodeGob(h)
}

// DecodeBlockHeader parses bytes produced by EncodeBlockHeader.
func DecodeBlockHeader(b []byte) (BlockHeader, error) {
	var h BlockHeader
	err := decodeGob(b, &h)
	return h, err
}

// EncodeTransaction serializes a transaction for storage or transport.
func EncodeTransaction(tx Transaction) ([]byte, error) {
	return encodeGob(tx)
}

// DecodeTransaction parses bytes produced by EncodeTransaction.
func DecodeTransaction(b []byte) (Transaction, error) {
	var tx Transaction
	err := decodeGob(b, &tx)
	return tx, err
}

// EncodeBatch serializes a batch.
func EncodeBatch(batch Batch) ([]byte, error) {
	return encodeGob(batch)
}

// DecodeBatch parses bytes produced by EncodeBatch.
func DecodeBatch(b []byte) (Batch, error) {
	var batch Batch
	err := decodeGob(b, &batch)
	return batch, err
}

// BlockBlob is the opaque, project-native payload written to one block
// file under the Store's data directory: the committed header plus the
// ordered transaction IDs it contains. Batch/proof data is not part of
// the blob; it lives in the relational tables and is not needed to
// replay chain state.
type BlockBlob struct {
	Header       BlockHeader
	Transactions []Digest
}

// EncodeBlockBlob serializes a block blob for disk.
func EncodeBlockBlob(b BlockBlob) ([]byte, error) {
	return encodeGob(b)
}

// DecodeBlockBlob parses a block blob read from disk.
func DecodeBlockBlob(data []byte) (BlockBlob, error) {
	var b BlockBlob
	err := decodeGob(data, &b)
	return b, err
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}
