// Copyright 2025 Certen Protocol
//
// Status enums for the three mempool node tiers, one enum-as-string-const
// block per tier.

package mempool

// TxStatus is a transaction's lifecycle state within the mempool.
type TxStatus string

const (
	TxAdmitted TxStatus = "admitted"
	TxInBatch  TxStatus = "in_batch"
	TxInBlock  TxStatus = "in_block"
	TxReverted TxStatus = "reverted"
)

// BatchStatus is a batch's lifecycle state within the mempool.
type BatchStatus string

const (
	BatchProposed BatchStatus = "proposed"
	BatchProven   BatchStatus = "proven"
	BatchInBlock  BatchStatus = "in_block"
	BatchReverted BatchStatus = "reverted"
)

// BlockStatus is an in-flight block's lifecycle state within the mempool.
type BlockStatus string

const (
	BlockBuilding  BlockStatus = "building"
	BlockProving   BlockStatus = "proving"
	BlockCommitted BlockStatus = "committed"
	BlockReverted  BlockStatus = "reverted"
)
