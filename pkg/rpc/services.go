// Copyright 2025 Certen Protocol

package rpc

// Service names for the two long-lived processes, plus each one's
// method names. The public gateway service is not implemented in this
// repository, but its methods are a subset of StoreService's and
// BlockProducerService's, so the boundary stays concrete: a gateway
// process would dial the same two services with the same method names
// and simply decline to expose ApplyBlock et al.
const (
	StoreService         = "Store"
	BlockProducerService = "BlockProducer"
	ProverService        = "Prover"
)

// Store service methods (internal; read methods are also what a gateway
// would forward on behalf of public clients).
const (
	MethodApplyBlock                 = "ApplyBlock"
	MethodGetBlockInputs             = "GetBlockInputs"
	MethodGetBatchInputs             = "GetBatchInputs"
	MethodGetTransactionInputs       = "GetTransactionInputs"
	MethodGetNoteAuthenticationInfo  = "GetNoteAuthenticationInfo"
	MethodCheckNullifiers            = "CheckNullifiers"
	MethodCheckNullifiersByPrefix    = "CheckNullifiersByPrefix"
	MethodGetBlockHeaderByNumber     = "GetBlockHeaderByNumber"
	MethodGetBlockByNumber           = "GetBlockByNumber"
	MethodGetNotesByID               = "GetNotesById"
	MethodGetAccountDetails          = "GetAccountDetails"
	MethodGetAccountStateDelta       = "GetAccountStateDelta"
	MethodGetAccountProofs           = "GetAccountProofs"
	MethodSyncState                  = "SyncState"
	MethodSyncNotes                  = "SyncNotes"
	MethodTip                        = "Tip"
	MethodListUnconsumedNetworkNotes = "ListUnconsumedNetworkNotes"
)

// Block Producer service methods.
const (
	MethodSubmitProvenTransaction = "SubmitProvenTransaction"
)

// Prover service methods, dialed by pkg/prover over the same framed
// transport. The prover endpoints run out of process.
const (
	MethodProveBatch = "ProveBatch"
	MethodProveBlock = "ProveBlock"
)
