// Copyright 2025 Certen Protocol

package protocol

import "crypto/sha256"

// defaultHashBlockHeader compresses a BlockHeader's fields into a single
// Digest. Real field-element hashing (e.g. Rescue/Poseidon) is out of
// scope here; SHA-256 over the fixed-width encoding gives the same
// "collision-resistant digest of canonical bytes" property the
// accumulators rely on.
func defaultHashBlockHeader(h BlockHeader) Digest {
	buf := make([]byte, 0, 4+4+32*8+8)
	buf = appendUint32(buf, h.Version)
	buf = append(buf, h.PrevHash.Bytes()...)
	buf = appendUint32(buf, uint32(h.BlockNum))
	buf = append(buf, h.ChainRoot.Bytes()...)
	buf = append(buf, h.AccountRoot.Bytes()...)
	buf = append(buf, h.NullifierRoot.Bytes()...)
	buf = append(buf, h.NoteRoot.Bytes()...)
	buf = append(buf, h.TxHash.Bytes()...)
	buf = append(buf, h.KernelRoot.Bytes()...)
	buf = append(buf, h.ProofHash.Bytes()...)
	buf = appendUint64(buf, uint64(h.Timestamp))
	sum := sha256.Sum256(buf)
	return bytesToDigest(sum[:])
}

// HashBytes reduces an arbitrary byte slice to a Digest, used for Merkle
// leaves and nullifier derivation throughout pkg/merkle and pkg/store.
func HashBytes(b []byte) Digest {
	sum := sha256.Sum256(b)
	return bytesToDigest(sum[:])
}

// HashDigests combines two digests into one, the pairwise hash used by
// both the note tree and the Merkle mountain range.
func HashDigests(left, right Digest) Digest {
	buf := make([]byte, 0, 64)
	buf = append(buf, left.Bytes()...)
	buf = append(buf, right.Bytes()...)
	return HashBytes(buf)
}

func bytesToDigest(sum []byte) Digest {
	padded := make([]byte, 32)
	copy(padded, sum)
	d, _ := DigestFromBytes(padded)
	return d
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendUint64(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
