// Package merkle verifies and builds keccak256 Merkle trees that use the
// sorted-pair convention: siblings are ordered before hashing so proofs carry
// no left/right position bits.
package merkle

import (
	"bytes"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrEmptyProof   = errors.New("merkle: empty proof")
	ErrInvalidProof = errors.New("merkle: invalid proof")
)

// HashPair hashes two nodes after ordering them bytewise.
func HashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return ethcrypto.Keccak256Hash(a[:], b[:])
}

// Process folds the proof into the leaf and returns the recomputed root.
func Process(leaf common.Hash, proof []common.Hash) common.Hash {
	computed := leaf
	for _, sibling := range proof {
		computed = HashPair(computed, sibling)
	}
	return computed
}

// Verify reports whether proof links leaf to root.
func Verify(root, leaf common.Hash, proof []common.Hash) bool {
	return Process(leaf, proof) == root
}

// VerifyProof applies the claim policy on top of Verify: an empty proof is
// always rejected, even for single-leaf trees where leaf == root.
func VerifyProof(root, leaf common.Hash, proof []common.Hash) error {
	if len(proof) == 0 {
		return ErrEmptyProof
	}
	if !Verify(root, leaf, proof) {
		return ErrInvalidProof
	}
	return nil
}
