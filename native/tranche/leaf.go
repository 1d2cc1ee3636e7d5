package tranche

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// AmountBits is the width of the amount field committed to by a leaf.
const AmountBits = 112

const amountBytes = AmountBits / 8

// MaxAmount is the largest amount representable in a leaf.
var MaxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), AmountBits), big.NewInt(1))

// LeafBytes returns claimant[20] || amount as a 14-byte big-endian integer.
func LeafBytes(claimant common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() <= 0 || amount.BitLen() > AmountBits {
		return nil, ErrInvalidAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrInvalidAmount
	}
	word := value.Bytes32()
	out := make([]byte, 0, common.AddressLength+amountBytes)
	out = append(out, claimant.Bytes()...)
	out = append(out, word[32-amountBytes:]...)
	return out, nil
}

// Leaf returns the keccak256 hash of LeafBytes.
func Leaf(claimant common.Address, amount *big.Int) (common.Hash, error) {
	raw, err := LeafBytes(claimant, amount)
	if err != nil {
		return common.Hash{}, err
	}
	return ethcrypto.Keccak256Hash(raw), nil
}
