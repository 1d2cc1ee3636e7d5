package campaign

import (
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// LeafBytes returns claimant[20] followed by token[20] || amount[32] for
// every entry, in list order. Amounts are big-endian uint256.
func LeafBytes(claimant common.Address, amounts []TokenAmount) ([]byte, error) {
	if len(amounts) == 0 {
		return nil, ErrInvalidTokenAmount
	}
	out := make([]byte, 0, common.AddressLength+len(amounts)*(common.AddressLength+32))
	out = append(out, claimant.Bytes()...)
	for _, entry := range amounts {
		if entry.Amount == nil || entry.Amount.Sign() < 0 {
			return nil, ErrInvalidTokenAmount
		}
		value, overflow := uint256.FromBig(entry.Amount)
		if overflow {
			return nil, ErrInvalidTokenAmount
		}
		word := value.Bytes32()
		out = append(out, entry.Token.Bytes()...)
		out = append(out, word[:]...)
	}
	return out, nil
}

// Leaf returns the keccak256 hash of LeafBytes.
func Leaf(claimant common.Address, amounts []TokenAmount) (common.Hash, error) {
	raw, err := LeafBytes(claimant, amounts)
	if err != nil {
		return common.Hash{}, err
	}
	return ethcrypto.Keccak256Hash(raw), nil
}
