package tranche

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Tranche is a fixed pool of claimable tokens published under a Merkle root.
// A tranche exists iff ClaimableAmount is positive.
type Tranche struct {
	Root            common.Hash
	ClaimableAmount *big.Int
	ClaimedAmount   *big.Int
	Deadline        int64
}

// Exists reports whether the tranche has been created.
func (t *Tranche) Exists() bool {
	return t != nil && t.ClaimableAmount != nil && t.ClaimableAmount.Sign() > 0
}

// Unclaimed returns ClaimableAmount - ClaimedAmount, floored at zero.
func (t *Tranche) Unclaimed() *big.Int {
	if !t.Exists() {
		return big.NewInt(0)
	}
	claimed := t.ClaimedAmount
	if claimed == nil {
		claimed = big.NewInt(0)
	}
	out := new(big.Int).Sub(t.ClaimableAmount, claimed)
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

// Clone returns a deep copy of the tranche.
func (t *Tranche) Clone() *Tranche {
	if t == nil {
		return nil
	}
	out := &Tranche{Root: t.Root, Deadline: t.Deadline}
	out.ClaimableAmount = cloneAmount(t.ClaimableAmount)
	out.ClaimedAmount = cloneAmount(t.ClaimedAmount)
	return out
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
