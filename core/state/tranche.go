package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"merkledrop/native/tranche"
)

type storedTranche struct {
	Root            [32]byte
	ClaimableAmount *big.Int
	ClaimedAmount   *big.Int
	Deadline        *big.Int
}

func newStoredTranche(t *tranche.Tranche) *storedTranche {
	record := &storedTranche{
		Root:            t.Root,
		ClaimableAmount: big.NewInt(0),
		ClaimedAmount:   big.NewInt(0),
		Deadline:        big.NewInt(t.Deadline),
	}
	if t.ClaimableAmount != nil {
		record.ClaimableAmount = new(big.Int).Set(t.ClaimableAmount)
	}
	if t.ClaimedAmount != nil {
		record.ClaimedAmount = new(big.Int).Set(t.ClaimedAmount)
	}
	return record
}

func (s *storedTranche) toTranche() *tranche.Tranche {
	out := &tranche.Tranche{
		Root:            common.Hash(s.Root),
		ClaimableAmount: big.NewInt(0),
		ClaimedAmount:   big.NewInt(0),
	}
	if s.ClaimableAmount != nil {
		out.ClaimableAmount.Set(s.ClaimableAmount)
	}
	if s.ClaimedAmount != nil {
		out.ClaimedAmount.Set(s.ClaimedAmount)
	}
	if s.Deadline != nil {
		out.Deadline = s.Deadline.Int64()
	}
	return out
}

// TranchePut stores the tranche keyed by its root.
func (m *Manager) TranchePut(t *tranche.Tranche) error {
	if t == nil {
		return fmt.Errorf("tranche: nil value")
	}
	if t.Deadline < 0 {
		return fmt.Errorf("tranche: negative deadline")
	}
	return m.KVPut(TrancheKey(t.Root), newStoredTranche(t))
}

// TrancheGet loads the tranche stored under root. The boolean is false when
// no record exists.
func (m *Manager) TrancheGet(root common.Hash) (*tranche.Tranche, bool, error) {
	stored := new(storedTranche)
	ok, err := m.KVGet(TrancheKey(root), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toTranche(), true, nil
}

// TrancheClaimed reports whether claimant has claimed from the tranche.
func (m *Manager) TrancheClaimed(root common.Hash, claimant common.Address) (bool, error) {
	return m.KVHas(TrancheClaimKey(root, claimant))
}

// SetTrancheClaimed records a claim. Claim flags are never cleared.
func (m *Manager) SetTrancheClaimed(root common.Hash, claimant common.Address) error {
	return m.KVPut(TrancheClaimKey(root, claimant), true)
}
