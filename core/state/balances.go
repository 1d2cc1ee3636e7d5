package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Balance returns the token balance held by owner.
func (m *Manager) Balance(token, owner common.Address) (*big.Int, error) {
	return m.loadBigInt(BalanceKey(token, owner))
}

// SetBalance overwrites the token balance held by owner.
func (m *Manager) SetBalance(token, owner common.Address, amount *big.Int) error {
	return m.writeBigInt(BalanceKey(token, owner), amount)
}
