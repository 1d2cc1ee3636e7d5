package campaign

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenAmount pairs a token with an amount. Lists of token amounts are
// order-sensitive: the Merkle leaf commits to the exact sequence.
type TokenAmount struct {
	Token  common.Address
	Amount *big.Int
}

// Campaign is the persistent header of an ongoing airdrop. Per-token totals
// and per-token claim generations live alongside it in state; Generation only
// counts shutdowns.
type Campaign struct {
	ID         common.Hash
	Root       common.Hash
	Deadline   int64
	Generation uint64
	// Tokens lists every token ever allocated to the campaign, in first-seen order.
	Tokens []common.Address
}

// Active reports whether the campaign currently accepts claims.
func (c *Campaign) Active() bool {
	return c != nil && c.Root != (common.Hash{})
}

// HasDeadline reports whether claims are time-limited.
func (c *Campaign) HasDeadline() bool {
	return c != nil && c.Deadline != 0
}

func (c *Campaign) Clone() *Campaign {
	if c == nil {
		return nil
	}
	out := *c
	out.Tokens = append([]common.Address(nil), c.Tokens...)
	return &out
}

func (c *Campaign) trackToken(token common.Address) {
	for _, existing := range c.Tokens {
		if existing == token {
			return
		}
	}
	c.Tokens = append(c.Tokens, token)
}

func cloneAmounts(list []TokenAmount) []TokenAmount {
	out := make([]TokenAmount, len(list))
	for i, entry := range list {
		out[i] = TokenAmount{Token: entry.Token, Amount: cloneAmount(entry.Amount)}
	}
	return out
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
