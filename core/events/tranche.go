package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"merkledrop/core/types"
	"merkledrop/crypto"
)

const (
	TypeTrancheCreated = "tranche.created"
	TypeTrancheClaimed = "tranche.claimed"
	TypeTrancheClosed  = "tranche.closed"
)

type TrancheCreated struct {
	Root     common.Hash
	Amount   *big.Int
	Deadline int64
}

func (TrancheCreated) EventType() string { return TypeTrancheCreated }

func (e TrancheCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeTrancheCreated,
		Attributes: map[string]string{
			"root":     e.Root.Hex(),
			"amount":   formatAmount(e.Amount),
			"deadline": intToString(e.Deadline),
		},
	}
}

type TrancheClaimed struct {
	Root      common.Hash
	Claimant  common.Address
	Recipient common.Address
	Amount    *big.Int
}

func (TrancheClaimed) EventType() string { return TypeTrancheClaimed }

func (e TrancheClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeTrancheClaimed,
		Attributes: map[string]string{
			"root":      e.Root.Hex(),
			"claimant":  crypto.FormatAddress(e.Claimant),
			"recipient": crypto.FormatAddress(e.Recipient),
			"amount":    formatAmount(e.Amount),
		},
	}
}

type TrancheClosed struct {
	Root      common.Hash
	Recipient common.Address
	Unclaimed *big.Int
}

func (TrancheClosed) EventType() string { return TypeTrancheClosed }

func (e TrancheClosed) Event() *types.Event {
	return &types.Event{
		Type: TypeTrancheClosed,
		Attributes: map[string]string{
			"root":      e.Root.Hex(),
			"recipient": crypto.FormatAddress(e.Recipient),
			"unclaimed": formatAmount(e.Unclaimed),
		},
	}
}
