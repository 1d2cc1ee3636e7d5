package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"merkledrop/core/types"
	"merkledrop/crypto"
)

const (
	// TypeTransfer is emitted for every token balance movement made by the bank.
	TypeTransfer = "transfer.token"
)

type Transfer struct {
	Token  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	return &types.Event{
		Type: TypeTransfer,
		Attributes: map[string]string{
			"token":  crypto.FormatAddress(e.Token),
			"from":   crypto.FormatAddress(e.From),
			"to":     crypto.FormatAddress(e.To),
			"amount": formatAmount(e.Amount),
		},
	}
}
