package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"merkledrop/core/types"
	"merkledrop/crypto"
)

const (
	TypeCampaignUpdated  = "campaign.updated"
	TypeCampaignClaimed  = "campaign.claimed"
	TypeCampaignShutdown = "campaign.shutdown"
)

// CampaignUpdated carries the full allocation list submitted with the update.
type CampaignUpdated struct {
	Campaign common.Hash
	Root     common.Hash
	Deadline int64
	Tokens   []common.Address
	Amounts  []*big.Int
}

func (CampaignUpdated) EventType() string { return TypeCampaignUpdated }

func (e CampaignUpdated) Event() *types.Event {
	attrs := map[string]string{
		"campaign": e.Campaign.Hex(),
		"root":     e.Root.Hex(),
		"tokens":   formatAddresses(e.Tokens),
		"amounts":  formatAmounts(e.Amounts),
	}
	if e.Deadline != 0 {
		attrs["deadline"] = intToString(e.Deadline)
	}
	return &types.Event{Type: TypeCampaignUpdated, Attributes: attrs}
}

// CampaignClaimed lists, per token, the amount transferred by this claim and
// the claimant's running total afterwards.
type CampaignClaimed struct {
	Campaign    common.Hash
	Claimant    common.Address
	Recipient   common.Address
	Tokens      []common.Address
	Transferred []*big.Int
	Claimed     []*big.Int
}

func (CampaignClaimed) EventType() string { return TypeCampaignClaimed }

func (e CampaignClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeCampaignClaimed,
		Attributes: map[string]string{
			"campaign":    e.Campaign.Hex(),
			"claimant":    crypto.FormatAddress(e.Claimant),
			"recipient":   crypto.FormatAddress(e.Recipient),
			"tokens":      formatAddresses(e.Tokens),
			"transferred": formatAmounts(e.Transferred),
			"claimed":     formatAmounts(e.Claimed),
		},
	}
}

type CampaignShutdown struct {
	Campaign  common.Hash
	Recipient common.Address
	Tokens    []common.Address
	Unclaimed []*big.Int
}

func (CampaignShutdown) EventType() string { return TypeCampaignShutdown }

func (e CampaignShutdown) Event() *types.Event {
	return &types.Event{
		Type: TypeCampaignShutdown,
		Attributes: map[string]string{
			"campaign":  e.Campaign.Hex(),
			"recipient": crypto.FormatAddress(e.Recipient),
			"tokens":    formatAddresses(e.Tokens),
			"unclaimed": formatAmounts(e.Unclaimed),
		},
	}
}
