package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"merkledrop/native/campaign"
)

type storedCampaign struct {
	ID         [32]byte
	Root       [32]byte
	Deadline   *big.Int
	Generation uint64
	Tokens     [][20]byte
}

func newStoredCampaign(c *campaign.Campaign) *storedCampaign {
	record := &storedCampaign{
		ID:         c.ID,
		Root:       c.Root,
		Deadline:   big.NewInt(c.Deadline),
		Generation: c.Generation,
		Tokens:     make([][20]byte, len(c.Tokens)),
	}
	for i, token := range c.Tokens {
		record.Tokens[i] = token
	}
	return record
}

func (s *storedCampaign) toCampaign() *campaign.Campaign {
	out := &campaign.Campaign{
		ID:         common.Hash(s.ID),
		Root:       common.Hash(s.Root),
		Generation: s.Generation,
		Tokens:     make([]common.Address, len(s.Tokens)),
	}
	if s.Deadline != nil {
		out.Deadline = s.Deadline.Int64()
	}
	for i, token := range s.Tokens {
		out.Tokens[i] = common.Address(token)
	}
	return out
}

func (m *Manager) CampaignPut(c *campaign.Campaign) error {
	if c == nil {
		return fmt.Errorf("campaign: nil value")
	}
	if c.Deadline < 0 {
		return fmt.Errorf("campaign: negative deadline")
	}
	return m.KVPut(CampaignKey(c.ID), newStoredCampaign(c))
}

func (m *Manager) CampaignGet(id common.Hash) (*campaign.Campaign, bool, error) {
	stored := new(storedCampaign)
	ok, err := m.KVGet(CampaignKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toCampaign(), true, nil
}

// CampaignAirdropped returns the total allocated to the campaign for token.
func (m *Manager) CampaignAirdropped(id common.Hash, token common.Address) (*big.Int, error) {
	return m.loadBigInt(CampaignAirdroppedKey(id, token))
}

func (m *Manager) SetCampaignAirdropped(id common.Hash, token common.Address, amount *big.Int) error {
	return m.writeBigInt(CampaignAirdroppedKey(id, token), amount)
}

// CampaignClaimed returns the campaign-wide claimed total for token.
func (m *Manager) CampaignClaimed(id common.Hash, token common.Address) (*big.Int, error) {
	return m.loadBigInt(CampaignClaimedKey(id, token))
}

func (m *Manager) SetCampaignClaimed(id common.Hash, token common.Address, amount *big.Int) error {
	return m.writeBigInt(CampaignClaimedKey(id, token), amount)
}

// CampaignClaimantClaimed returns the cumulative amount claimant has claimed
// for token within the given campaign generation.
func (m *Manager) CampaignClaimantClaimed(id common.Hash, generation uint64, token, claimant common.Address) (*big.Int, error) {
	return m.loadBigInt(CampaignClaimantKey(id, generation, token, claimant))
}

func (m *Manager) SetCampaignClaimantClaimed(id common.Hash, generation uint64, token, claimant common.Address, amount *big.Int) error {
	return m.writeBigInt(CampaignClaimantKey(id, generation, token, claimant), amount)
}

// CampaignTokenGeneration returns how many times token has been swept out of
// the campaign by a shutdown.
func (m *Manager) CampaignTokenGeneration(id common.Hash, token common.Address) (uint64, error) {
	var gen uint64
	if _, err := m.KVGet(CampaignGenerationKey(id, token), &gen); err != nil {
		return 0, err
	}
	return gen, nil
}

func (m *Manager) SetCampaignTokenGeneration(id common.Hash, token common.Address, generation uint64) error {
	return m.KVPut(CampaignGenerationKey(id, token), generation)
}
