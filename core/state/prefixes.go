package state

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

var (
	trancheRecordPrefix   = []byte("tranche/record/")
	trancheClaimPrefix    = []byte("tranche/claimed/")
	campaignRecordPrefix  = []byte("campaign/record/")
	campaignDropPrefix    = []byte("campaign/airdropped/")
	campaignClaimedPrefix = []byte("campaign/claimed/")
	campaignClaimPrefix   = []byte("campaign/claimant/")
	campaignGenPrefix     = []byte("campaign/generation/")
	roleRecordPrefix      = []byte("access/role/")
	balancePrefix         = []byte("bank/balance/")
)

// TrancheKey returns the raw (unhashed) key of a tranche record.
func TrancheKey(root common.Hash) []byte {
	return joinKey(trancheRecordPrefix, root.Bytes())
}

// TrancheClaimKey returns the raw key of a (root, claimant) claim flag.
func TrancheClaimKey(root common.Hash, claimant common.Address) []byte {
	return joinKey(trancheClaimPrefix, root.Bytes(), []byte{'/'}, claimant.Bytes())
}

func CampaignKey(id common.Hash) []byte {
	return joinKey(campaignRecordPrefix, id.Bytes())
}

func CampaignAirdroppedKey(id common.Hash, token common.Address) []byte {
	return joinKey(campaignDropPrefix, id.Bytes(), []byte{'/'}, token.Bytes())
}

func CampaignClaimedKey(id common.Hash, token common.Address) []byte {
	return joinKey(campaignClaimedPrefix, id.Bytes(), []byte{'/'}, token.Bytes())
}

// CampaignGenerationKey holds the claim generation of one campaign token.
func CampaignGenerationKey(id common.Hash, token common.Address) []byte {
	return joinKey(campaignGenPrefix, id.Bytes(), []byte{'/'}, token.Bytes())
}

// CampaignClaimantKey scopes a claimant's cumulative claim to the token's
// generation so records written before that token was swept are never read
// again.
func CampaignClaimantKey(id common.Hash, generation uint64, token, claimant common.Address) []byte {
	var gen [8]byte
	binary.BigEndian.PutUint64(gen[:], generation)
	return joinKey(campaignClaimPrefix, id.Bytes(), []byte{'/'}, gen[:], []byte{'/'}, token.Bytes(), []byte{'/'}, claimant.Bytes())
}

func RoleKey(role common.Hash) []byte {
	return joinKey(roleRecordPrefix, role.Bytes())
}

func BalanceKey(token, owner common.Address) []byte {
	return joinKey(balancePrefix, token.Bytes(), []byte{'/'}, owner.Bytes())
}
