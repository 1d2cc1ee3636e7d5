package rpc

import (
	"context"

	"merkledrop/core"
	"merkledrop/crypto"
)

type campaignUpdateParams struct {
	Campaign    string            `json:"campaign"`
	Root        string            `json:"root"`
	Allocations []tokenAmountJSON `json:"allocations"`
	// Deadline of zero publishes the root without a time limit.
	Deadline int64 `json:"deadline,omitempty"`
}

type campaignClaimParams struct {
	Campaign string            `json:"campaign"`
	Claimant string            `json:"claimant"`
	Amounts  []tokenAmountJSON `json:"amounts"`
	Proof    []string          `json:"proof"`
}

type campaignClaimForParams struct {
	Campaign  string            `json:"campaign"`
	Amounts   []tokenAmountJSON `json:"amounts"`
	Recipient string            `json:"recipient"`
	Proof     []string          `json:"proof"`
}

type campaignShutdownParams struct {
	Campaign  string   `json:"campaign"`
	Tokens    []string `json:"tokens"`
	Recipient string   `json:"recipient"`
}

type campaignQueryParams struct {
	Campaign string `json:"campaign"`
	Token    string `json:"token,omitempty"`
	Claimant string `json:"claimant,omitempty"`
}

type campaignTotalsJSON struct {
	Token      string `json:"token"`
	Airdropped string `json:"airdropped"`
	Claimed    string `json:"claimed"`
}

type campaignJSON struct {
	ID         string               `json:"id"`
	Root       string               `json:"root"`
	Deadline   int64                `json:"deadline"`
	Generation uint64               `json:"generation"`
	Active     bool                 `json:"active"`
	Totals     []campaignTotalsJSON `json:"totals"`
}

type campaignPayoutResult struct {
	Transfers []tokenAmountJSON `json:"transfers"`
}

type amountResult struct {
	Amount string `json:"amount"`
}

func formatCampaign(summary *core.CampaignSummary) campaignJSON {
	c := summary.Campaign
	out := campaignJSON{
		ID:         c.ID.Hex(),
		Root:       c.Root.Hex(),
		Deadline:   c.Deadline,
		Generation: c.Generation,
		Active:     c.Active(),
		Totals:     make([]campaignTotalsJSON, len(summary.Totals)),
	}
	for i, totals := range summary.Totals {
		out.Totals[i] = campaignTotalsJSON{
			Token:      crypto.FormatAddress(totals.Token),
			Airdropped: amountString(totals.Airdropped),
			Claimed:    amountString(totals.Claimed),
		}
	}
	return out
}

func (s *Server) handleCampaignUpdate(ctx context.Context, req *RPCRequest) (interface{}, *ModuleError) {
	var params campaignUpdateParams
	caller, modErr := s.openEnvelope(req, &params)
	if modErr != nil {
		return nil, modErr
	}
	id, err := parseHash(params.Campaign, "campaign")
	if err != nil {
		return nil, invalidParams(err)
	}
	root, err := parseHash(params.Root, "root")
	if err != nil {
		return nil, invalidParams(err)
	}
	allocations, err := parseTokenAmounts(params.Allocations)
	if err != nil {
		return nil, invalidParams(err)
	}
	if err := s.node.UpdateCampaign(ctx, caller, id, root, allocations, params.Deadline); err != nil {
		return nil, airdropError(err)
	}
	return okResult{OK: true}, nil
}

func (s *Server) handleCampaignClaim(ctx context.Context, req *RPCRequest) (interface{}, *ModuleError) {
	var params campaignClaimParams
	if _, modErr := s.openEnvelope(req, &params); modErr != nil {
		return nil, modErr
	}
	id, err := parseHash(params.Campaign, "campaign")
	if err != nil {
		return nil, invalidParams(err)
	}
	claimant, err := parseAddressField(params.Claimant, "claimant")
	if err != nil {
		return nil, invalidParams(err)
	}
	amounts, err := parseTokenAmounts(params.Amounts)
	if err != nil {
		return nil, invalidParams(err)
	}
	proof, err := parseProof(params.Proof)
	if err != nil {
		return nil, invalidParams(err)
	}
	paid, err := s.node.ClaimCampaign(ctx, id, claimant, amounts, proof)
	if err != nil {
		return nil, airdropError(err)
	}
	return campaignPayoutResult{Transfers: formatTokenAmounts(paid)}, nil
}

func (s *Server) handleCampaignClaimFor(ctx context.Context, req *RPCRequest) (interface{}, *ModuleError) {
	var params campaignClaimForParams
	caller, modErr := s.openEnvelope(req, &params)
	if modErr != nil {
		return nil, modErr
	}
	id, err := parseHash(params.Campaign, "campaign")
	if err != nil {
		return nil, invalidParams(err)
	}
	amounts, err := parseTokenAmounts(params.Amounts)
	if err != nil {
		return nil, invalidParams(err)
	}
	recipient, err := parseAddressField(params.Recipient, "recipient")
	if err != nil {
		return nil, invalidParams(err)
	}
	proof, err := parseProof(params.Proof)
	if err != nil {
		return nil, invalidParams(err)
	}
	paid, err := s.node.ClaimCampaignTo(ctx, caller, id, amounts, recipient, proof)
	if err != nil {
		return nil, airdropError(err)
	}
	return campaignPayoutResult{Transfers: formatTokenAmounts(paid)}, nil
}

func (s *Server) handleCampaignShutdown(ctx context.Context, req *RPCRequest) (interface{}, *ModuleError) {
	var params campaignShutdownParams
	caller, modErr := s.openEnvelope(req, &params)
	if modErr != nil {
		return nil, modErr
	}
	id, err := parseHash(params.Campaign, "campaign")
	if err != nil {
		return nil, invalidParams(err)
	}
	tokens, err := parseAddressList(params.Tokens, "tokens")
	if err != nil {
		return nil, invalidParams(err)
	}
	recipient, err := parseAddressField(params.Recipient, "recipient")
	if err != nil {
		return nil, invalidParams(err)
	}
	unclaimed, err := s.node.ShutdownCampaign(ctx, caller, id, tokens, recipient)
	if err != nil {
		return nil, airdropError(err)
	}
	return campaignPayoutResult{Transfers: formatTokenAmounts(unclaimed)}, nil
}

func (s *Server) handleCampaignGet(_ context.Context, req *RPCRequest) (interface{}, *ModuleError) {
	var params campaignQueryParams
	if modErr := singleParam(req, &params); modErr != nil {
		return nil, modErr
	}
	id, err := parseHash(params.Campaign, "campaign")
	if err != nil {
		return nil, invalidParams(err)
	}
	summary, err := s.node.Campaign(id)
	if err != nil {
		return nil, airdropError(err)
	}
	return formatCampaign(summary), nil
}

func (s *Server) handleCampaignAmountClaimed(_ context.Context, req *RPCRequest) (interface{}, *ModuleError) {
	var params campaignQueryParams
	if modErr := singleParam(req, &params); modErr != nil {
		return nil, modErr
	}
	id, err := parseHash(params.Campaign, "campaign")
	if err != nil {
		return nil, invalidParams(err)
	}
	token, err := parseAddressField(params.Token, "token")
	if err != nil {
		return nil, invalidParams(err)
	}
	claimant, err := parseAddressField(params.Claimant, "claimant")
	if err != nil {
		return nil, invalidParams(err)
	}
	amount, err := s.node.CampaignAmountClaimed(id, token, claimant)
	if err != nil {
		return nil, airdropError(err)
	}
	return amountResult{Amount: amountString(amount)}, nil
}
