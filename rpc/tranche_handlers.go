package rpc

import (
	"context"

	"merkledrop/crypto"
	"merkledrop/native/tranche"
)

type trancheCreateParams struct {
	Root     string `json:"root"`
	Amount   string `json:"amount"`
	Deadline int64  `json:"deadline"`
}

type trancheClaimParams struct {
	Root     string   `json:"root"`
	Claimant string   `json:"claimant"`
	Amount   string   `json:"amount"`
	Proof    []string `json:"proof"`
}

type trancheClaimForParams struct {
	Root      string   `json:"root"`
	Amount    string   `json:"amount"`
	Recipient string   `json:"recipient"`
	Proof     []string `json:"proof"`
}

type trancheCloseParams struct {
	Root      string `json:"root"`
	Recipient string `json:"recipient"`
}

type trancheQueryParams struct {
	Root     string `json:"root"`
	Claimant string `json:"claimant,omitempty"`
}

type trancheJSON struct {
	Root            string `json:"root"`
	ClaimableAmount string `json:"claimableAmount"`
	ClaimedAmount   string `json:"claimedAmount"`
	Unclaimed       string `json:"unclaimed"`
	Deadline        int64  `json:"deadline"`
	Exists          bool   `json:"exists"`
}

type okResult struct {
	OK bool `json:"ok"`
}

type trancheCloseResult struct {
	Unclaimed string `json:"unclaimed"`
}

type claimedResult struct {
	Claimed bool `json:"claimed"`
}

func formatTranche(t *tranche.Tranche) trancheJSON {
	return trancheJSON{
		Root:            t.Root.Hex(),
		ClaimableAmount: amountString(t.ClaimableAmount),
		ClaimedAmount:   amountString(t.ClaimedAmount),
		Unclaimed:       amountString(t.Unclaimed()),
		Deadline:        t.Deadline,
		Exists:          t.Exists(),
	}
}

func (s *Server) handleTrancheCreate(ctx context.Context, req *RPCRequest) (interface{}, *ModuleError) {
	var params trancheCreateParams
	caller, modErr := s.openEnvelope(req, &params)
	if modErr != nil {
		return nil, modErr
	}
	root, err := parseHash(params.Root, "root")
	if err != nil {
		return nil, invalidParams(err)
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, invalidParams(err)
	}
	record, err := s.node.CreateTranche(ctx, caller, root, amount, params.Deadline)
	if err != nil {
		return nil, airdropError(err)
	}
	return formatTranche(record), nil
}

func (s *Server) handleTrancheClaim(ctx context.Context, req *RPCRequest) (interface{}, *ModuleError) {
	var params trancheClaimParams
	if _, modErr := s.openEnvelope(req, &params); modErr != nil {
		return nil, modErr
	}
	root, err := parseHash(params.Root, "root")
	if err != nil {
		return nil, invalidParams(err)
	}
	claimant, err := parseAddressField(params.Claimant, "claimant")
	if err != nil {
		return nil, invalidParams(err)
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, invalidParams(err)
	}
	proof, err := parseProof(params.Proof)
	if err != nil {
		return nil, invalidParams(err)
	}
	if err := s.node.ClaimTranche(ctx, root, claimant, amount, proof); err != nil {
		return nil, airdropError(err)
	}
	return okResult{OK: true}, nil
}

func (s *Server) handleTrancheClaimFor(ctx context.Context, req *RPCRequest) (interface{}, *ModuleError) {
	var params trancheClaimForParams
	caller, modErr := s.openEnvelope(req, &params)
	if modErr != nil {
		return nil, modErr
	}
	root, err := parseHash(params.Root, "root")
	if err != nil {
		return nil, invalidParams(err)
	}
	amount, err := parseAmount(params.Amount)
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
	if err := s.node.ClaimTrancheTo(ctx, caller, root, amount, recipient, proof); err != nil {
		return nil, airdropError(err)
	}
	return okResult{OK: true}, nil
}

func (s *Server) handleTrancheClose(ctx context.Context, req *RPCRequest) (interface{}, *ModuleError) {
	var params trancheCloseParams
	caller, modErr := s.openEnvelope(req, &params)
	if modErr != nil {
		return nil, modErr
	}
	root, err := parseHash(params.Root, "root")
	if err != nil {
		return nil, invalidParams(err)
	}
	recipient, err := parseAddressField(params.Recipient, "recipient")
	if err != nil {
		return nil, invalidParams(err)
	}
	unclaimed, err := s.node.CloseTranche(ctx, caller, root, recipient)
	if err != nil {
		return nil, airdropError(err)
	}
	return trancheCloseResult{Unclaimed: amountString(unclaimed)}, nil
}

func (s *Server) handleTrancheGet(_ context.Context, req *RPCRequest) (interface{}, *ModuleError) {
	var params trancheQueryParams
	if modErr := singleParam(req, &params); modErr != nil {
		return nil, modErr
	}
	root, err := parseHash(params.Root, "root")
	if err != nil {
		return nil, invalidParams(err)
	}
	record, err := s.node.Tranche(root)
	if err != nil {
		return nil, airdropError(err)
	}
	return formatTranche(record), nil
}

func (s *Server) handleTrancheIsClaimed(_ context.Context, req *RPCRequest) (interface{}, *ModuleError) {
	var params trancheQueryParams
	if modErr := singleParam(req, &params); modErr != nil {
		return nil, modErr
	}
	root, err := parseHash(params.Root, "root")
	if err != nil {
		return nil, invalidParams(err)
	}
	claimant, err := crypto.ParseAddress(params.Claimant)
	if err != nil {
		return nil, invalidParams(err)
	}
	claimed, err := s.node.TrancheIsClaimed(root, claimant)
	if err != nil {
		return nil, airdropError(err)
	}
	return claimedResult{Claimed: claimed}, nil
}
