package rpc

import (
	"context"
	"net/http"
	"time"

	"merkledrop/crypto"
	"merkledrop/indexer"
)

type roleParams struct {
	Role    string `json:"role"`
	Account string `json:"account,omitempty"`
}

type hasRoleResult struct {
	HasRole bool `json:"hasRole"`
}

type roleAdminResult struct {
	Admin string `json:"admin"`
}

type balanceParams struct {
	Token string `json:"token"`
	Owner string `json:"owner"`
}

type eventsListParams struct {
	Type    string `json:"type,omitempty"`
	Subject string `json:"subject,omitempty"`
	After   uint64 `json:"after,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type eventJSON struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Subject    string            `json:"subject,omitempty"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

type nodeInfoResult struct {
	Governor       string `json:"governor"`
	ClaimableToken string `json:"claimableToken"`
	TrancheVault   string `json:"trancheVault"`
	CampaignVault  string `json:"campaignVault"`
	Now            int64  `json:"now"`
}

func (s *Server) handleAccessGrantRole(ctx context.Context, req *RPCRequest) (interface{}, *ModuleError) {
	var params roleParams
	caller, modErr := s.openEnvelope(req, &params)
	if modErr != nil {
		return nil, modErr
	}
	role, err := parseRole(params.Role)
	if err != nil {
		return nil, invalidParams(err)
	}
	account, err := parseAddressField(params.Account, "account")
	if err != nil {
		return nil, invalidParams(err)
	}
	if err := s.node.GrantRole(ctx, caller, role, account); err != nil {
		return nil, airdropError(err)
	}
	return okResult{OK: true}, nil
}

func (s *Server) handleAccessRevokeRole(ctx context.Context, req *RPCRequest) (interface{}, *ModuleError) {
	var params roleParams
	caller, modErr := s.openEnvelope(req, &params)
	if modErr != nil {
		return nil, modErr
	}
	role, err := parseRole(params.Role)
	if err != nil {
		return nil, invalidParams(err)
	}
	account, err := parseAddressField(params.Account, "account")
	if err != nil {
		return nil, invalidParams(err)
	}
	if err := s.node.RevokeRole(ctx, caller, role, account); err != nil {
		return nil, airdropError(err)
	}
	return okResult{OK: true}, nil
}

func (s *Server) handleAccessRenounceRole(ctx context.Context, req *RPCRequest) (interface{}, *ModuleError) {
	var params roleParams
	caller, modErr := s.openEnvelope(req, &params)
	if modErr != nil {
		return nil, modErr
	}
	role, err := parseRole(params.Role)
	if err != nil {
		return nil, invalidParams(err)
	}
	if err := s.node.RenounceRole(ctx, caller, role); err != nil {
		return nil, airdropError(err)
	}
	return okResult{OK: true}, nil
}

func (s *Server) handleAccessHasRole(_ context.Context, req *RPCRequest) (interface{}, *ModuleError) {
	var params roleParams
	if modErr := singleParam(req, &params); modErr != nil {
		return nil, modErr
	}
	role, err := parseRole(params.Role)
	if err != nil {
		return nil, invalidParams(err)
	}
	account, err := parseAddressField(params.Account, "account")
	if err != nil {
		return nil, invalidParams(err)
	}
	ok, err := s.node.HasRole(role, account)
	if err != nil {
		return nil, airdropError(err)
	}
	return hasRoleResult{HasRole: ok}, nil
}

func (s *Server) handleAccessRoleAdmin(_ context.Context, req *RPCRequest) (interface{}, *ModuleError) {
	var params roleParams
	if modErr := singleParam(req, &params); modErr != nil {
		return nil, modErr
	}
	role, err := parseRole(params.Role)
	if err != nil {
		return nil, invalidParams(err)
	}
	admin, err := s.node.RoleAdmin(role)
	if err != nil {
		return nil, airdropError(err)
	}
	return roleAdminResult{Admin: admin.Hex()}, nil
}

func (s *Server) handleBankBalance(_ context.Context, req *RPCRequest) (interface{}, *ModuleError) {
	var params balanceParams
	if modErr := singleParam(req, &params); modErr != nil {
		return nil, modErr
	}
	token, err := parseAddressField(params.Token, "token")
	if err != nil {
		return nil, invalidParams(err)
	}
	owner, err := parseAddressField(params.Owner, "owner")
	if err != nil {
		return nil, invalidParams(err)
	}
	balance, err := s.node.Balance(token, owner)
	if err != nil {
		return nil, airdropError(err)
	}
	return amountResult{Amount: amountString(balance)}, nil
}

func (s *Server) handleEventsList(ctx context.Context, req *RPCRequest) (interface{}, *ModuleError) {
	if s.events == nil {
		return nil, &ModuleError{HTTPStatus: http.StatusServiceUnavailable, Code: codeAirdropUnavailable, Message: "event indexer not configured"}
	}
	var params eventsListParams
	if len(req.Params) > 0 {
		if modErr := singleParam(req, &params); modErr != nil {
			return nil, modErr
		}
	}
	if params.Limit < 0 {
		return nil, invalidParams("limit must not be negative")
	}
	records, err := s.events.List(ctx, indexerQuery(params))
	if err != nil {
		return nil, &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: err.Error()}
	}
	out := make([]eventJSON, 0, len(records))
	for _, record := range records {
		evt, err := record.Event()
		if err != nil {
			return nil, &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: err.Error()}
		}
		out = append(out, eventJSON{
			Sequence:   record.Sequence,
			Type:       evt.Type,
			Subject:    record.Subject,
			Attributes: evt.Attributes,
			CreatedAt:  record.CreatedAt,
		})
	}
	return out, nil
}

func (s *Server) handleNodeInfo(_ context.Context, _ *RPCRequest) (interface{}, *ModuleError) {
	return nodeInfoResult{
		Governor:       crypto.FormatAddress(s.node.Governor()),
		ClaimableToken: crypto.FormatAddress(s.node.ClaimableToken()),
		TrancheVault:   crypto.FormatAddress(s.node.TrancheVault()),
		CampaignVault:  crypto.FormatAddress(s.node.CampaignVault()),
		Now:            s.node.Now(),
	}, nil
}

func indexerQuery(p eventsListParams) indexer.Query {
	return indexer.Query{Type: p.Type, Subject: p.Subject, After: p.After, Limit: p.Limit}
}
