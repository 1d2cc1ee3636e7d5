package rpc

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"merkledrop/crypto"
	"merkledrop/native/access"
	"merkledrop/native/bank"
	"merkledrop/native/campaign"
	"merkledrop/native/tranche"
)

const (
	codeAirdropInvalidParams = -32051
	codeAirdropNotFound      = -32052
	codeAirdropForbidden     = -32053
	codeAirdropConflict      = -32054
	codeAirdropInternal      = -32055
	codeAirdropUnavailable   = -32056
)

type tokenAmountJSON struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func parseHash(value, field string) (common.Hash, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return common.Hash{}, fmt.Errorf("%s required", field)
	}
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		return common.Hash{}, fmt.Errorf("%s must be 0x-prefixed hex", field)
	}
	raw := common.FromHex(trimmed)
	if len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%s must be %d bytes", field, common.HashLength)
	}
	return common.BytesToHash(raw), nil
}

func parseAddressField(value, field string) (common.Address, error) {
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

// parseAmount accepts a base-10 non-negative integer.
func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func parseProof(values []string) ([]common.Hash, error) {
	proof := make([]common.Hash, len(values))
	for i, value := range values {
		hash, err := parseHash(value, fmt.Sprintf("proof[%d]", i))
		if err != nil {
			return nil, err
		}
		proof[i] = hash
	}
	return proof, nil
}

func parseTokenAmounts(values []tokenAmountJSON) ([]campaign.TokenAmount, error) {
	out := make([]campaign.TokenAmount, len(values))
	for i, value := range values {
		token, err := parseAddressField(value.Token, fmt.Sprintf("token[%d]", i))
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount(value.Amount)
		if err != nil {
			return nil, fmt.Errorf("amount[%d]: %w", i, err)
		}
		out[i] = campaign.TokenAmount{Token: token, Amount: amount}
	}
	return out, nil
}

func parseAddressList(values []string, field string) ([]common.Address, error) {
	out := make([]common.Address, len(values))
	for i, value := range values {
		addr, err := parseAddressField(value, fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		out[i] = addr
	}
	return out, nil
}

// parseRole accepts a well-known role name or a 32-byte hex identifier.
func parseRole(value string) (common.Hash, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "DEFAULT_ADMIN_ROLE":
		return access.DefaultAdminRole, nil
	case "ADMIN_ROLE":
		return access.AdminRole, nil
	}
	return parseHash(value, "role")
}

func formatTokenAmounts(list []campaign.TokenAmount) []tokenAmountJSON {
	out := make([]tokenAmountJSON, len(list))
	for i, entry := range list {
		out[i] = tokenAmountJSON{Token: crypto.FormatAddress(entry.Token), Amount: amountString(entry.Amount)}
	}
	return out
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func airdropError(err error) *ModuleError {
	if err == nil {
		return nil
	}
	status := http.StatusInternalServerError
	code := codeAirdropInternal
	message := "internal_error"
	switch {
	case errors.Is(err, access.ErrNotGovernor) || errors.Is(err, access.ErrMissingRole):
		status = http.StatusForbidden
		code = codeAirdropForbidden
		message = "forbidden"
	case errors.Is(err, tranche.ErrTrancheNotFound):
		status = http.StatusNotFound
		code = codeAirdropNotFound
		message = "not_found"
	case errors.Is(err, tranche.ErrInvalidMerkleRoot) || errors.Is(err, tranche.ErrInvalidAmount) ||
		errors.Is(err, tranche.ErrZeroAddress) || errors.Is(err, campaign.ErrInvalidCampaign) ||
		errors.Is(err, campaign.ErrInvalidMerkleRoot) || errors.Is(err, campaign.ErrInvalidTokenAmount) ||
		errors.Is(err, campaign.ErrInvalidDeadline) || errors.Is(err, campaign.ErrZeroAddress) ||
		errors.Is(err, access.ErrZeroAddress) || errors.Is(err, bank.ErrZeroAddress) ||
		errors.Is(err, bank.ErrInvalidAmount):
		status = http.StatusBadRequest
		code = codeAirdropInvalidParams
		message = "invalid_params"
	case errors.Is(err, tranche.ErrInvalidProof) || errors.Is(err, tranche.ErrExpiredTranche) ||
		errors.Is(err, tranche.ErrTrancheStillActive) || errors.Is(err, tranche.ErrTrancheExists) ||
		errors.Is(err, tranche.ErrAlreadyClaimed) || errors.Is(err, campaign.ErrInvalidProof) ||
		errors.Is(err, campaign.ErrCampaignExpired) || errors.Is(err, campaign.ErrAlreadyClaimed) ||
		errors.Is(err, campaign.ErrInsufficientAllocation) || errors.Is(err, bank.ErrInsufficientBalance):
		status = http.StatusConflict
		code = codeAirdropConflict
		message = "conflict"
	}
	return &ModuleError{HTTPStatus: status, Code: code, Message: message, Data: err.Error()}
}
