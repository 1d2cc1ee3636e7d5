package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"merkledrop/crypto"
)

// Balance is a parsed genesis allocation.
type Balance struct {
	Token  common.Address
	Owner  common.Address
	Amount *big.Int
}

// Accounts holds the parsed ledger identities from the configuration.
type Accounts struct {
	Governor       common.Address
	ClaimableToken common.Address
	SuperAdmin     common.Address
	Admins         []common.Address
	Genesis        []Balance
}

// Validate checks the configuration without returning the parsed accounts.
func (c *Config) Validate() error {
	_, err := c.Accounts()
	return err
}

// Accounts parses and validates every address and amount in the
// configuration.
func (c *Config) Accounts() (*Accounts, error) {
	if c == nil {
		return nil, errors.New("config: nil configuration")
	}
	var errs []error
	out := &Accounts{}
	var err error
	if out.Governor, err = requireAddress("Governor", c.Governor); err != nil {
		errs = append(errs, err)
	}
	if out.ClaimableToken, err = requireAddress("ClaimableToken", c.ClaimableToken); err != nil {
		errs = append(errs, err)
	}
	if out.SuperAdmin, err = requireAddress("SuperAdmin", c.SuperAdmin); err != nil {
		errs = append(errs, err)
	}
	for i, raw := range c.Admins {
		addr, err := requireAddress(fmt.Sprintf("Admins[%d]", i), raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out.Admins = append(out.Admins, addr)
	}
	for i, entry := range c.Genesis {
		field := fmt.Sprintf("genesis[%d]", i)
		token, tokenErr := requireAddress(field+".Token", entry.Token)
		owner, ownerErr := requireAddress(field+".Owner", entry.Owner)
		amount, ok := new(big.Int).SetString(strings.TrimSpace(entry.Amount), 10)
		switch {
		case tokenErr != nil:
			errs = append(errs, tokenErr)
		case ownerErr != nil:
			errs = append(errs, ownerErr)
		case !ok || amount.Sign() <= 0:
			errs = append(errs, fmt.Errorf("%s.Amount must be a positive integer", field))
		default:
			out.Genesis = append(out.Genesis, Balance{Token: token, Owner: owner, Amount: amount})
		}
	}
	if c.TrancheLifespan < 0 {
		errs = append(errs, errors.New("TrancheLifespan must not be negative"))
	}
	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("DataDir required"))
	}
	if strings.TrimSpace(c.RPC.Address) == "" {
		errs = append(errs, errors.New("rpc.Address required"))
	}
	if c.RPC.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("rpc.RequestsPerMinute must not be negative"))
	}
	if c.Indexer.Enabled {
		switch strings.ToLower(strings.TrimSpace(c.Indexer.Driver)) {
		case "sqlite", "postgres":
		default:
			errs = append(errs, fmt.Errorf("indexer.Driver %q unsupported", c.Indexer.Driver))
		}
		if strings.TrimSpace(c.Indexer.DSN) == "" {
			errs = append(errs, errors.New("indexer.DSN required when the indexer is enabled"))
		}
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, errors.New("telemetry.SampleRatio must be within [0, 1]"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return out, nil
}

func requireAddress(field, value string) (common.Address, error) {
	if strings.TrimSpace(value) == "" {
		return common.Address{}, fmt.Errorf("%s required", field)
	}
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", field, err)
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s must not be the zero address", field)
	}
	return addr, nil
}
