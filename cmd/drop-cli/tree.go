package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"merkledrop/crypto"
	"merkledrop/crypto/merkle"
	"merkledrop/native/campaign"
	"merkledrop/native/tranche"
)

const (
	kindTranche  = "tranche"
	kindCampaign = "campaign"
)

// allocationFile is the operator-authored list of entitlements.
type allocationFile struct {
	Kind   string            `yaml:"kind"`
	Claims []allocationEntry `yaml:"claims"`
}

type allocationEntry struct {
	Address string            `yaml:"address"`
	Amount  string            `yaml:"amount,omitempty"`
	Amounts []allocationToken `yaml:"amounts,omitempty"`
}

type allocationToken struct {
	Token  string `yaml:"token"`
	Amount string `yaml:"amount"`
}

type tokenAmountOutput struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// proofFile is written by `tree build` and read back by the claim commands.
type proofFile struct {
	Kind   string              `json:"kind"`
	Root   string              `json:"root"`
	Total  string              `json:"total,omitempty"`
	Totals []tokenAmountOutput `json:"totals,omitempty"`
	Claims []proofEntry        `json:"claims"`
}

type proofEntry struct {
	Address string              `json:"address"`
	Amount  string              `json:"amount,omitempty"`
	Amounts []tokenAmountOutput `json:"amounts,omitempty"`
	Leaf    string              `json:"leaf"`
	Proof   []string            `json:"proof"`
}

func newTreeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Build Merkle roots and proofs from allocation files",
	}
	var in, out string
	build := &cobra.Command{
		Use:   "build",
		Short: "Compute the root and every proof for an allocation file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			alloc, err := readAllocationFile(in)
			if err != nil {
				return err
			}
			result, err := buildProofFile(alloc)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			if out == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			if err := os.WriteFile(out, append(data, '\n'), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "root: %s\nclaims: %d\nwritten: %s\n", result.Root, len(result.Claims), out)
			return nil
		},
	}
	build.Flags().StringVar(&in, "allocations", "", "YAML allocation file")
	build.Flags().StringVar(&out, "out", "", "write the proof file here instead of stdout")

	var proofs, address string
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check that a proof file entry verifies against its root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, err := readProofFile(proofs)
			if err != nil {
				return err
			}
			claimant, err := crypto.ParseAddress(address)
			if err != nil {
				return err
			}
			entry, err := file.entryFor(claimant)
			if err != nil {
				return err
			}
			leaf, err := entry.computeLeaf(file.Kind, claimant)
			if err != nil {
				return err
			}
			proof, err := entry.proofHashes()
			if err != nil {
				return err
			}
			if err := merkle.VerifyProof(common.HexToHash(file.Root), leaf, proof); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s verifies under %s\n", claimant.Hex(), file.Root)
			return nil
		},
	}
	verify.Flags().StringVar(&proofs, "proofs", "", "proof file written by tree build")
	verify.Flags().StringVar(&address, "address", "", "claimant address")

	cmd.AddCommand(build, verify)
	return cmd
}

func readAllocationFile(path string) (*allocationFile, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("--allocations is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var alloc allocationFile
	if err := yaml.Unmarshal(data, &alloc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	alloc.Kind = strings.ToLower(strings.TrimSpace(alloc.Kind))
	if alloc.Kind == "" {
		alloc.Kind = kindTranche
	}
	if alloc.Kind != kindTranche && alloc.Kind != kindCampaign {
		return nil, fmt.Errorf("unknown allocation kind %q", alloc.Kind)
	}
	if len(alloc.Claims) == 0 {
		return nil, fmt.Errorf("%s lists no claims", path)
	}
	return &alloc, nil
}

func buildProofFile(alloc *allocationFile) (*proofFile, error) {
	out := &proofFile{Kind: alloc.Kind, Claims: make([]proofEntry, len(alloc.Claims))}
	leaves := make([]common.Hash, len(alloc.Claims))
	total := new(big.Int)
	totals := map[common.Address]*big.Int{}
	var tokenOrder []common.Address

	for i, claim := range alloc.Claims {
		claimant, err := crypto.ParseAddress(claim.Address)
		if err != nil {
			return nil, fmt.Errorf("claims[%d]: %w", i, err)
		}
		entry := proofEntry{Address: claimant.Hex()}
		switch alloc.Kind {
		case kindTranche:
			amount, ok := new(big.Int).SetString(strings.TrimSpace(claim.Amount), 10)
			if !ok || amount.Sign() <= 0 {
				return nil, fmt.Errorf("claims[%d]: amount must be a positive integer", i)
			}
			leaf, err := tranche.Leaf(claimant, amount)
			if err != nil {
				return nil, fmt.Errorf("claims[%d]: %w", i, err)
			}
			leaves[i] = leaf
			entry.Amount = amount.String()
			total.Add(total, amount)
		case kindCampaign:
			amounts := make([]campaign.TokenAmount, len(claim.Amounts))
			entry.Amounts = make([]tokenAmountOutput, len(claim.Amounts))
			for j, token := range claim.Amounts {
				addr, err := crypto.ParseAddress(token.Token)
				if err != nil {
					return nil, fmt.Errorf("claims[%d].amounts[%d]: %w", i, j, err)
				}
				amount, ok := new(big.Int).SetString(strings.TrimSpace(token.Amount), 10)
				if !ok || amount.Sign() < 0 {
					return nil, fmt.Errorf("claims[%d].amounts[%d]: invalid amount", i, j)
				}
				amounts[j] = campaign.TokenAmount{Token: addr, Amount: amount}
				entry.Amounts[j] = tokenAmountOutput{Token: addr.Hex(), Amount: amount.String()}
				if _, ok := totals[addr]; !ok {
					totals[addr] = new(big.Int)
					tokenOrder = append(tokenOrder, addr)
				}
				totals[addr].Add(totals[addr], amount)
			}
			leaf, err := campaign.Leaf(claimant, amounts)
			if err != nil {
				return nil, fmt.Errorf("claims[%d]: %w", i, err)
			}
			leaves[i] = leaf
		}
		entry.Leaf = leaves[i].Hex()
		out.Claims[i] = entry
	}

	tree, err := merkle.NewTree(leaves)
	if err != nil {
		return nil, err
	}
	for i := range out.Claims {
		proof, err := tree.ProofAt(i)
		if err != nil {
			return nil, err
		}
		out.Claims[i].Proof = make([]string, len(proof))
		for j, node := range proof {
			out.Claims[i].Proof[j] = node.Hex()
		}
	}
	out.Root = tree.Root().Hex()
	if alloc.Kind == kindTranche {
		out.Total = total.String()
	}
	for _, token := range tokenOrder {
		out.Totals = append(out.Totals, tokenAmountOutput{Token: token.Hex(), Amount: totals[token].String()})
	}
	return out, nil
}

func readProofFile(path string) (*proofFile, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("--proofs is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file proofFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &file, nil
}

func (f *proofFile) entryFor(claimant common.Address) (*proofEntry, error) {
	for i := range f.Claims {
		if common.HexToAddress(f.Claims[i].Address) == claimant {
			return &f.Claims[i], nil
		}
	}
	return nil, fmt.Errorf("%s has no entry in the proof file", claimant.Hex())
}

func (e *proofEntry) proofHashes() ([]common.Hash, error) {
	out := make([]common.Hash, len(e.Proof))
	for i, node := range e.Proof {
		if len(common.FromHex(node)) != common.HashLength {
			return nil, fmt.Errorf("proof[%d] is not a 32-byte hash", i)
		}
		out[i] = common.HexToHash(node)
	}
	return out, nil
}

func (e *proofEntry) tokenAmounts() ([]campaign.TokenAmount, error) {
	out := make([]campaign.TokenAmount, len(e.Amounts))
	for i, entry := range e.Amounts {
		amount, ok := new(big.Int).SetString(entry.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("amounts[%d]: invalid amount", i)
		}
		out[i] = campaign.TokenAmount{Token: common.HexToAddress(entry.Token), Amount: amount}
	}
	return out, nil
}

func (e *proofEntry) computeLeaf(kind string, claimant common.Address) (common.Hash, error) {
	if kind == kindCampaign {
		amounts, err := e.tokenAmounts()
		if err != nil {
			return common.Hash{}, err
		}
		return campaign.Leaf(claimant, amounts)
	}
	amount, ok := new(big.Int).SetString(e.Amount, 10)
	if !ok {
		return common.Hash{}, fmt.Errorf("invalid amount %q", e.Amount)
	}
	return tranche.Leaf(claimant, amount)
}
