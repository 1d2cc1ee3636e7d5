package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"merkledrop/crypto"
)

var cliNow = time.Now

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

// parseDeadline accepts a unix timestamp, a relative "+72h" duration, or an
// empty string for no explicit deadline.
func parseDeadline(value string, now time.Time) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	if strings.HasPrefix(trimmed, "+") {
		dur, err := time.ParseDuration(trimmed[1:])
		if err != nil || dur <= 0 {
			return 0, fmt.Errorf("invalid deadline duration %q", value)
		}
		return now.Add(dur).Unix(), nil
	}
	ts, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || ts <= 0 {
		return 0, fmt.Errorf("deadline must be a unix timestamp or +duration")
	}
	return ts, nil
}

// parseAllocations converts repeated token=amount flags.
func parseAllocations(values []string) ([]tokenAmountOutput, error) {
	out := make([]tokenAmountOutput, 0, len(values))
	for _, value := range values {
		token, amount, ok := strings.Cut(value, "=")
		if !ok {
			return nil, fmt.Errorf("allocation %q must be token=amount", value)
		}
		addr, err := crypto.ParseAddress(token)
		if err != nil {
			return nil, err
		}
		out = append(out, tokenAmountOutput{Token: addr.Hex(), Amount: strings.TrimSpace(amount)})
	}
	return out, nil
}

func splitProof(value string) []string {
	if strings.TrimSpace(value) == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// signed runs a mutating call with the --key signer and prints the result.
func (o *cliOptions) signed(cmd *cobra.Command, method string, payload interface{}) error {
	key, err := o.signer()
	if err != nil {
		return err
	}
	var result json.RawMessage
	if err := o.client().CallSigned(cmd.Context(), key, method, payload, &result); err != nil {
		return err
	}
	return printJSON(cmd, result)
}

func (o *cliOptions) query(cmd *cobra.Command, method string, params interface{}) error {
	var result json.RawMessage
	if err := o.client().Call(cmd.Context(), method, params, &result); err != nil {
		return err
	}
	return printJSON(cmd, result)
}

// claimTarget resolves root, amount(s) and proof either from a proof file or
// from explicit flags.
type claimTarget struct {
	proofs  string
	root    string
	amount  string
	proof   string
	claimed common.Address
}

func (c claimTarget) resolve() (root string, entry *proofEntry, err error) {
	if c.proofs == "" {
		return c.root, &proofEntry{Amount: c.amount, Proof: splitProof(c.proof)}, nil
	}
	file, err := readProofFile(c.proofs)
	if err != nil {
		return "", nil, err
	}
	entry, err = file.entryFor(c.claimed)
	if err != nil {
		return "", nil, err
	}
	return file.Root, entry, nil
}

func (o *cliOptions) defaultClaimant(flagValue string) (common.Address, error) {
	if strings.TrimSpace(flagValue) != "" {
		return crypto.ParseAddress(flagValue)
	}
	key, err := o.signer()
	if err != nil {
		return common.Address{}, err
	}
	return key.Address(), nil
}

func newTrancheCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "tranche", Short: "Single-token tranches"}

	var root, amount, deadline string
	create := &cobra.Command{
		Use:   "create",
		Short: "Fund a tranche (governor only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ts, err := parseDeadline(deadline, cliNow())
			if err != nil {
				return err
			}
			return opts.signed(cmd, "tranche_create", map[string]interface{}{"root": root, "amount": amount, "deadline": ts})
		},
	}
	create.Flags().StringVar(&root, "root", "", "merkle root")
	create.Flags().StringVar(&amount, "amount", "", "total claimable amount")
	create.Flags().StringVar(&deadline, "deadline", "", "unix timestamp or +duration; empty uses the node lifespan")

	claim := newTrancheClaimCommand(opts, false)
	claimFor := newTrancheClaimCommand(opts, true)

	var closeRoot, recipient string
	closeCmd := &cobra.Command{
		Use:   "close",
		Short: "Sweep an expired tranche (governor only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.signed(cmd, "tranche_close", map[string]string{"root": closeRoot, "recipient": recipient})
		},
	}
	closeCmd.Flags().StringVar(&closeRoot, "root", "", "merkle root")
	closeCmd.Flags().StringVar(&recipient, "recipient", "", "receiver of the unclaimed remainder")

	var getRoot, claimant string
	get := &cobra.Command{
		Use:   "get",
		Short: "Show a tranche",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.query(cmd, "tranche_get", map[string]string{"root": getRoot})
		},
	}
	get.Flags().StringVar(&getRoot, "root", "", "merkle root")
	isClaimed := &cobra.Command{
		Use:   "is-claimed",
		Short: "Report whether an address already claimed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.query(cmd, "tranche_isClaimed", map[string]string{"root": getRoot, "claimant": claimant})
		},
	}
	isClaimed.Flags().StringVar(&getRoot, "root", "", "merkle root")
	isClaimed.Flags().StringVar(&claimant, "claimant", "", "claimant address")

	cmd.AddCommand(create, claim, claimFor, closeCmd, get, isClaimed)
	return cmd
}

func newTrancheClaimCommand(opts *cliOptions, toRecipient bool) *cobra.Command {
	var target claimTarget
	var claimantFlag, recipient string
	use, short, method := "claim", "Claim an allocation for a claimant", "tranche_claim"
	if toRecipient {
		use, short, method = "claim-for", "Claim the signer's allocation to another recipient", "tranche_claimFor"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			claimant, err := opts.defaultClaimant(claimantFlag)
			if err != nil {
				return err
			}
			target.claimed = claimant
			root, entry, err := target.resolve()
			if err != nil {
				return err
			}
			if toRecipient {
				return opts.signed(cmd, method, map[string]interface{}{
					"root": root, "amount": entry.Amount, "recipient": recipient, "proof": entry.Proof,
				})
			}
			return opts.signed(cmd, method, map[string]interface{}{
				"root": root, "claimant": claimant.Hex(), "amount": entry.Amount, "proof": entry.Proof,
			})
		},
	}
	cmd.Flags().StringVar(&target.proofs, "proofs", "", "proof file from tree build")
	cmd.Flags().StringVar(&target.root, "root", "", "merkle root when no proof file is given")
	cmd.Flags().StringVar(&target.amount, "amount", "", "leaf amount when no proof file is given")
	cmd.Flags().StringVar(&target.proof, "proof", "", "comma-separated proof when no proof file is given")
	if toRecipient {
		cmd.Flags().StringVar(&recipient, "recipient", "", "receiver of the tokens")
	} else {
		cmd.Flags().StringVar(&claimantFlag, "claimant", "", "claimant address; defaults to the signer")
	}
	return cmd
}

func newCampaignCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "campaign", Short: "Multi-token campaigns"}

	var id, root, proofs, deadline string
	var allocs []string
	update := &cobra.Command{
		Use:   "update",
		Short: "Publish a campaign root and add allocations (admin only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if proofs != "" {
				file, err := readProofFile(proofs)
				if err != nil {
					return err
				}
				root = file.Root
			}
			allocations, err := parseAllocations(allocs)
			if err != nil {
				return err
			}
			ts, err := parseDeadline(deadline, cliNow())
			if err != nil {
				return err
			}
			return opts.signed(cmd, "campaign_update", map[string]interface{}{
				"campaign": id, "root": root, "allocations": allocations, "deadline": ts,
			})
		},
	}
	update.Flags().StringVar(&id, "campaign", "", "campaign id (32-byte hex)")
	update.Flags().StringVar(&root, "root", "", "merkle root")
	update.Flags().StringVar(&proofs, "proofs", "", "take the root from this proof file")
	update.Flags().StringArrayVar(&allocs, "alloc", nil, "token=amount added to the campaign totals (repeatable)")
	update.Flags().StringVar(&deadline, "deadline", "", "unix timestamp or +duration; empty clears the deadline")

	claim := newCampaignClaimCommand(opts, false)
	claimFor := newCampaignClaimCommand(opts, true)

	var shutdownID, recipient string
	var tokens []string
	shutdown := &cobra.Command{
		Use:   "shutdown",
		Short: "Deactivate a campaign and sweep unclaimed tokens (admin only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.signed(cmd, "campaign_shutdown", map[string]interface{}{
				"campaign": shutdownID, "tokens": tokens, "recipient": recipient,
			})
		},
	}
	shutdown.Flags().StringVar(&shutdownID, "campaign", "", "campaign id")
	shutdown.Flags().StringArrayVar(&tokens, "token", nil, "token to sweep (repeatable)")
	shutdown.Flags().StringVar(&recipient, "recipient", "", "receiver of unclaimed tokens")

	var getID, token, claimant string
	get := &cobra.Command{
		Use:   "get",
		Short: "Show a campaign and its per-token totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.query(cmd, "campaign_get", map[string]string{"campaign": getID})
		},
	}
	get.Flags().StringVar(&getID, "campaign", "", "campaign id")
	claimed := &cobra.Command{
		Use:   "claimed",
		Short: "Show how much of a token a claimant has received",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.query(cmd, "campaign_amountClaimed", map[string]string{"campaign": getID, "token": token, "claimant": claimant})
		},
	}
	claimed.Flags().StringVar(&getID, "campaign", "", "campaign id")
	claimed.Flags().StringVar(&token, "token", "", "token address")
	claimed.Flags().StringVar(&claimant, "claimant", "", "claimant address")

	cmd.AddCommand(update, claim, claimFor, shutdown, get, claimed)
	return cmd
}

func newCampaignClaimCommand(opts *cliOptions, toRecipient bool) *cobra.Command {
	var id, proofs, claimantFlag, recipient string
	use, short, method := "claim", "Claim a cumulative entitlement for a claimant", "campaign_claim"
	if toRecipient {
		use, short, method = "claim-for", "Claim the signer's entitlement to another recipient", "campaign_claimFor"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			claimant, err := opts.defaultClaimant(claimantFlag)
			if err != nil {
				return err
			}
			file, err := readProofFile(proofs)
			if err != nil {
				return err
			}
			if file.Kind != kindCampaign {
				return fmt.Errorf("%s is a %s proof file", proofs, file.Kind)
			}
			entry, err := file.entryFor(claimant)
			if err != nil {
				return err
			}
			if toRecipient {
				return opts.signed(cmd, method, map[string]interface{}{
					"campaign": id, "amounts": entry.Amounts, "recipient": recipient, "proof": entry.Proof,
				})
			}
			return opts.signed(cmd, method, map[string]interface{}{
				"campaign": id, "claimant": claimant.Hex(), "amounts": entry.Amounts, "proof": entry.Proof,
			})
		},
	}
	cmd.Flags().StringVar(&id, "campaign", "", "campaign id")
	cmd.Flags().StringVar(&proofs, "proofs", "", "campaign proof file from tree build")
	if toRecipient {
		cmd.Flags().StringVar(&recipient, "recipient", "", "receiver of the tokens")
	} else {
		cmd.Flags().StringVar(&claimantFlag, "claimant", "", "claimant address; defaults to the signer")
	}
	return cmd
}

func newRoleCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "role", Short: "Role administration"}
	var role, account string
	mutate := func(use, short, method string, needsAccount bool) *cobra.Command {
		sub := &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				params := map[string]string{"role": role}
				if needsAccount {
					params["account"] = account
				}
				return opts.signed(cmd, method, params)
			},
		}
		sub.Flags().StringVar(&role, "role", "ADMIN_ROLE", "role name or 32-byte hex id")
		if needsAccount {
			sub.Flags().StringVar(&account, "account", "", "target account")
		}
		return sub
	}
	has := &cobra.Command{
		Use:   "has",
		Short: "Check role membership",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.query(cmd, "access_hasRole", map[string]string{"role": role, "account": account})
		},
	}
	has.Flags().StringVar(&role, "role", "ADMIN_ROLE", "role name or 32-byte hex id")
	has.Flags().StringVar(&account, "account", "", "account to check")

	cmd.AddCommand(
		mutate("grant", "Grant a role", "access_grantRole", true),
		mutate("revoke", "Revoke a role", "access_revokeRole", true),
		mutate("renounce", "Renounce a role held by the signer", "access_renounceRole", false),
		has,
	)
	return cmd
}

func newBalanceCommand(opts *cliOptions) *cobra.Command {
	var token, owner string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show a token balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.query(cmd, "bank_balance", map[string]string{"token": token, "owner": owner})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "token address")
	cmd.Flags().StringVar(&owner, "owner", "", "account address")
	return cmd
}

func newEventsCommand(opts *cliOptions) *cobra.Command {
	var eventType, subject string
	var after uint64
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List indexed ledger events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.query(cmd, "events_list", map[string]interface{}{
				"type": eventType, "subject": subject, "after": after, "limit": limit,
			})
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "filter by event type, e.g. tranche.claimed")
	cmd.Flags().StringVar(&subject, "subject", "", "filter by root, campaign, role or token")
	cmd.Flags().Uint64Var(&after, "after", 0, "only events with a greater sequence")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum events returned")
	return cmd
}

func newInfoCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show node parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.query(cmd, "node_info", nil)
		},
	}
}
