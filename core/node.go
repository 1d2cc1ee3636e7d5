package core

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"merkledrop/core/events"
	ledgerstate "merkledrop/core/state"
	"merkledrop/native/access"
	"merkledrop/native/bank"
	"merkledrop/native/campaign"
	"merkledrop/native/tranche"
	"merkledrop/observability"
	"merkledrop/observability/otel"
	"merkledrop/storage"
)

const (
	trancheModule  = "tranche"
	campaignModule = "campaign"
)

var (
	tracer             = otel.Tracer("merkledrop/core")
	committedEvents, _ = otel.Meter("merkledrop/core").Int64Counter(
		"merkledrop.ledger.events",
		metric.WithDescription("Events published after a transaction commits."),
	)
)

// GenesisBalance seeds a token balance when the node state is first created.
type GenesisBalance struct {
	Token  common.Address
	Owner  common.Address
	Amount *big.Int
}

// Options carries the construction parameters of a node.
type Options struct {
	Governor        common.Address
	ClaimableToken  common.Address
	SuperAdmin      common.Address
	Admins          []common.Address
	TrancheLifespan time.Duration
	Genesis         []GenesisBalance
	Clock           Clock
	Logger          *slog.Logger
}

// Node executes ledger transactions one at a time. Each transaction runs
// against its own state overlay which is committed as a single batch on
// success and dropped on failure. Events reach subscribers only after commit.
type Node struct {
	db       storage.Database
	mu       sync.Mutex
	clock    Clock
	logger   *slog.Logger
	governor common.Address
	token    common.Address
	lifespan time.Duration

	subscribers []events.Emitter
}

// NewNode wires a node over db. The first start applies the role bootstrap
// and genesis balances; later starts leave existing state untouched.
func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database required")
	}
	if _, err := tranche.NewEngine(opts.Governor, opts.ClaimableToken); err != nil {
		return nil, fmt.Errorf("node: %w", err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = NewMonotonicClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{
		db:       db,
		clock:    clock,
		logger:   logger,
		governor: opts.Governor,
		token:    opts.ClaimableToken,
		lifespan: opts.TrancheLifespan,
	}
	if err := n.bootstrap(opts); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Node) bootstrap(opts Options) error {
	manager := ledgerstate.NewManager(n.db)
	applied, err := manager.GenesisApplied()
	if err != nil {
		return fmt.Errorf("node: read genesis marker: %w", err)
	}
	if applied {
		return nil
	}
	return n.execute(context.Background(), "genesis", func(tx *txContext) error {
		if err := tx.roles.Bootstrap(opts.SuperAdmin, opts.Admins); err != nil {
			return fmt.Errorf("bootstrap roles: %w", err)
		}
		for _, alloc := range opts.Genesis {
			if err := tx.trancheBank.Credit(alloc.Token, alloc.Owner, alloc.Amount); err != nil {
				return fmt.Errorf("genesis balance for %s: %w", alloc.Owner.Hex(), err)
			}
		}
		return tx.state.MarkGenesisApplied()
	})
}

// Subscribe registers an emitter that receives every committed event.
func (n *Node) Subscribe(subscriber events.Emitter) {
	if subscriber == nil {
		return
	}
	n.mu.Lock()
	n.subscribers = append(n.subscribers, subscriber)
	n.mu.Unlock()
}

func (n *Node) Governor() common.Address { return n.governor }

func (n *Node) ClaimableToken() common.Address { return n.token }

// Now returns the current ledger time.
func (n *Node) Now() int64 { return n.clock.Now() }

// TrancheVault and CampaignVault return the accounts holding each module's funds.
func (n *Node) TrancheVault() common.Address { return bank.VaultAddress(trancheModule) }

func (n *Node) CampaignVault() common.Address { return bank.VaultAddress(campaignModule) }

type txContext struct {
	state        *ledgerstate.Manager
	recorder     *events.Recorder
	roles        *access.Roles
	tranche      *tranche.Engine
	campaign     *campaign.Engine
	trancheBank  *bank.Ledger
	campaignBank *bank.Ledger
}

func (n *Node) newTx(now int64) (*txContext, error) {
	manager := ledgerstate.NewManager(n.db)
	recorder := events.NewRecorder()
	nowFn := func() int64 { return now }

	roles := access.NewRoles()
	roles.SetState(manager)
	roles.SetEmitter(recorder)

	trancheBank := bank.NewLedger(trancheModule)
	trancheBank.SetState(manager)
	trancheBank.SetEmitter(recorder)
	campaignBank := bank.NewLedger(campaignModule)
	campaignBank.SetState(manager)
	campaignBank.SetEmitter(recorder)

	trancheEngine, err := tranche.NewEngine(n.governor, n.token, tranche.WithLifespan(n.lifespan))
	if err != nil {
		return nil, err
	}
	trancheEngine.SetState(manager)
	trancheEngine.SetTransfer(trancheBank)
	trancheEngine.SetEmitter(recorder)
	trancheEngine.SetNowFunc(nowFn)

	campaignEngine := campaign.NewEngine(roles)
	campaignEngine.SetState(manager)
	campaignEngine.SetTransfer(campaignBank)
	campaignEngine.SetEmitter(recorder)
	campaignEngine.SetNowFunc(nowFn)

	return &txContext{
		state:        manager,
		recorder:     recorder,
		roles:        roles,
		tranche:      trancheEngine,
		campaign:     campaignEngine,
		trancheBank:  trancheBank,
		campaignBank: campaignBank,
	}, nil
}

// execute runs fn as one atomic transaction.
func (n *Node) execute(ctx context.Context, op string, fn func(*txContext) error) (err error) {
	ctx, span := tracer.Start(ctx, "node."+op)
	defer span.End()
	started := time.Now()
	defer func() {
		observability.Transactions().Observe(op, time.Since(started), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.clock.Now()
	span.SetAttributes(attribute.String("ledger.op", op), attribute.Int64("ledger.time", now))
	tx, err := n.newTx(now)
	if err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		tx.state.Discard()
		n.logger.Debug("transaction reverted", "method", op, "error", err.Error())
		return err
	}
	if err = tx.state.Commit(); err != nil {
		tx.state.Discard()
		return err
	}
	for _, evt := range tx.recorder.Events() {
		committedEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("type", evt.EventType())))
		for _, subscriber := range n.subscribers {
			subscriber.Emit(evt)
		}
	}
	return nil
}

// view runs fn against committed state without writing.
func (n *Node) view(fn func(*txContext) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	tx, err := n.newTx(n.clock.Now())
	if err != nil {
		return err
	}
	defer tx.state.Discard()
	return fn(tx)
}

func (n *Node) CreateTranche(ctx context.Context, caller common.Address, root common.Hash, amount *big.Int, deadline int64) (*tranche.Tranche, error) {
	var out *tranche.Tranche
	err := n.execute(ctx, "tranche_create", func(tx *txContext) error {
		record, err := tx.tranche.CreateTranche(caller, root, amount, deadline)
		out = record
		return err
	})
	return out, err
}

// ClaimTranche pays claimant their allocation. Any caller may relay it.
func (n *Node) ClaimTranche(ctx context.Context, root common.Hash, claimant common.Address, amount *big.Int, proof []common.Hash) error {
	return n.execute(ctx, "tranche_claim", func(tx *txContext) error {
		return tx.tranche.ClaimAndSendToClaimee(root, claimant, amount, proof)
	})
}

// ClaimTrancheTo pays the caller's allocation to recipient.
func (n *Node) ClaimTrancheTo(ctx context.Context, caller common.Address, root common.Hash, amount *big.Int, recipient common.Address, proof []common.Hash) error {
	return n.execute(ctx, "tranche_claimFor", func(tx *txContext) error {
		return tx.tranche.ClaimAndTransfer(caller, root, amount, recipient, proof)
	})
}

func (n *Node) CloseTranche(ctx context.Context, caller common.Address, root common.Hash, recipient common.Address) (*big.Int, error) {
	var unclaimed *big.Int
	err := n.execute(ctx, "tranche_close", func(tx *txContext) error {
		amount, err := tx.tranche.CloseTranche(caller, root, recipient)
		unclaimed = amount
		return err
	})
	return unclaimed, err
}

func (n *Node) Tranche(root common.Hash) (*tranche.Tranche, error) {
	var out *tranche.Tranche
	err := n.view(func(tx *txContext) error {
		record, err := tx.tranche.Tranche(root)
		out = record
		return err
	})
	return out, err
}

func (n *Node) TrancheIsClaimed(root common.Hash, claimant common.Address) (bool, error) {
	var claimed bool
	err := n.view(func(tx *txContext) error {
		ok, err := tx.tranche.IsClaimed(root, claimant)
		claimed = ok
		return err
	})
	return claimed, err
}

// UpdateCampaign publishes a new root. A zero deadline clears any deadline.
func (n *Node) UpdateCampaign(ctx context.Context, caller common.Address, id, root common.Hash, allocations []campaign.TokenAmount, deadline int64) error {
	return n.execute(ctx, "campaign_update", func(tx *txContext) error {
		if deadline != 0 {
			return tx.campaign.UpdateCampaignWithDeadline(caller, id, root, allocations, deadline)
		}
		return tx.campaign.UpdateCampaign(caller, id, root, allocations)
	})
}

func (n *Node) ClaimCampaign(ctx context.Context, id common.Hash, claimant common.Address, amounts []campaign.TokenAmount, proof []common.Hash) ([]campaign.TokenAmount, error) {
	var paid []campaign.TokenAmount
	err := n.execute(ctx, "campaign_claim", func(tx *txContext) error {
		out, err := tx.campaign.ClaimAndSendToClaimee(id, claimant, amounts, proof)
		paid = out
		return err
	})
	return paid, err
}

func (n *Node) ClaimCampaignTo(ctx context.Context, caller common.Address, id common.Hash, amounts []campaign.TokenAmount, recipient common.Address, proof []common.Hash) ([]campaign.TokenAmount, error) {
	var paid []campaign.TokenAmount
	err := n.execute(ctx, "campaign_claimFor", func(tx *txContext) error {
		out, err := tx.campaign.ClaimAndTransfer(caller, id, amounts, recipient, proof)
		paid = out
		return err
	})
	return paid, err
}

func (n *Node) ShutdownCampaign(ctx context.Context, caller common.Address, id common.Hash, tokens []common.Address, recipient common.Address) ([]campaign.TokenAmount, error) {
	var unclaimed []campaign.TokenAmount
	err := n.execute(ctx, "campaign_shutdown", func(tx *txContext) error {
		out, err := tx.campaign.Shutdown(caller, id, tokens, recipient)
		unclaimed = out
		return err
	})
	return unclaimed, err
}

// CampaignSummary bundles a campaign header with its per-token totals.
type CampaignSummary struct {
	Campaign *campaign.Campaign
	Totals   []campaign.TokenTotals
}

func (n *Node) Campaign(id common.Hash) (*CampaignSummary, error) {
	var out *CampaignSummary
	err := n.view(func(tx *txContext) error {
		header, err := tx.campaign.Campaign(id)
		if err != nil {
			return err
		}
		totals, err := tx.campaign.Totals(id)
		if err != nil {
			return err
		}
		out = &CampaignSummary{Campaign: header, Totals: totals}
		return nil
	})
	return out, err
}

func (n *Node) CampaignAmountClaimed(id common.Hash, token, claimant common.Address) (*big.Int, error) {
	var out *big.Int
	err := n.view(func(tx *txContext) error {
		amount, err := tx.campaign.AmountClaimed(id, token, claimant)
		out = amount
		return err
	})
	return out, err
}

func (n *Node) GrantRole(ctx context.Context, caller common.Address, role common.Hash, account common.Address) error {
	return n.execute(ctx, "access_grantRole", func(tx *txContext) error {
		return tx.roles.GrantRole(caller, role, account)
	})
}

func (n *Node) RevokeRole(ctx context.Context, caller common.Address, role common.Hash, account common.Address) error {
	return n.execute(ctx, "access_revokeRole", func(tx *txContext) error {
		return tx.roles.RevokeRole(caller, role, account)
	})
}

func (n *Node) RenounceRole(ctx context.Context, caller common.Address, role common.Hash) error {
	return n.execute(ctx, "access_renounceRole", func(tx *txContext) error {
		return tx.roles.RenounceRole(caller, role)
	})
}

func (n *Node) HasRole(role common.Hash, account common.Address) (bool, error) {
	var ok bool
	err := n.view(func(tx *txContext) error {
		has, err := tx.roles.HasRole(role, account)
		ok = has
		return err
	})
	return ok, err
}

func (n *Node) RoleAdmin(role common.Hash) (common.Hash, error) {
	var admin common.Hash
	err := n.view(func(tx *txContext) error {
		out, err := tx.roles.GetRoleAdmin(role)
		admin = out
		return err
	})
	return admin, err
}

func (n *Node) Balance(token, owner common.Address) (*big.Int, error) {
	var out *big.Int
	err := n.view(func(tx *txContext) error {
		bal, err := tx.trancheBank.BalanceOf(token, owner)
		out = bal
		return err
	})
	return out, err
}
