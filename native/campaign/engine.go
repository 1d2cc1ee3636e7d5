package campaign

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"merkledrop/core/events"
	"merkledrop/crypto/merkle"
	"merkledrop/native/access"
	"merkledrop/native/bank"
)

var (
	ErrInvalidCampaign        = errors.New("campaign: invalid campaign")
	ErrInvalidMerkleRoot      = errors.New("campaign: invalid merkle root")
	ErrInvalidTokenAmount     = errors.New("campaign: invalid token amount")
	ErrInvalidDeadline        = errors.New("campaign: invalid deadline")
	ErrZeroAddress            = errors.New("campaign: zero address")
	ErrInvalidProof           = errors.New("campaign: invalid proof")
	ErrCampaignExpired        = errors.New("campaign: expired")
	ErrAlreadyClaimed         = errors.New("campaign: already claimed")
	ErrInsufficientAllocation = errors.New("campaign: claim exceeds allocation")

	errNilState    = errors.New("campaign engine: state not configured")
	errNilTransfer = errors.New("campaign engine: transfer port not configured")
	errNilRoles    = errors.New("campaign engine: roles not configured")
)

type engineState interface {
	CampaignGet(id common.Hash) (*Campaign, bool, error)
	CampaignPut(*Campaign) error
	CampaignAirdropped(id common.Hash, token common.Address) (*big.Int, error)
	SetCampaignAirdropped(id common.Hash, token common.Address, amount *big.Int) error
	CampaignClaimed(id common.Hash, token common.Address) (*big.Int, error)
	SetCampaignClaimed(id common.Hash, token common.Address, amount *big.Int) error
	CampaignTokenGeneration(id common.Hash, token common.Address) (uint64, error)
	SetCampaignTokenGeneration(id common.Hash, token common.Address, generation uint64) error
	CampaignClaimantClaimed(id common.Hash, generation uint64, token, claimant common.Address) (*big.Int, error)
	SetCampaignClaimantClaimed(id common.Hash, generation uint64, token, claimant common.Address, amount *big.Int) error
}

type roleChecker interface {
	CheckRole(role common.Hash, account common.Address) error
}

// TokenTotals summarises one token of a campaign.
type TokenTotals struct {
	Token      common.Address
	Airdropped *big.Int
	Claimed    *big.Int
}

// Engine runs ongoing multi-token campaigns. Admins publish a root together
// with per-token allocation totals, claimants redeem cumulative entitlements
// and may return after a root update to collect the increase.
type Engine struct {
	roles    roleChecker
	state    engineState
	transfer bank.Port
	emitter  events.Emitter
	nowFn    func() int64
}

// NewEngine creates a campaign engine authorising admin calls through roles.
func NewEngine(roles roleChecker) *Engine {
	return &Engine{
		roles:   roles,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetTransfer(port bank.Port) { e.transfer = port }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 { return e.nowFn() }

func (e *Engine) ready() error {
	if e.state == nil {
		return errNilState
	}
	if e.transfer == nil {
		return errNilTransfer
	}
	return nil
}

func (e *Engine) checkAdmin(caller common.Address) error {
	if e.roles == nil {
		return errNilRoles
	}
	return e.roles.CheckRole(access.AdminRole, caller)
}

func (e *Engine) load(id common.Hash) (*Campaign, error) {
	record, ok, err := e.state.CampaignGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Campaign{ID: id}, nil
	}
	return record, nil
}

// UpdateCampaign publishes root for the campaign, raises the per-token
// allocation totals and clears any deadline.
func (e *Engine) UpdateCampaign(caller common.Address, id, root common.Hash, allocations []TokenAmount) error {
	return e.update(caller, id, root, allocations, 0, false)
}

// UpdateCampaignWithDeadline is UpdateCampaign with a claim deadline.
func (e *Engine) UpdateCampaignWithDeadline(caller common.Address, id, root common.Hash, allocations []TokenAmount, deadline int64) error {
	return e.update(caller, id, root, allocations, deadline, true)
}

func (e *Engine) update(caller common.Address, id, root common.Hash, allocations []TokenAmount, deadline int64, withDeadline bool) error {
	if err := e.checkAdmin(caller); err != nil {
		return err
	}
	if err := e.ready(); err != nil {
		return err
	}
	if id == (common.Hash{}) {
		return ErrInvalidCampaign
	}
	if root == (common.Hash{}) {
		return ErrInvalidMerkleRoot
	}
	if len(allocations) == 0 {
		return ErrInvalidTokenAmount
	}
	// Totals are tracked as entries are visited so repeated tokens are
	// validated against the total set by the preceding entry.
	totals := make(map[common.Address]*big.Int)
	deltas := make([]*big.Int, len(allocations))
	for i, entry := range allocations {
		if entry.Token == (common.Address{}) || entry.Amount == nil || entry.Amount.Sign() < 0 {
			return ErrInvalidTokenAmount
		}
		current, ok := totals[entry.Token]
		if !ok {
			stored, err := e.state.CampaignAirdropped(id, entry.Token)
			if err != nil {
				return err
			}
			current = stored
		}
		if entry.Amount.Cmp(current) < 0 {
			return ErrInvalidTokenAmount
		}
		deltas[i] = new(big.Int).Sub(entry.Amount, current)
		totals[entry.Token] = entry.Amount
	}
	if withDeadline && deadline <= e.now() {
		return ErrInvalidDeadline
	}
	if !withDeadline {
		deadline = 0
	}

	record, err := e.load(id)
	if err != nil {
		return err
	}
	record.Root = root
	record.Deadline = deadline
	for _, entry := range allocations {
		record.trackToken(entry.Token)
	}
	if err := e.state.CampaignPut(record); err != nil {
		return err
	}
	for token, total := range totals {
		if err := e.state.SetCampaignAirdropped(id, token, total); err != nil {
			return err
		}
	}
	for i, entry := range allocations {
		if deltas[i].Sign() == 0 {
			continue
		}
		if err := e.transfer.Pull(entry.Token, caller, deltas[i]); err != nil {
			return err
		}
	}

	list := cloneAmounts(allocations)
	evt := events.CampaignUpdated{Campaign: id, Root: root, Deadline: deadline}
	for _, entry := range list {
		evt.Tokens = append(evt.Tokens, entry.Token)
		evt.Amounts = append(evt.Amounts, entry.Amount)
	}
	e.emitter.Emit(evt)
	return nil
}

// ClaimAndSendToClaimee redeems claimant's cumulative entitlement and pays the
// claimant. Anyone may submit the claim.
func (e *Engine) ClaimAndSendToClaimee(id common.Hash, claimant common.Address, amounts []TokenAmount, proof []common.Hash) ([]TokenAmount, error) {
	return e.claim(id, claimant, amounts, claimant, proof)
}

// ClaimAndTransfer redeems the caller's cumulative entitlement and pays
// recipient.
func (e *Engine) ClaimAndTransfer(caller common.Address, id common.Hash, amounts []TokenAmount, recipient common.Address, proof []common.Hash) ([]TokenAmount, error) {
	return e.claim(id, caller, amounts, recipient, proof)
}

// claim returns, per entry of amounts, the amount paid out by this call.
func (e *Engine) claim(id common.Hash, claimant common.Address, amounts []TokenAmount, recipient common.Address, proof []common.Hash) ([]TokenAmount, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if id == (common.Hash{}) {
		return nil, ErrInvalidCampaign
	}
	if claimant == (common.Address{}) || recipient == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if len(amounts) == 0 {
		return nil, ErrInvalidTokenAmount
	}
	leaf, err := Leaf(claimant, amounts)
	if err != nil {
		return nil, err
	}
	if len(proof) == 0 {
		return nil, ErrInvalidProof
	}
	record, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if !record.Active() {
		return nil, ErrInvalidProof
	}
	if err := merkle.VerifyProof(record.Root, leaf, proof); err != nil {
		return nil, ErrInvalidProof
	}
	if record.HasDeadline() && e.now() >= record.Deadline {
		return nil, ErrCampaignExpired
	}

	generations := make(map[common.Address]uint64)
	claimantTotals := make(map[common.Address]*big.Int)
	campaignTotals := make(map[common.Address]*big.Int)
	paid := make([]TokenAmount, len(amounts))
	running := make([]*big.Int, len(amounts))
	anyDelta := false
	for i, entry := range amounts {
		already, ok := claimantTotals[entry.Token]
		if !ok {
			gen, err := e.state.CampaignTokenGeneration(id, entry.Token)
			if err != nil {
				return nil, err
			}
			generations[entry.Token] = gen
			if already, err = e.state.CampaignClaimantClaimed(id, gen, entry.Token, claimant); err != nil {
				return nil, err
			}
		}
		delta := new(big.Int).Sub(entry.Amount, already)
		if delta.Sign() <= 0 {
			paid[i] = TokenAmount{Token: entry.Token, Amount: big.NewInt(0)}
			claimantTotals[entry.Token] = already
			running[i] = new(big.Int).Set(already)
			continue
		}
		claimedTotal, ok := campaignTotals[entry.Token]
		if !ok {
			if claimedTotal, err = e.state.CampaignClaimed(id, entry.Token); err != nil {
				return nil, err
			}
		}
		allocated, err := e.state.CampaignAirdropped(id, entry.Token)
		if err != nil {
			return nil, err
		}
		nextClaimed := new(big.Int).Add(claimedTotal, delta)
		if nextClaimed.Cmp(allocated) > 0 {
			return nil, ErrInsufficientAllocation
		}
		campaignTotals[entry.Token] = nextClaimed
		claimantTotals[entry.Token] = new(big.Int).Set(entry.Amount)
		paid[i] = TokenAmount{Token: entry.Token, Amount: delta}
		running[i] = new(big.Int).Set(entry.Amount)
		anyDelta = true
	}
	if !anyDelta {
		return nil, ErrAlreadyClaimed
	}

	for token, total := range claimantTotals {
		if err := e.state.SetCampaignClaimantClaimed(id, generations[token], token, claimant, total); err != nil {
			return nil, err
		}
	}
	for token, total := range campaignTotals {
		if err := e.state.SetCampaignClaimed(id, token, total); err != nil {
			return nil, err
		}
	}
	for _, entry := range paid {
		if entry.Amount.Sign() == 0 {
			continue
		}
		if err := e.transfer.Push(entry.Token, recipient, entry.Amount); err != nil {
			return nil, err
		}
	}

	evt := events.CampaignClaimed{Campaign: id, Claimant: claimant, Recipient: recipient}
	for i, entry := range paid {
		evt.Tokens = append(evt.Tokens, entry.Token)
		evt.Transferred = append(evt.Transferred, new(big.Int).Set(entry.Amount))
		evt.Claimed = append(evt.Claimed, running[i])
	}
	e.emitter.Emit(evt)
	return cloneAmounts(paid), nil
}

// Shutdown deactivates the campaign and sends the unclaimed balance of every
// listed token to recipient. Claimant records of the listed tokens start over
// if the campaign is later reactivated; unlisted tokens keep their totals and
// their claimant records.
func (e *Engine) Shutdown(caller common.Address, id common.Hash, tokens []common.Address, recipient common.Address) ([]TokenAmount, error) {
	if err := e.checkAdmin(caller); err != nil {
		return nil, err
	}
	if err := e.ready(); err != nil {
		return nil, err
	}
	if recipient == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if id == (common.Hash{}) {
		return nil, ErrInvalidCampaign
	}

	swept := make(map[common.Address]bool, len(tokens))
	unclaimed := make([]TokenAmount, len(tokens))
	for i, token := range tokens {
		airdropped, err := e.state.CampaignAirdropped(id, token)
		if err != nil {
			return nil, err
		}
		claimed, err := e.state.CampaignClaimed(id, token)
		if err != nil {
			return nil, err
		}
		remaining := new(big.Int).Sub(airdropped, claimed)
		if remaining.Sign() < 0 {
			remaining.SetInt64(0)
		}
		unclaimed[i] = TokenAmount{Token: token, Amount: remaining}
		if err := e.state.SetCampaignAirdropped(id, token, big.NewInt(0)); err != nil {
			return nil, err
		}
		if err := e.state.SetCampaignClaimed(id, token, big.NewInt(0)); err != nil {
			return nil, err
		}
		if swept[token] {
			continue
		}
		swept[token] = true
		gen, err := e.state.CampaignTokenGeneration(id, token)
		if err != nil {
			return nil, err
		}
		if err := e.state.SetCampaignTokenGeneration(id, token, gen+1); err != nil {
			return nil, err
		}
	}

	record, ok, err := e.state.CampaignGet(id)
	if err != nil {
		return nil, err
	}
	if ok {
		record.Root = common.Hash{}
		record.Deadline = 0
		record.Generation++
		if err := e.state.CampaignPut(record); err != nil {
			return nil, err
		}
	}

	for _, entry := range unclaimed {
		if entry.Amount.Sign() == 0 {
			continue
		}
		if err := e.transfer.Push(entry.Token, recipient, entry.Amount); err != nil {
			return nil, err
		}
	}

	evt := events.CampaignShutdown{Campaign: id, Recipient: recipient}
	for _, entry := range unclaimed {
		evt.Tokens = append(evt.Tokens, entry.Token)
		evt.Unclaimed = append(evt.Unclaimed, new(big.Int).Set(entry.Amount))
	}
	e.emitter.Emit(evt)
	return cloneAmounts(unclaimed), nil
}

// Campaign returns the campaign header. Unknown ids yield an inactive campaign.
func (e *Engine) Campaign(id common.Hash) (*Campaign, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.load(id)
}

func (e *Engine) TotalAirdropped(id common.Hash, token common.Address) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.CampaignAirdropped(id, token)
}

func (e *Engine) TotalClaimed(id common.Hash, token common.Address) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.CampaignClaimed(id, token)
}

// AmountClaimed returns what claimant has claimed of token since token was
// last swept by a shutdown.
func (e *Engine) AmountClaimed(id common.Hash, token, claimant common.Address) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	gen, err := e.state.CampaignTokenGeneration(id, token)
	if err != nil {
		return nil, err
	}
	return e.state.CampaignClaimantClaimed(id, gen, token, claimant)
}

// Totals returns allocation and claim totals for every token the campaign has
// ever allocated.
func (e *Engine) Totals(id common.Hash) ([]TokenTotals, error) {
	if e.state == nil {
		return nil, errNilState
	}
	record, err := e.load(id)
	if err != nil {
		return nil, err
	}
	out := make([]TokenTotals, 0, len(record.Tokens))
	for _, token := range record.Tokens {
		airdropped, err := e.state.CampaignAirdropped(id, token)
		if err != nil {
			return nil, err
		}
		claimed, err := e.state.CampaignClaimed(id, token)
		if err != nil {
			return nil, err
		}
		out = append(out, TokenTotals{Token: token, Airdropped: airdropped, Claimed: claimed})
	}
	return out, nil
}
