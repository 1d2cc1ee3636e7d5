package tranche

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
	ErrInvalidMerkleRoot  = errors.New("tranche: invalid merkle root")
	ErrInvalidAmount      = errors.New("tranche: invalid amount")
	ErrZeroAddress        = errors.New("tranche: zero address")
	ErrInvalidProof       = errors.New("tranche: invalid proof")
	ErrExpiredTranche     = errors.New("tranche: expired")
	ErrTrancheStillActive = errors.New("tranche: still active")
	ErrTrancheExists      = errors.New("tranche: already exists")
	ErrTrancheNotFound    = errors.New("tranche: not found")
	ErrAlreadyClaimed     = errors.New("tranche: already claimed")

	errNilState    = errors.New("tranche engine: state not configured")
	errNilTransfer = errors.New("tranche engine: transfer port not configured")
)

type engineState interface {
	TranchePut(*Tranche) error
	TrancheGet(root common.Hash) (*Tranche, bool, error)
	TrancheClaimed(root common.Hash, claimant common.Address) (bool, error)
	SetTrancheClaimed(root common.Hash, claimant common.Address) error
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLifespan sets the lifespan applied to tranches created without an
// explicit deadline.
func WithLifespan(lifespan time.Duration) Option {
	return func(e *Engine) { e.SetLifespan(lifespan) }
}

// Engine runs the expirable single-token airdrop: the governor publishes a
// Merkle root with a funded pool and a deadline, claimants redeem their leaf
// once, and after the deadline the governor reclaims the rest.
type Engine struct {
	governor access.Governor
	token    common.Address
	lifespan int64
	state    engineState
	transfer bank.Port
	emitter  events.Emitter
	nowFn    func() int64
}

// NewEngine creates a tranche engine paying out claimableToken and governed
// by governor.
func NewEngine(governor, claimableToken common.Address, opts ...Option) (*Engine, error) {
	if claimableToken == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	gov, err := access.NewGovernor(governor)
	if err != nil {
		return nil, ErrZeroAddress
	}
	e := &Engine{
		governor: gov,
		token:    claimableToken,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetTransfer(port bank.Port) { e.transfer = port }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// to a no-op emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetLifespan configures the default tranche lifespan. Zero disables it.
func (e *Engine) SetLifespan(lifespan time.Duration) {
	if lifespan < 0 {
		lifespan = 0
	}
	e.lifespan = int64(lifespan / time.Second)
}

func (e *Engine) Governor() common.Address { return e.governor.Address() }

func (e *Engine) Token() common.Address { return e.token }

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

// CreateTranche funds a new tranche for root from the caller's balance. When
// deadline is zero and a lifespan is configured, the deadline is now+lifespan.
func (e *Engine) CreateTranche(caller common.Address, root common.Hash, amount *big.Int, deadline int64) (*Tranche, error) {
	if err := e.governor.Check(caller); err != nil {
		return nil, err
	}
	if err := e.ready(); err != nil {
		return nil, err
	}
	if root == (common.Hash{}) {
		return nil, ErrInvalidMerkleRoot
	}
	if amount == nil || amount.Sign() <= 0 || amount.BitLen() > AmountBits {
		return nil, ErrInvalidAmount
	}
	now := e.now()
	if deadline == 0 && e.lifespan > 0 {
		deadline = now + e.lifespan
	}
	if deadline <= now {
		return nil, ErrExpiredTranche
	}
	existing, ok, err := e.state.TrancheGet(root)
	if err != nil {
		return nil, err
	}
	if ok && existing.Exists() {
		return nil, ErrTrancheExists
	}
	record := &Tranche{
		Root:            root,
		ClaimableAmount: new(big.Int).Set(amount),
		ClaimedAmount:   big.NewInt(0),
		Deadline:        deadline,
	}
	if err := e.state.TranchePut(record); err != nil {
		return nil, err
	}
	if err := e.transfer.Pull(e.token, caller, amount); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.TrancheCreated{Root: root, Amount: new(big.Int).Set(amount), Deadline: deadline})
	return record.Clone(), nil
}

// ClaimAndSendToClaimee redeems claimant's leaf and pays the claimant. Anyone
// may submit the claim.
func (e *Engine) ClaimAndSendToClaimee(root common.Hash, claimant common.Address, amount *big.Int, proof []common.Hash) error {
	return e.claim(root, claimant, amount, claimant, proof)
}

// ClaimAndTransfer redeems the caller's leaf and pays recipient.
func (e *Engine) ClaimAndTransfer(caller common.Address, root common.Hash, amount *big.Int, recipient common.Address, proof []common.Hash) error {
	return e.claim(root, caller, amount, recipient, proof)
}

func (e *Engine) claim(root common.Hash, claimant common.Address, amount *big.Int, recipient common.Address, proof []common.Hash) error {
	if err := e.ready(); err != nil {
		return err
	}
	if root == (common.Hash{}) {
		return ErrInvalidMerkleRoot
	}
	if amount == nil || amount.Sign() <= 0 || amount.BitLen() > AmountBits {
		return ErrInvalidAmount
	}
	if claimant == (common.Address{}) || recipient == (common.Address{}) {
		return ErrZeroAddress
	}
	leaf, err := Leaf(claimant, amount)
	if err != nil {
		return err
	}
	if err := merkle.VerifyProof(root, leaf, proof); err != nil {
		return ErrInvalidProof
	}
	record, ok, err := e.state.TrancheGet(root)
	if err != nil {
		return err
	}
	if !ok {
		record = &Tranche{Root: root}
	}
	if e.now() >= record.Deadline {
		return ErrExpiredTranche
	}
	claimed, err := e.state.TrancheClaimed(root, claimant)
	if err != nil {
		return err
	}
	if claimed {
		return ErrAlreadyClaimed
	}
	total := new(big.Int).Add(record.ClaimedAmount, amount)
	if total.Cmp(record.ClaimableAmount) > 0 {
		return ErrInvalidAmount
	}
	if err := e.state.SetTrancheClaimed(root, claimant); err != nil {
		return err
	}
	record.ClaimedAmount = total
	if err := e.state.TranchePut(record); err != nil {
		return err
	}
	if err := e.transfer.Push(e.token, recipient, amount); err != nil {
		return err
	}
	e.emitter.Emit(events.TrancheClaimed{Root: root, Claimant: claimant, Recipient: recipient, Amount: new(big.Int).Set(amount)})
	return nil
}

// CloseTranche marks an expired tranche fully claimed and sends whatever was
// left unclaimed to recipient. Closing an already closed tranche pays nothing.
func (e *Engine) CloseTranche(caller common.Address, root common.Hash, recipient common.Address) (*big.Int, error) {
	if err := e.governor.Check(caller); err != nil {
		return nil, err
	}
	if err := e.ready(); err != nil {
		return nil, err
	}
	if root == (common.Hash{}) {
		return nil, ErrInvalidMerkleRoot
	}
	if recipient == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	record, ok, err := e.state.TrancheGet(root)
	if err != nil {
		return nil, err
	}
	if !ok || !record.Exists() {
		return nil, ErrTrancheNotFound
	}
	if e.now() < record.Deadline {
		return nil, ErrTrancheStillActive
	}
	unclaimed := record.Unclaimed()
	record.ClaimedAmount = new(big.Int).Set(record.ClaimableAmount)
	if err := e.state.TranchePut(record); err != nil {
		return nil, err
	}
	if unclaimed.Sign() > 0 {
		if err := e.transfer.Push(e.token, recipient, unclaimed); err != nil {
			return nil, err
		}
	}
	e.emitter.Emit(events.TrancheClosed{Root: root, Recipient: recipient, Unclaimed: new(big.Int).Set(unclaimed)})
	return unclaimed, nil
}

// Tranche returns the tranche stored under root. Unknown roots yield a zero
// tranche.
func (e *Engine) Tranche(root common.Hash) (*Tranche, error) {
	if e.state == nil {
		return nil, errNilState
	}
	record, ok, err := e.state.TrancheGet(root)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Tranche{Root: root, ClaimableAmount: big.NewInt(0), ClaimedAmount: big.NewInt(0)}, nil
	}
	return record, nil
}

// IsClaimed reports whether claimant already redeemed their leaf under root.
func (e *Engine) IsClaimed(root common.Hash, claimant common.Address) (bool, error) {
	if e.state == nil {
		return false, errNilState
	}
	return e.state.TrancheClaimed(root, claimant)
}
