package campaign

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"merkledrop/core/events"
	"merkledrop/crypto/merkle"
	"merkledrop/native/access"
)

const testNow = int64(1_700_000_000)

type claimantKey struct {
	id       common.Hash
	gen      uint64
	token    common.Address
	claimant common.Address
}

type tokenKey struct {
	id    common.Hash
	token common.Address
}

type mockState struct {
	campaigns  map[common.Hash]*Campaign
	airdropped map[tokenKey]*big.Int
	claimed    map[tokenKey]*big.Int
	claimants  map[claimantKey]*big.Int
	gens       map[tokenKey]uint64
}

func newMockState() *mockState {
	return &mockState{
		campaigns:  make(map[common.Hash]*Campaign),
		airdropped: make(map[tokenKey]*big.Int),
		claimed:    make(map[tokenKey]*big.Int),
		claimants:  make(map[claimantKey]*big.Int),
		gens:       make(map[tokenKey]uint64),
	}
}

func lookup[K comparable](m map[K]*big.Int, k K) *big.Int {
	if v, ok := m[k]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func (m *mockState) CampaignGet(id common.Hash) (*Campaign, bool, error) {
	c, ok := m.campaigns[id]
	if !ok {
		return nil, false, nil
	}
	return c.Clone(), true, nil
}

func (m *mockState) CampaignPut(c *Campaign) error {
	if c == nil {
		return fmt.Errorf("nil campaign")
	}
	m.campaigns[c.ID] = c.Clone()
	return nil
}

func (m *mockState) CampaignAirdropped(id common.Hash, token common.Address) (*big.Int, error) {
	return lookup(m.airdropped, tokenKey{id, token}), nil
}

func (m *mockState) SetCampaignAirdropped(id common.Hash, token common.Address, amount *big.Int) error {
	m.airdropped[tokenKey{id, token}] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) CampaignClaimed(id common.Hash, token common.Address) (*big.Int, error) {
	return lookup(m.claimed, tokenKey{id, token}), nil
}

func (m *mockState) SetCampaignClaimed(id common.Hash, token common.Address, amount *big.Int) error {
	m.claimed[tokenKey{id, token}] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) CampaignTokenGeneration(id common.Hash, token common.Address) (uint64, error) {
	return m.gens[tokenKey{id, token}], nil
}

func (m *mockState) SetCampaignTokenGeneration(id common.Hash, token common.Address, gen uint64) error {
	m.gens[tokenKey{id, token}] = gen
	return nil
}

func (m *mockState) CampaignClaimantClaimed(id common.Hash, gen uint64, token, claimant common.Address) (*big.Int, error) {
	return lookup(m.claimants, claimantKey{id, gen, token, claimant}), nil
}

func (m *mockState) SetCampaignClaimantClaimed(id common.Hash, gen uint64, token, claimant common.Address, amount *big.Int) error {
	m.claimants[claimantKey{id, gen, token, claimant}] = new(big.Int).Set(amount)
	return nil
}

type mockRoles struct {
	admins map[common.Address]bool
}

func (r *mockRoles) CheckRole(role common.Hash, account common.Address) error {
	if role != access.AdminRole || !r.admins[account] {
		return access.ErrMissingRole
	}
	return nil
}

type transfer struct {
	pull   bool
	token  common.Address
	party  common.Address
	amount *big.Int
}

type mockPort struct {
	calls  []transfer
	onPush func()
	fail   error
}

func (p *mockPort) Pull(token, from common.Address, amount *big.Int) error {
	if p.fail != nil {
		return p.fail
	}
	p.calls = append(p.calls, transfer{pull: true, token: token, party: from, amount: new(big.Int).Set(amount)})
	return nil
}

func (p *mockPort) Push(token, to common.Address, amount *big.Int) error {
	if p.fail != nil {
		return p.fail
	}
	if p.onPush != nil {
		p.onPush()
	}
	p.calls = append(p.calls, transfer{token: token, party: to, amount: new(big.Int).Set(amount)})
	return nil
}

// received sums pushes of token to addr.
func (p *mockPort) received(token, addr common.Address) *big.Int {
	total := big.NewInt(0)
	for _, call := range p.calls {
		if !call.pull && call.token == token && call.party == addr {
			total.Add(total, call.amount)
		}
	}
	return total
}

func (p *mockPort) pushes() int {
	n := 0
	for _, call := range p.calls {
		if !call.pull {
			n++
		}
	}
	return n
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func (c *capturingEmitter) last() events.Event {
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

func newTestAddress(fill byte) common.Address {
	return common.BytesToAddress(bytes.Repeat([]byte{fill}, 20))
}

var (
	testAdmin    = newTestAddress(0xAD)
	testCampaign = common.HexToHash("0xc0ffee")
	tokenA       = newTestAddress(0xA1)
	tokenB       = newTestAddress(0xB2)
	tokenC       = newTestAddress(0xC3)
)

type testHarness struct {
	engine  *Engine
	state   *mockState
	port    *mockPort
	emitter *capturingEmitter
	now     int64
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		engine:  NewEngine(&mockRoles{admins: map[common.Address]bool{testAdmin: true}}),
		state:   newMockState(),
		port:    &mockPort{},
		emitter: &capturingEmitter{},
		now:     testNow,
	}
	h.engine.SetState(h.state)
	h.engine.SetTransfer(h.port)
	h.engine.SetEmitter(h.emitter)
	h.engine.SetNowFunc(func() int64 { return h.now })
	return h
}

func amounts(pairs ...interface{}) []TokenAmount {
	out := make([]TokenAmount, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, TokenAmount{Token: pairs[i].(common.Address), Amount: big.NewInt(int64(pairs[i+1].(int)))})
	}
	return out
}

type entitlement struct {
	claimant common.Address
	amounts  []TokenAmount
}

func buildTree(t *testing.T, entries []entitlement) *merkle.Tree {
	t.Helper()
	leaves := make([]common.Hash, len(entries))
	for i, e := range entries {
		leaf, err := Leaf(e.claimant, e.amounts)
		require.NoError(t, err)
		leaves[i] = leaf
	}
	tree, err := merkle.NewTree(leaves)
	require.NoError(t, err)
	return tree
}

func proofAt(t *testing.T, tree *merkle.Tree, i int) []common.Hash {
	t.Helper()
	proof, err := tree.ProofAt(i)
	require.NoError(t, err)
	return proof
}

func TestUpdateCampaignValidations(t *testing.T) {
	root := common.HexToHash("0x01")
	cases := []struct {
		name     string
		caller   common.Address
		id       common.Hash
		root     common.Hash
		allocs   []TokenAmount
		deadline int64
		want     error
	}{
		{"missing role", newTestAddress(0x01), testCampaign, root, amounts(tokenA, 10), 0, access.ErrMissingRole},
		{"missing role beats bad input", newTestAddress(0x01), common.Hash{}, common.Hash{}, nil, 0, access.ErrMissingRole},
		{"zero campaign", testAdmin, common.Hash{}, root, amounts(tokenA, 10), 0, ErrInvalidCampaign},
		{"zero root", testAdmin, testCampaign, common.Hash{}, amounts(tokenA, 10), 0, ErrInvalidMerkleRoot},
		{"empty list", testAdmin, testCampaign, root, nil, 0, ErrInvalidTokenAmount},
		{"zero token", testAdmin, testCampaign, root, amounts(common.Address{}, 10), 0, ErrInvalidTokenAmount},
		{"negative amount", testAdmin, testCampaign, root, amounts(tokenA, -1), 0, ErrInvalidTokenAmount},
		{"repeated token decreasing", testAdmin, testCampaign, root, amounts(tokenA, 10, tokenA, 5), 0, ErrInvalidTokenAmount},
		{"deadline now", testAdmin, testCampaign, root, amounts(tokenA, 10), testNow, ErrInvalidDeadline},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			var err error
			if tc.deadline != 0 {
				err = h.engine.UpdateCampaignWithDeadline(tc.caller, tc.id, tc.root, tc.allocs, tc.deadline)
			} else {
				err = h.engine.UpdateCampaign(tc.caller, tc.id, tc.root, tc.allocs)
			}
			require.ErrorIs(t, err, tc.want)
			require.Empty(t, h.port.calls)
			require.Empty(t, h.state.campaigns)
			require.Empty(t, h.emitter.events)
		})
	}
}

func TestUpdateCampaignPullsOnlyDelta(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.UpdateCampaign(testAdmin, testCampaign, common.HexToHash("0x01"), amounts(tokenA, 100, tokenB, 50)))
	require.Len(t, h.port.calls, 2)
	require.Equal(t, int64(100), h.port.calls[0].amount.Int64())
	require.Equal(t, testAdmin, h.port.calls[0].party)

	h.port.calls = nil
	require.NoError(t, h.engine.UpdateCampaign(testAdmin, testCampaign, common.HexToHash("0x02"), amounts(tokenA, 160, tokenB, 50, tokenC, 7)))
	// tokenB is unchanged, so only two pulls happen.
	require.Len(t, h.port.calls, 2)
	require.Equal(t, tokenA, h.port.calls[0].token)
	require.Equal(t, int64(60), h.port.calls[0].amount.Int64())
	require.Equal(t, tokenC, h.port.calls[1].token)
	require.Equal(t, int64(7), h.port.calls[1].amount.Int64())

	c, err := h.engine.Campaign(testCampaign)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x02"), c.Root)
	require.Equal(t, []common.Address{tokenA, tokenB, tokenC}, c.Tokens)

	total, err := h.engine.TotalAirdropped(testCampaign, tokenA)
	require.NoError(t, err)
	require.Equal(t, int64(160), total.Int64())

	err = h.engine.UpdateCampaign(testAdmin, testCampaign, common.HexToHash("0x03"), amounts(tokenA, 159))
	require.ErrorIs(t, err, ErrInvalidTokenAmount)

	evt, ok := h.emitter.last().(events.CampaignUpdated)
	require.True(t, ok)
	require.Equal(t, []common.Address{tokenA, tokenB, tokenC}, evt.Tokens)
	require.Equal(t, "160", evt.Amounts[0].String())
}

func TestUpdateCampaignRepeatedTokenIsSequential(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.UpdateCampaign(testAdmin, testCampaign, common.HexToHash("0x01"), amounts(tokenA, 10, tokenA, 25)))
	require.Len(t, h.port.calls, 2)
	require.Equal(t, int64(10), h.port.calls[0].amount.Int64())
	require.Equal(t, int64(15), h.port.calls[1].amount.Int64())
	total, _ := h.engine.TotalAirdropped(testCampaign, tokenA)
	require.Equal(t, int64(25), total.Int64())
}

func TestUpdateCampaignDeadline(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.UpdateCampaignWithDeadline(testAdmin, testCampaign, common.HexToHash("0x01"), amounts(tokenA, 10), testNow+60))
	c, _ := h.engine.Campaign(testCampaign)
	require.Equal(t, testNow+60, c.Deadline)

	require.NoError(t, h.engine.UpdateCampaign(testAdmin, testCampaign, common.HexToHash("0x02"), amounts(tokenA, 10)))
	c, _ = h.engine.Campaign(testCampaign)
	require.Zero(t, c.Deadline, "plain update clears the deadline")
}

func TestClaimMultiToken(t *testing.T) {
	h := newHarness(t)
	alice := newTestAddress(0x01)
	bob := newTestAddress(0x02)
	entries := []entitlement{
		{alice, amounts(tokenA, 30, tokenB, 5)},
		{bob, amounts(tokenA, 70)},
	}
	tree := buildTree(t, entries)
	require.NoError(t, h.engine.UpdateCampaign(testAdmin, testCampaign, tree.Root(), amounts(tokenA, 100, tokenB, 5)))

	paid, err := h.engine.ClaimAndSendToClaimee(testCampaign, alice, entries[0].amounts, proofAt(t, tree, 0))
	require.NoError(t, err)
	require.Equal(t, int64(30), paid[0].Amount.Int64())
	require.Equal(t, int64(5), paid[1].Amount.Int64())
	require.Equal(t, int64(30), h.port.received(tokenA, alice).Int64())
	require.Equal(t, int64(5), h.port.received(tokenB, alice).Int64())

	claimed, err := h.engine.AmountClaimed(testCampaign, tokenA, alice)
	require.NoError(t, err)
	require.Equal(t, int64(30), claimed.Int64())
	total, _ := h.engine.TotalClaimed(testCampaign, tokenA)
	require.Equal(t, int64(30), total.Int64())

	evt, ok := h.emitter.last().(events.CampaignClaimed)
	require.True(t, ok)
	require.Equal(t, alice, evt.Claimant)
	require.Equal(t, alice, evt.Recipient)
	require.Equal(t, "30", evt.Transferred[0].String())
	require.Equal(t, "30", evt.Claimed[0].String())

	_, err = h.engine.ClaimAndSendToClaimee(testCampaign, alice, entries[0].amounts, proofAt(t, tree, 0))
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	recipient := newTestAddress(0x33)
	_, err = h.engine.ClaimAndTransfer(bob, testCampaign, entries[1].amounts, recipient, proofAt(t, tree, 1))
	require.NoError(t, err)
	require.Equal(t, int64(70), h.port.received(tokenA, recipient).Int64())

	totals, err := h.engine.Totals(testCampaign)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	require.Equal(t, int64(100), totals[0].Claimed.Int64())
}

func TestClaimRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	alice := newTestAddress(0x01)
	entries := []entitlement{{alice, amounts(tokenA, 30)}, {newTestAddress(0x02), amounts(tokenA, 20)}}
	tree := buildTree(t, entries)
	proof := proofAt(t, tree, 0)

	_, err := h.engine.ClaimAndSendToClaimee(testCampaign, alice, entries[0].amounts, proof)
	require.ErrorIs(t, err, ErrInvalidProof, "inactive campaign")

	require.NoError(t, h.engine.UpdateCampaign(testAdmin, testCampaign, tree.Root(), amounts(tokenA, 50)))

	_, err = h.engine.ClaimAndSendToClaimee(common.Hash{}, alice, entries[0].amounts, proof)
	require.ErrorIs(t, err, ErrInvalidCampaign)
	_, err = h.engine.ClaimAndSendToClaimee(testCampaign, common.Address{}, entries[0].amounts, proof)
	require.ErrorIs(t, err, ErrZeroAddress)
	_, err = h.engine.ClaimAndTransfer(alice, testCampaign, entries[0].amounts, common.Address{}, proof)
	require.ErrorIs(t, err, ErrZeroAddress)
	_, err = h.engine.ClaimAndSendToClaimee(testCampaign, alice, nil, proof)
	require.ErrorIs(t, err, ErrInvalidTokenAmount)
	_, err = h.engine.ClaimAndSendToClaimee(testCampaign, alice, entries[0].amounts, nil)
	require.ErrorIs(t, err, ErrInvalidProof)
	_, err = h.engine.ClaimAndSendToClaimee(testCampaign, alice, amounts(tokenA, 31), proof)
	require.ErrorIs(t, err, ErrInvalidProof)
	_, err = h.engine.ClaimAndSendToClaimee(testCampaign, newTestAddress(0x02), entries[0].amounts, proof)
	require.ErrorIs(t, err, ErrInvalidProof)
	require.Zero(t, h.port.pushes())
}

func TestClaimAfterDeadline(t *testing.T) {
	h := newHarness(t)
	alice := newTestAddress(0x01)
	entries := []entitlement{{alice, amounts(tokenA, 30)}, {newTestAddress(0x02), amounts(tokenA, 20)}}
	tree := buildTree(t, entries)
	require.NoError(t, h.engine.UpdateCampaignWithDeadline(testAdmin, testCampaign, tree.Root(), amounts(tokenA, 50), testNow+10))

	h.now = testNow + 10
	_, err := h.engine.ClaimAndSendToClaimee(testCampaign, alice, entries[0].amounts, proofAt(t, tree, 0))
	require.ErrorIs(t, err, ErrCampaignExpired)
}

func TestClaimCannotExceedAllocation(t *testing.T) {
	h := newHarness(t)
	alice := newTestAddress(0x01)
	bob := newTestAddress(0x02)
	// The tree promises more than the campaign was funded with.
	entries := []entitlement{{alice, amounts(tokenA, 30)}, {bob, amounts(tokenA, 30)}}
	tree := buildTree(t, entries)
	require.NoError(t, h.engine.UpdateCampaign(testAdmin, testCampaign, tree.Root(), amounts(tokenA, 40)))

	_, err := h.engine.ClaimAndSendToClaimee(testCampaign, alice, entries[0].amounts, proofAt(t, tree, 0))
	require.NoError(t, err)
	_, err = h.engine.ClaimAndSendToClaimee(testCampaign, bob, entries[1].amounts, proofAt(t, tree, 1))
	require.ErrorIs(t, err, ErrInsufficientAllocation)
	total, _ := h.engine.TotalClaimed(testCampaign, tokenA)
	require.Equal(t, int64(30), total.Int64())
}

func TestClaimUpdatesStateBeforeTransfer(t *testing.T) {
	h := newHarness(t)
	alice := newTestAddress(0x01)
	entries := []entitlement{{alice, amounts(tokenA, 30)}, {newTestAddress(0x02), amounts(tokenA, 20)}}
	tree := buildTree(t, entries)
	require.NoError(t, h.engine.UpdateCampaign(testAdmin, testCampaign, tree.Root(), amounts(tokenA, 50)))

	h.port.onPush = func() {
		claimed := h.state.claimants[claimantKey{testCampaign, 0, tokenA, alice}]
		require.NotNil(t, claimed, "claimant record must be written before payout")
		require.Equal(t, int64(30), claimed.Int64())
		require.Equal(t, int64(30), h.state.claimed[tokenKey{testCampaign, tokenA}].Int64())
	}
	_, err := h.engine.ClaimAndSendToClaimee(testCampaign, alice, entries[0].amounts, proofAt(t, tree, 0))
	require.NoError(t, err)
}

func TestMultiRootCampaignPaysDelta(t *testing.T) {
	h := newHarness(t)
	alice := newTestAddress(0x01)
	bob := newTestAddress(0x02)

	first := []entitlement{{alice, amounts(tokenA, 100)}, {bob, amounts(tokenA, 50)}}
	firstTree := buildTree(t, first)
	require.NoError(t, h.engine.UpdateCampaign(testAdmin, testCampaign, firstTree.Root(), amounts(tokenA, 150)))
	_, err := h.engine.ClaimAndSendToClaimee(testCampaign, alice, first[0].amounts, proofAt(t, firstTree, 0))
	require.NoError(t, err)
	require.Equal(t, int64(100), h.port.received(tokenA, alice).Int64())

	second := []entitlement{{alice, amounts(tokenA, 250)}, {bob, amounts(tokenA, 80)}}
	secondTree := buildTree(t, second)
	require.NoError(t, h.engine.UpdateCampaign(testAdmin, testCampaign, secondTree.Root(), amounts(tokenA, 330)))

	// The old proof no longer matches the current root.
	_, err = h.engine.ClaimAndSendToClaimee(testCampaign, alice, first[0].amounts, proofAt(t, firstTree, 0))
	require.ErrorIs(t, err, ErrInvalidProof)

	paid, err := h.engine.ClaimAndSendToClaimee(testCampaign, alice, second[0].amounts, proofAt(t, secondTree, 0))
	require.NoError(t, err)
	require.Equal(t, int64(150), paid[0].Amount.Int64())
	require.Equal(t, int64(250), h.port.received(tokenA, alice).Int64())

	_, err = h.engine.ClaimAndSendToClaimee(testCampaign, alice, second[0].amounts, proofAt(t, secondTree, 0))
	require.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestClaimBelowPreviousClaimIsAlreadyClaimed(t *testing.T) {
	h := newHarness(t)
	alice := newTestAddress(0x01)
	first := []entitlement{{alice, amounts(tokenA, 100)}, {newTestAddress(0x02), amounts(tokenA, 1)}}
	firstTree := buildTree(t, first)
	require.NoError(t, h.engine.UpdateCampaign(testAdmin, testCampaign, firstTree.Root(), amounts(tokenA, 101)))
	_, err := h.engine.ClaimAndSendToClaimee(testCampaign, alice, first[0].amounts, proofAt(t, firstTree, 0))
	require.NoError(t, err)

	second := []entitlement{{alice, amounts(tokenA, 60)}, {newTestAddress(0x02), amounts(tokenA, 1)}}
	secondTree := buildTree(t, second)
	require.NoError(t, h.engine.UpdateCampaign(testAdmin, testCampaign, secondTree.Root(), amounts(tokenA, 101)))
	_, err = h.engine.ClaimAndSendToClaimee(testCampaign, alice, second[0].amounts, proofAt(t, secondTree, 0))
	require.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestShutdown(t *testing.T) {
	h := newHarness(t)
	alice := newTestAddress(0x01)
	entries := []entitlement{{alice, amounts(tokenA, 30, tokenB, 10)}, {newTestAddress(0x02), amounts(tokenA, 20)}}
	tree := buildTree(t, entries)
	require.NoError(t, h.engine.UpdateCampaign(testAdmin, testCampaign, tree.Root(), amounts(tokenA, 50, tokenB, 10)))
	_, err := h.engine.ClaimAndSendToClaimee(testCampaign, alice, entries[0].amounts, proofAt(t, tree, 0))
	require.NoError(t, err)

	treasury := newTestAddress(0xFE)
	_, err = h.engine.Shutdown(newTestAddress(0x09), testCampaign, []common.Address{tokenA}, treasury)
	require.ErrorIs(t, err, access.ErrMissingRole)
	_, err = h.engine.Shutdown(testAdmin, testCampaign, []common.Address{tokenA}, common.Address{})
	require.ErrorIs(t, err, ErrZeroAddress)

	pushes := h.port.pushes()
	unclaimed, err := h.engine.Shutdown(testAdmin, testCampaign, []common.Address{tokenA, tokenB}, treasury)
	require.NoError(t, err)
	require.Equal(t, int64(20), unclaimed[0].Amount.Int64())
	require.Zero(t, unclaimed[1].Amount.Sign())
	require.Equal(t, int64(20), h.port.received(tokenA, treasury).Int64())
	// tokenB was fully claimed: no transfer call for it.
	require.Equal(t, pushes+1, h.port.pushes())

	for _, token := range []common.Address{tokenA, tokenB} {
		dropped, _ := h.engine.TotalAirdropped(testCampaign, token)
		claimed, _ := h.engine.TotalClaimed(testCampaign, token)
		require.Zero(t, dropped.Sign())
		require.Zero(t, claimed.Sign())
	}
	c, _ := h.engine.Campaign(testCampaign)
	require.False(t, c.Active())
	require.Equal(t, uint64(1), c.Generation)

	evt, ok := h.emitter.last().(events.CampaignShutdown)
	require.True(t, ok)
	require.Equal(t, []common.Address{tokenA, tokenB}, evt.Tokens)
	require.Equal(t, "20", evt.Unclaimed[0].String())

	_, err = h.engine.ClaimAndSendToClaimee(testCampaign, alice, entries[0].amounts, proofAt(t, tree, 0))
	require.ErrorIs(t, err, ErrInvalidProof)
}

func TestReactivatedCampaignStartsFresh(t *testing.T) {
	h := newHarness(t)
	alice := newTestAddress(0x01)
	entries := []entitlement{{alice, amounts(tokenA, 30)}, {newTestAddress(0x02), amounts(tokenA, 20)}}
	tree := buildTree(t, entries)
	require.NoError(t, h.engine.UpdateCampaign(testAdmin, testCampaign, tree.Root(), amounts(tokenA, 50)))
	_, err := h.engine.ClaimAndSendToClaimee(testCampaign, alice, entries[0].amounts, proofAt(t, tree, 0))
	require.NoError(t, err)
	_, err = h.engine.Shutdown(testAdmin, testCampaign, []common.Address{tokenA}, testAdmin)
	require.NoError(t, err)

	require.NoError(t, h.engine.UpdateCampaign(testAdmin, testCampaign, tree.Root(), amounts(tokenA, 50)))
	claimed, _ := h.engine.AmountClaimed(testCampaign, tokenA, alice)
	require.Zero(t, claimed.Sign())
	paid, err := h.engine.ClaimAndSendToClaimee(testCampaign, alice, entries[0].amounts, proofAt(t, tree, 0))
	require.NoError(t, err)
	require.Equal(t, int64(30), paid[0].Amount.Int64())
}

func TestPartialShutdownKeepsUnlistedClaims(t *testing.T) {
	h := newHarness(t)
	alice, bob := newTestAddress(0x01), newTestAddress(0x02)
	entries := []entitlement{
		{alice, amounts(tokenA, 10, tokenB, 10)},
		{bob, amounts(tokenA, 10, tokenB, 90)},
	}
	tree := buildTree(t, entries)
	require.NoError(t, h.engine.UpdateCampaign(testAdmin, testCampaign, tree.Root(), amounts(tokenA, 20, tokenB, 100)))
	_, err := h.engine.ClaimAndSendToClaimee(testCampaign, alice, entries[0].amounts, proofAt(t, tree, 0))
	require.NoError(t, err)

	treasury := newTestAddress(0xFE)
	_, err = h.engine.Shutdown(testAdmin, testCampaign, []common.Address{tokenA}, treasury)
	require.NoError(t, err)
	require.NoError(t, h.engine.UpdateCampaign(testAdmin, testCampaign, tree.Root(), amounts(tokenA, 20)))

	// tokenA was swept so alice may collect it again; tokenB was not.
	claimedB, err := h.engine.AmountClaimed(testCampaign, tokenB, alice)
	require.NoError(t, err)
	require.Equal(t, int64(10), claimedB.Int64())
	claimedA, err := h.engine.AmountClaimed(testCampaign, tokenA, alice)
	require.NoError(t, err)
	require.Zero(t, claimedA.Sign())

	paid, err := h.engine.ClaimAndSendToClaimee(testCampaign, alice, entries[0].amounts, proofAt(t, tree, 0))
	require.NoError(t, err)
	require.Equal(t, int64(10), paid[0].Amount.Int64())
	require.Zero(t, paid[1].Amount.Sign())
	require.Equal(t, int64(10), h.port.received(tokenB, alice).Int64())

	paid, err = h.engine.ClaimAndSendToClaimee(testCampaign, bob, entries[1].amounts, proofAt(t, tree, 1))
	require.NoError(t, err)
	require.Equal(t, int64(90), paid[1].Amount.Int64())
	claimed, _ := h.engine.TotalClaimed(testCampaign, tokenB)
	require.Equal(t, int64(100), claimed.Int64())

	_, err = h.engine.ClaimAndSendToClaimee(testCampaign, alice, entries[0].amounts, proofAt(t, tree, 0))
	require.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestShutdownChecksRecipientFirst(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Shutdown(testAdmin, common.Hash{}, nil, common.Address{})
	require.ErrorIs(t, err, ErrZeroAddress)
	_, err = h.engine.Shutdown(testAdmin, common.Hash{}, nil, newTestAddress(0xFE))
	require.ErrorIs(t, err, ErrInvalidCampaign)
}

func TestTransferFailurePropagates(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("pull failed")
	h.port.fail = boom
	err := h.engine.UpdateCampaign(testAdmin, testCampaign, common.HexToHash("0x01"), amounts(tokenA, 10))
	require.ErrorIs(t, err, boom)
	require.Empty(t, h.emitter.events)
}

func TestLeafEncoding(t *testing.T) {
	claimant := newTestAddress(0x11)
	raw, err := LeafBytes(claimant, amounts(tokenA, 1, tokenB, 0x0203))
	require.NoError(t, err)
	require.Len(t, raw, 20+2*52)
	require.Equal(t, claimant.Bytes(), raw[:20])
	require.Equal(t, tokenA.Bytes(), raw[20:40])
	require.Equal(t, byte(1), raw[71])
	require.Equal(t, tokenB.Bytes(), raw[72:92])
	require.Equal(t, []byte{0x02, 0x03}, raw[122:124])

	// Order matters.
	swapped, err := LeafBytes(claimant, amounts(tokenB, 0x0203, tokenA, 1))
	require.NoError(t, err)
	require.NotEqual(t, raw, swapped)

	tooLarge := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err = LeafBytes(claimant, []TokenAmount{{Token: tokenA, Amount: tooLarge}})
	require.ErrorIs(t, err, ErrInvalidTokenAmount)
}
