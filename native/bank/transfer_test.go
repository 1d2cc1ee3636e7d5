package bank

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"merkledrop/core/events"
)

type mockState struct {
	balances map[common.Address]map[common.Address]*big.Int
}

func newMockState() *mockState {
	return &mockState{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

func (m *mockState) Balance(token, owner common.Address) (*big.Int, error) {
	if bal, ok := m.balances[token][owner]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) SetBalance(token, owner common.Address, amount *big.Int) error {
	if m.balances[token] == nil {
		m.balances[token] = make(map[common.Address]*big.Int)
	}
	m.balances[token][owner] = new(big.Int).Set(amount)
	return nil
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

var (
	testToken = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testUser  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func newTestLedger(t *testing.T) (*Ledger, *capturingEmitter) {
	t.Helper()
	ledger := NewLedger("tranche")
	ledger.SetState(newMockState())
	emitter := &capturingEmitter{}
	ledger.SetEmitter(emitter)
	require.NoError(t, ledger.Credit(testToken, testUser, big.NewInt(100)))
	return ledger, emitter
}

func TestVaultAddressIsDeterministic(t *testing.T) {
	require.Equal(t, VaultAddress("tranche"), VaultAddress("tranche"))
	require.NotEqual(t, VaultAddress("tranche"), VaultAddress("campaign"))
	require.Equal(t, VaultAddress("tranche"), NewLedger("tranche").Vault())
}

func TestPullAndPush(t *testing.T) {
	ledger, emitter := newTestLedger(t)

	require.NoError(t, ledger.Pull(testToken, testUser, big.NewInt(60)))
	bal, err := ledger.BalanceOf(testToken, testUser)
	require.NoError(t, err)
	require.Equal(t, int64(40), bal.Int64())
	vault, err := ledger.BalanceOf(testToken, ledger.Vault())
	require.NoError(t, err)
	require.Equal(t, int64(60), vault.Int64())

	recipient := common.HexToAddress("0xcc")
	require.NoError(t, ledger.Push(testToken, recipient, big.NewInt(25)))
	got, err := ledger.BalanceOf(testToken, recipient)
	require.NoError(t, err)
	require.Equal(t, int64(25), got.Int64())

	require.Len(t, emitter.events, 3)
	last := emitter.events[2].(events.Transfer)
	require.Equal(t, ledger.Vault(), last.From)
	require.Equal(t, recipient, last.To)
}

func TestInsufficientBalance(t *testing.T) {
	ledger, _ := newTestLedger(t)
	err := ledger.Pull(testToken, testUser, big.NewInt(101))
	require.True(t, errors.Is(err, ErrInsufficientBalance))

	err = ledger.Push(testToken, testUser, big.NewInt(1))
	require.True(t, errors.Is(err, ErrInsufficientBalance), "empty vault cannot pay out")
}

func TestZeroAmountIsNoop(t *testing.T) {
	ledger, emitter := newTestLedger(t)
	emitter.events = nil
	require.NoError(t, ledger.Push(testToken, testUser, big.NewInt(0)))
	require.Empty(t, emitter.events)
}

func TestInvalidArguments(t *testing.T) {
	ledger, _ := newTestLedger(t)
	require.ErrorIs(t, ledger.Pull(testToken, testUser, big.NewInt(-1)), ErrInvalidAmount)
	require.ErrorIs(t, ledger.Pull(testToken, testUser, nil), ErrInvalidAmount)
	require.ErrorIs(t, ledger.Push(common.Address{}, testUser, big.NewInt(1)), ErrZeroAddress)
	require.ErrorIs(t, ledger.Credit(testToken, testUser, big.NewInt(0)), ErrInvalidAmount)

	unwired := NewLedger("x")
	_, err := unwired.BalanceOf(testToken, testUser)
	require.Error(t, err)
}
