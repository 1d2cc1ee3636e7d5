package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"merkledrop/core"
	"merkledrop/crypto"
	"merkledrop/crypto/merkle"
	"merkledrop/indexer"
	"merkledrop/native/campaign"
	"merkledrop/native/tranche"
	"merkledrop/storage"
)

var dropToken = common.HexToAddress("0x00000000000000000000000000000000000000d0")

type testEnv struct {
	server   *httptest.Server
	client   *Client
	node     *core.Node
	store    *indexer.Store
	governor *crypto.PrivateKey
	admin    *crypto.PrivateKey
	outsider *crypto.PrivateKey
}

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	env := &testEnv{governor: mustKey(t), admin: mustKey(t), outsider: mustKey(t)}
	node, err := core.NewNode(storage.NewMemDB(), core.Options{
		Governor:       env.governor.Address(),
		ClaimableToken: dropToken,
		SuperAdmin:     env.governor.Address(),
		Admins:         []common.Address{env.admin.Address()},
		Clock:          core.NewManualClock(time.Now().Unix()),
		Genesis: []core.GenesisBalance{
			{Token: dropToken, Owner: env.governor.Address(), Amount: big.NewInt(1_000_000)},
			{Token: dropToken, Owner: env.admin.Address(), Amount: big.NewInt(1_000_000)},
		},
	})
	require.NoError(t, err)
	env.node = node

	db, err := indexer.Open(indexer.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	env.store, err = indexer.NewStore(db, nil)
	require.NoError(t, err)
	node.Subscribe(env.store)

	env.server = httptest.NewServer(NewServer(node, env.store, cfg).Handler())
	t.Cleanup(env.server.Close)
	env.client = NewClient(env.server.URL, env.server.Client())
	return env
}

func requireRPCCode(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr), "expected RPC error, got %v", err)
	require.Equal(t, code, rpcErr.Code, rpcErr.Error())
}

func trancheTree(t *testing.T, claimants []common.Address, amounts []int64) (*merkle.Tree, []common.Hash) {
	t.Helper()
	leaves := make([]common.Hash, len(claimants))
	for i, claimant := range claimants {
		leaf, err := tranche.Leaf(claimant, big.NewInt(amounts[i]))
		require.NoError(t, err)
		leaves[i] = leaf
	}
	tree, err := merkle.NewTree(leaves)
	require.NoError(t, err)
	return tree, leaves
}

func hexProof(proof []common.Hash) []string {
	out := make([]string, len(proof))
	for i, p := range proof {
		out[i] = p.Hex()
	}
	return out
}

func TestTrancheLifecycleOverRPC(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	alice, bob, carol := mustKey(t), mustKey(t), mustKey(t)
	claimants := []common.Address{alice.Address(), bob.Address(), carol.Address()}
	tree, _ := trancheTree(t, claimants, []int64{100, 200, 300})

	var created trancheJSON
	require.NoError(t, env.client.CallSigned(ctx, env.governor, "tranche_create", map[string]interface{}{
		"root":     tree.Root().Hex(),
		"amount":   "600",
		"deadline": time.Now().Add(time.Hour).Unix(),
	}, &created))
	require.True(t, created.Exists)
	require.Equal(t, "600", created.ClaimableAmount)

	proof, err := tree.ProofAt(1)
	require.NoError(t, err)
	claim := map[string]interface{}{
		"root":     tree.Root().Hex(),
		"claimant": crypto.FormatAddress(bob.Address()),
		"amount":   "200",
		"proof":    hexProof(proof),
	}
	// Any signer may relay a claim to the claimant.
	require.NoError(t, env.client.CallSigned(ctx, env.outsider, "tranche_claim", claim, nil))

	var status claimedResult
	require.NoError(t, env.client.Call(ctx, "tranche_isClaimed", map[string]string{
		"root":     tree.Root().Hex(),
		"claimant": bob.Address().Hex(),
	}, &status))
	require.True(t, status.Claimed)

	var balance amountResult
	require.NoError(t, env.client.Call(ctx, "bank_balance", map[string]string{
		"token": dropToken.Hex(),
		"owner": crypto.FormatAddress(bob.Address()),
	}, &balance))
	require.Equal(t, "200", balance.Amount)

	err = env.client.CallSigned(ctx, alice, "tranche_claim", claim, nil)
	requireRPCCode(t, err, codeAirdropConflict)

	carolProof, err := tree.ProofAt(2)
	require.NoError(t, err)
	var fetched trancheJSON
	require.NoError(t, env.client.CallSigned(ctx, carol, "tranche_claimFor", map[string]interface{}{
		"root":      tree.Root().Hex(),
		"amount":    "300",
		"recipient": crypto.FormatAddress(alice.Address()),
		"proof":     hexProof(carolProof),
	}, nil))
	require.NoError(t, env.client.Call(ctx, "tranche_get", map[string]string{"root": tree.Root().Hex()}, &fetched))
	require.Equal(t, "500", fetched.ClaimedAmount)
	require.Equal(t, "100", fetched.Unclaimed)

	err = env.client.CallSigned(ctx, env.governor, "tranche_close", map[string]string{
		"root":      tree.Root().Hex(),
		"recipient": env.governor.Address().Hex(),
	}, nil)
	requireRPCCode(t, err, codeAirdropConflict)

	var records []eventJSON
	require.NoError(t, env.client.Call(ctx, "events_list", map[string]interface{}{"type": "tranche.claimed"}, &records))
	require.Len(t, records, 2)
	require.Equal(t, tree.Root().Hex(), records[0].Subject)
}

func TestTrancheCreateRequiresGovernor(t *testing.T) {
	env := newTestEnv(t, Config{})
	err := env.client.CallSigned(context.Background(), env.outsider, "tranche_create", map[string]interface{}{
		"root":   common.HexToHash("0x01").Hex(),
		"amount": "10",
	}, nil)
	requireRPCCode(t, err, codeAirdropForbidden)

	err = env.client.CallSigned(context.Background(), env.governor, "tranche_create", map[string]interface{}{
		"root":   common.HexToHash("0x01").Hex(),
		"amount": "abc",
	}, nil)
	requireRPCCode(t, err, codeInvalidParams)
}

func TestCampaignFlowOverRPC(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	claimant := mustKey(t)
	id := common.HexToHash("0xca")

	entitlement := []campaign.TokenAmount{{Token: dropToken, Amount: big.NewInt(70)}}
	leaf, err := campaign.Leaf(claimant.Address(), entitlement)
	require.NoError(t, err)
	other, err := campaign.Leaf(env.outsider.Address(), []campaign.TokenAmount{{Token: dropToken, Amount: big.NewInt(30)}})
	require.NoError(t, err)
	tree, err := merkle.NewTree([]common.Hash{leaf, other})
	require.NoError(t, err)

	update := map[string]interface{}{
		"campaign":    id.Hex(),
		"root":        tree.Root().Hex(),
		"allocations": []map[string]string{{"token": dropToken.Hex(), "amount": "100"}},
	}
	err = env.client.CallSigned(ctx, env.outsider, "campaign_update", update, nil)
	requireRPCCode(t, err, codeAirdropForbidden)
	require.NoError(t, env.client.CallSigned(ctx, env.admin, "campaign_update", update, nil))

	proof, err := tree.Proof(leaf)
	require.NoError(t, err)
	var payout campaignPayoutResult
	require.NoError(t, env.client.CallSigned(ctx, claimant, "campaign_claim", map[string]interface{}{
		"campaign": id.Hex(),
		"claimant": claimant.Address().Hex(),
		"amounts":  []map[string]string{{"token": dropToken.Hex(), "amount": "70"}},
		"proof":    hexProof(proof),
	}, &payout))
	require.Len(t, payout.Transfers, 1)
	require.Equal(t, "70", payout.Transfers[0].Amount)

	var summary campaignJSON
	require.NoError(t, env.client.Call(ctx, "campaign_get", map[string]string{"campaign": id.Hex()}, &summary))
	require.True(t, summary.Active)
	require.Len(t, summary.Totals, 1)
	require.Equal(t, "100", summary.Totals[0].Airdropped)
	require.Equal(t, "70", summary.Totals[0].Claimed)

	var claimed amountResult
	require.NoError(t, env.client.Call(ctx, "campaign_amountClaimed", map[string]string{
		"campaign": id.Hex(),
		"token":    dropToken.Hex(),
		"claimant": claimant.Address().Hex(),
	}, &claimed))
	require.Equal(t, "70", claimed.Amount)

	var unclaimed campaignPayoutResult
	require.NoError(t, env.client.CallSigned(ctx, env.admin, "campaign_shutdown", map[string]interface{}{
		"campaign":  id.Hex(),
		"tokens":    []string{dropToken.Hex()},
		"recipient": env.admin.Address().Hex(),
	}, &unclaimed))
	require.Len(t, unclaimed.Transfers, 1)
	require.Equal(t, "30", unclaimed.Transfers[0].Amount)
}

func TestRoleManagementOverRPC(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	newcomer := mustKey(t)

	grant := map[string]string{"role": "ADMIN_ROLE", "account": newcomer.Address().Hex()}
	err := env.client.CallSigned(ctx, env.admin, "access_grantRole", grant, nil)
	requireRPCCode(t, err, codeAirdropForbidden)
	require.NoError(t, env.client.CallSigned(ctx, env.governor, "access_grantRole", grant, nil))

	var has hasRoleResult
	require.NoError(t, env.client.Call(ctx, "access_hasRole", grant, &has))
	require.True(t, has.HasRole)

	require.NoError(t, env.client.CallSigned(ctx, newcomer, "access_renounceRole", map[string]string{"role": "ADMIN_ROLE"}, nil))
	require.NoError(t, env.client.Call(ctx, "access_hasRole", grant, &has))
	require.False(t, has.HasRole)

	var admin roleAdminResult
	require.NoError(t, env.client.Call(ctx, "access_roleAdmin", map[string]string{"role": "ADMIN_ROLE"}, &admin))
	require.Equal(t, common.Hash{}.Hex(), admin.Admin)
}

func postRaw(t *testing.T, url string, body []byte) (int, RPCResponse) {
	t.Helper()
	resp, err := http.Post(url+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func signedRequest(t *testing.T, env *SignedEnvelope, method string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      7,
		"method":  method,
		"params":  []interface{}{env},
	})
	require.NoError(t, err)
	return body
}

func TestEnvelopeAuthentication(t *testing.T) {
	env := newTestEnv(t, Config{})
	payload := map[string]string{"role": "ADMIN_ROLE", "account": env.outsider.Address().Hex()}
	expiry := time.Now().Add(time.Minute).Unix()

	t.Run("from mismatch", func(t *testing.T) {
		envelope, err := SignEnvelope(env.outsider, "access_grantRole", payload, expiry)
		require.NoError(t, err)
		envelope.From = crypto.FormatAddress(env.governor.Address())
		status, resp := postRaw(t, env.server.URL, signedRequest(t, envelope, "access_grantRole"))
		require.Equal(t, http.StatusUnauthorized, status)
		require.Equal(t, codeUnauthorized, resp.Error.Code)
	})

	t.Run("signed for another method", func(t *testing.T) {
		envelope, err := SignEnvelope(env.governor, "access_revokeRole", payload, expiry)
		require.NoError(t, err)
		status, resp := postRaw(t, env.server.URL, signedRequest(t, envelope, "access_grantRole"))
		require.Equal(t, http.StatusUnauthorized, status)
		require.Equal(t, codeUnauthorized, resp.Error.Code)
	})

	t.Run("expired", func(t *testing.T) {
		envelope, err := SignEnvelope(env.governor, "access_grantRole", payload, time.Now().Add(-time.Minute).Unix())
		require.NoError(t, err)
		status, _ := postRaw(t, env.server.URL, signedRequest(t, envelope, "access_grantRole"))
		require.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("expiry beyond ttl", func(t *testing.T) {
		envelope, err := SignEnvelope(env.governor, "access_grantRole", payload, time.Now().Add(24*time.Hour).Unix())
		require.NoError(t, err)
		status, _ := postRaw(t, env.server.URL, signedRequest(t, envelope, "access_grantRole"))
		require.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("replay", func(t *testing.T) {
		envelope, err := SignEnvelope(env.governor, "access_grantRole", payload, expiry)
		require.NoError(t, err)
		status, resp := postRaw(t, env.server.URL, signedRequest(t, envelope, "access_grantRole"))
		require.Equal(t, http.StatusOK, status)
		require.Nil(t, resp.Error)
		status, resp = postRaw(t, env.server.URL, signedRequest(t, envelope, "access_grantRole"))
		require.Equal(t, http.StatusConflict, status)
		require.Equal(t, codeDuplicateTx, resp.Error.Code)
	})

	t.Run("whitespace does not change digest", func(t *testing.T) {
		compact, err := SigningDigest("m", json.RawMessage(`{"a":1,"b":[1,2]}`), expiry)
		require.NoError(t, err)
		spaced, err := SigningDigest("m", json.RawMessage("{ \"a\": 1,\n \"b\": [1, 2] }"), expiry)
		require.NoError(t, err)
		require.Equal(t, compact, spaced)
	})
}

func TestRevertedEnvelopeCanBeResubmitted(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	alice, bob := mustKey(t), mustKey(t)
	tree, _ := trancheTree(t, []common.Address{alice.Address(), bob.Address()}, []int64{40, 60})
	proof, err := tree.ProofAt(0)
	require.NoError(t, err)

	claim, err := SignEnvelope(alice, "tranche_claim", map[string]interface{}{
		"root":     tree.Root().Hex(),
		"claimant": alice.Address().Hex(),
		"amount":   "40",
		"proof":    hexProof(proof),
	}, time.Now().Add(time.Minute).Unix())
	require.NoError(t, err)

	// The tranche is not funded yet, so the claim reverts.
	status, resp := postRaw(t, env.server.URL, signedRequest(t, claim, "tranche_claim"))
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeAirdropConflict, resp.Error.Code)

	require.NoError(t, env.client.CallSigned(ctx, env.governor, "tranche_create", map[string]interface{}{
		"root":     tree.Root().Hex(),
		"amount":   "100",
		"deadline": time.Now().Add(time.Hour).Unix(),
	}, nil))

	status, resp = postRaw(t, env.server.URL, signedRequest(t, claim, "tranche_claim"))
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	status, resp = postRaw(t, env.server.URL, signedRequest(t, claim, "tranche_claim"))
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeDuplicateTx, resp.Error.Code)
}

func TestRejectedEnvelopeLogIsMasked(t *testing.T) {
	var buf bytes.Buffer
	env := newTestEnv(t, Config{Logger: slog.New(slog.NewJSONHandler(&buf, nil))})
	envelope, err := SignEnvelope(env.outsider, "access_grantRole", map[string]string{
		"role":    "ADMIN_ROLE",
		"account": env.outsider.Address().Hex(),
	}, time.Now().Add(time.Minute).Unix())
	require.NoError(t, err)
	envelope.From = crypto.FormatAddress(env.governor.Address())

	status, _ := postRaw(t, env.server.URL, signedRequest(t, envelope, "access_grantRole"))
	require.Equal(t, http.StatusUnauthorized, status)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "envelope rejected", line["msg"])
	require.Equal(t, "access_grantRole", line["method"])
	require.NotContains(t, buf.String(), envelope.Signature)
	require.NotContains(t, buf.String(), envelope.From)
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t, Config{})

	status, resp := postRaw(t, env.server.URL, []byte(`{"jsonrpc":"2.0","id":1,"method":"nope","params":[]}`))
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)

	status, resp = postRaw(t, env.server.URL, []byte(`{not json`))
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeParseError, resp.Error.Code)

	status, resp = postRaw(t, env.server.URL, []byte(`{"jsonrpc":"1.0","id":1,"method":"node_info"}`))
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidRequest, resp.Error.Code)

	status, resp = postRaw(t, env.server.URL, []byte(`{"jsonrpc":"2.0","id":1,"method":"tranche_get","params":[]}`))
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	var info nodeInfoResult
	require.NoError(t, env.client.Call(context.Background(), "node_info", nil, &info))
	require.Equal(t, crypto.FormatAddress(env.governor.Address()), info.Governor)
	require.Equal(t, crypto.FormatAddress(env.node.TrancheVault()), info.TrancheVault)

	health, err := http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	require.Equal(t, http.StatusOK, health.StatusCode)
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	env := newTestEnv(t, Config{RequestsPerMinute: 1, Burst: 1})
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"node_info","params":[]}`)

	status, _ := postRaw(t, env.server.URL, body)
	require.Equal(t, http.StatusOK, status)
	status, resp := postRaw(t, env.server.URL, body)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, codeRateLimited, resp.Error.Code)
}

func TestEventsListWithoutIndexer(t *testing.T) {
	env := newTestEnv(t, Config{})
	server := httptest.NewServer(NewServer(env.node, nil, Config{}).Handler())
	defer server.Close()
	err := NewClient(server.URL, server.Client()).Call(context.Background(), "events_list", nil, nil)
	requireRPCCode(t, err, codeAirdropUnavailable)
}

func TestParseRole(t *testing.T) {
	role, err := parseRole("default_admin_role")
	require.NoError(t, err)
	require.Equal(t, common.Hash{}, role)
	_, err = parseRole("0x1234")
	require.Error(t, err)
	full := common.HexToHash("0xabcdef")
	role, err = parseRole(full.Hex())
	require.NoError(t, err)
	require.Equal(t, full, role)
}
