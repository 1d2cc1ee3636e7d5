package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"merkledrop/crypto"
)

const defaultEnvelopeLifetime = 5 * time.Minute

// Client issues JSON-RPC calls against a merkledrop node.
type Client struct {
	endpoint   string
	httpClient *http.Client
	nowFn      func() time.Time
	lifetime   time.Duration
}

// NewClient targets endpoint, which may omit the /rpc path.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	trimmed := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if !strings.HasSuffix(trimmed, "/rpc") {
		trimmed += "/rpc"
	}
	return &Client{endpoint: trimmed, httpClient: httpClient, nowFn: time.Now, lifetime: defaultEnvelopeLifetime}
}

// Call invokes method with a single params object and decodes the result into
// out. JSON-RPC failures are returned as *RPCError.
func (c *Client) Call(ctx context.Context, method string, params interface{}, out interface{}) error {
	request := map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
		"params":  []interface{}{},
	}
	if params != nil {
		request["params"] = []interface{}{params}
	}
	body, err := json.Marshal(request)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("rpc: decode response (status %d): %w", resp.StatusCode, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

// CallSigned wraps payload in an envelope signed by key.
func (c *Client) CallSigned(ctx context.Context, key *crypto.PrivateKey, method string, payload interface{}, out interface{}) error {
	env, err := SignEnvelope(key, method, payload, c.nowFn().Add(c.lifetime).Unix())
	if err != nil {
		return err
	}
	return c.Call(ctx, method, env, out)
}
