package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"merkledrop/core"
	"merkledrop/indexer"
	"merkledrop/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	txSeenTTL       = 15 * time.Minute
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeDuplicateTx    = -32010
	codeRateLimited    = -32020
)

// Config tunes the RPC server.
type Config struct {
	RequestsPerMinute float64
	Burst             int
	// EnvelopeTTL bounds how far in the future a signed envelope may expire.
	EnvelopeTTL time.Duration
	Logger      *slog.Logger
}

type eventLister interface {
	List(ctx context.Context, q indexer.Query) ([]indexer.EventRecord, error)
}

type methodHandler func(ctx context.Context, req *RPCRequest) (interface{}, *ModuleError)

type Server struct {
	node    *core.Node
	events  eventLister
	logger  *slog.Logger
	limiter *rateLimiter

	mu          sync.Mutex
	txSeen      map[string]time.Time
	envelopeTTL time.Duration
	nowFn       func() time.Time

	methods map[string]methodHandler
}

// NewServer builds a JSON-RPC server for node. events may be nil, in which
// case events_list reports the indexer as unavailable.
func NewServer(node *core.Node, events eventLister, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.EnvelopeTTL
	if ttl <= 0 {
		ttl = txSeenTTL
	}
	s := &Server{
		node:        node,
		events:      events,
		logger:      logger,
		limiter:     newRateLimiter(cfg.RequestsPerMinute, cfg.Burst),
		txSeen:      make(map[string]time.Time),
		envelopeTTL: ttl,
		nowFn:       time.Now,
	}
	s.methods = map[string]methodHandler{
		"tranche_create":         s.handleTrancheCreate,
		"tranche_claim":          s.handleTrancheClaim,
		"tranche_claimFor":       s.handleTrancheClaimFor,
		"tranche_close":          s.handleTrancheClose,
		"tranche_get":            s.handleTrancheGet,
		"tranche_isClaimed":      s.handleTrancheIsClaimed,
		"campaign_update":        s.handleCampaignUpdate,
		"campaign_claim":         s.handleCampaignClaim,
		"campaign_claimFor":      s.handleCampaignClaimFor,
		"campaign_shutdown":      s.handleCampaignShutdown,
		"campaign_get":           s.handleCampaignGet,
		"campaign_amountClaimed": s.handleCampaignAmountClaimed,
		"access_grantRole":       s.handleAccessGrantRole,
		"access_revokeRole":      s.handleAccessRevokeRole,
		"access_renounceRole":    s.handleAccessRenounceRole,
		"access_hasRole":         s.handleAccessHasRole,
		"access_roleAdmin":       s.handleAccessRoleAdmin,
		"bank_balance":           s.handleBankBalance,
		"events_list":            s.handleEventsList,
		"node_info":              s.handleNodeInfo,
	}
	return s
}

// Handler returns the HTTP surface: POST /rpc, GET /healthz and GET /metrics.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.With(s.limiter.middleware).Post("/rpc", s.handle)
	return otelhttp.NewHandler(r, "merkledrop-rpc")
}

// Serve listens on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("json-rpc server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("rpc: shutdown: %w", err)
		}
		return nil
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`

	// digest is the envelope digest reserved while the call runs.
	digest string
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (%v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ModuleError is a handler failure with its HTTP status.
type ModuleError struct {
	HTTPStatus int
	Code       int
	Message    string
	Data       interface{}
}

func (e *ModuleError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidParams(data interface{}) *ModuleError {
	if err, ok := data.(error); ok {
		data = err.Error()
	}
	return &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: "invalid_params", Data: data}
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	handler, ok := s.methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %s not found", req.Method), nil)
		return
	}

	module := moduleOf(req.Method)
	started := time.Now()
	result, modErr := handler(r.Context(), req)
	code := 0
	if modErr != nil {
		code = modErr.Code
	}
	observability.ModuleMetrics().Observe(module, req.Method, code, time.Since(started))
	if modErr != nil {
		if req.digest != "" {
			s.forget(req.digest)
		}
		if modErr.HTTPStatus >= http.StatusInternalServerError {
			s.logger.Error("rpc call failed", "method", req.Method, "error", modErr.Message)
		}
		writeError(w, modErr.HTTPStatus, req.ID, modErr.Code, modErr.Message, modErr.Data)
		return
	}
	writeResult(w, req.ID, result)
}

func moduleOf(method string) string {
	if idx := strings.IndexByte(method, '_'); idx > 0 {
		return method[:idx]
	}
	return method
}

// singleParam decodes the sole positional parameter into out.
func singleParam(req *RPCRequest, out interface{}) *ModuleError {
	if len(req.Params) != 1 {
		return invalidParams("exactly one parameter object expected")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return invalidParams(err)
	}
	return nil
}
