package rpc

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"merkledrop/crypto"
	"merkledrop/observability/logging"
)

// SignedEnvelope authenticates a mutating call. The signer is recovered from
// Signature and must equal From.
type SignedEnvelope struct {
	From      string          `json:"from"`
	Payload   json.RawMessage `json:"payload"`
	ExpiresAt int64           `json:"expiresAt"`
	Signature string          `json:"signature"`
}

// SigningDigest returns keccak256(method || compact(payload) || expiresAt).
// The payload is compacted so whitespace does not affect the signature.
func SigningDigest(method string, payload json.RawMessage, expiresAt int64) ([]byte, error) {
	var canonical bytes.Buffer
	if err := json.Compact(&canonical, payload); err != nil {
		return nil, fmt.Errorf("rpc: canonical payload: %w", err)
	}
	var expiry [8]byte
	binary.BigEndian.PutUint64(expiry[:], uint64(expiresAt))
	return ethcrypto.Keccak256([]byte(method), canonical.Bytes(), expiry[:]), nil
}

// SignEnvelope marshals payload and signs it for method with key.
func SignEnvelope(key *crypto.PrivateKey, method string, payload interface{}, expiresAt int64) (*SignedEnvelope, error) {
	if key == nil {
		return nil, fmt.Errorf("rpc: signing key required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	digest, err := SigningDigest(method, raw, expiresAt)
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(digest)
	if err != nil {
		return nil, err
	}
	return &SignedEnvelope{
		From:      crypto.FormatAddress(key.Address()),
		Payload:   raw,
		ExpiresAt: expiresAt,
		Signature: "0x" + hex.EncodeToString(sig),
	}, nil
}

// openEnvelope authenticates the single envelope parameter of req, decodes
// its payload into out and returns the signer. The digest is reserved on req
// and released by handle when the call fails, so a reverted envelope can be
// resubmitted unchanged.
func (s *Server) openEnvelope(req *RPCRequest, out interface{}) (common.Address, *ModuleError) {
	var env SignedEnvelope
	if modErr := singleParam(req, &env); modErr != nil {
		return common.Address{}, modErr
	}
	from, err := crypto.ParseAddress(env.From)
	if err != nil {
		return common.Address{}, invalidParams(fmt.Errorf("from: %w", err))
	}
	if len(bytes.TrimSpace(env.Payload)) == 0 {
		return common.Address{}, invalidParams("payload required")
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(env.Signature), "0x"))
	if err != nil {
		return common.Address{}, s.reject(req, &env, unauthorized("malformed signature"))
	}
	now := s.nowFn()
	if env.ExpiresAt <= now.Unix() {
		return common.Address{}, s.reject(req, &env, unauthorized("envelope expired"))
	}
	if env.ExpiresAt > now.Add(s.envelopeTTL).Unix() {
		return common.Address{}, s.reject(req, &env, unauthorized("envelope expiry too far in the future"))
	}
	digest, err := SigningDigest(req.Method, env.Payload, env.ExpiresAt)
	if err != nil {
		return common.Address{}, invalidParams(err)
	}
	signer, err := crypto.RecoverAddress(digest, sig)
	if err != nil {
		return common.Address{}, s.reject(req, &env, unauthorized(err.Error()))
	}
	if signer != from {
		return common.Address{}, s.reject(req, &env, unauthorized("signature does not match from"))
	}
	key := hex.EncodeToString(digest)
	if !s.markSeen(key, now) {
		return common.Address{}, s.reject(req, &env, &ModuleError{HTTPStatus: http.StatusConflict, Code: codeDuplicateTx, Message: "duplicate envelope"})
	}
	req.digest = key
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return common.Address{}, invalidParams(err)
	}
	return from, nil
}

// markSeen records digest and reports whether it was new. Entries are kept
// for the envelope TTL, which bounds every accepted expiry.
func (s *Server) markSeen(digest string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, seen := range s.txSeen {
		if now.Sub(seen) > s.envelopeTTL {
			delete(s.txSeen, key)
		}
	}
	if _, ok := s.txSeen[digest]; ok {
		return false
	}
	s.txSeen[digest] = now
	return true
}

// forget releases a digest reserved by a call that did not commit.
func (s *Server) forget(digest string) {
	s.mu.Lock()
	delete(s.txSeen, digest)
	s.mu.Unlock()
}

func (s *Server) reject(req *RPCRequest, env *SignedEnvelope, modErr *ModuleError) *ModuleError {
	s.logger.Warn("envelope rejected",
		slog.String("method", req.Method),
		logging.MaskField("from", env.From),
		logging.MaskField("signature", env.Signature),
		slog.Any("reason", modErr.Data))
	return modErr
}

func unauthorized(message string) *ModuleError {
	return &ModuleError{HTTPStatus: http.StatusUnauthorized, Code: codeUnauthorized, Message: "unauthorized", Data: message}
}
