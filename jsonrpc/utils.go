package jsonrpc

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/mezonai/quorumcoin/jsonx"
	"github.com/mezonai/quorumcoin/logx"
)

// JSON-RPC Method name constants
const (
	// Ledger methods
	MethodLedgerRegister = "ledger.register"
	MethodLedgerSend     = "ledger.send"
	MethodLedgerReceive  = "ledger.receive"
	MethodLedgerCheck    = "ledger.check"
	MethodLedgerAudit    = "ledger.audit"
	MethodLedgerJoin     = "ledger.join"

	// Health methods
	MethodHealthCheck = "health.check"
)

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// accountHint holds the param fields that name the account a request acts for
type accountHint struct {
	KeyHash    string `json:"key_hash"`
	SourceHash string `json:"source_hash"`
	PublicKey  string `json:"public_key"`
}

func parseJSONRPCRequest(body []byte) *jsonRPCRequest {
	var req jsonRPCRequest
	if err := jsonx.Unmarshal(body, &req); err != nil {
		return nil
	}
	return &req
}

// accountOf returns the account a single request acts for, or "" when none can be told
func accountOf(req *jsonRPCRequest) string {
	if req == nil || len(req.Params) == 0 {
		return ""
	}
	var hint accountHint
	if err := jsonx.Unmarshal(req.Params, &hint); err != nil {
		return ""
	}
	switch {
	case hint.SourceHash != "":
		return hint.SourceHash
	case hint.KeyHash != "":
		return hint.KeyHash
	default:
		return hint.PublicKey
	}
}

func extractClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		logx.Debug("RPC", "X-Forwarded-For:", xff)
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && net.ParseIP(host) != nil {
		return host
	}
	return "unknown"
}

func splitAndTrim(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
