package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/mezonai/quorumcoin/errors"
	"github.com/mezonai/quorumcoin/exception"
	"github.com/mezonai/quorumcoin/interfaces"
	"github.com/mezonai/quorumcoin/jsonx"
	"github.com/mezonai/quorumcoin/logx"
	"github.com/mezonai/quorumcoin/ratelimit"
	"github.com/mezonai/quorumcoin/types"
)

const maxRequestBody = 4 << 20

type Server struct {
	addr       string
	ledgerSvc  interfaces.LedgerService
	healthSvc  interfaces.HealthService
	corsConfig CORSConfig
	limiters   *ratelimit.Limiters
	httpServer *http.Server
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

func NewServer(addr string, ledgerSvc interfaces.LedgerService, healthSvc interfaces.HealthService) *Server {
	return &Server{
		addr:      addr,
		ledgerSvc: ledgerSvc,
		healthSvc: healthSvc,
	}
}

// SetCORSConfig allows configuring CORS settings
func (s *Server) SetCORSConfig(config CORSConfig) {
	s.corsConfig = config
}

// SetRateLimiters enables per-IP, per-account and global request limits
func (s *Server) SetRateLimiters(l *ratelimit.Limiters) {
	s.limiters = l
}

// Handler returns the HTTP handler serving JSON-RPC on every path
func (s *Server) Handler() http.Handler {
	bridge := jhttp.NewBridge(s.buildMethodMap(), &jhttp.BridgeOptions{Server: &jrpc2.ServerOptions{}})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		if s.limiters != nil && r.Method == http.MethodPost {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if stderrors.As(err, &tooLarge) {
					http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
					return
				}
				http.Error(w, "failed to read request", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			req := parseJSONRPCRequest(body)
			if err := s.limiters.Check(extractClientIPFromRequest(r), accountOf(req)); err != nil {
				logx.Warn("RPC", err.Error())
				writeRateLimited(w, req)
				return
			}
		}
		bridge.ServeHTTP(w, r)
	})
}

// Start listens on the configured address in the background
func (s *Server) Start() {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	exception.SafeGoWithPanic("jsonrpc-server", func() {
		logx.Info("RPC", "JSON-RPC listening on", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logx.Error("RPC", "JSON-RPC server stopped:", err.Error())
		}
	})
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if s.limiters != nil {
		s.limiters.Stop()
	}
	return s.httpServer.Shutdown(ctx)
}

// Build jrpc2 method map
func (s *Server) buildMethodMap() handler.Map {
	return handler.Map{
		MethodLedgerRegister: handler.New(func(ctx context.Context, p types.RegisterRequest) (*types.Envelope, error) {
			return reply(s.ledgerSvc.Register(ctx, &p))
		}),
		MethodLedgerSend: handler.New(func(ctx context.Context, p types.SendRequest) (*types.Envelope, error) {
			return reply(s.ledgerSvc.Send(ctx, &p))
		}),
		MethodLedgerReceive: handler.New(func(ctx context.Context, p types.ReceiveRequest) (*types.Envelope, error) {
			return reply(s.ledgerSvc.Receive(ctx, &p))
		}),
		MethodLedgerCheck: handler.New(func(ctx context.Context, p types.AccountRequest) (*types.Envelope, error) {
			return reply(s.ledgerSvc.Check(ctx, &p))
		}),
		MethodLedgerAudit: handler.New(func(ctx context.Context, p types.AccountRequest) (*types.Envelope, error) {
			return reply(s.ledgerSvc.Audit(ctx, &p))
		}),
		MethodLedgerJoin: handler.New(func(ctx context.Context, p types.JoinRequest) (*types.Envelope, error) {
			return reply(s.ledgerSvc.Join(ctx, &p))
		}),
		MethodHealthCheck: handler.New(func(ctx context.Context) (*types.Envelope, error) {
			return reply(s.healthSvc.Check(ctx))
		}),
	}
}

func reply(env *types.Envelope, err error) (*types.Envelope, error) {
	if err != nil {
		return nil, toJRPC2Error(err)
	}
	return env, nil
}

// toJRPC2Error maps a ledger error to a JSON-RPC error carrying the LedgerError as data
func toJRPC2Error(err error) error {
	var le *errors.LedgerError
	if !stderrors.As(err, &le) {
		switch {
		case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
			le = &errors.LedgerError{Code: errors.ErrCodeReplicaUnavailable, Message: err.Error()}
		default:
			le = errors.ErrInternal.(*errors.LedgerError)
		}
	}
	return jrpc2.Errorf(jrpc2.Code(errors.RPCCode(le.Code)), "%s", le.Message).WithData(le)
}

type rpcErrorObject struct {
	Code    int32               `json:"code"`
	Message string              `json:"message"`
	Data    *errors.LedgerError `json:"data,omitempty"`
}

type rpcErrorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   rpcErrorObject  `json:"error"`
}

// writeRateLimited answers in JSON-RPC form so clients decode the rate_limited code like any other error
func writeRateLimited(w http.ResponseWriter, req *jsonRPCRequest) {
	le := errors.ErrRateLimited.(*errors.LedgerError)
	resp := rpcErrorResponse{
		JSONRPC: "2.0",
		ID:      json.RawMessage("null"),
		Error:   rpcErrorObject{Code: errors.RPCCode(le.Code), Message: le.Message, Data: le},
	}
	if req != nil && len(req.ID) > 0 {
		resp.ID = req.ID
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := jsonx.NewEncoder(w).Encode(resp); err != nil {
		logx.Error("RPC", "failed to write rate limit response:", err.Error())
	}
}

// --- Helpers ---

func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsConfig.AllowedOrigins) > 0 {
		if s.corsConfig.AllowedOrigins[0] == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			origin := r.Header.Get("Origin")
			for _, allowedOrigin := range s.corsConfig.AllowedOrigins {
				if origin == allowedOrigin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
					break
				}
			}
		}
	}
	if len(s.corsConfig.AllowedMethods) > 0 {
		w.Header().Set("Access-Control-Allow-Methods", strings.Join(s.corsConfig.AllowedMethods, ", "))
	}
	if len(s.corsConfig.AllowedHeaders) > 0 {
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(s.corsConfig.AllowedHeaders, ", "))
	}
	if s.corsConfig.MaxAge > 0 {
		w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", s.corsConfig.MaxAge))
	}
}

// CORSFromEnv reads CORS_ALLOWED_ORIGINS, CORS_ALLOWED_METHODS, CORS_ALLOWED_HEADERS (comma
// separated) and CORS_MAX_AGE (seconds). ok is false when none is set.
func CORSFromEnv() (cfg CORSConfig, ok bool) {
	if v := os.Getenv("CORS_MAX_AGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxAge = n
		}
	}
	cfg.AllowedOrigins = splitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS"))
	cfg.AllowedMethods = splitAndTrim(os.Getenv("CORS_ALLOWED_METHODS"))
	cfg.AllowedHeaders = splitAndTrim(os.Getenv("CORS_ALLOWED_HEADERS"))

	ok = len(cfg.AllowedOrigins) > 0 || len(cfg.AllowedMethods) > 0 || len(cfg.AllowedHeaders) > 0 || cfg.MaxAge > 0
	if !ok {
		return CORSConfig{}, false
	}
	return cfg, true
}
