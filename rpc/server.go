package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	maxBodyBytes = 1 << 20
	maxBatchSize = 64

	// TickHeader reports the tick every read in the response was evaluated at.
	TickHeader = "X-Procrasti-Tick"
)

// Server serves the Handler over HTTP. POST / takes a JSON-RPC 2.0 request
// or batch; GET /health reports chain id, height and tick without auth.
type Server struct {
	handler *Handler
	addr    string
	token   []byte // nil: no auth
	srv     *http.Server
	log     *zap.Logger
}

// NewServer creates a Server on addr. A non-empty authToken must be presented
// as "Authorization: Bearer <token>" on every RPC call.
func NewServer(addr string, handler *Handler, authToken string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{handler: handler, addr: addr, log: log.Named("rpc")}
	if authToken != "" {
		s.token = []byte(authToken)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.serveHealth)
	mux.HandleFunc("/", s.serveHTTP)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start binds addr and serves in the background. Bind errors are returned.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.log.Info("listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down, waiting up to 5 seconds for in-flight calls.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.token == nil {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), s.token) == 1
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "only GET allowed", http.StatusMethodNotAllowed)
		return
	}
	h := s.handler
	tick := h.bc.CurrentTick()
	w.Header().Set(TickHeader, strconv.FormatInt(tick, 10))
	writeJSON(w, map[string]any{
		"chain_id": h.chainID,
		"height":   h.bc.Height(),
		"tick":     tick,
		"pending":  h.mempool.Size(),
	})
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		s.log.Warn("rejected unauthorized call", zap.String("remote", r.RemoteAddr))
		writeJSON(w, errResponse(nil, CodeUnauthorized, "unauthorized"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, errResponse(nil, CodeParseError, err.Error()))
		return
	}
	w.Header().Set(TickHeader, strconv.FormatInt(s.handler.bc.CurrentTick(), 10))

	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		s.serveBatch(w, body)
		return
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, errResponse(nil, CodeParseError, err.Error()))
		return
	}
	writeJSON(w, s.dispatch(req))
}

func (s *Server) serveBatch(w http.ResponseWriter, body []byte) {
	var reqs []Request
	if err := json.Unmarshal(body, &reqs); err != nil {
		writeJSON(w, errResponse(nil, CodeParseError, err.Error()))
		return
	}
	switch {
	case len(reqs) == 0:
		writeJSON(w, errResponse(nil, CodeInvalidRequest, "empty batch"))
		return
	case len(reqs) > maxBatchSize:
		writeJSON(w, errResponse(nil, CodeInvalidRequest, "batch larger than "+strconv.Itoa(maxBatchSize)))
		return
	}
	resps := make([]Response, len(reqs))
	for i, req := range reqs {
		resps[i] = s.dispatch(req)
	}
	writeJSON(w, resps)
}

func (s *Server) dispatch(req Request) Response {
	if req.JSONRPC != "2.0" {
		return errResponse(req.ID, CodeInvalidRequest, "jsonrpc must be '2.0'")
	}
	resp := s.handler.Dispatch(req)
	if resp.Error == nil {
		return resp
	}
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.Int("code", resp.Error.Code),
	}
	if data, ok := resp.Error.Data.(map[string]string); ok {
		fields = append(fields, zap.String("symbol", data["symbol"]))
		s.log.Debug("protocol rejection", fields...)
		return resp
	}
	s.log.Info("request failed", append(fields, zap.String("message", resp.Error.Message))...)
	return resp
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
