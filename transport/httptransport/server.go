// Package httptransport is a reference Transport implementation for
// exercising the client against a real network boundary: a chi-routed
// mock host server with rate limiting, and a client-side Transport that
// speaks HTTP for unary/batch calls and a WebSocket for subscriptions.
package httptransport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/rpckit"
)

// CallHandler serves one registered path's unary call.
type CallHandler func(r *http.Request, input any) (any, error)

// SubscribeHandler serves one registered path's subscription: it streams
// events onto send until ctx is done, then returns.
type SubscribeHandler func(r *http.Request, input any, send func(rpckit.Event) error) error

// ServerConfig configures rate limiting and handler registration.
type ServerConfig struct {
	RateLimitRequests int           // requests per window per key; 0 disables limiting
	RateLimitWindow   time.Duration
	Upgrader          websocket.Upgrader
}

// Server is a mock RPC host: POST /call, POST /batch, GET /subscribe (ws).
type Server struct {
	cfg      ServerConfig
	calls    map[string]CallHandler
	subs     map[string]SubscribeHandler
	batch    func(*http.Request, []wireBatchRequest) (*wireBatchResponse, error)
	router   chi.Router
}

type wireCallRequest struct {
	Path  string `json:"path"`
	Input any    `json:"input"`
}

type wireErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type wireBatchRequest struct {
	ID    string `json:"id"`
	Path  string `json:"path"`
	Input any    `json:"input"`
}

type wireBatchResult struct {
	ID    string         `json:"id"`
	Data  any            `json:"data,omitempty"`
	Error *wireErrorBody `json:"error,omitempty"`
}

type wireBatchResponse struct {
	Results []wireBatchResult `json:"results"`
}

// NewServer builds a Server with empty handler tables; register each path
// with RegisterCall/RegisterSubscribe before mounting Handler().
func NewServer(cfg ServerConfig) *Server {
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	return &Server{
		cfg:   cfg,
		calls: make(map[string]CallHandler),
		subs:  make(map[string]SubscribeHandler),
	}
}

func (s *Server) RegisterCall(path string, h CallHandler)             { s.calls[path] = h }
func (s *Server) RegisterSubscribe(path string, h SubscribeHandler)   { s.subs[path] = h }
func (s *Server) RegisterBatch(h func(*http.Request, []wireBatchRequest) (*wireBatchResponse, error)) {
	s.batch = h
}

// Handler builds the chi router, applying rate limiting the way the
// reference API layer wraps its data endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)

	if s.cfg.RateLimitRequests > 0 {
		r.Use(httprate.Limit(s.cfg.RateLimitRequests, s.cfg.RateLimitWindow, httprate.WithKeyFuncs(httprate.KeyByIP)))
	}

	r.Post("/call", s.handleCall)
	r.Post("/batch", s.handleBatch)
	r.Get("/subscribe", s.handleSubscribe)

	s.router = r
	return r
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req wireCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, wireErrorBody{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}
	h, ok := s.calls[req.Path]
	if !ok {
		writeError(w, http.StatusNotFound, wireErrorBody{Code: "NOT_FOUND", Message: "no handler for " + req.Path})
		return
	}
	result, err := h(r, req.Input)
	if err != nil {
		writeError(w, http.StatusOK, errorToWire(err))
		return
	}
	_ = json.NewEncoder(w).Encode(result)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Requests []wireBatchRequest `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, wireErrorBody{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}
	if s.batch == nil {
		writeError(w, http.StatusNotImplemented, wireErrorBody{Code: "NOT_IMPLEMENTED", Message: "no native batch handler"})
		return
	}
	resp, err := s.batch(r, req.Requests)
	if err != nil {
		writeError(w, http.StatusOK, errorToWire(err))
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	h, ok := s.subs[path]
	if !ok {
		writeError(w, http.StatusNotFound, wireErrorBody{Code: "NOT_FOUND", Message: "no subscription handler for " + path})
		return
	}
	var input any
	if raw := r.URL.Query().Get("input"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &input)
	}

	upgrader := s.cfg.Upgrader
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	send := func(ev rpckit.Event) error {
		switch ev.Kind {
		case rpckit.EventError:
			msg := wireErrorBody{Code: "STREAM_ERROR", Message: ev.Err.Error()}
			return conn.WriteJSON(map[string]any{"kind": "error", "error": msg})
		case rpckit.EventCompleted:
			return conn.WriteJSON(map[string]any{"kind": "completed"})
		default:
			return conn.WriteJSON(map[string]any{"kind": "data", "payload": ev.Payload})
		}
	}
	_ = h(r, input, send)
}

func errorToWire(err error) wireErrorBody {
	return wireErrorBody{Code: "UNKNOWN", Message: err.Error()}
}

func writeError(w http.ResponseWriter, status int, body wireErrorBody) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": body.Code, "message": body.Message, "details": body.Details})
}
