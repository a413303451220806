package api

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coinhunt/roomengine/internal/engine"
	"github.com/coinhunt/roomengine/internal/parser"
	"github.com/coinhunt/roomengine/pkg/core"
	"github.com/coinhunt/roomengine/pkg/streaming"
)

// Engine is the read and admin surface of the room engine served over HTTP.
type Engine interface {
	ListAvailable(room string) ([]core.Coin, bool)
	RoomNames() []string
	Room(name string) (core.RoomSummary, bool)
	Nearby(ctx context.Context, room string, center core.Coordinates, radius float64) ([]core.Coin, error)
	Generate(ctx context.Context, cfg core.RoomConfig) error
}

// CoinsAvailableResponse is the body of GET /coins/{room}.
type CoinsAvailableResponse struct {
	Room           string `json:"room"`
	CoinsAvailable int    `json:"coinsAvailable"`
}

// RoomsResponse is the body of GET /rooms.
type RoomsResponse struct {
	Rooms []string `json:"rooms"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server serves the HTTP query surface. The realtime endpoint is mounted
// by the caller under /ws.
type Server struct {
	engine Engine
	apiKey string
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer builds the route table. Room generation over HTTP is enabled
// only when apiKey is set.
func NewServer(eng Engine, apiKey string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine: eng,
		apiKey: apiKey,
		logger: logger.With("component", "api"),
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /healthcheck", s.handleHealthcheck)
	s.mux.HandleFunc("GET /rooms", s.handleRooms)
	s.mux.HandleFunc("GET /rooms/{room}", s.handleRoom)
	s.mux.HandleFunc("POST /rooms", s.handleGenerate)
	s.mux.HandleFunc("GET /coins/{room}", s.handleCoins)
	s.mux.HandleFunc("GET /coins/{room}/nearby", s.handleNearby)
	return s
}

// Handle mounts an extra handler, e.g. the websocket endpoint.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRooms(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, RoomsResponse{Rooms: s.engine.RoomNames()})
}

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	summary, ok := s.engine.Room(r.PathValue("room"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "Error")
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCoins(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	coins, ok := s.engine.ListAvailable(room)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Error")
		return
	}
	s.writeJSON(w, http.StatusOK, CoinsAvailableResponse{Room: room, CoinsAvailable: len(coins)})
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req, err := parser.Query(r.PathValue("room"), q.Get("x"), q.Get("y"), q.Get("radius"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	coins, err := s.engine.Nearby(r.Context(), req.Room, req.Center, req.Radius)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, streaming.CoinsPayload{Room: req.Room, Coins: coins})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.apiKey == "" {
		return false
	}
	secret := r.Header.Get("X-Api-Key")
	if secret == "" {
		secret = r.URL.Query().Get("secret")
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(s.apiKey)) == 1
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var cfg core.RoomConfig
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid room config: "+err.Error())
		return
	}
	if err := s.engine.Generate(r.Context(), cfg); err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.logger.Info("room generated over HTTP", "room", cfg.Room, "coins", cfg.Coins)
	summary, _ := s.engine.Room(cfg.Room)
	s.writeJSON(w, http.StatusCreated, summary)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidQuery), errors.Is(err, engine.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
